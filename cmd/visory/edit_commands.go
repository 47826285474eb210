/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"visory/internal/domain"
	"visory/internal/editor"
	"visory/internal/layout"
	"visory/internal/lettering"
	"visory/internal/storage"

	"github.com/spf13/cobra"
)

// editProject opens dir, applies fn to an editing session and saves the
// result when fn succeeds.
func editProject(ctx *commandContext, dir string, fn func(s *editor.Session) error) error {
	ph, err := ctx.openProject(dir)
	if err != nil {
		return err
	}
	s := editor.NewSession(ph.Project, nil)
	if err := fn(s); err != nil {
		return err
	}
	ph.Project = s.Project()
	return storage.Save(ph)
}

func pageIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page number %q", arg)
	}
	return n - 1, nil
}

func newLayoutCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "List panel layouts or apply one to a page",
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "list",
		Short:       "List the layout templates",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, name := range layout.Names() {
				rects, _ := layout.Template(name)
				cells := make([]string, 0, len(rects))
				for _, r := range rects {
					cells = append(cells, fmt.Sprintf("%g,%g %gx%g", r.X, r.Y, r.W, r.H))
				}
				rows = append(rows, []string{string(name), strconv.Itoa(len(rects)), strings.Join(cells, "  ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Layout", "Panels", "Rects (x,y wxh %)"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "apply <project-dir> <page> <layout>",
		Short: "Replace the panels of a page with a layout template",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			name, err := layout.Parse(args[2])
			if err != nil {
				return err
			}
			err = editProject(ctx, args[0], func(s *editor.Session) error { return s.SetLayout(i, name) })
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Page %d now uses the %s layout\n", i+1, name)
			return nil
		},
	})
	return cmd
}

func newPageCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Edit pages, panels and bubbles of a project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <project-dir>",
		Short: "Append a blank page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			err := editProject(ctx, args[0], func(s *editor.Session) error {
				n = s.AddPage() + 1
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added page %d\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <project-dir> <page>",
		Short: "Delete a page and renumber the rest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			return editProject(ctx, args[0], func(s *editor.Session) error { return s.DeletePage(i) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "move <project-dir> <from> <to>",
		Short: "Move a page to a new position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			to, err := pageIndex(args[2])
			if err != nil {
				return err
			}
			return editProject(ctx, args[0], func(s *editor.Session) error { return s.ReorderPages(from, to) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "image <project-dir> <page> <panel> <url>",
		Short: "Assign an image to a panel (1-based panel index)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			k, err := strconv.Atoi(args[2])
			if err != nil || k < 1 {
				return fmt.Errorf("invalid panel index %q", args[2])
			}
			return editProject(ctx, args[0], func(s *editor.Session) error {
				pg, err := s.Page(i)
				if err != nil {
					return err
				}
				if k > len(pg.Panels) {
					return fmt.Errorf("page %d has %d panels", i+1, len(pg.Panels))
				}
				panel := pg.Panels[k-1]
				panel.ImageURL = args[3]
				return s.UpdatePanel(i, panel)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "background <project-dir> <page> <color>",
		Short: "Set the page background colour",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			return editProject(ctx, args[0], func(s *editor.Session) error { return s.SetBackground(i, args[2]) })
		},
	})

	var (
		bubbleType string
		x, y, w, h float64
	)
	bubble := &cobra.Command{
		Use:   "bubble <project-dir> <page> <text>",
		Short: "Add a speech bubble to a page",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			var b domain.SpeechBubble
			err = editProject(ctx, args[0], func(s *editor.Session) error {
				var err error
				b, err = s.AddBubble(i, domain.BubbleType(strings.ToLower(bubbleType)), args[2], domain.Rect{X: x, Y: y, W: w, H: h})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s bubble %s to page %d\n", b.Type, b.ID, i+1)
			return nil
		},
	}
	bubble.Flags().StringVarP(&bubbleType, "type", "t", string(domain.BubbleSpeech), "speech, thought, narration, shout or whisper")
	bubble.Flags().Float64Var(&x, "x", 10, "Left edge in percent")
	bubble.Flags().Float64Var(&y, "y", 10, "Top edge in percent")
	bubble.Flags().Float64Var(&w, "width", 30, "Width in percent")
	bubble.Flags().Float64Var(&h, "height", 15, "Height in percent")
	cmd.AddCommand(bubble)

	return cmd
}

func newLetterCommand(ctx *commandContext) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "letter <project-dir> <script-file>",
		Short: "Add the bubbles of a lettering script to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			sc, perrs := lettering.Parse(string(data))
			for _, e := range perrs {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", e.Error())
			}
			if strict && len(perrs) > 0 {
				return fmt.Errorf("script has %d problem(s)", len(perrs))
			}
			if len(sc.Pages) == 0 {
				return errors.New("script contains no pages")
			}
			var added int
			err = editProject(ctx, args[0], func(s *editor.Session) error {
				var err error
				added, err = lettering.Apply(s, sc)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Lettered %d bubbles on %d pages\n", added, len(sc.Pages))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail instead of skipping unrecognized script lines")
	return cmd
}
