/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"visory/internal/domain"
	"visory/internal/layout"
	applog "visory/internal/log"
	"visory/internal/storage"
	"visory/internal/version"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func newInitCommand() *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "init <dir> <name>",
		Short: "Create a new project at <dir>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if pages < 1 {
				pages = 1
			}
			proj := domain.Project{Name: args[1]}
			for i := 1; i <= pages; i++ {
				proj.Pages = append(proj.Pages, domain.NewPage(i, uuid.NewString()))
			}
			applog.WithComponent(applog.ComponentCLI).Info("init project", slog.String("root", abs), slog.String("name", args[1]))
			if _, err := storage.InitProject(abs, proj); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Created project at", abs)
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of blank pages to start with")
	return cmd
}

func newPagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <project-dir>",
		Short: "List the pages of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := ctx.openProject(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project: %s\nRoot: %s\n", ph.Project.Name, ph.Root)
			rows := make([][]string, 0, len(ph.Project.Pages))
			for _, pg := range ph.Project.Pages {
				id := "-"
				if pg.ID != 0 {
					id = strconv.FormatInt(pg.ID, 10)
				}
				rows = append(rows, []string{
					strconv.Itoa(pg.PageNumber),
					id,
					string(layout.DetectLayoutFromPanels(pg.Panels)),
					strconv.Itoa(len(pg.DrawablePanels())),
					strconv.Itoa(len(pg.Panels) - len(pg.DrawablePanels())),
					strconv.Itoa(len(pg.Bubbles)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Page", "ID", "Layout", "Panels", "Empty", "Bubbles"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
