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
	"image"
	"os"
	"path/filepath"
	"strconv"

	"visory/internal/export"
	"visory/internal/reader"
	"visory/internal/telemetry"

	"github.com/spf13/cobra"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var (
		extractDir string
		width      int
	)
	cmd := &cobra.Command{
		Use:   "inspect <file-or-url>",
		Short: "Open a CBZ or PDF comic and list its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rd := reader.New(reader.DefaultSource{Timeout: ctx.configValue().Render.FetchTimeout()})
			defer rd.Close()
			if err := rd.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			snap := rd.Snapshot()
			telemetry.DocumentOpened(string(snap.Type), snap.Pages)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Type: %s\nPages: %d\n", snap.Type, snap.Pages)

			var rows [][]string
			if doc := rd.Document(); doc != nil {
				for n := 1; n <= doc.NumPages(); n++ {
					w, h, err := doc.PageSize(n)
					if err != nil {
						return err
					}
					rows = append(rows, []string{strconv.Itoa(n), fmt.Sprintf("%.0fx%.0f pt", w, h), ""})
				}
			} else {
				for i := 0; i < snap.Pages; i++ {
					p, err := rd.Page(i)
					if err != nil {
						return err
					}
					rows = append(rows, []string{strconv.Itoa(i + 1), p.Name, strconv.Itoa(len(p.Data))})
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Page", "Entry", "Bytes"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight}))

			if extractDir == "" {
				return nil
			}
			imgs, err := decodeAll(cmd, rd, snap.Pages, width, ctx.configValue().Render.Workers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(extractDir, 0o755); err != nil {
				return err
			}
			for i, img := range imgs {
				data, err := export.PNGCodec{}.Encode(img)
				if err != nil {
					return err
				}
				if err := os.WriteFile(filepath.Join(extractDir, fmt.Sprintf("page_%03d.png", i+1)), data, 0o644); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Extracted %d pages to %s\n", len(imgs), extractDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&extractDir, "extract", "", "Write every page as PNG into this directory")
	cmd.Flags().IntVar(&width, "width", 0, "Scale PDF pages to this width (0 keeps native size)")
	return cmd
}

func decodeAll(cmd *cobra.Command, rd *reader.Reader, pages, width, workers int) ([]image.Image, error) {
	if doc := rd.Document(); doc != nil {
		return reader.RenderAll(cmd.Context(), doc, width, workers)
	}
	out := make([]image.Image, 0, pages)
	for i := 0; i < pages; i++ {
		p, err := rd.Page(i)
		if err != nil {
			return nil, err
		}
		img, err := p.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}
