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
	"strconv"
	"strings"

	"visory/internal/storage"

	"github.com/spf13/cobra"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		types         []string
		from, to      int
		limit, offset int
	)
	cmd := &cobra.Command{
		Use:   "search <project-dir> [text]",
		Short: "Search bubble text and project names in a project",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := ctx.openProject(args[0])
			if err != nil {
				return err
			}
			rebuilt, err := storage.DetectAndRebuildIndex(cmd.Context(), ph.Root, ph.Project)
			if err != nil {
				return err
			}
			if !rebuilt {
				if err := storage.Reindex(cmd.Context(), ph); err != nil {
					return err
				}
			}
			q := storage.SearchQuery{Types: types, PageFrom: from, PageTo: to, Limit: limit, Offset: offset}
			if len(args) == 2 {
				q.Text = args[1]
			}
			results, err := storage.Search(cmd.Context(), ph.Root, q)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				page := ""
				if r.PageNumber > 0 {
					page = strconv.Itoa(r.PageNumber)
				}
				rows = append(rows, []string{page, r.Type, r.Path, strings.ReplaceAll(r.Snippet, "\n", " ")})
			}
			out := cmd.OutOrStdout()
			if rebuilt {
				fmt.Fprintln(out, "Index was damaged and has been rebuilt.")
			}
			fmt.Fprintln(out, renderTable([]string{"Page", "Type", "Path", "Match"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
			fmt.Fprintf(out, "%d result(s)\n", len(results))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "Restrict to document types (speech, thought, ..., project_name)")
	cmd.Flags().IntVar(&from, "from", 0, "First page number")
	cmd.Flags().IntVar(&to, "to", 0, "Last page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum results (default 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many results")
	return cmd
}
