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
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"visory/internal/crash"
	"visory/internal/domain"
	"visory/internal/export"
	applog "visory/internal/log"
	"visory/internal/raster"
	"visory/internal/telemetry"

	"github.com/spf13/cobra"
)

// selectPages returns all pages, or only the one numbered page when page > 0.
func selectPages(pages []domain.ComicPage, page int) ([]domain.ComicPage, error) {
	if page <= 0 {
		if len(pages) == 0 {
			return nil, export.ErrNoPages
		}
		return pages, nil
	}
	for _, pg := range pages {
		if pg.PageNumber == page {
			return []domain.ComicPage{pg}, nil
		}
	}
	return nil, fmt.Errorf("page %d not found (project has %d pages)", page, len(pages))
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		outDir        string
		page          int
		width, height int
		wireframe     bool
	)
	cmd := &cobra.Command{
		Use:   "render <project-dir>",
		Short: "Render project pages to PNG files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := ctx.openProject(args[0])
			if err != nil {
				return err
			}
			defer crash.Recover(ph)

			pages, err := selectPages(ph.Project.Pages, page)
			if err != nil {
				return err
			}
			opts, err := ctx.renderOptions(width, height)
			if err != nil {
				return err
			}
			r, err := ctx.renderer(wireframe)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = filepath.Join(ph.Root, "exports", "pages")
			}
			l := applog.WithOperation(applog.WithComponent(applog.ComponentCLI), "render")

			start := time.Now()
			imgs, err := raster.RenderAll(cmd.Context(), r, pages, opts, ctx.batch(progressPrinter(cmd.ErrOrStderr(), "rendering")))
			if err != nil {
				var pe *raster.PageError
				failed := 0
				if errors.As(err, &pe) {
					failed = 1
				}
				telemetry.RenderCompleted(len(pages), failed, time.Since(start))
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("ensure out dir: %w", err)
			}
			rows := make([][]string, 0, len(imgs))
			for i, img := range imgs {
				data, err := export.PNGCodec{}.Encode(img)
				if err != nil {
					return err
				}
				path := filepath.Join(outDir, fmt.Sprintf("page_%03d.png", pages[i].PageNumber))
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return err
				}
				rows = append(rows, []string{strconv.Itoa(pages[i].PageNumber), path, strconv.Itoa(len(data))})
			}
			took := time.Since(start)
			telemetry.RenderCompleted(len(pages), 0, took)
			l.Info("render finished", slog.Int("pages", len(pages)), slog.Duration("took", took))
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Page", "File", "Bytes"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default <project>/exports/pages)")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Render only this page number")
	cmd.Flags().IntVar(&width, "width", 0, "Canvas width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "Canvas height in pixels")
	cmd.Flags().BoolVar(&wireframe, "wireframe", false, "Draw panel and bubble outlines without fetching images")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		format        string
		outPath       string
		preset        string
		formats       []string
		outDir        string
		width, height int
		wireframe     bool
	)
	cmd := &cobra.Command{
		Use:   "export <project-dir>",
		Short: "Export a project as CBZ, CBR, PDF or EPUB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := ctx.openProject(args[0])
			if err != nil {
				return err
			}
			defer crash.Recover(ph)

			pages, err := selectPages(ph.Project.Pages, 0)
			if err != nil {
				return err
			}
			r, err := ctx.renderer(wireframe)
			if err != nil {
				return err
			}
			cfg := ctx.configValue()
			ex := &export.Exporter{Codec: export.JPEGCodec{Quality: cfg.Render.JPEGQuality}}
			progress := progressPrinter(cmd.ErrOrStderr(), "rendering")
			out := cmd.OutOrStdout()

			if preset != "" {
				p, err := export.PresetByName(preset)
				if err != nil {
					return err
				}
				var fs []export.Format
				for _, s := range formats {
					f, err := export.ParseFormat(s)
					if err != nil {
						return err
					}
					fs = append(fs, f)
				}
				if outDir == "" {
					outDir = filepath.Join(ph.Root, "exports")
				}
				written, err := ex.BatchExport(cmd.Context(), r, pages, export.BatchOptions{
					Preset:  p,
					Formats: fs,
					OutDir:  outDir,
					Name:    ph.Project.Name,
					Render:  ctx.batch(progress),
				})
				for _, path := range written {
					fmt.Fprintln(out, "Wrote", path)
				}
				return err
			}

			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			opts, err := ctx.renderOptions(width, height)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = filepath.Join(ph.Root, "exports", export.FileName(ph.Project.Name, f))
			}
			start := time.Now()
			imgs, err := raster.RenderAll(cmd.Context(), r, pages, opts, ctx.batch(progress))
			if err == nil {
				err = ex.ExportFile(cmd.Context(), imgs, export.Request{
					Name:   ph.Project.Name,
					Format: f,
					Width:  opts.Width,
					Height: opts.Height,
				}, outPath)
			}
			if err != nil {
				telemetry.ExportFailed(string(f))
				return fmt.Errorf("export %s: %w", f, err)
			}
			var size int64
			if st, statErr := os.Stat(outPath); statErr == nil {
				size = st.Size()
			}
			telemetry.ExportCompleted(string(f), len(pages), size, time.Since(start))
			fmt.Fprintf(out, "Wrote %s (%d pages, %d bytes)\n", outPath, len(pages), size)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatCBZ), "Output format: cbz, cbr, pdf or epub")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default <project>/exports/<name>.<ext>)")
	cmd.Flags().StringVar(&preset, "preset", "", "Export preset (web or print); writes every preset format")
	cmd.Flags().StringSliceVar(&formats, "formats", nil, "Formats for --preset (default: preset formats)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Base directory for --preset output")
	cmd.Flags().IntVar(&width, "width", 0, "Canvas width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "Canvas height in pixels")
	cmd.Flags().BoolVar(&wireframe, "wireframe", false, "Draw panel and bubble outlines without fetching images")
	return cmd
}
