/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"visory/internal/domain"
	"visory/internal/raster"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// Preset bundles a canvas size, JPEG quality and default formats.
type Preset struct {
	Name    PresetName
	Width   int
	Height  int
	Quality int
	Formats []Format
}

var presets = []Preset{
	{Name: PresetWeb, Width: 1080, Height: 1440, Quality: 85, Formats: []Format{FormatCBZ, FormatEPUB}},
	{Name: PresetPrint, Width: 2160, Height: 2880, Quality: 95, Formats: []Format{FormatPDF, FormatCBZ}},
}

// Presets returns copies of the built-in presets.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	for i, p := range presets {
		p.Formats = append([]Format(nil), p.Formats...)
		out[i] = p
	}
	return out
}

// PresetByName looks a preset up case-insensitively.
func PresetByName(name string) (Preset, error) {
	for _, p := range Presets() {
		if strings.EqualFold(string(p.Name), strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown preset %q", name)
}

// Options returns the raster canvas for the preset.
func (p Preset) Options() raster.Options { return raster.Options{Width: p.Width, Height: p.Height} }

// BatchOptions controls batch export across formats.
//
// Path semantics:
//   - If OutDir is empty it defaults to "exports"; outputs land in <OutDir>/<preset>/<format>/.
//   - File names come from FileName(Name, format).
//
//nolint:revive // keep fields explicit for clarity
type BatchOptions struct {
	Preset  Preset
	Formats []Format // empty means preset defaults
	OutDir  string
	Name    string
	Render  raster.BatchOptions
}

// BatchExport renders pages once at the preset size and writes every
// requested format. It returns the written paths in format order.
func (e *Exporter) BatchExport(ctx context.Context, r raster.Renderer, pages []domain.ComicPage, opt BatchOptions) ([]string, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = opt.Preset.Formats
	}
	baseOut := opt.OutDir
	if baseOut == "" {
		baseOut = "exports"
	}
	baseOut = filepath.Join(baseOut, string(opt.Preset.Name))

	imgs, err := raster.RenderAll(ctx, r, pages, opt.Preset.Options(), opt.Render)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	ex := *e
	ex.Codec = JPEGCodec{Quality: opt.Preset.Quality}

	var written []string
	for _, f := range formats {
		out := filepath.Join(baseOut, string(f), FileName(opt.Name, f))
		req := Request{Name: opt.Name, Format: f, Width: opt.Preset.Width, Height: opt.Preset.Height}
		if err := ex.exportFile(ctx, imgs, req, out); err != nil {
			return written, fmt.Errorf("%s: %w", f, err)
		}
		written = append(written, out)
	}
	return written, nil
}

// ExportFile exports into path, replacing it only after the export succeeded.
func (e *Exporter) ExportFile(ctx context.Context, pages []image.Image, req Request, path string) error {
	return e.exportFile(ctx, pages, req, path)
}

func (e *Exporter) exportFile(ctx context.Context, pages []image.Image, req Request, path string) error {
	var buf bytes.Buffer
	if err := e.Export(ctx, pages, req, &buf, nil); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
