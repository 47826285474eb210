/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"context"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"visory/internal/domain"
	"visory/internal/vector"
)

// WireframeRenderer draws panel outlines and bubble boxes without loading any
// image. It is used for quick thumbnails and layout checks.
type WireframeRenderer struct {
	PanelColor color.Color // default black
	PanelFill  color.Color // default light grey
}

func (w WireframeRenderer) RenderPage(ctx context.Context, page domain.ComicPage, opts Options) (image.Image, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(vector.ColorOr(page.BackgroundColor, vector.White))
	dc.Clear()
	dc.SetLineWidth(1)

	stroke := colorOr(w.PanelColor, color.RGBA{A: 255})
	fill := colorOr(w.PanelFill, color.RGBA{R: 220, G: 220, B: 220, A: 255})
	for _, p := range page.DrawablePanels() {
		r := vector.FromPercent(p.X, p.Y, p.Width, p.Height, opts.Width, opts.Height)
		if !inRange(r) || !visible(r, p.Rotation, opts) {
			continue
		}
		cs := vector.RotatedCorners(r, p.Rotation)
		outline(dc, vector.ClipPolygon(cs[:], guardBand(opts)), fill, stroke)
	}
	for _, b := range page.Bubbles {
		r := vector.FromPercent(b.X, b.Y, b.Width, b.Height, opts.Width, opts.Height)
		if !inRange(r) {
			continue
		}
		box, ok := r.Intersect(guardBand(opts))
		if !ok {
			continue
		}
		cs := box.Corners()
		outline(dc, cs[:], vector.ColorOr(b.BackgroundColor, vector.White), vector.ColorOr(b.BorderColor, vector.Black))
	}
	return dc.Image(), nil
}

// outline fills and strokes a closed polygon.
func outline(dc *gg.Context, pts []vector.Pt, fill, stroke color.Color) {
	if len(pts) < 3 {
		return
	}
	dc.NewSubPath()
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
	dc.SetColor(fill)
	dc.FillPreserve()
	dc.SetColor(stroke)
	dc.Stroke()
}

func colorOr(c, def color.Color) color.Color {
	if c == nil {
		return def
	}
	return c
}
