/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package raster draws comic pages into bitmaps. Every renderer maps page
// percentages onto the requested canvas the same way and paints panels first,
// then bubbles, each in list order. Renderers keep no per-page state, so one
// value can serve concurrent RenderPage calls.
package raster

import (
	"context"
	"errors"
	"image"
	"math"

	"visory/internal/domain"
	"visory/internal/vector"
)

const (
	DefaultWidth  = 1080
	DefaultHeight = 1440
)

// ErrInvalidSize is returned for non-positive canvas dimensions.
var ErrInvalidSize = errors.New("canvas size must be positive")

// Options selects the output canvas.
type Options struct {
	Width  int
	Height int
}

// DefaultOptions is the 1080x1440 portrait canvas.
func DefaultOptions() Options { return Options{Width: DefaultWidth, Height: DefaultHeight} }

// Normalize fills zero dimensions with the defaults.
func (o Options) Normalize() (Options, error) {
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Height == 0 {
		o.Height = DefaultHeight
	}
	if o.Width < 0 || o.Height < 0 {
		return o, ErrInvalidSize
	}
	return o, nil
}

// Renderer turns one page into an image.
type Renderer interface {
	RenderPage(ctx context.Context, page domain.ComicPage, opts Options) (image.Image, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, page domain.ComicPage, opts Options) (image.Image, error)

func (f RendererFunc) RenderPage(ctx context.Context, page domain.ComicPage, opts Options) (image.Image, error) {
	return f(ctx, page, opts)
}

// maxExtent bounds any mapped coordinate, in pixels. Shapes beyond it are
// skipped rather than handed to the rasterizer.
const maxExtent = 1 << 22

// canvasRect is the visible area of opts.
func canvasRect(opts Options) vector.Rect {
	return vector.R(0, 0, float64(opts.Width), float64(opts.Height))
}

// guardBand is the canvas grown by one canvas extent on every side. Outlines
// are clipped to it, so clipped edges never show on the canvas.
func guardBand(opts Options) vector.Rect {
	m := float64(max(opts.Width, opts.Height))
	return vector.R(-m, -m, float64(opts.Width)+2*m, float64(opts.Height)+2*m)
}

// inRange reports whether r is finite and within maxExtent on both axes.
func inRange(r vector.Rect) bool {
	for _, v := range [...]float64{r.X, r.Y, r.X + r.W, r.Y + r.H} {
		if math.IsNaN(v) || math.Abs(v) > maxExtent {
			return false
		}
	}
	return true
}

// visible reports whether r, rotated by deg about its centre, touches the canvas.
func visible(r vector.Rect, deg float64, opts Options) bool {
	cs := vector.RotatedCorners(r, deg)
	_, ok := vector.BoundsOf(cs[:]).Intersect(canvasRect(opts))
	return ok
}
