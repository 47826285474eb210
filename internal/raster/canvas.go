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
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"visory/internal/domain"
	applog "visory/internal/log"
	"visory/internal/textlayout"
	"visory/internal/vector"
)

var (
	// ErrNoLoader is reported per panel when the renderer has no ImageLoader.
	ErrNoLoader = errors.New("no image loader")
	// ErrOutOfRange is reported for shapes mapped beyond maxExtent pixels.
	ErrOutOfRange = errors.New("geometry out of range")
)

// textInset is the horizontal padding, per side, inside a bubble.
const textInset = 10

// CanvasRenderer paints pages with a 2D vector context. Panel images are
// stretched to fill their rectangle exactly and rotated about its centre.
type CanvasRenderer struct {
	Loader ImageLoader
	Fonts  textlayout.Provider
	Logger *slog.Logger
}

// NewCanvasRenderer wires a renderer with the built-in fonts. A nil loader
// renders every panel as missing.
func NewCanvasRenderer(loader ImageLoader) (*CanvasRenderer, error) {
	lib, err := textlayout.NewDefaultLibrary()
	if err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	return &CanvasRenderer{
		Loader: loader,
		Fonts:  textlayout.OTProvider{Lib: lib},
		Logger: applog.WithComponent(applog.ComponentRender),
	}, nil
}

func (r *CanvasRenderer) RenderPage(ctx context.Context, page domain.ComicPage, opts Options) (image.Image, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := r.logger().With(applog.PageID(page.ID), applog.PageNumber(page.PageNumber))

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetColor(vector.ColorOr(page.BackgroundColor, vector.White))
	dc.Clear()

	for _, p := range page.DrawablePanels() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.drawPanel(ctx, dc, p, opts); err != nil {
			l.Warn("panel image skipped", slog.String("panel_id", p.ID), slog.Any("err", err))
		}
	}
	for _, b := range page.Bubbles {
		r.drawBubble(dc, b, opts, l)
	}
	return dc.Image(), nil
}

func (r *CanvasRenderer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return applog.WithComponent(applog.ComponentRender)
}

func (r *CanvasRenderer) drawPanel(ctx context.Context, dc *gg.Context, p domain.ComicPanel, opts Options) error {
	if r.Loader == nil {
		return ErrNoLoader
	}
	rect := vector.FromPercent(p.X, p.Y, p.Width, p.Height, opts.Width, opts.Height)
	w, h := math.Round(rect.W), math.Round(rect.H)
	if w <= 0 || h <= 0 || !visible(rect, p.Rotation, opts) {
		return nil
	}
	if !inRange(rect) {
		return ErrOutOfRange
	}
	src, err := r.Loader.Load(ctx, p.ImageURL)
	if err != nil {
		return err
	}
	pw, ph := prescaleSize(w, h, opts)
	fitted := imaging.Resize(src, pw, ph, imaging.Lanczos)
	c := rect.Center()
	dc.Push()
	dc.RotateAbout(gg.Radians(p.Rotation), c.X, c.Y)
	dc.Translate(math.Round(rect.X), math.Round(rect.Y))
	dc.Scale(w/float64(pw), h/float64(ph))
	dc.DrawImage(fitted, 0, 0)
	dc.Pop()
	return nil
}

// prescaleSize caps the resampled panel bitmap at twice the canvas on each
// axis. Larger panels are enlarged further by the draw transform, which only
// touches pixels on the canvas.
func prescaleSize(w, h float64, opts Options) (int, int) {
	pw := int(math.Min(w, float64(2*opts.Width)))
	ph := int(math.Min(h, float64(2*opts.Height)))
	return max(pw, 1), max(ph, 1)
}

func (r *CanvasRenderer) drawBubble(dc *gg.Context, b domain.SpeechBubble, opts Options, l *slog.Logger) {
	rect := vector.FromPercent(b.X, b.Y, b.Width, b.Height, opts.Width, opts.Height)
	if !inRange(rect) {
		l.Warn("bubble skipped", slog.String("bubble_id", b.ID), slog.Any("err", ErrOutOfRange))
		return
	}
	if !visible(rect.Inset(-tailReach(rect), -tailReach(rect)), 0, opts) {
		return
	}
	shape, ok := rect.Intersect(guardBand(opts))
	if !ok {
		return
	}
	fill := vector.ColorOr(b.BackgroundColor, vector.White)
	border := vector.ColorOr(b.BorderColor, vector.Black)

	paint := func() {
		dc.SetColor(fill)
		if b.BorderWidth <= 0 {
			dc.Fill()
			return
		}
		dc.FillPreserve()
		dc.SetColor(border)
		dc.SetLineWidth(b.BorderWidth)
		dc.Stroke()
	}

	if b.Type == domain.BubbleThought {
		c := shape.Center()
		dc.DrawEllipse(c.X, c.Y, shape.W/2, shape.H/2)
		paint()
		for _, circle := range vector.ThoughtTrail(shape) {
			dc.DrawCircle(circle.C.X, circle.C.Y, circle.R)
			paint()
		}
	} else {
		if b.ShowTail && b.Type.HasTail() {
			tail := vector.BubbleTail(shape)
			tracePath(dc, tail.Path)
			paint()
		}
		radius := math.Min(b.Type.CornerRadius(), math.Min(shape.W, shape.H)/2)
		if radius > 0 {
			dc.DrawRoundedRectangle(shape.X, shape.Y, shape.W, shape.H, radius)
		} else {
			dc.DrawRectangle(shape.X, shape.Y, shape.W, shape.H)
		}
		paint()
	}
	r.drawText(dc, b, rect, l)
}

// tailReach is how far a tail or thought trail may extend past its bubble.
func tailReach(r vector.Rect) float64 { return math.Max(r.W, r.H) / 2 }

func (r *CanvasRenderer) drawText(dc *gg.Context, b domain.SpeechBubble, rect vector.Rect, l *slog.Logger) {
	if strings.TrimSpace(b.Text) == "" {
		return
	}
	fonts := r.Fonts
	if fonts == nil {
		fonts = textlayout.BasicProvider{}
	}
	spec := textlayout.SpecFor(b)
	face, _ := fonts.Resolve(spec)
	if face == nil {
		l.Warn("font unavailable, using basic face", slog.String("bubble_id", b.ID), slog.String("family", spec.Family))
		face, _ = textlayout.BasicProvider{}.Resolve(spec)
	}
	dc.SetFontFace(face)
	box := textlayout.Layout(face, b.Text, rect.W-2*textInset, spec.Size*textlayout.LineHeightFactor)

	x, ax := rect.X+rect.W/2, 0.5
	switch strings.ToLower(b.TextAlign) {
	case "left":
		x, ax = rect.X+textInset, 0
	case "right":
		x, ax = rect.X+rect.W-textInset, 1
	}
	underline := strings.Contains(strings.ToLower(b.TextDecoration), "underline")

	dc.SetColor(vector.ColorOr(b.Color, vector.Black))
	y := rect.Y + (rect.H-box.Height)/2 + box.LineHeight/2
	for _, line := range box.Lines {
		dc.DrawStringAnchored(line, x, y, ax, 0.5)
		if underline && line != "" {
			w, _ := dc.MeasureString(line)
			x0 := x - ax*w
			uy := y + spec.Size*0.45
			dc.SetLineWidth(math.Max(1, spec.Size/16))
			dc.DrawLine(x0, uy, x0+w, uy)
			dc.Stroke()
		}
		y += box.LineHeight
	}
}

// tracePath replays a vector path onto the context as a new sub path.
func tracePath(dc *gg.Context, p vector.Path) {
	dc.NewSubPath()
	for _, c := range p.Cmds {
		d := c.Data
		switch c.Op {
		case vector.MoveTo:
			dc.MoveTo(d[0], d[1])
		case vector.LineTo:
			dc.LineTo(d[0], d[1])
		case vector.QuadTo:
			dc.QuadraticTo(d[0], d[1], d[2], d[3])
		case vector.CubicTo:
			dc.CubicTo(d[0], d[1], d[2], d[3], d[4], d[5])
		case vector.Close:
			dc.ClosePath()
		}
	}
}
