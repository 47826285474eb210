/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures and line-breaks bubble text. Wrapping is greedy:
// a word joins the current line when the line still fits, otherwise it starts
// a new one. A single word wider than the box keeps its own line.
package textlayout

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// LineHeightFactor scales the font size into the distance between baselines.
const LineHeightFactor = 1.2

// FontSpec describes a requested font.
type FontSpec struct {
	Family string
	Size   float64 // px
	Bold   bool
	Italic bool
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

// Provider maps FontSpec to a concrete font.Face. Faces are not safe for
// concurrent use, so every call hands out a fresh one.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// TextBox is the result of laying out text into a box width.
type TextBox struct {
	Lines      []string
	Width      float64 // widest line
	LineHeight float64
	Height     float64
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float64(m.Ascent.Round()),
		Descent: float64(m.Descent.Round()),
		LineGap: float64(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// Wrap breaks text into lines no wider than maxWidth as judged by measure.
// Explicit newlines always break. maxWidth <= 0 disables wrapping.
func Wrap(text string, maxWidth float64, measure func(string) float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			test := line + " " + w
			if maxWidth > 0 && measure(test) > maxWidth {
				out = append(out, line)
				line = w
				continue
			}
			line = test
		}
		out = append(out, line)
	}
	return out
}

// Layout wraps text with the face's advances and sizes the resulting block.
// lineHeight <= 0 uses the face height.
func Layout(face font.Face, text string, maxWidth, lineHeight float64) TextBox {
	d := &font.Drawer{Face: face}
	measure := func(s string) float64 { return advance(d, s) }
	if lineHeight <= 0 {
		lineHeight = float64(face.Metrics().Height.Round())
	}
	box := TextBox{LineHeight: lineHeight}
	if strings.TrimSpace(text) == "" {
		return box
	}
	box.Lines = Wrap(text, maxWidth, measure)
	for _, l := range box.Lines {
		if w := measure(l); w > box.Width {
			box.Width = w
		}
	}
	box.Height = lineHeight * float64(len(box.Lines))
	return box
}

func advance(d *font.Drawer, s string) float64 {
	return float64(d.MeasureString(s)) / 64 // fixed.Int26_6 to px
}

// Measure returns the single-line width of text and the face height.
func Measure(provider Provider, spec FontSpec, text string) (w, h float64) {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, met := provider.Resolve(spec)
	return advance(&font.Drawer{Face: face}, text), met.Ascent + met.Descent
}
