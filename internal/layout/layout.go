/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout holds the fixed panel templates and the matcher that infers a
// template name from an arbitrary panel set.
package layout

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"visory/internal/domain"
)

// ErrUnknownLayout is returned for names that are not a template.
var ErrUnknownLayout = errors.New("unknown layout")

// Tolerance is the per-coordinate slack, in percentage points, used by DetectLayoutFromPanels.
const Tolerance = 5.0

// MaxTemplatePanels is the largest panel count any template carries.
const MaxTemplatePanels = 4

var templates = map[domain.Layout][]domain.Rect{
	domain.LayoutSingle: {
		{X: 0, Y: 0, W: 100, H: 100},
	},
	domain.LayoutDouble: {
		{X: 0, Y: 0, W: 100, H: 48},
		{X: 0, Y: 52, W: 100, H: 48},
	},
	domain.LayoutTriple: {
		{X: 0, Y: 0, W: 100, H: 30},
		{X: 0, Y: 33, W: 100, H: 30},
		{X: 0, Y: 66, W: 100, H: 30},
	},
	domain.LayoutQuad: {
		{X: 0, Y: 0, W: 48, H: 48},
		{X: 52, Y: 0, W: 48, H: 48},
		{X: 0, Y: 52, W: 48, H: 48},
		{X: 52, Y: 52, W: 48, H: 48},
	},
}

// matchOrder is the order templates are tried in; the first full match wins.
var matchOrder = []domain.Layout{domain.LayoutSingle, domain.LayoutDouble, domain.LayoutTriple, domain.LayoutQuad}

// Names returns the named templates in match order.
func Names() []domain.Layout { return append([]domain.Layout(nil), matchOrder...) }

// Parse maps a case-insensitive template name to its Layout.
func Parse(name string) (domain.Layout, error) {
	l := domain.Layout(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := templates[l]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
	return l, nil
}

// Template returns a copy of the rectangles of a named template.
func Template(name domain.Layout) ([]domain.Rect, bool) {
	t, ok := templates[name]
	if !ok {
		return nil, false
	}
	return append([]domain.Rect(nil), t...), true
}

// CreatePanelsFromLayout builds a fresh panel list for the named template. The
// image of existing[i] carries over to the new panel i; rotation and crop do not.
// Unknown names (including custom) return a copy of existing unchanged.
func CreatePanelsFromLayout(name domain.Layout, existing []domain.ComicPanel) []domain.ComicPanel {
	rects, ok := templates[name]
	if !ok {
		return append([]domain.ComicPanel(nil), existing...)
	}
	out := make([]domain.ComicPanel, len(rects))
	for i, r := range rects {
		p := domain.ComicPanel{
			ID:     uuid.NewString(),
			X:      r.X,
			Y:      r.Y,
			Width:  r.W,
			Height: r.H,
		}
		if i < len(existing) {
			p.ImageURL = existing[i].ImageURL
		}
		out[i] = p
	}
	return out
}

// DetectLayoutFromPanels returns the template the panels match within Tolerance,
// independent of input order. No panels count as single; more than four, or no
// match, yield custom. The input slice is not modified.
func DetectLayoutFromPanels(panels []domain.ComicPanel) domain.Layout {
	if len(panels) == 0 {
		return domain.LayoutSingle
	}
	if len(panels) > MaxTemplatePanels {
		return domain.LayoutCustom
	}
	got := make([]domain.Rect, len(panels))
	for i, p := range panels {
		got[i] = p.Rect()
	}
	sortRects(got)
	for _, name := range matchOrder {
		want := append([]domain.Rect(nil), templates[name]...)
		if len(want) != len(got) {
			continue
		}
		sortRects(want)
		if rectsMatch(got, want) {
			return name
		}
	}
	return domain.LayoutCustom
}

func sortRects(rs []domain.Rect) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Y != rs[j].Y {
			return rs[i].Y < rs[j].Y
		}
		return rs[i].X < rs[j].X
	})
}

func rectsMatch(a, b []domain.Rect) bool {
	for i := range a {
		if !near(a[i].X, b[i].X) || !near(a[i].Y, b[i].Y) || !near(a[i].W, b[i].W) || !near(a[i].H, b[i].H) {
			return false
		}
	}
	return true
}

func near(a, b float64) bool { return math.Abs(a-b) <= Tolerance }
