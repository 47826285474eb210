/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package lettering

import (
	"fmt"
	"log/slog"

	"visory/internal/domain"
	"visory/internal/editor"
	applog "visory/internal/log"
)

// Placement is a bubble to add, positioned in page percent.
type Placement struct {
	Type domain.BubbleType
	Text string
	Rect domain.Rect
}

const (
	margin       = 2.0
	bubbleWidth  = 0.6 // of the target width
	maxBubbleH   = 15.0
	bubbleHShare = 0.25 // of the target height
)

// target returns the rectangle lines for panel n are stacked in. Panel 0, or a
// panel the page does not have, targets the whole page.
func target(pg domain.ComicPage, n int) domain.Rect {
	if n >= 1 && n <= len(pg.Panels) {
		return pg.Panels[n-1].Rect()
	}
	return domain.Rect{X: 0, Y: 0, W: 100, H: 100}
}

// Place stacks the bubbles of sp top-down inside their target panels of pg.
// Speech bubbles alternate between the left and right edge; captions span the
// target width. A full column wraps back to the top.
func Place(pg domain.ComicPage, sp Page) []Placement {
	var out []Placement
	next := map[int]int{} // panel -> bubbles placed so far
	for _, l := range sp.Bubbles() {
		r := target(pg, l.Panel)
		h := r.H * bubbleHShare
		if h > maxBubbleH {
			h = maxBubbleH
		}
		slots := int((r.H - margin) / (h + margin))
		if slots < 1 {
			slots = 1
		}
		k := next[l.Panel]
		next[l.Panel]++

		p := Placement{Type: l.Bubble, Text: l.Text}
		p.Rect.Y = r.Y + margin + float64(k%slots)*(h+margin)
		p.Rect.H = h
		if l.Kind == LineCaption {
			p.Rect.X = r.X + margin
			p.Rect.W = r.W - 2*margin
		} else {
			p.Rect.W = r.W * bubbleWidth
			p.Rect.X = r.X + margin
			if k%2 == 1 {
				p.Rect.X = r.X + r.W - margin - p.Rect.W
			}
		}
		out = append(out, p)
	}
	return out
}

// Apply letters every script page into the session, appending blank pages
// when the script names pages past the end. It returns the number of bubbles
// added; on error the bubbles added so far stay in the session.
func Apply(s *editor.Session, sc Script) (int, error) {
	l := applog.WithOperation(applog.WithComponent(applog.ComponentLetters), "apply")
	added := 0
	for _, sp := range sc.Pages {
		i := sp.Number - 1
		for len(s.Pages()) <= i {
			s.AddPage()
		}
		pg, err := s.Page(i)
		if err != nil {
			return added, err
		}
		for _, p := range Place(pg, sp) {
			if _, err := s.AddBubble(i, p.Type, p.Text, p.Rect); err != nil {
				return added, fmt.Errorf("page %d: %w", sp.Number, err)
			}
			added++
		}
	}
	l.Info("script lettered", slog.Int("pages", len(sc.Pages)), slog.Int("bubbles", added))
	return added, nil
}
