/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"testing"
)

func TestProjectJSONRoundTrip(t *testing.T) {
	preview := "https://cdn.test/p1.png"
	p := Project{
		Name: "RoundTrip",
		Pages: []ComicPage{{
			ID:              11,
			PageNumber:      1,
			Layout:          LayoutSingle,
			BackgroundColor: "#fff",
			Panels:          []ComicPanel{{ID: "a", ImageURL: "img.png", Width: 100, Height: 100, ImagePosition: &Point{X: 50, Y: 50}}},
			Bubbles:         []SpeechBubble{{ID: "b", Type: BubbleThought, Text: "hmm"}},
			PreviewURL:      &preview,
		}},
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Project
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != p.Name || len(got.Pages) != 1 {
		t.Fatalf("unexpected project: %+v", got)
	}
	pg := got.Pages[0]
	if pg.Bubbles[0].Type != BubbleThought || pg.Panels[0].ImagePosition == nil || *pg.PreviewURL != preview {
		t.Fatalf("page fields lost: %+v", pg)
	}
}

func TestBubbleTypeRules(t *testing.T) {
	cases := []struct {
		typ    BubbleType
		tail   bool
		radius float64
	}{
		{BubbleSpeech, true, 16},
		{BubbleShout, true, 16},
		{BubbleThought, false, 16},
		{BubbleWhisper, false, 16},
		{BubbleNarration, false, 0},
	}
	for _, c := range cases {
		if !c.typ.Valid() {
			t.Fatalf("%s should be valid", c.typ)
		}
		if c.typ.HasTail() != c.tail {
			t.Fatalf("%s HasTail = %v", c.typ, !c.tail)
		}
		if c.typ.CornerRadius() != c.radius {
			t.Fatalf("%s radius = %v, want %v", c.typ, c.typ.CornerRadius(), c.radius)
		}
	}
	if BubbleType("scream").Valid() {
		t.Fatalf("unknown type must be invalid")
	}
}

func TestDrawablePanelsSkipsPlaceholders(t *testing.T) {
	pg := ComicPage{Panels: []ComicPanel{{ID: "1", ImageURL: "a"}, {ID: "2"}, {ID: "3", ImageURL: "  "}, {ID: "4", ImageURL: "b"}}}
	got := pg.DrawablePanels()
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "4" {
		t.Fatalf("unexpected drawable panels: %+v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	pg := ComicPage{Panels: []ComicPanel{{ID: "1", ImagePosition: &Point{X: 1}}}, Bubbles: []SpeechBubble{{ID: "b"}}}
	c := pg.Clone()
	c.Panels[0].ID = "x"
	c.Panels[0].ImagePosition.X = 99
	c.Bubbles[0].Text = "changed"
	if pg.Panels[0].ID != "1" || pg.Panels[0].ImagePosition.X != 1 || pg.Bubbles[0].Text != "" {
		t.Fatalf("clone shares state with original: %+v", pg)
	}
}

func TestNewPageAndRenumber(t *testing.T) {
	pg := NewPage(3, "p-1")
	if pg.Layout != LayoutSingle || len(pg.Panels) != 1 || !pg.Panels[0].IsPlaceholder() || pg.Panels[0].Width != 100 {
		t.Fatalf("unexpected new page: %+v", pg)
	}
	pages := []ComicPage{{PageNumber: 4}, {PageNumber: 9}, {PageNumber: 2}}
	Renumber(pages)
	for i, p := range pages {
		if p.PageNumber != i+1 {
			t.Fatalf("page %d numbered %d", i, p.PageNumber)
		}
	}
}

func TestBoldItalic(t *testing.T) {
	if !(SpeechBubble{FontWeight: "700"}).Bold() || (SpeechBubble{FontWeight: "normal"}).Bold() {
		t.Fatalf("bold detection wrong")
	}
	if !(SpeechBubble{FontStyle: "Italic"}).Italic() {
		t.Fatalf("italic detection wrong")
	}
}
