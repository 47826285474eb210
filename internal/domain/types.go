/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain holds the editor's comic page model. All geometry is in
// percent of the page canvas (0..100); values outside that range are legal and
// are clipped by the renderers, never by the model.
package domain

import "strings"

// Layout is a named panel arrangement. It is a hint derived from panel geometry.
type Layout string

const (
	LayoutSingle Layout = "single"
	LayoutDouble Layout = "double"
	LayoutTriple Layout = "triple"
	LayoutQuad   Layout = "quad"
	LayoutCustom Layout = "custom"
)

// BubbleType selects the paint shape of a speech bubble.
type BubbleType string

const (
	BubbleSpeech    BubbleType = "speech"
	BubbleThought   BubbleType = "thought"
	BubbleNarration BubbleType = "narration"
	BubbleShout     BubbleType = "shout"
	BubbleWhisper   BubbleType = "whisper"
)

// Valid reports whether t is one of the five known bubble types.
func (t BubbleType) Valid() bool {
	switch t {
	case BubbleSpeech, BubbleThought, BubbleNarration, BubbleShout, BubbleWhisper:
		return true
	}
	return false
}

// HasTail reports whether the type draws a pointed tail when ShowTail is set.
func (t BubbleType) HasTail() bool { return t == BubbleSpeech || t == BubbleShout }

// CornerRadius is the rounded-rect radius in pixels used by the canvas renderer.
func (t BubbleType) CornerRadius() float64 {
	if t == BubbleNarration {
		return 0
	}
	return 16
}

// Point is a percentage coordinate pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a percentage rectangle [X, X+W] x [Y, Y+H].
type Rect struct {
	X, Y, W, H float64
}

// ComicPanel is a rectangular image slot. An empty ImageURL marks a layout
// placeholder: it stays editable but is neither persisted nor drawn.
type ComicPanel struct {
	ID            string  `json:"id"`
	ImageURL      string  `json:"imageUrl"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	Rotation      float64 `json:"rotation"` // degrees, pivot at the panel centre
	ImagePosition *Point  `json:"imagePosition,omitempty"`
	ImageScale    float64 `json:"imageScale,omitempty"` // 1 cover, ~0.8 contain, else custom crop
}

// Rect returns the panel rectangle in percent.
func (p ComicPanel) Rect() Rect { return Rect{X: p.X, Y: p.Y, W: p.Width, H: p.Height} }

// IsPlaceholder reports whether the panel has no image assigned.
func (p ComicPanel) IsPlaceholder() bool { return strings.TrimSpace(p.ImageURL) == "" }

// SpeechBubble is a styled text container painted above the panels.
type SpeechBubble struct {
	ID              string     `json:"id"`
	Type            BubbleType `json:"type"`
	Text            string     `json:"text"`
	X               float64    `json:"x"`
	Y               float64    `json:"y"`
	Width           float64    `json:"width"`
	Height          float64    `json:"height"`
	FontSize        float64    `json:"fontSize"`
	FontFamily      string     `json:"fontFamily"`
	FontWeight      string     `json:"fontWeight"` // "normal" | "bold" | "100".."900"
	FontStyle       string     `json:"fontStyle"`  // "normal" | "italic"
	TextDecoration  string     `json:"textDecoration"`
	TextAlign       string     `json:"textAlign"` // "left" | "center" | "right"
	Color           string     `json:"color"`
	BackgroundColor string     `json:"backgroundColor"`
	BorderColor     string     `json:"borderColor"`
	BorderWidth     float64    `json:"borderWidth"`
	ShowTail        bool       `json:"showTail"`
}

// Rect returns the bubble rectangle in percent.
func (b SpeechBubble) Rect() Rect { return Rect{X: b.X, Y: b.Y, W: b.Width, H: b.Height} }

// Bold reports whether the weight asks for a bold face.
func (b SpeechBubble) Bold() bool {
	w := strings.ToLower(strings.TrimSpace(b.FontWeight))
	switch w {
	case "bold", "bolder", "600", "700", "800", "900":
		return true
	}
	return false
}

// Italic reports whether the style asks for an italic face.
func (b SpeechBubble) Italic() bool {
	s := strings.ToLower(strings.TrimSpace(b.FontStyle))
	return s == "italic" || s == "oblique"
}

// ComicPage is one page of a comic project.
type ComicPage struct {
	ID              int64          `json:"id,omitempty"` // 0 until persisted
	PageNumber      int            `json:"page_number"`
	Layout          Layout         `json:"layout"`
	BackgroundColor string         `json:"backgroundColor"`
	Panels          []ComicPanel   `json:"panels"`
	Bubbles         []SpeechBubble `json:"bubbles"`
	PreviewURL      *string        `json:"preview_url"`
}

// DrawablePanels returns the panels that carry an image, in paint order.
func (p ComicPage) DrawablePanels() []ComicPanel {
	out := make([]ComicPanel, 0, len(p.Panels))
	for _, pn := range p.Panels {
		if !pn.IsPlaceholder() {
			out = append(out, pn)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate freely.
func (p ComicPage) Clone() ComicPage {
	c := p
	c.Panels = append([]ComicPanel(nil), p.Panels...)
	for i := range c.Panels {
		if ip := p.Panels[i].ImagePosition; ip != nil {
			v := *ip
			c.Panels[i].ImagePosition = &v
		}
	}
	c.Bubbles = append([]SpeechBubble(nil), p.Bubbles...)
	if p.PreviewURL != nil {
		v := *p.PreviewURL
		c.PreviewURL = &v
	}
	return c
}

// Project is an ordered collection of pages.
type Project struct {
	ID    int64       `json:"id,omitempty"`
	Name  string      `json:"name"`
	Pages []ComicPage `json:"pages"`
}

// NewPage returns an unsaved page holding one full-bleed placeholder panel.
func NewPage(pageNumber int, panelID string) ComicPage {
	return ComicPage{
		PageNumber:      pageNumber,
		Layout:          LayoutSingle,
		BackgroundColor: "#ffffff",
		Panels:          []ComicPanel{{ID: panelID, X: 0, Y: 0, Width: 100, Height: 100}},
		Bubbles:         []SpeechBubble{},
	}
}

// Renumber rewrites page numbers to the contiguous sequence 1..N in slice order.
func Renumber(pages []ComicPage) {
	for i := range pages {
		pages[i].PageNumber = i + 1
	}
}
