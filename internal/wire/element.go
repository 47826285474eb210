/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package wire maps the editor page model to and from the backend's flat,
// type-tagged element list. Positions and sizes are rounded to whole percent
// on the way out, so sub-percent precision does not survive a save/load cycle.
package wire

// ElementType tags an element as a panel or a speech bubble.
type ElementType string

const (
	TypePanel        ElementType = "panel"
	TypeSpeechBubble ElementType = "speech_bubble"
)

// BorderRadius is the fixed radius sent with every bubble style block.
const BorderRadius = 12

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Style is the typography and chrome of a bubble element.
type Style struct {
	FontSize        float64 `json:"font_size"`
	Color           string  `json:"color"`
	FontFamily      string  `json:"font_family"`
	FontWeight      string  `json:"font_weight,omitempty"`
	FontStyle       string  `json:"font_style,omitempty"`
	BackgroundColor string  `json:"background_color"`
	BorderColor     string  `json:"border_color"`
	BorderWidth     float64 `json:"border_width"`
	TextAlign       string  `json:"text_align"`
	BorderRadius    int     `json:"border_radius"`
}

// Element is one persisted panel or bubble. LayerIndex is the paint order.
type Element struct {
	ID         string      `json:"id"`
	Type       ElementType `json:"type"`
	Position   Position    `json:"position"`
	Size       Size        `json:"size"`
	LayerIndex int         `json:"layer_index"`
	Image      *string     `json:"image,omitempty"`
	Rotation   *float64    `json:"rotation,omitempty"`
	Text       *string     `json:"text,omitempty"`
	// BubbleSubtype stores the bubble type verbatim. Older documents lack it
	// and fall back to the font family heuristic on load.
	BubbleSubtype string `json:"bubble_subtype,omitempty"`
	ShowTail      *bool  `json:"show_tail,omitempty"`
	Style         *Style `json:"style,omitempty"`
}

// PagePayload is the document saved per page id: {"elements": [...]}.
type PagePayload struct {
	Elements []Element `json:"elements"`
}
