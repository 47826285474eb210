/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package wire

import (
	"math"
	"sort"
	"strings"

	"visory/internal/domain"
	"visory/internal/layout"
)

// SerializePage converts a page to elements: image panels first, then bubbles,
// each in list order, with layer_index counting up from 0. Placeholder panels
// are dropped. The page is not modified.
func SerializePage(page domain.ComicPage) []Element {
	out := make([]Element, 0, len(page.Panels)+len(page.Bubbles))
	layer := 0
	for _, p := range page.Panels {
		if p.IsPlaceholder() {
			continue
		}
		img := p.ImageURL
		el := Element{
			ID:         p.ID,
			Type:       TypePanel,
			Position:   Position{X: round(p.X), Y: round(p.Y)},
			Size:       Size{Width: round(p.Width), Height: round(p.Height)},
			LayerIndex: layer,
			Image:      &img,
		}
		if p.Rotation != 0 {
			rot := p.Rotation
			el.Rotation = &rot
		}
		out = append(out, el)
		layer++
	}
	for _, b := range page.Bubbles {
		text := b.Text
		tail := b.ShowTail
		out = append(out, Element{
			ID:            b.ID,
			Type:          TypeSpeechBubble,
			Position:      Position{X: round(b.X), Y: round(b.Y)},
			Size:          Size{Width: round(b.Width), Height: round(b.Height)},
			LayerIndex:    layer,
			Text:          &text,
			BubbleSubtype: string(b.Type),
			ShowTail:      &tail,
			Style: &Style{
				FontSize:        b.FontSize,
				Color:           b.Color,
				FontFamily:      b.FontFamily,
				FontWeight:      b.FontWeight,
				FontStyle:       b.FontStyle,
				BackgroundColor: b.BackgroundColor,
				BorderColor:     b.BorderColor,
				BorderWidth:     b.BorderWidth,
				TextAlign:       b.TextAlign,
				BorderRadius:    BorderRadius,
			},
		})
		layer++
	}
	return out
}

// SerializePayload wraps SerializePage in the persisted document shape.
func SerializePayload(page domain.ComicPage) PagePayload {
	return PagePayload{Elements: SerializePage(page)}
}

// DeserializePage rebuilds a page from elements. Elements are ordered by
// layer_index within their type; the layout is inferred from panel geometry.
func DeserializePage(elements []Element, pageID int64, pageNumber int, previewURL *string) domain.ComicPage {
	ordered := append([]Element(nil), elements...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].LayerIndex < ordered[j].LayerIndex })

	page := domain.ComicPage{
		ID:              pageID,
		PageNumber:      pageNumber,
		BackgroundColor: "#ffffff",
		Panels:          []domain.ComicPanel{},
		Bubbles:         []domain.SpeechBubble{},
	}
	if previewURL != nil {
		v := *previewURL
		page.PreviewURL = &v
	}
	for _, el := range ordered {
		switch el.Type {
		case TypePanel:
			page.Panels = append(page.Panels, panelFromElement(el))
		case TypeSpeechBubble:
			page.Bubbles = append(page.Bubbles, bubbleFromElement(el))
		}
	}
	page.Layout = layout.DetectLayoutFromPanels(page.Panels)
	return page
}

func panelFromElement(el Element) domain.ComicPanel {
	p := domain.ComicPanel{
		ID:     el.ID,
		X:      float64(el.Position.X),
		Y:      float64(el.Position.Y),
		Width:  float64(el.Size.Width),
		Height: float64(el.Size.Height),
	}
	if p.Width == 0 {
		p.Width = 100
	}
	if p.Height == 0 {
		p.Height = 100
	}
	if el.Image != nil {
		p.ImageURL = *el.Image
	}
	if el.Rotation != nil {
		p.Rotation = *el.Rotation
	}
	return p
}

func bubbleFromElement(el Element) domain.SpeechBubble {
	b := domain.SpeechBubble{
		ID:     el.ID,
		X:      float64(el.Position.X),
		Y:      float64(el.Position.Y),
		Width:  float64(el.Size.Width),
		Height: float64(el.Size.Height),
	}
	if el.Text != nil {
		b.Text = *el.Text
	}
	if el.ShowTail != nil {
		b.ShowTail = *el.ShowTail
	}
	if st := el.Style; st != nil {
		b.FontSize = st.FontSize
		b.Color = st.Color
		b.FontFamily = st.FontFamily
		b.FontWeight = st.FontWeight
		b.FontStyle = st.FontStyle
		b.BackgroundColor = st.BackgroundColor
		b.BorderColor = st.BorderColor
		b.BorderWidth = st.BorderWidth
		b.TextAlign = st.TextAlign
	}
	b.Type = bubbleType(el)
	return b
}

// bubbleType prefers the stored subtype. Documents written before the field
// existed only distinguish shout (a bold font family) from speech.
func bubbleType(el Element) domain.BubbleType {
	if t := domain.BubbleType(strings.ToLower(strings.TrimSpace(el.BubbleSubtype))); t.Valid() {
		return t
	}
	if el.Style != nil && strings.Contains(strings.ToLower(el.Style.FontFamily), "bold") {
		return domain.BubbleShout
	}
	return domain.BubbleSpeech
}

func round(v float64) int { return int(math.Round(v)) }
