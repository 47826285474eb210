/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import "visory/internal/domain"

// BubbleStyle is the default lettering for a bubble type.
type BubbleStyle struct {
	FontSize        float64
	FontFamily      string
	FontWeight      string
	FontStyle       string
	TextAlign       string
	Color           string
	BackgroundColor string
	BorderColor     string
	BorderWidth     float64
	ShowTail        bool
}

var bubbleStyles = map[domain.BubbleType]BubbleStyle{
	domain.BubbleSpeech: {
		FontSize: 16, FontFamily: "Comic Neue", FontWeight: "normal", FontStyle: "normal", TextAlign: "center",
		Color: "#000000", BackgroundColor: "#ffffff", BorderColor: "#000000", BorderWidth: 2, ShowTail: true,
	},
	domain.BubbleThought: {
		FontSize: 16, FontFamily: "Comic Neue", FontWeight: "normal", FontStyle: "italic", TextAlign: "center",
		Color: "#000000", BackgroundColor: "#ffffff", BorderColor: "#000000", BorderWidth: 2,
	},
	domain.BubbleNarration: {
		FontSize: 14, FontFamily: "Comic Neue", FontWeight: "normal", FontStyle: "normal", TextAlign: "left",
		Color: "#000000", BackgroundColor: "#fff8dc", BorderColor: "#000000", BorderWidth: 1,
	},
	domain.BubbleShout: {
		FontSize: 20, FontFamily: "Bangers", FontWeight: "bold", FontStyle: "normal", TextAlign: "center",
		Color: "#000000", BackgroundColor: "#ffffff", BorderColor: "#000000", BorderWidth: 3, ShowTail: true,
	},
	domain.BubbleWhisper: {
		FontSize: 13, FontFamily: "Comic Neue", FontWeight: "normal", FontStyle: "italic", TextAlign: "center",
		Color: "#555555", BackgroundColor: "#ffffff", BorderColor: "#999999", BorderWidth: 1,
	},
}

// StyleFor returns the default lettering for t; unknown types get speech.
func StyleFor(t domain.BubbleType) BubbleStyle {
	if s, ok := bubbleStyles[t]; ok {
		return s
	}
	return bubbleStyles[domain.BubbleSpeech]
}

// Apply copies the style into b, leaving geometry, id, type and text alone.
func (s BubbleStyle) Apply(b *domain.SpeechBubble) {
	b.FontSize = s.FontSize
	b.FontFamily = s.FontFamily
	b.FontWeight = s.FontWeight
	b.FontStyle = s.FontStyle
	b.TextAlign = s.TextAlign
	b.Color = s.Color
	b.BackgroundColor = s.BackgroundColor
	b.BorderColor = s.BorderColor
	b.BorderWidth = s.BorderWidth
	b.ShowTail = s.ShowTail
}

// SpecFor maps bubble typography to a FontSpec.
func SpecFor(b domain.SpeechBubble) FontSpec {
	size := b.FontSize
	if size <= 0 {
		size = StyleFor(b.Type).FontSize
	}
	return FontSpec{Family: b.FontFamily, Size: size, Bold: b.Bold(), Italic: b.Italic()}
}
