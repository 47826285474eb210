/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"visory/internal/domain"
)

func samplePage() domain.ComicPage {
	return domain.ComicPage{
		ID:              7,
		PageNumber:      2,
		Layout:          domain.LayoutDouble,
		BackgroundColor: "#ffffff",
		Panels: []domain.ComicPanel{
			{ID: "top", ImageURL: "https://cdn.test/a.png", X: 0, Y: 0, Width: 100, Height: 48},
			{ID: "hole", X: 0, Y: 52, Width: 100, Height: 48},
			{ID: "bottom", ImageURL: "https://cdn.test/b.png", X: 0.4, Y: 52.2, Width: 99.6, Height: 47.7, Rotation: 3},
		},
		Bubbles: []domain.SpeechBubble{
			{ID: "b1", Type: domain.BubbleThought, Text: "hmm", X: 10, Y: 10, Width: 30, Height: 15, FontSize: 16, FontFamily: "Comic Neue", Color: "#000000", BackgroundColor: "#ffffff", BorderColor: "#000000", BorderWidth: 2, TextAlign: "center"},
			{ID: "b2", Type: domain.BubbleShout, Text: "NO!", X: 60, Y: 70, Width: 25, Height: 12, FontSize: 20, FontWeight: "bold", ShowTail: true},
		},
	}
}

func TestSerializeDropsPlaceholdersAndOrdersLayers(t *testing.T) {
	els := SerializePage(samplePage())
	if len(els) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(els))
	}
	wantIDs := []string{"top", "bottom", "b1", "b2"}
	for i, el := range els {
		if el.ID != wantIDs[i] || el.LayerIndex != i {
			t.Fatalf("element %d = %s/%d, want %s/%d", i, el.ID, el.LayerIndex, wantIDs[i], i)
		}
	}
	if els[0].Rotation != nil {
		t.Fatalf("zero rotation must be omitted")
	}
	if els[1].Rotation == nil || *els[1].Rotation != 3 {
		t.Fatalf("rotation lost: %+v", els[1])
	}
	if els[1].Position.Y != 52 || els[1].Size.Width != 100 {
		t.Fatalf("geometry not rounded: %+v", els[1])
	}
	if els[2].Style == nil || els[2].Style.BorderRadius != BorderRadius || els[2].BubbleSubtype != "thought" {
		t.Fatalf("bubble style wrong: %+v", els[2])
	}
}

func TestRoundTripKeepsBubbleTypes(t *testing.T) {
	src := samplePage()
	raw, err := json.Marshal(SerializePayload(src))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := DeserializePage(payload.Elements, src.ID, src.PageNumber, nil)
	if len(got.Panels) != 2 || len(got.Bubbles) != 2 {
		t.Fatalf("unexpected counts: %d panels %d bubbles", len(got.Panels), len(got.Bubbles))
	}
	if got.Bubbles[0].Type != domain.BubbleThought || got.Bubbles[1].Type != domain.BubbleShout {
		t.Fatalf("bubble types lost: %s %s", got.Bubbles[0].Type, got.Bubbles[1].Type)
	}
	if !got.Bubbles[1].ShowTail || got.Bubbles[1].FontWeight != "bold" || got.Bubbles[0].Text != "hmm" {
		t.Fatalf("bubble fields lost: %+v", got.Bubbles)
	}
	if got.Layout != domain.LayoutDouble {
		t.Fatalf("layout = %s, want double", got.Layout)
	}
	if got.ID != 7 || got.PageNumber != 2 {
		t.Fatalf("identity lost: %+v", got)
	}
}

func TestDeserializeLegacyBubbleHeuristic(t *testing.T) {
	txt := "HEY"
	els := []Element{
		{ID: "s", Type: TypeSpeechBubble, LayerIndex: 1, Text: &txt, Style: &Style{FontFamily: "Bangers Bold"}},
		{ID: "n", Type: TypeSpeechBubble, LayerIndex: 0, Text: &txt, Style: &Style{FontFamily: "Arial"}},
		{ID: "x", Type: TypeSpeechBubble, LayerIndex: 2, BubbleSubtype: "bogus"},
	}
	got := DeserializePage(els, 1, 1, nil)
	if got.Bubbles[0].ID != "n" || got.Bubbles[0].Type != domain.BubbleSpeech {
		t.Fatalf("first bubble = %+v", got.Bubbles[0])
	}
	if got.Bubbles[1].Type != domain.BubbleShout {
		t.Fatalf("bold family should load as shout, got %s", got.Bubbles[1].Type)
	}
	if got.Bubbles[2].Type != domain.BubbleSpeech {
		t.Fatalf("unknown subtype should fall back to speech, got %s", got.Bubbles[2].Type)
	}
}

func TestDeserializePanelDefaults(t *testing.T) {
	img := "a.png"
	preview := "https://cdn.test/prev.png"
	got := DeserializePage([]Element{{ID: "p", Type: TypePanel, Image: &img}}, 3, 1, &preview)
	p := got.Panels[0]
	if p.Width != 100 || p.Height != 100 || p.ImageURL != "a.png" {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if got.Layout != domain.LayoutSingle {
		t.Fatalf("layout = %s", got.Layout)
	}
	if got.PreviewURL == nil || *got.PreviewURL != preview {
		t.Fatalf("preview url lost")
	}
}

func TestDeserializeEmpty(t *testing.T) {
	got := DeserializePage(nil, 1, 1, nil)
	if len(got.Panels) != 0 || len(got.Bubbles) != 0 || got.Layout != domain.LayoutSingle {
		t.Fatalf("unexpected empty page: %+v", got)
	}
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"missing elements": `{}`,
		"bad type":         `{"elements":[{"id":"a","type":"sticker","position":{"x":0,"y":0},"size":{"width":1,"height":1},"layer_index":0}]}`,
		"float position":   `{"elements":[{"id":"a","type":"panel","position":{"x":0.5,"y":0},"size":{"width":1,"height":1},"layer_index":0}]}`,
		"bad subtype":      `{"elements":[{"id":"a","type":"speech_bubble","position":{"x":0,"y":0},"size":{"width":1,"height":1},"layer_index":0,"bubble_subtype":"scream"}]}`,
	}
	for name, doc := range cases {
		if err := Validate([]byte(doc)); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%s: expected ErrInvalidPayload, got %v", name, err)
		}
	}
	if err := Validate([]byte(`{"elements":[]}`)); err != nil {
		t.Fatalf("empty list should validate: %v", err)
	}
}
