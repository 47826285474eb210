/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"visory/internal/domain"
	"visory/internal/wire"
)

type recordingPersister struct {
	mu     sync.Mutex
	calls  []int64
	fail   map[int64]error
	during func(id int64)
}

func (p *recordingPersister) SavePage(_ context.Context, id int64, payload wire.PagePayload) error {
	p.mu.Lock()
	p.calls = append(p.calls, id)
	err := p.fail[id]
	hook := p.during
	p.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return err
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func threePages() domain.Project {
	p := domain.Project{Name: "Test"}
	for i := 1; i <= 3; i++ {
		pg := domain.NewPage(i, "panel")
		pg.ID = int64(i)
		pg.Panels[0].ImageURL = "https://cdn.test/p.png"
		url := "https://cdn.test/preview.png"
		pg.PreviewURL = &url
		p.Pages = append(p.Pages, pg)
	}
	return p
}

// newSession returns a session whose clock advances one second per edit, so
// history never coalesces.
func newSession(p domain.Project) *Session {
	s := NewSession(p, nil)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		t0 = t0.Add(time.Second)
		return t0
	}
	return s
}

func numbers(pages []domain.ComicPage) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p.PageNumber
	}
	return out
}

func TestDeleteAndReorderRenumber(t *testing.T) {
	s := newSession(threePages())
	s.AddPage()
	if err := s.DeletePage(1); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	pages := s.Pages()
	if len(pages) != 3 || pages[1].ID != 3 {
		t.Fatalf("unexpected pages after delete: %+v", pages)
	}
	for i, n := range numbers(pages) {
		if n != i+1 {
			t.Fatalf("page numbers after delete = %v", numbers(pages))
		}
	}
	if d := s.Dirty(); len(d) != 1 || !d.Has(2) {
		t.Fatalf("added page should be dirty at index 2, got %v", d.Sorted())
	}
	if err := s.ReorderPages(2, 0); err != nil {
		t.Fatalf("ReorderPages: %v", err)
	}
	pages = s.Pages()
	if pages[0].ID != 0 || pages[1].ID != 1 || pages[2].ID != 3 {
		t.Fatalf("unexpected order: %d %d %d", pages[0].ID, pages[1].ID, pages[2].ID)
	}
	for i, n := range numbers(pages) {
		if n != i+1 {
			t.Fatalf("page numbers after reorder = %v", numbers(pages))
		}
	}
	if d := s.Dirty(); len(d) != 1 || !d.Has(0) {
		t.Fatalf("dirty index must follow the moved page, got %v", d.Sorted())
	}
	if err := s.DeletePage(5); !errors.Is(err, ErrPageIndex) {
		t.Fatalf("expected ErrPageIndex, got %v", err)
	}
}

func TestMoveIndex(t *testing.T) {
	cases := []struct{ i, from, to, want int }{
		{0, 0, 3, 3}, {1, 0, 3, 0}, {3, 0, 3, 2}, {4, 0, 3, 4},
		{3, 3, 0, 0}, {0, 3, 0, 1}, {2, 3, 0, 3}, {5, 3, 0, 5},
	}
	for _, c := range cases {
		if got := moveIndex(c.i, c.from, c.to); got != c.want {
			t.Fatalf("moveIndex(%d, %d, %d) = %d, want %d", c.i, c.from, c.to, got, c.want)
		}
	}
}

func TestAddBubbleUsesTypeDefaults(t *testing.T) {
	s := newSession(threePages())
	b, err := s.AddBubble(0, domain.BubbleShout, "HEY!", domain.Rect{})
	if err != nil {
		t.Fatalf("AddBubble: %v", err)
	}
	if b.FontSize != 20 || !b.Bold() || !b.ShowTail || b.Width != 30 {
		t.Fatalf("shout defaults not applied: %+v", b)
	}
	pg, _ := s.Page(0)
	if len(pg.Bubbles) != 1 || pg.PreviewURL != nil {
		t.Fatalf("page not updated or preview kept: %+v", pg)
	}
	if !s.Dirty().Has(0) {
		t.Fatalf("page 0 must be dirty")
	}
	if _, err := s.AddBubble(0, "scream", "x", domain.Rect{}); !errors.Is(err, ErrBubble) {
		t.Fatalf("expected ErrBubble, got %v", err)
	}
	if err := s.RemoveBubble(0, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.RemoveBubble(0, b.ID); err != nil {
		t.Fatalf("RemoveBubble: %v", err)
	}
}

func TestFailedEditLeavesNoTrace(t *testing.T) {
	s := newSession(threePages())
	err := s.UpdatePanel(1, domain.ComicPanel{ID: "nope"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(s.Dirty()) != 0 {
		t.Fatalf("failed edit marked page dirty")
	}
	if ok, _ := s.Undo(1); ok {
		t.Fatalf("failed edit recorded history")
	}
}

func TestUndoRedoLayout(t *testing.T) {
	s := newSession(threePages())
	if err := s.SetLayout(0, domain.LayoutQuad); err != nil {
		t.Fatalf("SetLayout: %v", err)
	}
	pg, _ := s.Page(0)
	if len(pg.Panels) != 4 || pg.Layout != domain.LayoutQuad || pg.Panels[0].ImageURL != "https://cdn.test/p.png" {
		t.Fatalf("quad not applied: %+v", pg)
	}
	panel := pg.Panels[1]
	panel.X, panel.Width = 40, 60
	if err := s.UpdatePanel(0, panel); err != nil {
		t.Fatalf("UpdatePanel: %v", err)
	}
	if pg, _ = s.Page(0); pg.Layout != domain.LayoutCustom {
		t.Fatalf("moved panel should give custom layout, got %s", pg.Layout)
	}

	if ok, err := s.Undo(0); !ok || err != nil {
		t.Fatalf("undo: %v %v", ok, err)
	}
	if pg, _ = s.Page(0); pg.Layout != domain.LayoutQuad {
		t.Fatalf("undo should restore quad, got %s", pg.Layout)
	}
	if ok, _ := s.Undo(0); !ok {
		t.Fatalf("second undo failed")
	}
	if pg, _ = s.Page(0); len(pg.Panels) != 1 || pg.ID != 1 || pg.PageNumber != 1 {
		t.Fatalf("undo should restore single page: %+v", pg)
	}
	if ok, _ := s.Redo(0); !ok {
		t.Fatalf("redo failed")
	}
	if pg, _ = s.Page(0); len(pg.Panels) != 4 {
		t.Fatalf("redo should bring quad back, got %d panels", len(pg.Panels))
	}
	if err := s.SetLayout(0, domain.LayoutCustom); err == nil {
		t.Fatalf("custom is not a template")
	}
}

func TestSaveCoordinatorKeepsFailures(t *testing.T) {
	boom := errors.New("backend down")
	p := &recordingPersister{fail: map[int64]error{2: boom}}
	c := NewSaveCoordinator(p)
	pages := threePages().Pages
	pages = append(pages, domain.NewPage(4, "fresh"))

	dirty := DirtySet{0: {}, 1: {}, 3: {}, 9: {}}
	err := c.Save(context.Background(), pages, dirty)
	if !errors.Is(err, boom) || !errors.Is(err, ErrUnsavedPage) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if got := dirty.Sorted(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("dirty after save = %v", got)
	}
	if p.count() != 2 {
		t.Fatalf("persister calls = %v", p.calls)
	}

	p.fail = nil
	dirty.Add(0)
	pages = pages[:3]
	if err := c.Save(context.Background(), pages, dirty); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(dirty) != 0 {
		t.Fatalf("dirty not cleared: %v", dirty.Sorted())
	}
	// page 0 was unchanged since its last save; only page 2 (index 1) is written.
	if p.count() != 3 || p.calls[2] != 2 {
		t.Fatalf("persister calls = %v", p.calls)
	}
}

func TestSaveAllSkipsBaseline(t *testing.T) {
	p := &recordingPersister{}
	c := NewSaveCoordinator(p)
	pages := threePages().Pages
	c.Baseline(pages)
	pages[2].Bubbles = append(pages[2].Bubbles, domain.SpeechBubble{ID: "b", Type: domain.BubbleSpeech, Text: "hi", Width: 10, Height: 10})
	dirty, err := c.SaveAll(context.Background(), pages)
	if err != nil || len(dirty) != 0 {
		t.Fatalf("SaveAll: %v %v", err, dirty.Sorted())
	}
	if p.count() != 1 || p.calls[0] != 3 {
		t.Fatalf("only the changed page should be written, calls = %v", p.calls)
	}
	c.Forget(3)
	if _, err := c.SaveAll(context.Background(), pages); err != nil || p.count() != 2 {
		t.Fatalf("forgotten page must be rewritten: %v calls=%v", err, p.calls)
	}
}

func TestDeletePageForgetsSavedSnapshot(t *testing.T) {
	s := newSession(threePages())
	c := NewSaveCoordinator(&recordingPersister{})
	s.AttachSaver(c)
	c.Baseline(s.Pages())
	if err := s.DeletePage(2); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	c.mu.Lock()
	_, kept1 := c.saved[1]
	_, kept3 := c.saved[3]
	c.mu.Unlock()
	if !kept1 || kept3 {
		t.Fatalf("snapshots after delete: page1=%v page3=%v", kept1, kept3)
	}

	// Save attaches the coordinator it was given.
	other := newSession(threePages())
	c2 := NewSaveCoordinator(&recordingPersister{})
	if _, err := other.AddBubble(0, domain.BubbleSpeech, "hi", domain.Rect{}); err != nil {
		t.Fatalf("AddBubble: %v", err)
	}
	if err := other.Save(context.Background(), c2); err != nil {
		t.Fatalf("Save: %v", err)
	}
	c2.mu.Lock()
	_, saved := c2.saved[1]
	c2.mu.Unlock()
	if !saved {
		t.Fatalf("page 1 not recorded after save")
	}
	if err := other.DeletePage(0); err != nil {
		t.Fatalf("DeletePage: %v", err)
	}
	c2.mu.Lock()
	_, saved = c2.saved[1]
	c2.mu.Unlock()
	if saved {
		t.Fatalf("page 1 snapshot kept after delete")
	}
}

func TestSessionSaveKeepsPagesEditedMidFlight(t *testing.T) {
	s := newSession(threePages())
	p := &recordingPersister{}
	p.during = func(id int64) {
		if id == 1 {
			_, _ = s.AddBubble(0, domain.BubbleSpeech, "late", domain.Rect{})
		}
	}
	c := NewSaveCoordinator(p)
	if _, err := s.AddBubble(0, domain.BubbleSpeech, "first", domain.Rect{}); err != nil {
		t.Fatalf("AddBubble: %v", err)
	}
	if _, err := s.AddBubble(1, domain.BubbleThought, "hmm", domain.Rect{}); err != nil {
		t.Fatalf("AddBubble: %v", err)
	}
	if err := s.Save(context.Background(), c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	d := s.Dirty()
	if !d.Has(0) || d.Has(1) {
		t.Fatalf("dirty after save = %v, want only 0", d.Sorted())
	}
	p.during = nil
	if err := s.Save(context.Background(), c); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if len(s.Dirty()) != 0 {
		t.Fatalf("dirty after second save = %v", s.Dirty().Sorted())
	}
}

func TestSaveStopsOnCancelledContext(t *testing.T) {
	p := &recordingPersister{}
	c := NewSaveCoordinator(p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dirty := DirtySet{0: {}}
	if err := c.Save(ctx, threePages().Pages, dirty); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !dirty.Has(0) || p.count() != 0 {
		t.Fatalf("cancelled save must not write or clear")
	}
}
