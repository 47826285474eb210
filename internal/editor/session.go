/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor owns the pages of an open project while it is edited and
// coordinates saving them.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"visory/internal/domain"
	"visory/internal/layout"
	applog "visory/internal/log"
	"visory/internal/textlayout"
	"visory/internal/undo"
	"visory/internal/vector"

	"github.com/google/uuid"
)

var (
	ErrPageIndex = errors.New("page index out of range")
	ErrNotFound  = errors.New("element not found")
	ErrBubble    = errors.New("invalid bubble type")
)

// Session is the single mutable copy of a project's pages during editing.
// Renderers and serializers only ever see clones handed out by Pages.
type Session struct {
	mu      sync.Mutex
	project domain.Project
	keys    []int // stable per-page key for history, parallel to project.Pages
	rev     map[int]uint64
	next    int
	dirty   DirtySet
	history *undo.Manager
	saver   *SaveCoordinator
	now     func() time.Time
	log     *slog.Logger
}

// NewSession takes ownership of a deep copy of p. history may be nil.
func NewSession(p domain.Project, history *undo.Manager) *Session {
	if history == nil {
		history = undo.NewManager(undo.Config{MaxPerPage: 100, MinInterval: 250 * time.Millisecond})
	}
	s := &Session{
		project: domain.Project{ID: p.ID, Name: p.Name},
		rev:     map[int]uint64{},
		dirty:   DirtySet{},
		history: history,
		now:     time.Now,
		log:     applog.WithComponent(applog.ComponentEditor),
	}
	for _, pg := range p.Pages {
		s.project.Pages = append(s.project.Pages, pg.Clone())
		s.keys = append(s.keys, s.newKey())
	}
	domain.Renumber(s.project.Pages)
	return s
}

func (s *Session) newKey() int {
	s.next++
	return s.next
}

// Project returns a deep copy of the current project.
func (s *Session) Project() domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Project{ID: s.project.ID, Name: s.project.Name, Pages: s.clonePagesLocked()}
}

// Pages returns deep copies of all pages in order.
func (s *Session) Pages() []domain.ComicPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clonePagesLocked()
}

func (s *Session) clonePagesLocked() []domain.ComicPage {
	out := make([]domain.ComicPage, len(s.project.Pages))
	for i, p := range s.project.Pages {
		out[i] = p.Clone()
	}
	return out
}

// Page returns a copy of page i (0-based).
func (s *Session) Page(i int) (domain.ComicPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(i); err != nil {
		return domain.ComicPage{}, err
	}
	return s.project.Pages[i].Clone(), nil
}

// Dirty returns a copy of the indices with unsaved changes.
func (s *Session) Dirty() DirtySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.Clone()
}

// SetPageID records the backend id of page i after it was created remotely.
func (s *Session) SetPageID(i int, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(i); err != nil {
		return err
	}
	s.project.Pages[i].ID = id
	return nil
}

func (s *Session) checkLocked(i int) error {
	if i < 0 || i >= len(s.project.Pages) {
		return fmt.Errorf("%w: %d of %d", ErrPageIndex, i, len(s.project.Pages))
	}
	return nil
}

// edit snapshots page i for undo, applies fn and marks the page changed.
func (s *Session) edit(i int, op string, fn func(p *domain.ComicPage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(i); err != nil {
		return err
	}
	work := s.project.Pages[i].Clone()
	if err := fn(&work); err != nil {
		return err
	}
	before, err := json.Marshal(s.project.Pages[i])
	if err != nil {
		return fmt.Errorf("snapshot page: %w", err)
	}
	s.history.PushSnapshot(undo.Snapshot{Key: s.keys[i], Blob: before, TS: s.now()})
	s.project.Pages[i] = work
	s.touchLocked(i)
	s.log.Debug("page edited", slog.String("op", op), slog.Int("page", i+1))
	return nil
}

// touchLocked invalidates the preview and marks the page dirty.
func (s *Session) touchLocked(i int) {
	s.project.Pages[i].PreviewURL = nil
	s.dirty.Add(i)
	s.rev[s.keys[i]]++
}

// AddPage appends a blank single-panel page and returns its index.
func (s *Session) AddPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.project.Pages)
	s.project.Pages = append(s.project.Pages, domain.NewPage(i+1, uuid.NewString()))
	s.keys = append(s.keys, s.newKey())
	s.touchLocked(i)
	return i
}

// DeletePage removes page i and renumbers the rest 1..N-1.
func (s *Session) DeletePage(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(i); err != nil {
		return err
	}
	key, id := s.keys[i], s.project.Pages[i].ID
	s.project.Pages = append(s.project.Pages[:i], s.project.Pages[i+1:]...)
	s.keys = append(s.keys[:i], s.keys[i+1:]...)
	domain.Renumber(s.project.Pages)
	s.history.ClearPage(key)
	delete(s.rev, key)
	s.dirty = s.dirty.remap(func(old int) (int, bool) {
		switch {
		case old == i:
			return 0, false
		case old > i:
			return old - 1, true
		}
		return old, true
	})
	if s.saver != nil && id != 0 {
		s.saver.Forget(id)
	}
	return nil
}

// ReorderPages moves page from to position to and renumbers 1..N.
func (s *Session) ReorderPages(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(from); err != nil {
		return err
	}
	if err := s.checkLocked(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	pg, key := s.project.Pages[from], s.keys[from]
	s.project.Pages = append(s.project.Pages[:from], s.project.Pages[from+1:]...)
	s.keys = append(s.keys[:from], s.keys[from+1:]...)
	s.project.Pages = append(s.project.Pages[:to], append([]domain.ComicPage{pg}, s.project.Pages[to:]...)...)
	s.keys = append(s.keys[:to], append([]int{key}, s.keys[to:]...)...)
	domain.Renumber(s.project.Pages)
	s.dirty = s.dirty.remap(func(old int) (int, bool) { return moveIndex(old, from, to), true })
	return nil
}

// moveIndex maps an index across a move of from to to.
func moveIndex(i, from, to int) int {
	switch {
	case i == from:
		return to
	case from < to && i > from && i <= to:
		return i - 1
	case to < from && i >= to && i < from:
		return i + 1
	}
	return i
}

// SetLayout replaces the panels of page i with the named template.
func (s *Session) SetLayout(i int, name domain.Layout) error {
	if _, ok := layout.Template(name); !ok {
		return fmt.Errorf("%w: %q", layout.ErrUnknownLayout, name)
	}
	return s.edit(i, "set_layout", func(p *domain.ComicPage) error {
		p.Panels = layout.CreatePanelsFromLayout(name, p.Panels)
		p.Layout = name
		return nil
	})
}

// SetBackground sets the page background colour, normalized to hex.
func (s *Session) SetBackground(i int, c string) error {
	return s.edit(i, "set_background", func(p *domain.ComicPage) error {
		p.BackgroundColor = vector.NormalizeColor(c)
		return nil
	})
}

// UpdatePanel replaces the panel with the same ID and re-derives the layout.
func (s *Session) UpdatePanel(i int, panel domain.ComicPanel) error {
	return s.edit(i, "update_panel", func(p *domain.ComicPage) error {
		for k := range p.Panels {
			if p.Panels[k].ID == panel.ID {
				p.Panels[k] = panel
				p.Layout = layout.DetectLayoutFromPanels(p.Panels)
				return nil
			}
		}
		return fmt.Errorf("%w: panel %s", ErrNotFound, panel.ID)
	})
}

// UpdateBubble replaces the bubble with the same ID.
func (s *Session) UpdateBubble(i int, b domain.SpeechBubble) error {
	if !b.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrBubble, b.Type)
	}
	return s.edit(i, "update_bubble", func(p *domain.ComicPage) error {
		for k := range p.Bubbles {
			if p.Bubbles[k].ID == b.ID {
				p.Bubbles[k] = b
				return nil
			}
		}
		return fmt.Errorf("%w: bubble %s", ErrNotFound, b.ID)
	})
}

// AddBubble places a new bubble of type t with the default lettering for
// that type and returns it.
func (s *Session) AddBubble(i int, t domain.BubbleType, text string, at domain.Rect) (domain.SpeechBubble, error) {
	if !t.Valid() {
		return domain.SpeechBubble{}, fmt.Errorf("%w: %q", ErrBubble, t)
	}
	if at.W <= 0 || at.H <= 0 {
		at = domain.Rect{X: 10, Y: 10, W: 30, H: 15}
	}
	b := domain.SpeechBubble{ID: uuid.NewString(), Type: t, Text: text, X: at.X, Y: at.Y, Width: at.W, Height: at.H}
	textlayout.StyleFor(t).Apply(&b)
	err := s.edit(i, "add_bubble", func(p *domain.ComicPage) error {
		p.Bubbles = append(p.Bubbles, b)
		return nil
	})
	return b, err
}

// RemoveBubble deletes the bubble with id from page i.
func (s *Session) RemoveBubble(i int, id string) error {
	return s.edit(i, "remove_bubble", func(p *domain.ComicPage) error {
		for k := range p.Bubbles {
			if p.Bubbles[k].ID == id {
				p.Bubbles = append(p.Bubbles[:k], p.Bubbles[k+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: bubble %s", ErrNotFound, id)
	})
}

// Undo reverts the last edit on page i. It reports false when there is none.
func (s *Session) Undo(i int) (bool, error) { return s.step(i, s.history.Undo) }

// Redo reapplies the last undone edit on page i.
func (s *Session) Redo(i int) (bool, error) { return s.step(i, s.history.Redo) }

func (s *Session) step(i int, move func(int, []byte) (undo.Snapshot, bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(i); err != nil {
		return false, err
	}
	cur := s.project.Pages[i]
	blob, err := json.Marshal(cur)
	if err != nil {
		return false, fmt.Errorf("snapshot page: %w", err)
	}
	snap, ok := move(s.keys[i], blob)
	if !ok {
		return false, nil
	}
	var restored domain.ComicPage
	if err := json.Unmarshal(snap.Blob, &restored); err != nil {
		return false, fmt.Errorf("restore page: %w", err)
	}
	// Position and identity belong to the session, not to the snapshot.
	restored.ID = cur.ID
	restored.PageNumber = cur.PageNumber
	s.project.Pages[i] = restored
	s.touchLocked(i)
	return true, nil
}

// AttachSaver makes DeletePage drop c's snapshot of the deleted page, so a
// page re-created under the same id is written again.
func (s *Session) AttachSaver(c *SaveCoordinator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saver = c
}

// Save persists dirty pages through c and attaches it. Pages edited while
// the save was in flight stay dirty.
func (s *Session) Save(ctx context.Context, c *SaveCoordinator) error {
	s.mu.Lock()
	s.saver = c
	pages := s.clonePagesLocked()
	dirty := s.dirty.Clone()
	keys := append([]int(nil), s.keys...)
	revs := make(map[int]uint64, len(dirty))
	for i := range dirty {
		if i < len(keys) {
			revs[i] = s.rev[keys[i]]
		}
	}
	s.mu.Unlock()

	attempted := dirty.Clone()
	err := c.Save(ctx, pages, dirty)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range attempted {
		if _, failed := dirty[i]; failed || i >= len(keys) {
			continue
		}
		key := keys[i]
		if s.rev[key] != revs[i] {
			continue
		}
		for now, k := range s.keys {
			if k == key {
				delete(s.dirty, now)
				break
			}
		}
	}
	return err
}
