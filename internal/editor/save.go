/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"visory/internal/domain"
	applog "visory/internal/log"
	"visory/internal/wire"
)

// ErrUnsavedPage is reported for dirty pages that have no backend id yet.
var ErrUnsavedPage = errors.New("page has no id")

// DirtySet holds page indices with changes not yet persisted.
type DirtySet map[int]struct{}

func (d DirtySet) Add(i int) { d[i] = struct{}{} }

func (d DirtySet) Has(i int) bool {
	_, ok := d[i]
	return ok
}

func (d DirtySet) Clone() DirtySet {
	out := make(DirtySet, len(d))
	for k := range d {
		out[k] = struct{}{}
	}
	return out
}

// Sorted returns the indices in ascending order.
func (d DirtySet) Sorted() []int {
	out := make([]int, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (d DirtySet) remap(fn func(old int) (int, bool)) DirtySet {
	out := make(DirtySet, len(d))
	for k := range d {
		if n, ok := fn(k); ok {
			out[n] = struct{}{}
		}
	}
	return out
}

// Persister writes the serialized elements of one page.
type Persister interface {
	SavePage(ctx context.Context, pageID int64, payload wire.PagePayload) error
}

// SaveCoordinator writes dirty pages and remembers what was last saved per
// page id, so unchanged pages cost no write.
type SaveCoordinator struct {
	p   Persister
	log *slog.Logger

	mu    sync.Mutex
	saved map[int64][]byte
}

func NewSaveCoordinator(p Persister) *SaveCoordinator {
	return &SaveCoordinator{p: p, log: applog.WithComponent(applog.ComponentSync), saved: map[int64][]byte{}}
}

// Baseline records pages as already persisted, typically right after loading.
func (c *SaveCoordinator) Baseline(pages []domain.ComicPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pg := range pages {
		if pg.ID == 0 {
			continue
		}
		if blob, err := json.Marshal(wire.SerializePayload(pg)); err == nil {
			c.saved[pg.ID] = blob
		}
	}
}

// Forget drops the snapshot for a deleted page.
func (c *SaveCoordinator) Forget(pageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.saved, pageID)
}

// Save persists pages[i] for every i in dirty. Indices are removed from dirty
// only when the page was written or found unchanged; failures stay for a
// retry and are returned joined.
func (c *SaveCoordinator) Save(ctx context.Context, pages []domain.ComicPage, dirty DirtySet) error {
	var errs []error
	var written, skipped int
	for _, i := range dirty.Sorted() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if i < 0 || i >= len(pages) {
			delete(dirty, i)
			continue
		}
		pg := pages[i]
		if pg.ID == 0 {
			errs = append(errs, fmt.Errorf("page %d: %w", pg.PageNumber, ErrUnsavedPage))
			continue
		}
		payload := wire.SerializePayload(pg)
		blob, err := json.Marshal(payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", pg.PageNumber, err))
			continue
		}
		c.mu.Lock()
		same := bytes.Equal(c.saved[pg.ID], blob)
		c.mu.Unlock()
		if same {
			delete(dirty, i)
			skipped++
			continue
		}
		if err := c.p.SavePage(ctx, pg.ID, payload); err != nil {
			c.log.Warn("page save failed", applog.PageID(pg.ID), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("page %d: %w", pg.PageNumber, err))
			continue
		}
		c.mu.Lock()
		c.saved[pg.ID] = blob
		c.mu.Unlock()
		delete(dirty, i)
		written++
	}
	c.log.Info("save finished", slog.Int("written", written), slog.Int("unchanged", skipped), slog.Int("failed", len(dirty)))
	return errors.Join(errs...)
}

// SaveAll treats every page as dirty, as a manual save does.
func (c *SaveCoordinator) SaveAll(ctx context.Context, pages []domain.ComicPage) (DirtySet, error) {
	dirty := DirtySet{}
	for i := range pages {
		dirty.Add(i)
	}
	err := c.Save(ctx, pages, dirty)
	return dirty, err
}
