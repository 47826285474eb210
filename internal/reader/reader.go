/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	applog "visory/internal/log"
)

var (
	ErrClosed = errors.New("reader closed")
	// ErrStale marks a result that lost to a newer Load or a Close.
	ErrStale = errors.New("load superseded")
)

// Snapshot is a consistent view of the reader state.
type Snapshot struct {
	Status   Status
	Type     FileType
	Pages    int
	Progress int
	Err      error
}

// Reader loads one comic at a time. Only the latest Load may publish its
// result; earlier loads still in flight are dropped when they finish.
type Reader struct {
	Source Source
	Logger *slog.Logger

	mu     sync.Mutex
	gen    uint64
	closed bool
	snap   Snapshot
	pages  []Page
	doc    *PDFDocument
}

// New returns a reader fetching through src (DefaultSource when nil).
func New(src Source) *Reader {
	if src == nil {
		src = DefaultSource{}
	}
	return &Reader{Source: src, Logger: applog.WithComponent(applog.ComponentReader)}
}

// Load fetches and opens rawURL. The returned error is the load error, or
// ErrStale when a newer Load or Close won the race.
func (r *Reader) Load(ctx context.Context, rawURL string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.gen++
	gen := r.gen
	r.snap = Snapshot{Status: StatusLoading}
	r.pages, r.doc = nil, nil
	r.mu.Unlock()

	log := applog.WithOperation(r.logger(), "load").With(applog.URL(rawURL))
	data, contentType, err := r.Source.Fetch(ctx, rawURL)
	if err != nil {
		return r.fail(gen, log, err)
	}
	typ, err := DetectType(rawURL, contentType)
	if err != nil {
		if typ, err = Sniff(data); err != nil {
			return r.fail(gen, log, fmt.Errorf("%w: %s", ErrUnknownType, rawURL))
		}
	}
	if !r.update(gen, func(s *Snapshot) { s.Type = typ }) {
		return ErrStale
	}

	var (
		pages []Page
		doc   *PDFDocument
		count int
	)
	switch typ {
	case TypeCBZ:
		pages, err = OpenCBZ(ctx, data, func(p int) {
			r.update(gen, func(s *Snapshot) { s.Progress = p })
		})
		count = len(pages)
	case TypePDF:
		doc, err = OpenPDF(data)
		if doc != nil {
			count = doc.NumPages()
		}
	}
	if err != nil {
		return r.fail(gen, log, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return ErrStale
	}
	r.pages, r.doc = pages, doc
	r.snap = Snapshot{Status: StatusReady, Type: typ, Pages: count, Progress: 100}
	log.Info("comic loaded", slog.String("type", string(typ)), slog.Int("pages", count))
	return nil
}

func (r *Reader) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return applog.WithComponent(applog.ComponentReader)
}

func (r *Reader) update(gen uint64, fn func(*Snapshot)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return false
	}
	fn(&r.snap)
	return true
}

func (r *Reader) fail(gen uint64, log *slog.Logger, err error) error {
	if !r.update(gen, func(s *Snapshot) {
		s.Status = StatusError
		s.Err = err
	}) {
		return ErrStale
	}
	log.Warn("comic load failed", slog.Any("err", err))
	return err
}

// Snapshot returns the current state.
func (r *Reader) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Page returns zip page i (0-based).
func (r *Reader) Page(i int) (Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.pages) {
		return Page{}, fmt.Errorf("%w: %d of %d", ErrPageRange, i, len(r.pages))
	}
	return r.pages[i], nil
}

// Document returns the opened PDF, or nil for zip comics.
func (r *Reader) Document() *PDFDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

// Close drops loaded pages and makes in-flight loads stale.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.gen++
	r.pages, r.doc = nil, nil
}
