/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"context"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"visory/internal/domain"
)

// Progress receives the number of finished pages and the rounded percentage.
type Progress func(done, total, percent int)

// BatchOptions tunes RenderAll.
type BatchOptions struct {
	Workers  int           // <= 1 renders strictly one page at a time
	Limiter  *rate.Limiter // optional; paces page starts
	Progress Progress
}

// PageError identifies the page that failed a batch.
type PageError struct {
	Index      int
	PageNumber int
	Err        error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.PageNumber, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// RenderAll renders pages into a slice in the same order. Any page error
// cancels the remaining work and fails the batch; no partial result is
// returned.
func RenderAll(ctx context.Context, r Renderer, pages []domain.ComicPage, opts Options, b BatchOptions) ([]image.Image, error) {
	out := make([]image.Image, len(pages))
	total := len(pages)
	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		if b.Progress == nil {
			return
		}
		mu.Lock()
		done++
		d := done
		mu.Unlock()
		b.Progress(d, total, d*100/total)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	eg.SetLimit(workers)
	for i := range pages {
		i := i
		eg.Go(func() error {
			if b.Limiter != nil {
				if err := b.Limiter.Wait(egCtx); err != nil {
					return err
				}
			}
			if err := egCtx.Err(); err != nil {
				return err
			}
			img, err := r.RenderPage(egCtx, pages[i], opts)
			if err != nil {
				return &PageError{Index: i, PageNumber: pages[i].PageNumber, Err: err}
			}
			out[i] = img
			report()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
