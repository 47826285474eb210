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
	"image"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrSuperseded is returned to a render that a newer request replaced.
var ErrSuperseded = errors.New("render superseded")

// PageRenderer renders PDF pages one request at a time: starting a new
// request cancels the one in flight.
type PageRenderer struct {
	doc    *PDFDocument
	render func(ctx context.Context, page, width int) (image.Image, error)

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewPageRenderer(doc *PDFDocument) *PageRenderer {
	return &PageRenderer{doc: doc, render: doc.RenderPage}
}

// Render draws page (1-based) at width pixels.
func (p *PageRenderer) Render(ctx context.Context, page, width int) (image.Image, error) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	seq := p.seq
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	img, err := p.render(ctx, page, width)

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq != p.seq {
		cancel()
		return nil, ErrSuperseded
	}
	p.cancel = nil
	cancel()
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Cancel aborts the in-flight render, if any.
func (p *PageRenderer) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.seq++
}

// RenderAll renders every page of doc at width using up to workers goroutines.
func RenderAll(ctx context.Context, doc *PDFDocument, width, workers int) ([]image.Image, error) {
	if workers <= 0 {
		workers = 4
	}
	out := make([]image.Image, doc.NumPages())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range out {
		i := i
		g.Go(func() error {
			img, err := doc.RenderPage(ctx, i+1, width)
			if err != nil {
				return err
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
