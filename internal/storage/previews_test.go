/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *PreviewCache {
	t.Helper()
	db, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	c := NewPreviewCache(db)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int64
	c.now = func() time.Time { return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Millisecond) }
	return c
}

func TestPreviewCachePutGetAndEvict(t *testing.T) {
	c := newTestCache(t)
	c.MaxBytes = 100
	ctx := context.Background()

	a := PreviewKey{PageID: 1, W: 100, H: 150}
	b := PreviewKey{PageID: 1, W: 200, H: 300}
	d := PreviewKey{PageID: 2, W: 100, H: 150}
	for _, k := range []PreviewKey{a, b} {
		if err := c.Put(ctx, k, make([]byte, 40)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	// touch a so b becomes the least recently used
	if got, err := c.Get(ctx, a); err != nil || len(got) != 40 {
		t.Fatalf("get a: %d bytes, err=%v", len(got), err)
	}
	if err := c.Put(ctx, d, make([]byte, 40)); err != nil {
		t.Fatalf("put d: %v", err)
	}
	total, err := c.Total(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 80 {
		t.Fatalf("total = %d, want 80", total)
	}
	if got, _ := c.Get(ctx, b); got != nil {
		t.Fatalf("least recently used variant should be evicted")
	}
	if got, _ := c.Get(ctx, a); got == nil {
		t.Fatalf("recently used variant was evicted")
	}
}

func TestPreviewCacheUpsertAndInvalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	k := PreviewKey{PageID: 7, W: 10, H: 10}
	if err := c.Put(ctx, k, []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Put(ctx, k, []byte("newer")); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, err := c.Get(ctx, k)
	if err != nil || !bytes.Equal(got, []byte("newer")) {
		t.Fatalf("get = %q, err=%v", got, err)
	}
	if err := c.Put(ctx, PreviewKey{PageID: 7, W: 20, H: 20}, []byte("x")); err != nil {
		t.Fatalf("put variant: %v", err)
	}
	if err := c.Invalidate(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if total, _ := c.Total(ctx); total != 0 {
		t.Fatalf("total after invalidate = %d", total)
	}
	if err := c.Put(ctx, k, nil); err == nil {
		t.Fatalf("expected error for empty blob")
	}
}

func TestPreviewCacheGetOrCreate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	k := PreviewKey{PageID: 3, W: 64, H: 96}

	var calls int32
	release := make(chan struct{})
	gen := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("png-bytes"), nil
	}
	var wg sync.WaitGroup
	results := make([][]byte, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := c.GetOrCreate(ctx, k, gen)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
			results[i] = b
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	for i, b := range results {
		if string(b) != "png-bytes" {
			t.Fatalf("result %d = %q", i, b)
		}
	}
	// later callers hit the cache
	if _, err := c.GetOrCreate(ctx, k, func(context.Context) ([]byte, error) {
		return nil, errors.New("must not render")
	}); err != nil {
		t.Fatalf("cached GetOrCreate: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n < 1 || n > 4 {
		t.Fatalf("generator calls = %d", n)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate(ctx, PreviewKey{PageID: 9, W: 1, H: 1}, func(context.Context) ([]byte, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestMaxPreviewsBytesFromEnv(t *testing.T) {
	t.Setenv(EnvPreviewsMaxBytes, "")
	if got := MaxPreviewsBytesFromEnv(); got != defaultPreviewsMaxBytes {
		t.Fatalf("default = %d", got)
	}
	t.Setenv(EnvPreviewsMaxBytes, "1024")
	if got := MaxPreviewsBytesFromEnv(); got != 1024 {
		t.Fatalf("env = %d", got)
	}
	t.Setenv(EnvPreviewsMaxBytes, "-5")
	if got := MaxPreviewsBytesFromEnv(); got != defaultPreviewsMaxBytes {
		t.Fatalf("negative must fall back, got %d", got)
	}
}
