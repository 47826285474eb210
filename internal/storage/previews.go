/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	applog "visory/internal/log"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/singleflight"
)

// EnvPreviewsMaxBytes caps the total size of cached previews.
const EnvPreviewsMaxBytes = "VISORY_PREVIEWS_MAX_BYTES"

const defaultPreviewsMaxBytes = 256 * 1024 * 1024

// PreviewKey addresses one rendered preview variant.
type PreviewKey struct {
	PageID int64
	W, H   int
}

func (k PreviewKey) String() string { return fmt.Sprintf("%d@%dx%d", k.PageID, k.W, k.H) }

// PreviewCache stores rendered page images in the index database and evicts
// least recently used rows once the total size exceeds MaxBytes.
type PreviewCache struct {
	db       *sql.DB
	MaxBytes int64
	now      func() time.Time
	group    singleflight.Group

	mu   sync.Mutex
	last int64
}

// NewPreviewCache wraps an open index. MaxBytes comes from the environment.
func NewPreviewCache(db *sql.DB) *PreviewCache {
	return &PreviewCache{db: db, MaxBytes: MaxPreviewsBytesFromEnv(), now: time.Now}
}

// stamp returns a strictly increasing access stamp.
func (c *PreviewCache) stamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now().UnixNano()
	if n <= c.last {
		n = c.last + 1
	}
	c.last = n
	return n
}

// Get returns the cached bytes for k, or nil when absent, and marks it used.
func (c *PreviewCache) Get(ctx context.Context, k PreviewKey) ([]byte, error) {
	query, args, err := psql.Select("blob").From("previews").
		Where(sq.Eq{"page_id": k.PageID, "w": k.W, "h": k.H}).ToSql()
	if err != nil {
		return nil, err
	}
	var blob []byte
	err = c.db.QueryRowContext(ctx, query, args...).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preview: %w", err)
	}
	query, args, err = psql.Update("previews").Set("last_access", c.stamp()).
		Where(sq.Eq{"page_id": k.PageID, "w": k.W, "h": k.H}).ToSql()
	if err == nil {
		_, _ = c.db.ExecContext(ctx, query, args...)
	}
	return blob, nil
}

// Put upserts blob under k and evicts older rows to stay under MaxBytes.
func (c *PreviewCache) Put(ctx context.Context, k PreviewKey, blob []byte) error {
	if len(blob) == 0 {
		return errors.New("empty preview")
	}
	now := c.now().UTC().Format(time.RFC3339)
	query, args, err := psql.Insert("previews").
		Columns("page_id", "w", "h", "blob", "size", "updated_at", "last_access").
		Values(k.PageID, k.W, k.H, blob, len(blob), now, c.stamp()).
		Suffix("ON CONFLICT(page_id, w, h) DO UPDATE SET blob=excluded.blob, size=excluded.size, updated_at=excluded.updated_at, last_access=excluded.last_access").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert preview: %w", err)
	}
	if c.MaxBytes > 0 {
		return c.evictToFit(ctx, c.MaxBytes)
	}
	return nil
}

// GetOrCreate returns the cached preview or renders, stores and returns a new
// one. Concurrent callers for the same key share one render.
func (c *PreviewCache) GetOrCreate(ctx context.Context, k PreviewKey, gen func(context.Context) ([]byte, error)) ([]byte, error) {
	if b, err := c.Get(ctx, k); err != nil || b != nil {
		return b, err
	}
	v, err, _ := c.group.Do(k.String(), func() (any, error) {
		data, err := gen(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(ctx, k, data); err != nil {
			applog.WithComponent(applog.ComponentStore).Warn("store preview failed",
				slog.String("key", k.String()), slog.Any("err", err))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops every size variant of a page.
func (c *PreviewCache) Invalidate(ctx context.Context, pageID int64) error {
	query, args, err := psql.Delete("previews").Where(sq.Eq{"page_id": pageID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("invalidate previews: %w", err)
	}
	return nil
}

// Total returns the bytes currently held.
func (c *PreviewCache) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM previews`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum previews size: %w", err)
	}
	return total, nil
}

// evictToFit deletes least recently used rows until the total is <= capBytes.
func (c *PreviewCache) evictToFit(ctx context.Context, capBytes int64) error {
	total, err := c.Total(ctx)
	if err != nil {
		return err
	}
	if total <= capBytes {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, size FROM previews ORDER BY last_access ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	victims := make([]int64, 0, 32)
	cur := total
	for rows.Next() {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, id)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// close the cursor before writing
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	query, args, err := psql.Delete("previews").Where(sq.Eq{"id": victims}).ToSql()
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	return nil
}

// MaxPreviewsBytesFromEnv reads VISORY_PREVIEWS_MAX_BYTES, defaulting to 256MB.
func MaxPreviewsBytesFromEnv() int64 {
	v := os.Getenv(EnvPreviewsMaxBytes)
	if v == "" {
		return defaultPreviewsMaxBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return defaultPreviewsMaxBytes
	}
	return n
}
