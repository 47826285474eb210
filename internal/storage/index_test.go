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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenIndexCreatesSchemaAtCurrentVersion(t *testing.T) {
	root := t.TempDir()
	db, err := OpenIndex(root)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	v, err := SchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema version = %d, want %d", v, schemaVersion)
	}
	for _, name := range []string{"meta", "version", "documents", "fts_documents", "previews"} {
		var n int
		if err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE name=?`, name).Scan(&n); err != nil || n == 0 {
			t.Fatalf("table %s missing (err=%v)", name, err)
		}
	}
	var mode string
	if err := db.QueryRowContext(ctx, `PRAGMA journal_mode;`).Scan(&mode); err != nil || mode != "wal" {
		t.Fatalf("journal_mode = %q, err=%v", mode, err)
	}
	if _, err := os.Stat(filepath.Join(root, IndexDirName, IndexFileName)); err != nil {
		t.Fatalf("index file missing: %v", err)
	}
}

func TestOpenIndexIsIdempotent(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 2; i++ {
		db, err := OpenIndex(root)
		if err != nil {
			t.Fatalf("OpenIndex #%d: %v", i, err)
		}
		_ = db.Close()
	}
	if _, err := OpenIndex(""); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestRebuildIndexFromProject(t *testing.T) {
	root := t.TempDir()
	proj := sampleProject("Moonlit Harbor")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := RebuildIndex(ctx, root, proj); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	db, err := OpenIndex(root)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	// project name plus one bubble per page
	if n != 3 {
		t.Fatalf("documents = %d, want 3", n)
	}

	// rebuilding again replaces rather than appends
	proj.Pages = proj.Pages[:1]
	if err := RebuildIndex(ctx, root, proj); err != nil {
		t.Fatalf("RebuildIndex again: %v", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("documents after shrink = %d, want 2", n)
	}
}

func TestReindexProjectHandle(t *testing.T) {
	root := t.TempDir()
	ph, err := InitProject(root, sampleProject("Reindex"))
	if err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	ctx := context.Background()
	if err := Reindex(ctx, ph); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	got, err := Search(ctx, root, SearchQuery{Text: "hello"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("hits = %d, want 2", len(got))
	}
	if err := Reindex(ctx, nil); err == nil {
		t.Fatalf("expected error for nil handle")
	}
}
