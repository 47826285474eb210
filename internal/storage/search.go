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
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// psql builds queries for the embedded SQLite index.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SearchQuery describes a search over the project index.
// Text uses SQLite FTS5 syntax (terms, "phrases", AND/OR/NOT). Types restricts
// to bubble types or "project_name". PageFrom/PageTo are inclusive; 0 means unset.
type SearchQuery struct {
	Text     string
	Types    []string
	PageFrom int
	PageTo   int
	Limit    int
	Offset   int
}

// SearchResult is a single match. Snippet marks hits with [ ] when Text is set.
type SearchResult struct {
	DocID      int64  `json:"doc_id"`
	Type       string `json:"type"`
	Path       string `json:"path"`
	PageNumber int    `json:"page_number"`
	Snippet    string `json:"snippet,omitempty"`
}

// Search opens the project index and runs q against it.
func Search(ctx context.Context, projectRoot string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(projectRoot) == "" {
		return nil, errors.New("project root is required")
	}
	db, err := OpenIndex(projectRoot)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return SearchDB(ctx, db, q)
}

// SearchDB runs q against an already open index. Without Text it scans
// documents with the filters applied.
func SearchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var b sq.SelectBuilder
	if strings.TrimSpace(q.Text) != "" {
		b = psql.Select("d.doc_id", "d.type", "d.path", "COALESCE(d.page_number,0)",
			"snippet(fts_documents, 0, '[', ']', '...', 10)").
			From("fts_documents").
			Join("documents d ON fts_documents.rowid = d.doc_id").
			Where("fts_documents MATCH ?", q.Text)
	} else {
		b = psql.Select("d.doc_id", "d.type", "d.path", "COALESCE(d.page_number,0)", "''").
			From("documents d")
	}
	if len(q.Types) > 0 {
		b = b.Where(sq.Eq{"d.type": q.Types})
	}
	if q.PageFrom > 0 {
		b = b.Where(sq.GtOrEq{"d.page_number": q.PageFrom})
	}
	if q.PageTo > 0 {
		b = b.Where(sq.LtOrEq{"d.page_number": q.PageTo})
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b = b.OrderBy("d.page_number NULLS FIRST", "d.doc_id").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.DocID, &r.Type, &r.Path, &r.PageNumber, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Snippet = sn.String
		out = append(out, r)
	}
	return out, rows.Err()
}
