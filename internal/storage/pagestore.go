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
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"visory/internal/domain"
	applog "visory/internal/log"
	"visory/internal/wire"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Supported page store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a page or project row does not exist.
var ErrNotFound = errors.New("not found")

// PageStore persists comic pages as element arrays, the same shape the
// remote comic API stores. It runs on SQLite or PostgreSQL.
type PageStore struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

// OpenPageStore opens the database, applies pending migrations and returns a
// ready store. driver is "sqlite" (modernc) or "postgres" (pgx).
func OpenPageStore(ctx context.Context, driver, dsn string) (*PageStore, error) {
	l := applog.WithOperation(applog.WithComponent(applog.ComponentStore), "pagestore_open").With(slog.String("driver", driver))
	driver = strings.ToLower(strings.TrimSpace(driver))
	var (
		db  *sql.DB
		err error
		ph  sq.PlaceholderFormat
	)
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("sqlite dsn is required")
		}
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		ph = sq.Question
	case DriverPostgres, "pgx":
		driver = DriverPostgres
		db, err = sql.Open("pgx", dsn)
		ph = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := &PageStore{db: db, driver: driver, sb: sq.StatementBuilder.PlaceholderFormat(ph), now: time.Now}
	if err := s.applyMigrations(pctx); err != nil {
		_ = db.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// sqliteDSN turns a bare path into a modernc DSN with foreign keys and a busy timeout.
func sqliteDSN(dsn string) string {
	if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	return "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Driver reports the dialect in use.
func (s *PageStore) Driver() string { return s.driver }

// DB exposes the handle for health checks.
func (s *PageStore) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *PageStore) Close() error { return s.db.Close() }

func (s *PageStore) applyMigrations(ctx context.Context) error {
	dir := path.Join("migrations", s.driver)
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	ts := "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP"
	if s.driver == DriverPostgres {
		ts = "TIMESTAMPTZ NOT NULL DEFAULT now()"
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at `+ts+`
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	l := applog.WithComponent(applog.ComponentStore)
	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join(dir, fname))
		if err != nil {
			return err
		}
		l.Info("applying migration", slog.String("file", fname), slog.String("driver", s.driver))
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) != "" {
			if _, err := tx.ExecContext(ctx, string(b)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply %s: %w", fname, err)
			}
		}
		q, args, err := s.sb.Insert("schema_migrations").Columns("version", "name").Values(version, fname).ToSql()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

// parseVersion reads the numeric prefix of NNN_name.sql.
func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	i := strings.IndexByte(base, '_')
	if i <= 0 {
		return 0, fmt.Errorf("invalid migration name %q", name)
	}
	v, err := strconv.ParseInt(base[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid migration version in %q: %w", name, err)
	}
	return v, nil
}

// insertID runs an INSERT and returns the new id, via RETURNING on postgres.
func (s *PageStore) insertID(ctx context.Context, q sq.Sqlizer, ex interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int64, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	if s.driver == DriverPostgres {
		var id int64
		if err := ex.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *PageStore) stamp() string { return s.now().UTC().Format(time.RFC3339Nano) }

// CreateProject inserts an empty project and returns its id.
func (s *PageStore) CreateProject(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, errors.New("project name is required")
	}
	id, err := s.insertID(ctx, s.sb.Insert("comic_projects").Columns("name").Values(name), s.db)
	if err != nil {
		return 0, fmt.Errorf("create project: %w", err)
	}
	return id, nil
}

// CreatePage appends a page to the project and returns it with its new id.
func (s *PageStore) CreatePage(ctx context.Context, projectID int64, page domain.ComicPage) (domain.ComicPage, error) {
	elems, err := json.Marshal(wire.SerializePage(page))
	if err != nil {
		return domain.ComicPage{}, err
	}
	var next int
	q, args, err := s.sb.Select("COALESCE(MAX(page_number),0)+1").From("comic_pages").
		Where(sq.Eq{"project_id": projectID}).ToSql()
	if err != nil {
		return domain.ComicPage{}, err
	}
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&next); err != nil {
		return domain.ComicPage{}, fmt.Errorf("next page number: %w", err)
	}
	ins := s.sb.Insert("comic_pages").
		Columns("project_id", "page_number", "elements", "preview_url", "updated_at").
		Values(projectID, next, string(elems), page.PreviewURL, s.stamp())
	id, err := s.insertID(ctx, ins, s.db)
	if err != nil {
		return domain.ComicPage{}, fmt.Errorf("create page: %w", err)
	}
	out := page.Clone()
	out.ID = id
	out.PageNumber = next
	return out, nil
}

// SavePage overwrites the element array of an existing page and clears its
// preview URL.
func (s *PageStore) SavePage(ctx context.Context, pageID int64, payload wire.PagePayload) error {
	elems := payload.Elements
	if elems == nil {
		elems = []wire.Element{}
	}
	b, err := json.Marshal(elems)
	if err != nil {
		return err
	}
	q, args, err := s.sb.Update("comic_pages").
		Set("elements", string(b)).
		Set("preview_url", nil).
		Set("updated_at", s.stamp()).
		Where(sq.Eq{"id": pageID}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("save page %d: %w", pageID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("page %d: %w", pageID, ErrNotFound)
	}
	return nil
}

// SetPreviewURL records where a rendered preview of the page lives.
func (s *PageStore) SetPreviewURL(ctx context.Context, pageID int64, url string) error {
	q, args, err := s.sb.Update("comic_pages").Set("preview_url", url).Where(sq.Eq{"id": pageID}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("set preview url: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("page %d: %w", pageID, ErrNotFound)
	}
	return nil
}

func (s *PageStore) pageSelect() sq.SelectBuilder {
	return s.sb.Select("id", "page_number", "elements", "preview_url").From("comic_pages")
}

func scanPage(row interface{ Scan(...any) error }) (domain.ComicPage, error) {
	var (
		id      int64
		number  int
		raw     []byte
		preview sql.NullString
	)
	if err := row.Scan(&id, &number, &raw, &preview); err != nil {
		return domain.ComicPage{}, err
	}
	var elems []wire.Element
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &elems); err != nil {
			return domain.ComicPage{}, fmt.Errorf("decode elements of page %d: %w", id, err)
		}
	}
	var pu *string
	if preview.Valid {
		v := preview.String
		pu = &v
	}
	return wire.DeserializePage(elems, id, number, pu), nil
}

// LoadPage reads one page by id.
func (s *PageStore) LoadPage(ctx context.Context, pageID int64) (domain.ComicPage, error) {
	q, args, err := s.pageSelect().Where(sq.Eq{"id": pageID}).ToSql()
	if err != nil {
		return domain.ComicPage{}, err
	}
	pg, err := scanPage(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ComicPage{}, fmt.Errorf("page %d: %w", pageID, ErrNotFound)
	}
	return pg, err
}

// ListPages returns the pages of a project ordered by page number.
func (s *PageStore) ListPages(ctx context.Context, projectID int64) ([]domain.ComicPage, error) {
	q, args, err := s.pageSelect().Where(sq.Eq{"project_id": projectID}).OrderBy("page_number", "id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	out := []domain.ComicPage{}
	for rows.Next() {
		pg, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pg)
	}
	return out, rows.Err()
}

// LoadProject returns the project name and its pages.
func (s *PageStore) LoadProject(ctx context.Context, projectID int64) (domain.Project, error) {
	q, args, err := s.sb.Select("name").From("comic_projects").Where(sq.Eq{"id": projectID}).ToSql()
	if err != nil {
		return domain.Project{}, err
	}
	var name string
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
		}
		return domain.Project{}, err
	}
	pages, err := s.ListPages(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	return domain.Project{ID: projectID, Name: name, Pages: pages}, nil
}

// DeletePage removes a page and renumbers the remaining pages of its project.
func (s *PageStore) DeletePage(ctx context.Context, pageID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q, args, err := s.sb.Select("project_id").From("comic_pages").Where(sq.Eq{"id": pageID}).ToSql()
	if err != nil {
		return err
	}
	var projectID int64
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("page %d: %w", pageID, ErrNotFound)
		}
		return err
	}
	q, args, err = s.sb.Delete("comic_pages").Where(sq.Eq{"id": pageID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if err := s.renumberTx(ctx, tx, projectID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Renumber assigns page numbers 1..N following order, a list of page ids.
// Pages of the project missing from order keep their relative order after it.
func (s *PageStore) Renumber(ctx context.Context, projectID int64, order []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.renumberTx(ctx, tx, projectID, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PageStore) renumberTx(ctx context.Context, tx *sql.Tx, projectID int64, order []int64) error {
	q, args, err := s.sb.Select("id").From("comic_pages").
		Where(sq.Eq{"project_id": projectID}).OrderBy("page_number", "id").ToSql()
	if err != nil {
		return err
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("select pages: %w", err)
	}
	var current []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		current = append(current, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	known := make(map[int64]bool, len(current))
	for _, id := range current {
		known[id] = true
	}
	final := make([]int64, 0, len(current))
	placed := make(map[int64]bool, len(current))
	for _, id := range order {
		if !known[id] {
			return fmt.Errorf("page %d not in project %d: %w", id, projectID, ErrNotFound)
		}
		if !placed[id] {
			placed[id] = true
			final = append(final, id)
		}
	}
	for _, id := range current {
		if !placed[id] {
			final = append(final, id)
		}
	}
	for i, id := range final {
		q, args, err := s.sb.Update("comic_pages").Set("page_number", i+1).Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("renumber page %d: %w", id, err)
		}
	}
	return nil
}

// ImportProject stores a whole project in one transaction and returns it with
// database ids assigned and pages numbered 1..N.
func (s *PageStore) ImportProject(ctx context.Context, proj domain.Project) (domain.Project, error) {
	name := strings.TrimSpace(proj.Name)
	if name == "" {
		name = "Untitled"
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer func() { _ = tx.Rollback() }()

	pid, err := s.insertID(ctx, s.sb.Insert("comic_projects").Columns("name").Values(name), tx)
	if err != nil {
		return domain.Project{}, fmt.Errorf("import project: %w", err)
	}
	out := domain.Project{ID: pid, Name: name, Pages: make([]domain.ComicPage, 0, len(proj.Pages))}
	for i, pg := range proj.Pages {
		elems, err := json.Marshal(wire.SerializePage(pg))
		if err != nil {
			return domain.Project{}, err
		}
		ins := s.sb.Insert("comic_pages").
			Columns("project_id", "page_number", "elements", "preview_url", "updated_at").
			Values(pid, i+1, string(elems), pg.PreviewURL, s.stamp())
		id, err := s.insertID(ctx, ins, tx)
		if err != nil {
			return domain.Project{}, fmt.Errorf("import page %d: %w", i+1, err)
		}
		c := pg.Clone()
		c.ID = id
		c.PageNumber = i + 1
		out.Pages = append(out.Pages, c)
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return out, nil
}
