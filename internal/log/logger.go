/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log configures visory's slog logger. Every record carries the
// app version; render, export, reader and sync code tag records with a
// component and with page or format attributes so one page can be followed
// from the editor through rendering into an archive.
package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"visory/internal/version"

	"github.com/mattn/go-isatty"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Components tag the subsystem a record came from.
const (
	ComponentRender   = "render"
	ComponentExport   = "export"
	ComponentReader   = "reader"
	ComponentSync     = "sync"
	ComponentEditor   = "editor"
	ComponentStore    = "storage"
	ComponentServer   = "httpapi"
	ComponentLetters  = "lettering"
	ComponentCLI      = "cli"
	componentAttrName = "component"
)

// Attribute keys shared between components.
const (
	KeyPageID     = "page_id"
	KeyPageNumber = "page_number"
	KeyFormat     = "format"
	KeyURL        = "url"
	KeyRequestID  = "req_id"
)

// Options controls logger initialization. FromEnv fills it from
// VISORY_LOG_LEVEL, VISORY_LOG_FORMAT, VISORY_LOG_SOURCE and VISORY_LOG_FILE.
type Options struct {
	Level     string
	Format    string // console or json; empty picks by terminal
	AddSource bool
	File      string    // rotated json log, optional
	Writer    io.Writer // console destination, stderr when nil
}

// rotated log file limits
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 28
)

var (
	mu      sync.RWMutex
	current *slog.Logger

	isTerminal = func(fd uintptr) bool { return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) }
)

// L returns the process logger, initializing it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init builds the logger described by opts and installs it as slog.Default.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
		if f, ok := w.(interface{ Fd() uintptr }); ok {
			format = defaultFormat(f.Fd())
		}
	}

	handlers := []slog.Handler{}
	if format == "json" {
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	} else {
		handlers = append(handlers, newConsoleHandler(w, lvl, opts.AddSource))
	}
	if path := strings.TrimSpace(opts.File); path != "" {
		rot := &lj.Logger{Filename: path, MaxSize: fileMaxSizeMB, MaxBackups: fileMaxBackups, MaxAge: fileMaxAgeDays, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(rot, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	}

	var h slog.Handler = fanout(handlers)
	if len(handlers) == 1 {
		h = handlers[0]
	}
	logger := slog.New(contextHandler{next: h}).With(
		slog.String("app", "visory"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	current = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// FromEnv reads Options from the VISORY_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("VISORY_LOG_LEVEL", "info"),
		Format:    getenv("VISORY_LOG_FORMAT", defaultFormat(os.Stderr.Fd())),
		AddSource: strings.EqualFold(getenv("VISORY_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("VISORY_LOG_FILE"),
	}
}

// defaultFormat is console on a terminal and json when piped.
func defaultFormat(fd uintptr) string {
	if isTerminal(fd) {
		return "console"
	}
	return "json"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns the process logger tagged with a component name.
func WithComponent(name string) *slog.Logger {
	return L().With(slog.String(componentAttrName, name))
}

// WithOperation annotates l with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// PageID tags a record with a page's store id.
func PageID(id int64) slog.Attr { return slog.Int64(KeyPageID, id) }

// PageNumber tags a record with a page's 1-based position.
func PageNumber(n int) slog.Attr { return slog.Int(KeyPageNumber, n) }

// Format tags a record with an export or image format.
func Format(f string) slog.Attr { return slog.String(KeyFormat, f) }

// URL tags a record with a comic or image location. Credentials and the
// query string are dropped; data: URLs are reduced to their media type.
func URL(raw string) slog.Attr { return slog.String(KeyURL, redactURL(raw)) }

func redactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if i := strings.IndexAny(raw, ";,"); i > 0 {
			return raw[:i]
		}
		return "data:"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

type ctxAttrsKey struct{}

// ContextWithAttrs returns a child of ctx whose records, logged through the
// *Context methods, carry attrs in addition to any the parent carried.
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	prev := attrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
