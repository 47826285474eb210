/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// reset drops the process logger after a test that called Init.
func reset(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() {
		mu.Lock()
		current = nil
		mu.Unlock()
		slog.SetDefault(prev)
	})
}

func lastJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var last string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines in %q", data)
	}
	m := map[string]any{}
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("not json: %q: %v", last, err)
	}
	return m
}

func TestFromEnv(t *testing.T) {
	t.Setenv("VISORY_LOG_LEVEL", "warn")
	t.Setenv("VISORY_LOG_FORMAT", "json")
	t.Setenv("VISORY_LOG_SOURCE", "TRUE")
	t.Setenv("VISORY_LOG_FILE", "")
	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv = %+v", opts)
	}
	if parseLevel(opts.Level) != slog.LevelWarn || parseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("parseLevel mismatch")
	}
}

func TestDefaultFormatFollowsTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stderr")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer func() { _ = f.Close() }()
	if got := defaultFormat(f.Fd()); got != "json" {
		t.Fatalf("defaultFormat(regular file) = %q, want json", got)
	}

	old := isTerminal
	t.Cleanup(func() { isTerminal = old })
	isTerminal = func(uintptr) bool { return true }
	if got := defaultFormat(f.Fd()); got != "console" {
		t.Fatalf("defaultFormat(terminal) = %q, want console", got)
	}
	isTerminal = func(uintptr) bool { return false }
	if got := defaultFormat(f.Fd()); got != "json" {
		t.Fatalf("defaultFormat(pipe) = %q, want json", got)
	}
}

func TestInitWithoutFormatWritesJSONToFiles(t *testing.T) {
	reset(t)
	f, err := os.Create(filepath.Join(t.TempDir(), "stderr.log"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()
	Init(Options{Writer: f})
	WithComponent(ComponentReader).Info("comic loaded", URL("https://u:p@cdn.test/a.cbz?sig=1"))

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m := lastJSON(t, data)
	if m["component"] != ComponentReader || m["url"] != "https://cdn.test/a.cbz" || m["app"] != "visory" {
		t.Fatalf("record = %v", m)
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("ver missing: %v", m)
	}
}

func TestContextAttrsReachEveryHandler(t *testing.T) {
	reset(t)
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "visory.json")
	Init(Options{Level: "debug", Format: "json", Writer: &console, File: file})

	ctx := ContextWithAttrs(context.Background(), PageID(7), PageNumber(2))
	withFmt := ContextWithAttrs(ctx, Format("cbz"))
	sibling := ContextWithAttrs(ctx, slog.String("job", "preview"))

	l := WithOperation(WithComponent(ComponentExport), "encode")
	l.InfoContext(withFmt, "page encoded")

	m := lastJSON(t, console.Bytes())
	if m["page_id"] != float64(7) || m["page_number"] != float64(2) || m["format"] != "cbz" {
		t.Fatalf("console record = %v", m)
	}
	if m["component"] != ComponentExport || m["op"] != "encode" {
		t.Fatalf("component/op missing: %v", m)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if fm := lastJSON(t, data); fm["page_id"] != float64(7) || fm["format"] != "cbz" {
		t.Fatalf("file record = %v", fm)
	}

	console.Reset()
	l.InfoContext(sibling, "preview stored")
	m = lastJSON(t, console.Bytes())
	if _, ok := m["format"]; ok || m["job"] != "preview" || m["page_id"] != float64(7) {
		t.Fatalf("sibling context record = %v", m)
	}

	console.Reset()
	l.Info("no context")
	if m = lastJSON(t, console.Bytes()); m["page_id"] != nil {
		t.Fatalf("page attrs leaked: %v", m)
	}
}

func TestConsoleLine(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(contextHandler{next: newConsoleHandler(&buf, slog.LevelWarn, false)}).
		With(slog.String("component", ComponentRender))

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	ctx := ContextWithAttrs(context.Background(), slog.String(KeyRequestID, "r1"))
	l.WarnContext(ctx, "panel image skipped", PageID(3), slog.String("err", "not found"), slog.Float64("scale", 0.5))
	out := buf.String()
	want := " WRN render   panel image skipped page_id=3 err=\"not found\" scale=0.5 req_id=r1\n"
	if !strings.HasSuffix(out, want) {
		t.Fatalf("line = %q, want suffix %q", out, want)
	}

	buf.Reset()
	l.WithGroup("job").Error("encode failed", slog.Int("n", 4))
	if out = buf.String(); !strings.Contains(out, " ERR render   encode failed job.n=4") {
		t.Fatalf("grouped line = %q", out)
	}
}

func TestURLRedaction(t *testing.T) {
	cases := map[string]string{
		"https://user:pw@cdn.test/a.cbz?sig=abc#p": "https://cdn.test/a.cbz",
		"data:image/png;base64,AAAA":               "data:image/png",
		"/srv/comics/issue1.cbz":                   "/srv/comics/issue1.cbz",
	}
	for in, want := range cases {
		if got := URL(in).Value.String(); got != want {
			t.Fatalf("URL(%q) = %q, want %q", in, got, want)
		}
	}
}
