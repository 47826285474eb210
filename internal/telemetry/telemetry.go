/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events (render and export
// outcomes) and optional crash uploads. Nothing is sent unless enabled.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "visory/internal/log"
	"visory/internal/version"

	"golang.org/x/time/rate"
)

// Event names.
const (
	EventExportCompleted = "export_completed"
	EventExportFailed    = "export_failed"
	EventRenderCompleted = "render_completed"
	EventDocumentOpened  = "document_opened"
)

// Config holds runtime configuration for telemetry and crash uploads.
//
// Environment variables (read by FromEnv):
//   - VISORY_TELEMETRY_OPT_IN: "1", "true", "yes" to enable events
//   - VISORY_TELEMETRY_URL: URL to POST JSON events to
//   - VISORY_CRASH_UPLOAD_URL: URL to POST crash reports to
//   - VISORY_TELEMETRY_TIMEOUT_MS: request timeout, default 1500ms
//   - VISORY_TELEMETRY_RATE: max events per second, default 5
//   - VISORY_TELEMETRY_DEBUG: if set, logs send attempts
//
// Without URLs events are dropped even when opted in.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	PerSecond    float64
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("VISORY_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("VISORY_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("VISORY_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		PerSecond:    5,
		DebugLogging: os.Getenv("VISORY_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("VISORY_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			cfg.Timeout = time.Duration(v) * time.Millisecond
		}
	}
	if s := strings.TrimSpace(os.Getenv("VISORY_TELEMETRY_RATE")); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			cfg.PerSecond = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client is an async sender that never blocks the caller. Events beyond the
// rate limit or a full queue are dropped.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	limiter *rate.Limiter
	q       chan map[string]any
	pending atomic.Int64
	once    sync.Once
	closed  chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// InitDefault installs a default client from env when none exists yet.
func InitDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
}

// NewDefault replaces the default client, closing the previous one.
func NewDefault(cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		defaultClient.Close()
	}
	defaultClient = New(cfg)
}

func getDefault() *Client {
	InitDefault()
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient
}

// New constructs a client and starts its sender goroutine.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	burst := int(cfg.PerSecond)
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		cfg:     cfg,
		log:     applog.WithComponent("telemetry"),
		cli:     &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		q:       make(chan map[string]any, 64),
		closed:  make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are opted in and have somewhere to go.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports the default client's state.
func Enabled() bool { return getDefault().Enabled() }

// Event queues a small JSON event. props must not carry personal data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	if !c.limiter.Allow() {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry event rate limited", slog.String("name", name))
		}
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	c.pending.Add(1)
	select {
	case c.q <- payload:
	default:
		c.pending.Add(-1)
	}
}

// Event uses the default client.
func Event(name string, props map[string]any) { getDefault().Event(name, props) }

// ExportCompleted records a finished export.
func (c *Client) ExportCompleted(format string, pages int, size int64, took time.Duration) {
	c.Event(EventExportCompleted, map[string]any{
		"format": format,
		"pages":  pages,
		"bytes":  size,
		"ms":     took.Milliseconds(),
	})
}

// ExportFailed records an export that returned an error. Only the format is sent.
func (c *Client) ExportFailed(format string) {
	c.Event(EventExportFailed, map[string]any{"format": format})
}

// RenderCompleted records a batch render.
func (c *Client) RenderCompleted(pages, failed int, took time.Duration) {
	c.Event(EventRenderCompleted, map[string]any{"pages": pages, "failed": failed, "ms": took.Milliseconds()})
}

// DocumentOpened records a reader load by file type.
func (c *Client) DocumentOpened(fileType string, pages int) {
	c.Event(EventDocumentOpened, map[string]any{"type": fileType, "pages": pages})
}

// ExportCompleted uses the default client.
func ExportCompleted(format string, pages int, size int64, took time.Duration) {
	getDefault().ExportCompleted(format, pages, size, took)
}

// ExportFailed uses the default client.
func ExportFailed(format string) { getDefault().ExportFailed(format) }

// RenderCompleted uses the default client.
func RenderCompleted(pages, failed int, took time.Duration) {
	getDefault().RenderCompleted(pages, failed, took)
}

// DocumentOpened uses the default client.
func DocumentOpened(fileType string, pages int) { getDefault().DocumentOpened(fileType, pages) }

// Flush waits until queued events are sent, ctx ends, or 2s pass.
func (c *Client) Flush(ctx context.Context) {
	deadline := time.After(2 * time.Second)
	for c.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Flush uses the default client.
func Flush(ctx context.Context) { getDefault().Flush(ctx) }

// Close stops the sender goroutine. Queued events are discarded.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			for {
				select {
				case <-c.q:
					c.pending.Add(-1)
				default:
					return
				}
			}
		case item := <-c.q:
			c.send(item)
			c.pending.Add(-1)
		}
	}
}

func (c *Client) send(item map[string]any) {
	buf, err := json.Marshal(item)
	if err != nil {
		return
	}
	c.post(c.cfg.EventsURL, "application/json", buf, "telemetry event")
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug(what+" send failed", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug(what+" sent", slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a serialized crash report when opted in. It returns a
// channel closed once the attempt finishes.
func (c *Client) UploadCrash(report []byte) <-chan struct{} {
	done := make(chan struct{})
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		close(done)
		return done
	}
	go func(b []byte) {
		defer close(done)
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b, "crash report")
	}(append([]byte(nil), report...))
	return done
}

// UploadCrash uses the default client.
func UploadCrash(report []byte) <-chan struct{} { return getDefault().UploadCrash(report) }
