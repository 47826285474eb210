/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type memTokens struct{ m map[string]string }

func (s *memTokens) Get(service, key string) (string, error) { return s.m[service+"/"+key], nil }
func (s *memTokens) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}
func (s *memTokens) Delete(service, key string) error {
	delete(s.m, service+"/"+key)
	return nil
}

// isolate points the config file into a temp dir and stubs the keychain.
func isolate(t *testing.T) (string, *memTokens) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, path)
	old := tokenStore
	mem := &memTokens{m: map[string]string{}}
	tokenStore = mem
	t.Cleanup(func() { tokenStore = old })
	return path, mem
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
}

func TestEnvOverridesTelemetry(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
}

func TestEnvOverridesRenderAndStore(t *testing.T) {
	isolate(t)
	t.Setenv(EnvRenderWidth, "540")
	t.Setenv(EnvRenderHeight, "720")
	t.Setenv(EnvRenderWorkers, "4")
	t.Setenv(EnvStoreDriver, "POSTGRES")
	t.Setenv(EnvStoreDSN, "postgres://u:p@db/visory")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Render.Width != 540 || cfg.Render.Height != 720 || cfg.Render.Workers != 4 {
		t.Fatalf("render overrides not applied: %#v", cfg.Render)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://u:p@db/visory" {
		t.Fatalf("store overrides not applied: %#v", cfg.Store)
	}
	if name, ok := EnvOverrideFor("render.width"); !ok || name != EnvRenderWidth {
		t.Fatalf("EnvOverrideFor(render.width) = %q,%v", name, ok)
	}
	if _, ok := EnvOverrideFor("server.addr"); ok {
		t.Fatalf("server.addr must not report an override")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path, mem := isolate(t)
	cfg := Defaults()
	cfg.Render.JPEGQuality = 92
	cfg.Server.AllowedOrigins = []string{"https://app.visory.test"}
	if err := Save(cfg, "tok-123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("token = %q, want tok-123", tok)
	}
	if got.Render.JPEGQuality != 92 || len(got.Server.AllowedOrigins) != 1 || got.Server.AllowedOrigins[0] != "https://app.visory.test" {
		t.Fatalf("round trip mismatch: %#v", got)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if len(mem.m) != 0 {
		t.Fatalf("token not cleared: %v", mem.m)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("render: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error for broken yaml")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/visory.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/visory.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestMergeIgnoresOutOfRangeQuality(t *testing.T) {
	dst := Defaults()
	src := AppConfig{Render: RenderConfig{JPEGQuality: 140}}
	mergeInto(&dst, &src)
	if dst.Render.JPEGQuality != Defaults().Render.JPEGQuality {
		t.Fatalf("quality 140 must be ignored, got %d", dst.Render.JPEGQuality)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/visory.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/visory.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestTimeouts(t *testing.T) {
	if got := (BackendConfig{}).Timeout(); got != 15*time.Second {
		t.Fatalf("default backend timeout = %v", got)
	}
	if got := (RenderConfig{FetchTimeoutMs: 250}).FetchTimeout(); got != 250*time.Millisecond {
		t.Fatalf("fetch timeout = %v", got)
	}
}

func TestImageHostsFromEnvAndFile(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.Server.ImageHosts = []string{"art.visory.test"}
	if err := Save(cfg, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Server.ImageHosts) != 1 || got.Server.ImageHosts[0] != "art.visory.test" {
		t.Fatalf("image hosts from file = %v", got.Server.ImageHosts)
	}
	t.Setenv(EnvServerImageHosts, " cdn.visory.test, ,*.pages.test ")
	got, _, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Server.ImageHosts) != 2 || got.Server.ImageHosts[0] != "cdn.visory.test" || got.Server.ImageHosts[1] != "*.pages.test" {
		t.Fatalf("image hosts from env = %q", got.Server.ImageHosts)
	}
	if name, ok := EnvOverrideFor("server.image_hosts"); !ok || name != EnvServerImageHosts {
		t.Fatalf("EnvOverrideFor(server.image_hosts) = %q,%v", name, ok)
	}
}
