/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"visory/internal/config"
	"visory/internal/raster"
	"visory/internal/storage"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type commandContext struct {
	configOnce sync.Once
	config     config.AppConfig
	token      string
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (config.AppConfig, error) {
	c.configOnce.Do(func() {
		c.config, c.token, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() config.AppConfig {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) openProject(dir string) (*storage.ProjectHandle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	ph, err := storage.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", abs, err)
	}
	return ph, nil
}

// renderOptions applies non-zero flag values over the configured canvas.
func (c *commandContext) renderOptions(width, height int) (raster.Options, error) {
	cfg := c.configValue()
	opts := raster.Options{Width: cfg.Render.Width, Height: cfg.Render.Height}
	if width > 0 {
		opts.Width = width
	}
	if height > 0 {
		opts.Height = height
	}
	return opts.Normalize()
}

func (c *commandContext) renderer(wireframe bool) (raster.Renderer, error) {
	if wireframe {
		return raster.WireframeRenderer{}, nil
	}
	cfg := c.configValue()
	return raster.NewCanvasRenderer(raster.NewHTTPLoader(raster.LoaderOptions{Timeout: cfg.Render.FetchTimeout()}))
}

// serverRenderer never reads local files; remote art must come from server.image_hosts.
func (c *commandContext) serverRenderer(wireframe bool) (raster.Renderer, error) {
	if wireframe {
		return raster.WireframeRenderer{}, nil
	}
	cfg := c.configValue()
	return raster.NewCanvasRenderer(raster.NewHTTPLoader(raster.LoaderOptions{
		Timeout:      cfg.Render.FetchTimeout(),
		Restrict:     true,
		AllowedHosts: cfg.Server.ImageHosts,
	}))
}

func (c *commandContext) batch(progress raster.Progress) raster.BatchOptions {
	cfg := c.configValue()
	b := raster.BatchOptions{Workers: cfg.Render.Workers, Progress: progress}
	if cfg.Render.FetchPerSecond > 0 {
		b.Limiter = rate.NewLimiter(rate.Limit(cfg.Render.FetchPerSecond), 1)
	}
	return b
}

// progressPrinter reports batch progress on one rewritten line.
func progressPrinter(w io.Writer, label string) raster.Progress {
	var mu sync.Mutex
	return func(done, total, percent int) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, "\r%s %d/%d (%d%%)", label, done, total, percent)
		if done == total {
			_, _ = fmt.Fprintln(w)
		}
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
