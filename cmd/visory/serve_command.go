/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"visory/internal/config"
	"visory/internal/export"
	"visory/internal/httpapi"
	applog "visory/internal/log"
	"visory/internal/storage"

	"github.com/spf13/cobra"
)

// EnvAuthSecret enables bearer auth on the page store routes when set.
const EnvAuthSecret = "VISORY_AUTH_SECRET"

// dataDir holds the default sqlite page store and the preview cache.
func dataDir() (string, error) {
	p, err := config.ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}

func storeDSN(cfg config.StoreConfig) (string, error) {
	if cfg.DSN != "" || cfg.Driver == storage.DriverPostgres {
		return cfg.DSN, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "pages.db"), nil
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr      string
		stateless bool
		wireframe bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP rendering and page store service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			l := applog.WithComponent("serve")
			if addr == "" {
				addr = cfg.Server.Addr
			}
			opts, err := ctx.renderOptions(0, 0)
			if err != nil {
				return err
			}
			r, err := ctx.serverRenderer(wireframe)
			if err != nil {
				return err
			}
			srv := &httpapi.Server{
				Renderer: r,
				Exporter: &export.Exporter{Codec: export.JPEGCodec{Quality: cfg.Render.JPEGQuality}},
				Options:  opts,
				Batch:    ctx.batch(nil),
				Secret:   os.Getenv(EnvAuthSecret),
			}

			if !stateless {
				dsn, err := storeDSN(cfg.Store)
				if err != nil {
					return err
				}
				store, err := storage.OpenPageStore(cmd.Context(), cfg.Store.Driver, dsn)
				if err != nil {
					return err
				}
				defer store.Close()
				dir, err := dataDir()
				if err != nil {
					return err
				}
				idx, err := storage.OpenIndex(dir)
				if err != nil {
					return err
				}
				defer idx.Close()
				srv.Store = store
				srv.Previews = storage.NewPreviewCache(idx)
				l.Info("page store ready", slog.String("driver", store.Driver()))
			}
			if srv.Store != nil && srv.Secret == "" {
				l.Warn("page store routes are unauthenticated; set " + EnvAuthSecret)
			}

			hs := &http.Server{
				Addr:              addr,
				Handler:           srv.Router(httpapi.Config{AllowedOrigins: cfg.Server.AllowedOrigins}),
				ReadHeaderTimeout: 10 * time.Second,
			}
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				l.Info("listening", slog.String("addr", addr))
				errCh <- hs.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			case <-sigCtx.Done():
			}
			l.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, "+config.EnvServerAddr+")")
	cmd.Flags().BoolVar(&stateless, "stateless", false, "Serve rendering and export only, without the page store")
	cmd.Flags().BoolVar(&wireframe, "wireframe", false, "Render outlines instead of fetching panel images")
	return cmd
}
