/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package httpapi exposes page layout, validation, rendering and export over
// HTTP, plus an optional page store surface matching the comic API contract.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"visory/internal/export"
	applog "visory/internal/log"
	"visory/internal/raster"
	"visory/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// maxBodyBytes caps request bodies; export requests carry many pages.
const maxBodyBytes = 32 << 20

// Server holds the collaborators behind the routes. Store, Previews and
// Secret are optional.
type Server struct {
	Renderer  raster.Renderer
	Wireframe raster.Renderer
	Exporter  *export.Exporter
	Options   raster.Options
	Batch     raster.BatchOptions
	Store     *storage.PageStore
	Previews  *storage.PreviewCache
	Secret    string
	Log       *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Config carries router-level settings.
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return applog.WithComponent(applog.ComponentServer)
}

func (s *Server) wireframe() raster.Renderer {
	if s.Wireframe != nil {
		return s.Wireframe
	}
	return raster.WireframeRenderer{}
}

func (s *Server) exporter() *export.Exporter {
	if s.Exporter != nil {
		return s.Exporter
	}
	return &export.Exporter{}
}

// Router builds the chi handler tree.
func (s *Server) Router(cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(corsHandler.Handler)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/layouts", s.listLayouts)
		r.Post("/layouts/detect", s.detectLayout)
		r.Post("/pages/validate", s.validatePage)
		r.Post("/render", s.renderPage)
		r.Post("/export", s.exportPages)
		r.Get("/export/formats", s.listFormats)
		r.Post("/auth/token", s.issueToken)

		if s.Store != nil {
			r.Route("/comic", func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/projects", s.createProject)
				r.Get("/projects/{projectID}/pages", s.listPages)
				r.Post("/projects/{projectID}/pages", s.createPage)
				r.Post("/projects/{projectID}/pages/reorder", s.reorderPages)
				r.Get("/pages/{pageID}", s.getPage)
				r.Put("/pages/{pageID}", s.savePage)
				r.Delete("/pages/{pageID}", s.deletePage)
				r.Post("/pages/{pageID}/preview", s.generatePreview)
				r.Get("/pages/{pageID}/preview.png", s.servePreview)
			})
		}
	})
	return r
}

// requestLogger logs one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := applog.ContextWithAttrs(r.Context(), slog.String(applog.KeyRequestID, middleware.GetReqID(r.Context())))
		next.ServeHTTP(ww, r.WithContext(ctx))
		lvl := slog.LevelInfo
		if ww.Status() >= 500 {
			lvl = slog.LevelError
		}
		s.logger().Log(ctx, lvl, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", time.Since(start)))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.DB().PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("store not ready"))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
