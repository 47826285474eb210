/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"visory/internal/domain"
	"visory/internal/export"
	"visory/internal/layout"
	applog "visory/internal/log"
	"visory/internal/raster"
	"visory/internal/telemetry"
	"visory/internal/wire"
)

type rectJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

type layoutJSON struct {
	Name   domain.Layout `json:"name"`
	Panels []rectJSON    `json:"panels"`
}

func (s *Server) listLayouts(w http.ResponseWriter, _ *http.Request) {
	out := []layoutJSON{}
	for _, name := range layout.Names() {
		rects, ok := layout.Template(name)
		if !ok {
			continue
		}
		l := layoutJSON{Name: name, Panels: make([]rectJSON, 0, len(rects))}
		for _, r := range rects {
			l.Panels = append(l.Panels, rectJSON{X: r.X, Y: r.Y, W: r.W, H: r.H})
		}
		out = append(out, l)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) detectLayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Panels []domain.ComicPanel `json:"panels"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode panels: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.Layout{"layout": layout.DetectLayoutFromPanels(req.Panels)})
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	return b, nil
}

func (s *Server) validatePage(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err := wire.Validate(b); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// renderOptions reads width/height query overrides on top of the server canvas.
func (s *Server) renderOptions(r *http.Request) (raster.Options, error) {
	opts := s.Options
	for key, dst := range map[string]*int{"width": &opts.Width, "height": &opts.Height} {
		v := strings.TrimSpace(r.URL.Query().Get(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 8192 {
			return opts, fmt.Errorf("invalid %s %q", key, v)
		}
		*dst = n
	}
	return opts.Normalize()
}

func (s *Server) pickRenderer(r *http.Request) raster.Renderer {
	if strings.EqualFold(r.URL.Query().Get("renderer"), "wireframe") || s.Renderer == nil {
		return s.wireframe()
	}
	return s.Renderer
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request) {
	opts, err := s.renderOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	payload, err := wire.Decode(b)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	page := wire.DeserializePage(payload.Elements, 0, 1, nil)
	img, err := s.pickRenderer(r).RenderPage(r.Context(), page, opts)
	if err != nil {
		s.logger().ErrorContext(r.Context(), "render failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := export.PNGCodec{}.Encode(img)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) listFormats(w http.ResponseWriter, _ *http.Request) {
	type formatJSON struct {
		Format    export.Format `json:"format"`
		Extension string        `json:"extension"`
		MediaType string        `json:"media_type"`
	}
	out := []formatJSON{}
	for _, f := range export.Formats() {
		out = append(out, formatJSON{Format: f, Extension: export.FileExt(f), MediaType: export.MediaType(f)})
	}
	writeJSON(w, http.StatusOK, out)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// exportPages handles POST /api/export?format=cbz with
// {"name": "...", "pages": [{"elements": [...]}, ...]} and streams the file.
func (s *Server) exportPages(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts, err := s.renderOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	var req struct {
		Name  string            `json:"name"`
		Pages []json.RawMessage `json:"pages"`
	}
	if err := json.Unmarshal(b, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode export request: %w", err))
		return
	}
	if len(req.Pages) == 0 {
		writeError(w, http.StatusBadRequest, export.ErrNoPages)
		return
	}
	pages := make([]domain.ComicPage, 0, len(req.Pages))
	for i, raw := range req.Pages {
		p, err := wire.Decode(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("page %d: %w", i+1, err))
			return
		}
		pages = append(pages, wire.DeserializePage(p.Elements, 0, i+1, nil))
	}
	if name := r.URL.Query().Get("name"); name != "" {
		req.Name = name
	}

	start := time.Now()
	h := w.Header()
	h.Set("Content-Type", export.MediaType(format))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(req.Name, format)))
	cw := &countingWriter{w: w}
	err = s.exporter().ExportPages(r.Context(), s.pickRenderer(r), pages, opts, s.Batch,
		export.Request{Name: req.Name, Format: format}, cw, nil)
	if err != nil {
		telemetry.ExportFailed(string(format))
		s.logger().ErrorContext(r.Context(), "export failed", applog.Format(string(format)), slog.Any("err", err))
		if cw.n == 0 {
			h.Del("Content-Disposition")
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	telemetry.ExportCompleted(string(format), len(pages), cw.n, time.Since(start))
}
