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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"visory/internal/domain"
	"visory/internal/export"
	applog "visory/internal/log"
	"visory/internal/storage"
	"visory/internal/wire"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// pageJSON is the element-array page shape shared with the backend client.
type pageJSON struct {
	ID         int64          `json:"id"`
	PageNumber int            `json:"page_number"`
	Elements   []wire.Element `json:"elements"`
	PreviewURL *string        `json:"preview_url"`
}

func toPageJSON(p domain.ComicPage) pageJSON {
	return pageJSON{ID: p.ID, PageNumber: p.PageNumber, Elements: wire.SerializePage(p), PreviewURL: p.PreviewURL}
}

func idParam(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func storeStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.Store.CreateProject(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": req.Name})
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	pid, err := idParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pages, err := s.Store.ListPages(r.Context(), pid)
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	out := make([]pageJSON, 0, len(pages))
	for _, p := range pages {
		out = append(out, toPageJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createPage(w http.ResponseWriter, r *http.Request) {
	pid, err := idParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	var page domain.ComicPage
	if len(b) > 0 {
		payload, err := wire.Decode(b)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		page = wire.DeserializePage(payload.Elements, 0, 0, nil)
	} else {
		page = domain.NewPage(0, uuid.NewString())
	}
	created, err := s.Store.CreatePage(r.Context(), pid, page)
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, toPageJSON(created))
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "pageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.Store.LoadPage(r.Context(), id)
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toPageJSON(p))
}

func (s *Server) savePage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "pageID")
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
	if err := s.Store.SavePage(r.Context(), id, payload); err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	s.invalidatePreview(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deletePage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "pageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Store.DeletePage(r.Context(), id); err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	s.invalidatePreview(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reorderPages(w http.ResponseWriter, r *http.Request) {
	pid, err := idParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		PageIDs []int64 `json:"page_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Store.Renumber(r.Context(), pid, req.PageIDs); err != nil {
		status := storeStatus(err)
		if status == http.StatusNotFound {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) invalidatePreview(ctx context.Context, pageID int64) {
	if s.Previews == nil {
		return
	}
	if err := s.Previews.Invalidate(ctx, pageID); err != nil {
		s.logger().WarnContext(ctx, "invalidate preview failed", applog.PageID(pageID), slog.Any("err", err))
	}
}

func previewPath(pageID int64) string { return fmt.Sprintf("/api/comic/pages/%d/preview.png", pageID) }

// previewPNG renders a stored page at the server canvas, going through the
// preview cache when one is configured.
func (s *Server) previewPNG(ctx context.Context, pageID int64) ([]byte, error) {
	opts, err := s.Options.Normalize()
	if err != nil {
		return nil, err
	}
	gen := func(ctx context.Context) ([]byte, error) {
		p, err := s.Store.LoadPage(ctx, pageID)
		if err != nil {
			return nil, err
		}
		r := s.Renderer
		if r == nil {
			r = s.wireframe()
		}
		img, err := r.RenderPage(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		return export.PNGCodec{}.Encode(img)
	}
	if s.Previews == nil {
		return gen(ctx)
	}
	return s.Previews.GetOrCreate(ctx, storage.PreviewKey{PageID: pageID, W: opts.Width, H: opts.Height}, gen)
}

func (s *Server) generatePreview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "pageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.previewPNG(r.Context(), id); err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	url := previewPath(id)
	if err := s.Store.SetPreviewURL(r.Context(), id, url); err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preview_url": url})
}

func (s *Server) servePreview(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "pageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := s.previewPNG(r.Context(), id)
	if err != nil {
		writeError(w, storeStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
