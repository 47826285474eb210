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
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"visory/internal/domain"
	"visory/internal/raster"
	"visory/internal/storage"
	"visory/internal/wire"

	"github.com/golang-jwt/jwt/v5"
)

func samplePayload(t *testing.T) []byte {
	t.Helper()
	pg := domain.NewPage(1, "panel-1")
	pg.Panels[0].ImageURL = "https://cdn.test/one.png"
	pg.Bubbles = []domain.SpeechBubble{{ID: "b1", Type: domain.BubbleSpeech, Text: "hi", X: 10, Y: 10, Width: 30, Height: 15, ShowTail: true}}
	b, err := json.Marshal(wire.SerializePayload(pg))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func newTestServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	if s.Renderer == nil {
		s.Renderer = raster.WireframeRenderer{}
	}
	if s.Options.Width == 0 {
		s.Options = raster.Options{Width: 60, Height: 80}
	}
	srv := httptest.NewServer(s.Router(Config{AllowedOrigins: []string{"https://app.test"}}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body []byte, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthAndLayouts(t *testing.T) {
	srv := newTestServer(t, &Server{})
	resp := do(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/layouts", nil, nil)
	var layouts []layoutJSON
	decodeJSON(t, resp, &layouts)
	if len(layouts) != 4 {
		t.Fatalf("layouts = %d, want 4", len(layouts))
	}
	counts := map[domain.Layout]int{}
	for _, l := range layouts {
		counts[l.Name] = len(l.Panels)
	}
	if counts[domain.LayoutSingle] != 1 || counts[domain.LayoutQuad] != 4 {
		t.Fatalf("unexpected layout panels: %v", counts)
	}
}

func TestDetectLayout(t *testing.T) {
	srv := newTestServer(t, &Server{})
	body := `{"panels":[{"id":"a","x":0,"y":0,"width":100,"height":48},{"id":"b","x":0,"y":52,"width":100,"height":48}]}`
	resp := do(t, http.MethodPost, srv.URL+"/api/layouts/detect", []byte(body), nil)
	var got map[string]string
	decodeJSON(t, resp, &got)
	if got["layout"] != string(domain.LayoutDouble) {
		t.Fatalf("layout = %q", got["layout"])
	}
	resp = do(t, http.MethodPost, srv.URL+"/api/layouts/detect", []byte("{"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", resp.StatusCode)
	}
}

func TestValidatePage(t *testing.T) {
	srv := newTestServer(t, &Server{})
	resp := do(t, http.MethodPost, srv.URL+"/api/pages/validate", samplePayload(t), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid payload status = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodPost, srv.URL+"/api/pages/validate", []byte(`{"elements":[{"id":"x","type":"circle"}]}`), nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid payload status = %d", resp.StatusCode)
	}
	var got map[string]any
	decodeJSON(t, resp, &got)
	if got["valid"] != false || got["error"] == "" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestRenderReturnsPNG(t *testing.T) {
	srv := newTestServer(t, &Server{})
	resp := do(t, http.MethodPost, srv.URL+"/api/render?width=120&height=160&renderer=wireframe", samplePayload(t), nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("render status=%d type=%s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 160 {
		t.Fatalf("size = %v", b)
	}
	resp = do(t, http.MethodPost, srv.URL+"/api/render?width=-3", samplePayload(t), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative width status = %d", resp.StatusCode)
	}
}

func TestExportStreamsCBZ(t *testing.T) {
	srv := newTestServer(t, &Server{})
	page := samplePayload(t)
	body := []byte(fmt.Sprintf(`{"name":"Night Shift","pages":[%s,%s]}`, page, page))
	resp := do(t, http.MethodPost, srv.URL+"/api/export?format=cbz", body, nil)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("export status = %d: %s", resp.StatusCode, b)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".cbz") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("not a zip: %v", err)
	}
	images := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "page_") {
			images++
		}
	}
	if images != 2 {
		t.Fatalf("archive pages = %d, want 2", images)
	}
}

func TestExportRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, &Server{})
	cases := []struct {
		query, body string
		want        int
	}{
		{"format=rar5", `{"pages":[]}`, http.StatusBadRequest},
		{"format=pdf", `{"pages":[]}`, http.StatusBadRequest},
		{"format=pdf", `{"pages":[{"elements":[{"id":""}]}]}`, http.StatusUnprocessableEntity},
	}
	for _, c := range cases {
		resp := do(t, http.MethodPost, srv.URL+"/api/export?"+c.query, []byte(c.body), nil)
		if resp.StatusCode != c.want {
			t.Fatalf("%s: status = %d, want %d", c.query, resp.StatusCode, c.want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &Server{})
	resp := do(t, http.MethodOptions, srv.URL+"/api/render", nil, map[string]string{
		"Origin":                        "https://app.test",
		"Access-Control-Request-Method": "POST",
	})
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.test" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func newStoreServer(t *testing.T, secret string) (*httptest.Server, *Server) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.OpenPageStore(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "pages.db"))
	if err != nil {
		t.Fatalf("OpenPageStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := storage.OpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	s := &Server{Store: store, Previews: storage.NewPreviewCache(idx), Secret: secret}
	return newTestServer(t, s), s
}

func TestComicPagesLifecycle(t *testing.T) {
	srv, s := newStoreServer(t, "")
	resp := do(t, http.MethodPost, srv.URL+"/api/comic/projects", []byte(`{"name":"Lifecycle"}`), nil)
	var proj struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, resp, &proj)
	base := fmt.Sprintf("%s/api/comic/projects/%d/pages", srv.URL, proj.ID)

	var ids []int64
	for i := 0; i < 3; i++ {
		resp := do(t, http.MethodPost, base, samplePayload(t), nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create status = %d", resp.StatusCode)
		}
		var p pageJSON
		decodeJSON(t, resp, &p)
		ids = append(ids, p.ID)
	}

	resp = do(t, http.MethodPost, fmt.Sprintf("%s/api/comic/pages/%d/preview", srv.URL, ids[0]), nil, nil)
	var prev map[string]string
	decodeJSON(t, resp, &prev)
	if prev["preview_url"] != previewPath(ids[0]) {
		t.Fatalf("preview_url = %q", prev["preview_url"])
	}
	if total, _ := s.Previews.Total(context.Background()); total == 0 {
		t.Fatalf("preview not cached")
	}
	resp = do(t, http.MethodGet, srv.URL+prev["preview_url"], nil, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("preview fetch status=%d", resp.StatusCode)
	}

	resp = do(t, http.MethodPut, fmt.Sprintf("%s/api/comic/pages/%d", srv.URL, ids[0]), []byte(`{"elements":[]}`), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("save status = %d", resp.StatusCode)
	}
	if total, _ := s.Previews.Total(context.Background()); total != 0 {
		t.Fatalf("save must invalidate cached previews")
	}

	resp = do(t, http.MethodPost, base+"/reorder", []byte(fmt.Sprintf(`{"page_ids":[%d,%d,%d]}`, ids[2], ids[1], ids[0])), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reorder status = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, fmt.Sprintf("%s/api/comic/pages/%d", srv.URL, ids[1]), nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base, nil, nil)
	var pages []pageJSON
	decodeJSON(t, resp, &pages)
	if len(pages) != 2 || pages[0].ID != ids[2] || pages[1].ID != ids[0] || pages[1].PageNumber != 2 {
		t.Fatalf("unexpected pages: %+v", pages)
	}
	if pages[1].PreviewURL != nil || len(pages[1].Elements) != 0 {
		t.Fatalf("saved page should be empty without preview: %+v", pages[1])
	}

	resp = do(t, http.MethodGet, fmt.Sprintf("%s/api/comic/pages/%d", srv.URL, ids[1]), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted page status = %d", resp.StatusCode)
	}
}

func TestComicRoutesRequireToken(t *testing.T) {
	srv, s := newStoreServer(t, "s3cret")
	resp := do(t, http.MethodGet, srv.URL+"/api/comic/projects/1/pages", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPost, srv.URL+"/api/auth/token", []byte(`{"subject":"ana","ttl_seconds":60}`), nil)
	var tok struct {
		Token string `json:"token"`
	}
	decodeJSON(t, resp, &tok)
	resp = do(t, http.MethodGet, srv.URL+"/api/comic/projects/1/pages", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with token status = %d", resp.StatusCode)
	}

	s.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	resp = do(t, http.MethodGet, srv.URL+"/api/comic/projects/1/pages", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d", resp.StatusCode)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok, err := SignToken("k", "writer", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if sub, err := VerifyToken("k", tok, now); err != nil || sub != "writer" {
		t.Fatalf("VerifyToken = %q, %v", sub, err)
	}
	if _, err := VerifyToken("other", tok, now); err == nil {
		t.Fatalf("wrong secret must fail")
	}
	if _, err := VerifyToken("k", "garbage", now); err == nil {
		t.Fatalf("malformed token must fail")
	}
	if _, err := VerifyToken("k", tok, now.Add(2*time.Hour)); !errors.Is(err, errTokenExpired) {
		t.Fatalf("expired token err = %v", err)
	}

	// Same claims under another algorithm must be refused.
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "writer",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := VerifyToken("k", none, now); err == nil {
		t.Fatalf("alg none accepted")
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "writer",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	if _, err := VerifyToken("k", hs512, now); err == nil {
		t.Fatalf("HS512 token accepted")
	}
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "writer"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := VerifyToken("k", noExp, now); err == nil {
		t.Fatalf("token without exp accepted")
	}
}

func TestRenderRefusesLocalImage(t *testing.T) {
	red := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			red.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, red); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "secret.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pg := domain.NewPage(1, "panel-1")
	pg.Panels[0].ImageURL = path
	body, err := json.Marshal(wire.SerializePayload(pg))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	centre := func(loader *raster.HTTPLoader) color.NRGBA {
		t.Helper()
		r, err := raster.NewCanvasRenderer(loader)
		if err != nil {
			t.Fatalf("NewCanvasRenderer: %v", err)
		}
		srv := newTestServer(t, &Server{Renderer: r})
		resp := do(t, http.MethodPost, srv.URL+"/api/render", body, nil)
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			t.Fatalf("render status = %d: %s", resp.StatusCode, b)
		}
		img, err := png.Decode(resp.Body)
		if err != nil {
			t.Fatalf("decode png: %v", err)
		}
		return color.NRGBAModel.Convert(img.At(30, 40)).(color.NRGBA)
	}

	// The same page renders the file when paths are allowed, so white below means refused.
	if got := centre(raster.NewHTTPLoader(raster.LoaderOptions{})); got.R != 255 || got.G != 0 {
		t.Fatalf("unrestricted loader pixel = %v, want red", got)
	}
	restricted := raster.NewHTTPLoader(raster.LoaderOptions{Restrict: true, AllowedHosts: []string{"cdn.test"}})
	if got := centre(restricted); got.R != 255 || got.G != 255 || got.B != 255 {
		t.Fatalf("restricted loader pixel = %v, want white page", got)
	}
}
