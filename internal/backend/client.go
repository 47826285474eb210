/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend is the HTTP client for the remote comic API that owns
// projects and pages. Pages travel as element arrays (see internal/wire).
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"visory/internal/domain"
	applog "visory/internal/log"
	"visory/internal/wire"
)

// Client talks to the comic API. The zero Timeout means 15s.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
	log     *slog.Logger
}

// Options tune the transport.
type Options struct {
	Timeout     time.Duration
	TLSInsecure bool
}

// NewClient creates a backend client. baseURL may include a trailing slash.
func NewClient(baseURL, token string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLSInsecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-hosted dev backends
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: opts.Timeout, Transport: tr},
		log:     applog.WithComponent("backend"),
	}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("request failed", slog.String("method", method), slog.String("path", u.Path), slog.Any("err", err))
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("request", slog.String("method", method), slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: u.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, u.Path, err)
	}
	return nil
}

// Page is the API representation of a comic page.
type Page struct {
	ID         int64          `json:"id"`
	PageNumber int            `json:"page_number"`
	Elements   []wire.Element `json:"elements"`
	PreviewURL *string        `json:"preview_url"`
}

// ToDomain converts the element array back into the editable page model.
func (p Page) ToDomain() domain.ComicPage {
	return wire.DeserializePage(p.Elements, p.ID, p.PageNumber, p.PreviewURL)
}

// ListPages returns the pages of a project ordered by page number.
func (c *Client) ListPages(ctx context.Context, projectID int64) ([]domain.ComicPage, error) {
	var list []Page
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/comic/projects/%d/pages", projectID), nil, &list); err != nil {
		return nil, err
	}
	out := make([]domain.ComicPage, 0, len(list))
	for _, p := range list {
		out = append(out, p.ToDomain())
	}
	return out, nil
}

type createPageRequest struct {
	PageNumber int            `json:"page_number"`
	Elements   []wire.Element `json:"elements"`
}

// CreatePage creates a page server-side and returns it with its assigned id.
func (c *Client) CreatePage(ctx context.Context, projectID int64, page domain.ComicPage) (domain.ComicPage, error) {
	req := createPageRequest{PageNumber: page.PageNumber, Elements: wire.SerializePage(page)}
	var created Page
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/comic/projects/%d/pages", projectID), req, &created); err != nil {
		return domain.ComicPage{}, err
	}
	out := page.Clone()
	out.ID = created.ID
	if created.PageNumber > 0 {
		out.PageNumber = created.PageNumber
	}
	out.PreviewURL = created.PreviewURL
	return out, nil
}

// SavePageElements replaces the stored elements of a page.
func (c *Client) SavePageElements(ctx context.Context, pageID int64, payload wire.PagePayload) error {
	if payload.Elements == nil {
		payload.Elements = []wire.Element{}
	}
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/comic/pages/%d", pageID), payload, nil)
}

// SavePage lets the client act as the editor's persister.
func (c *Client) SavePage(ctx context.Context, pageID int64, payload wire.PagePayload) error {
	return c.SavePageElements(ctx, pageID, payload)
}

// DeletePage removes a page. The server renumbers the rest.
func (c *Client) DeletePage(ctx context.Context, pageID int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/comic/pages/%d", pageID), nil, nil)
}

type reorderRequest struct {
	PageIDs []int64 `json:"page_ids"`
}

// ReorderPages sends the new page order as a list of ids.
func (c *Client) ReorderPages(ctx context.Context, projectID int64, pageIDs []int64) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/comic/projects/%d/pages/reorder", projectID), reorderRequest{PageIDs: pageIDs}, nil)
}

// GeneratePreview asks the server to render the page and returns the preview URL.
func (c *Client) GeneratePreview(ctx context.Context, pageID int64) (string, error) {
	var resp struct {
		PreviewURL string `json:"preview_url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/comic/pages/%d/preview", pageID), nil, &resp); err != nil {
		return "", err
	}
	return resp.PreviewURL, nil
}
