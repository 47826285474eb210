/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// maxFileBytes caps a fetched comic and every zip entry inside it.
var maxFileBytes = 512 << 20

var ErrTooLarge = errors.New("comic file exceeds size limit")

// Source fetches the raw bytes behind a URL.
type Source interface {
	Fetch(ctx context.Context, ref string) (data []byte, contentType string, err error)
}

// DefaultSource reads http(s) URLs over the network and everything else from disk.
type DefaultSource struct {
	Client  *http.Client
	Timeout time.Duration // default 60s
}

func (s DefaultSource) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return s.get(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", ref, err)
		}
		return readFile(u.Path)
	default:
		return readFile(ref)
	}
}

func (s DefaultSource) get(ctx context.Context, ref string) ([]byte, string, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}
	b, err := readLimited(resp.Body)
	return b, resp.Header.Get("Content-Type"), err
}

func readFile(p string) ([]byte, string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, "", fmt.Errorf("open comic: %w", err)
	}
	defer func() { _ = f.Close() }()
	b, err := readLimited(f)
	return b, "", err
}

func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, int64(maxFileBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("read comic: %w", err)
	}
	if len(b) > maxFileBytes {
		return nil, ErrTooLarge
	}
	return b, nil
}
