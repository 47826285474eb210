/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/webp" // panel images uploaded as webp
)

// ImageLoader resolves a panel image reference into a decoded image.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// maxImageBytes caps a single fetched or inlined image.
const maxImageBytes = 64 << 20

var (
	// ErrImageTooLarge is returned when a source exceeds maxImageBytes.
	ErrImageTooLarge = errors.New("image exceeds size limit")
	// ErrRefNotAllowed is returned by a restricted loader for file paths and
	// hosts outside its allow-list.
	ErrRefNotAllowed = errors.New("image reference not allowed")
)

// HTTPLoader loads http(s) URLs, file:// URLs, plain paths and data: URLs.
// Decoded images are cached by reference for TTL.
type HTTPLoader struct {
	client   *http.Client
	timeout  time.Duration
	cache    *cache.Cache
	restrict bool
	hosts    []string
}

// LoaderOptions configures NewHTTPLoader.
type LoaderOptions struct {
	Timeout  time.Duration // per request; default 10s
	CacheTTL time.Duration // default 5m, negative disables caching
	Client   *http.Client

	// Restrict limits references to data: URLs and http(s) URLs on
	// AllowedHosts, redirects included. File paths are refused.
	Restrict bool
	// AllowedHosts holds host names, or "*.example.com" for any subdomain.
	AllowedHosts []string
}

func NewHTTPLoader(opts LoaderOptions) *HTTPLoader {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	l := &HTTPLoader{client: opts.Client, timeout: opts.Timeout, restrict: opts.Restrict}
	for _, h := range opts.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			l.hosts = append(l.hosts, h)
		}
	}
	if l.restrict {
		c := *opts.Client
		next := c.CheckRedirect
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if !l.hostAllowed(req.URL) {
				return fmt.Errorf("redirect to %s: %w", req.URL.Host, ErrRefNotAllowed)
			}
			if next != nil {
				return next(req, via)
			}
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		}
		l.client = &c
	}
	switch {
	case opts.CacheTTL == 0:
		l.cache = cache.New(5*time.Minute, 10*time.Minute)
	case opts.CacheTTL > 0:
		l.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return l
}

func (l *HTTPLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("empty image reference")
	}
	if err := l.allow(ref); err != nil {
		return nil, err
	}
	if l.cache != nil {
		if v, ok := l.cache.Get(ref); ok {
			return v.(image.Image), nil
		}
	}
	data, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", shortRef(ref), err)
	}
	if l.cache != nil {
		l.cache.SetDefault(ref, img)
	}
	return img, nil
}

// allow rejects references a restricted loader must not touch.
func (l *HTTPLoader) allow(ref string) error {
	if !l.restrict || strings.HasPrefix(ref, "data:") {
		return nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err == nil && l.hostAllowed(u) {
			return nil
		}
		if err == nil {
			return fmt.Errorf("host %s: %w", u.Hostname(), ErrRefNotAllowed)
		}
	}
	return fmt.Errorf("%s: %w", shortRef(ref), ErrRefNotAllowed)
}

func (l *HTTPLoader) hostAllowed(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range l.hosts {
		if h == host || (strings.HasPrefix(h, "*.") && strings.HasSuffix(host, h[1:])) {
			return true
		}
	}
	return false
}

func (l *HTTPLoader) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.get(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", ref, err)
		}
		return readFile(u.Path)
	default:
		return readFile(ref)
	}
}

func (l *HTTPLoader) get(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}
	return readLimited(resp.Body)
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(b) > maxImageBytes {
		return nil, ErrImageTooLarge
	}
	return b, nil
}

// decodeDataURL handles data:[<mime>][;base64],<payload>.
func decodeDataURL(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, errors.New("malformed data url")
	}
	meta, payload := ref[len("data:"):comma], ref[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data url: %w", err)
		}
		return b, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data url: %w", err)
	}
	return []byte(s), nil
}

// shortRef keeps data URLs out of error messages and logs.
func shortRef(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		if i := strings.IndexByte(ref, ','); i > 0 {
			return ref[:i] + ",..."
		}
	}
	return ref
}
