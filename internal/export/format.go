/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export packages rasterized pages into comic archives (CBZ, CBR),
// PDF documents and EPUB 2 books. Encoders and container writers sit behind
// small capability interfaces so each format can be tested without the others.
package export

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Format is an export target.
type Format string

const (
	FormatCBZ  Format = "cbz"
	FormatCBR  Format = "cbr" // same zip packaging as CBZ, not a RAR archive
	FormatPDF  Format = "pdf"
	FormatEPUB Format = "epub"
)

var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrNoPages       = errors.New("no pages to export")
)

var formatInfo = map[Format]struct {
	ext, mediaType string
}{
	FormatCBZ:  {".cbz", "application/vnd.comicbook+zip"},
	FormatCBR:  {".cbr", "application/vnd.comicbook+zip"},
	FormatPDF:  {".pdf", "application/pdf"},
	FormatEPUB: {".epub", "application/epub+zip"},
}

// Formats lists the supported targets in a stable order.
func Formats() []Format {
	out := make([]Format, 0, len(formatInfo))
	for f := range formatInfo {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseFormat accepts a format name with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	if _, ok := formatInfo[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

// FileExt returns the file extension including the dot.
func FileExt(f Format) string { return formatInfo[f].ext }

// MediaType returns the MIME type served for f.
func MediaType(f Format) string { return formatInfo[f].mediaType }

// FileName joins a sanitized project name with the format extension.
func FileName(name string, f Format) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '_'
		}
		return -1
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "comic"
	}
	return clean + FileExt(f)
}
