/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package reader opens exported comics for viewing: zip comics become an
// ordered list of page images and image-only PDFs are rendered page by page.
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
)

// FileType is the container kind of a comic file.
type FileType string

const (
	TypePDF FileType = "pdf"
	TypeCBZ FileType = "cbz"
)

// ErrUnknownType is returned when neither extension nor content type match.
var ErrUnknownType = errors.New("unknown comic file type")

// DetectType picks the file type from the URL extension, then the content type.
func DetectType(rawURL, contentType string) (FileType, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return TypePDF, nil
	case ".cbz", ".cbr", ".zip":
		return TypeCBZ, nil
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "application/pdf":
			return TypePDF, nil
		case "application/zip", "application/x-zip-compressed", "application/x-cbz",
			"application/vnd.comicbook+zip", "application/x-cbr", "application/vnd.comicbook-rar":
			return TypeCBZ, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownType, rawURL)
}

// Sniff detects the type from leading magic bytes.
func Sniff(data []byte) (FileType, error) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return TypePDF, nil
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return TypeCBZ, nil
	}
	return "", ErrUnknownType
}

// Status is the tri-state load state of a Reader.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)
