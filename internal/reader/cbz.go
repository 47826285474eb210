/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package reader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"path"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/facette/natsort"
	_ "golang.org/x/image/webp"
)

// Page is one decoded-on-demand page image from a zip comic.
type Page struct {
	Name      string
	MediaType string
	Data      []byte
}

// Decode decodes the page image, honouring EXIF orientation.
func (p Page) Decode() (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(p.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Name, err)
	}
	return img, nil
}

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// OpenCBZ unzips data and returns its images in natural filename order, so
// page_2 sorts before page_10. progress receives the percentage of entries
// processed. Directories, macOS resource forks and non-image entries are
// skipped.
func OpenCBZ(ctx context.Context, data []byte, progress func(percent int)) ([]Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	if progress == nil {
		progress = func(int) {}
	}
	pages := make([]Page, 0, len(zr.File))
	total := len(zr.File)
	for i, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mt, ok := pageMediaType(f)
		if ok {
			b, err := readZipEntry(f)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
			pages = append(pages, Page{Name: f.Name, MediaType: mt, Data: b})
		}
		progress((i + 1) * 100 / total)
	}
	sort.SliceStable(pages, func(i, j int) bool { return natsort.Compare(pages[i].Name, pages[j].Name) })
	return pages, nil
}

func pageMediaType(f *zip.File) (string, bool) {
	if f.FileInfo().IsDir() {
		return "", false
	}
	name := f.Name
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return "", false
	}
	mt, ok := imageTypes[strings.ToLower(path.Ext(name))]
	return mt, ok
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return readLimited(rc)
}
