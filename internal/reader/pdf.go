/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	ErrNotPDF       = errors.New("not a pdf document")
	ErrMalformedPDF = errors.New("malformed pdf")
	ErrPageRange    = errors.New("page out of range")
	ErrNoPageImage  = errors.New("page has no embedded image")
	ErrUnsupported  = errors.New("unsupported pdf image encoding")
)

var disableConfigDir sync.Once

// PDFDocument is an opened PDF whose pages are rendered from their embedded
// images. Vector and text content is not rasterized.
type PDFDocument struct {
	mu   sync.Mutex // pdfcpu caches decoded streams on the context
	ctx  *model.Context
	dims []types.Dim
}

// OpenPDF parses, validates and indexes data. No page image is decoded yet.
func OpenPDF(data []byte) (*PDFDocument, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \r\n\t"), []byte("%PDF-")) {
		return nil, ErrNotPDF
	}
	if err := checkNesting(data, maxNesting); err != nil {
		return nil, err
	}
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTIMAGES
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPDF, err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: page sizes: %v", ErrMalformedPDF, err)
	}
	if len(dims) != ctx.PageCount {
		return nil, fmt.Errorf("%w: %d page sizes for %d pages", ErrMalformedPDF, len(dims), ctx.PageCount)
	}
	return &PDFDocument{ctx: ctx, dims: dims}, nil
}

// NumPages returns the number of pages.
func (d *PDFDocument) NumPages() int { return len(d.dims) }

// PageSize returns the MediaBox width and height in points of page n (1-based).
func (d *PDFDocument) PageSize(n int) (float64, float64, error) {
	if n < 1 || n > len(d.dims) {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrPageRange, n, len(d.dims))
	}
	dim := d.dims[n-1]
	return dim.Width, dim.Height, nil
}

// RenderPage decodes the first image placed on page n (1-based) and scales it
// to width pixels, keeping the aspect ratio. A width of 0 keeps the native size.
func (d *PDFDocument) RenderPage(ctx context.Context, n, width int) (image.Image, error) {
	if n < 1 || n > len(d.dims) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, n, len(d.dims))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	imgs, err := pdfcpu.ExtractPageImages(d.ctx, n, false)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("page %d: %w: %v", n, ErrUnsupported, err)
	}
	if len(imgs) == 0 {
		return nil, fmt.Errorf("page %d: %w", n, ErrNoPageImage)
	}
	objNrs := make([]int, 0, len(imgs))
	for nr := range imgs {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)
	first := imgs[objNrs[0]]

	img, err := imaging.Decode(first)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w: %s image: %v", n, ErrUnsupported, first.FileType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width > 0 && width != img.Bounds().Dx() {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	return img, nil
}
