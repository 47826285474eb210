/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// PdfWriter lays out one full-bleed image per page.
type PdfWriter interface {
	// AddImagePage appends a w x h page showing data. mediaType selects the
	// image decoder (image/jpeg or image/png).
	AddImagePage(data []byte, mediaType string, w, h float64) error
	Close() error
}

// FPDFWriter renders pages with gofpdf; one pixel maps to one point.
type FPDFWriter struct {
	pdf   *gofpdf.Fpdf
	out   io.Writer
	pages int
}

func NewFPDFWriter(out io.Writer, title string) *FPDFWriter {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 1080, Ht: 1440}})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetTitle(title, true)
	pdf.SetCreator("visory", true)
	return &FPDFWriter{pdf: pdf, out: out}
}

func (p *FPDFWriter) AddImagePage(data []byte, mediaType string, w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("pdf page size %vx%v", w, h)
	}
	imgType := "JPG"
	if mediaType == "image/png" {
		imgType = "PNG"
	}
	// gofpdf swaps the size for landscape, so hand it portrait-ordered.
	if w > h {
		p.pdf.AddPageFormat("L", gofpdf.SizeType{Wd: h, Ht: w})
	} else {
		p.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
	}
	p.pages++
	name := fmt.Sprintf("page%d", p.pages)
	opt := gofpdf.ImageOptions{ImageType: imgType}
	p.pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(data))
	p.pdf.ImageOptions(name, 0, 0, w, h, false, opt, 0, "")
	if err := p.pdf.Error(); err != nil {
		return fmt.Errorf("pdf page %d: %w", p.pages, err)
	}
	return nil
}

func (p *FPDFWriter) Close() error {
	if err := p.pdf.Output(p.out); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
