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
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"visory/internal/domain"
	applog "visory/internal/log"
	"visory/internal/raster"
)

// Progress receives the completed percentage, 0..100.
type Progress func(percent int)

// Request names the output.
type Request struct {
	Name     string // project name, used for titles
	Format   Format
	Width    int    // PDF page width; 0 uses each image's width
	Height   int    // PDF page height; 0 uses each image's height
	Language string // EPUB dc:language, default "en"
}

// Exporter assembles archives from page bitmaps. Zero values fall back to
// JPEG q85, archive/zip and gofpdf.
type Exporter struct {
	Codec      ImageCodec
	NewArchive func(io.Writer) ArchiveWriter
	NewPDF     func(w io.Writer, title string) PdfWriter
	NewUUID    func() string
	Now        func() time.Time
	Logger     *slog.Logger
}

func (e *Exporter) codec() ImageCodec {
	if e.Codec != nil {
		return e.Codec
	}
	return JPEGCodec{Quality: DefaultJPEGQuality}
}

// cbzCodec is always JPEG; comic readers expect jpg pages in a CBZ. A
// configured JPEG codec keeps its quality.
func (e *Exporter) cbzCodec() ImageCodec {
	if c, ok := e.Codec.(JPEGCodec); ok {
		return c
	}
	return JPEGCodec{Quality: DefaultJPEGQuality}
}

func (e *Exporter) archive(w io.Writer) ArchiveWriter {
	if e.NewArchive != nil {
		return e.NewArchive(w)
	}
	return NewZipArchive(w)
}

func (e *Exporter) pdfWriter(w io.Writer, title string) PdfWriter {
	if e.NewPDF != nil {
		return e.NewPDF(w, title)
	}
	return NewFPDFWriter(w, title)
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return applog.WithComponent(applog.ComponentExport)
}

// Export packages pages in order and copies the finished file to w. Nothing
// is written to w unless every page was packaged.
func (e *Exporter) Export(ctx context.Context, pages []image.Image, req Request, w io.Writer, progress Progress) error {
	if _, ok := formatInfo[req.Format]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, req.Format)
	}
	if len(pages) == 0 {
		return ErrNoPages
	}
	if progress == nil {
		progress = func(int) {}
	}
	start := time.Now()
	var buf bytes.Buffer
	var err error
	switch req.Format {
	case FormatCBZ, FormatCBR:
		err = e.writeCBZ(ctx, &buf, pages, req, progress)
	case FormatPDF:
		err = e.writePDF(ctx, &buf, pages, req, progress)
	case FormatEPUB:
		err = e.writeEPUB(ctx, &buf, pages, req, progress)
	}
	if err != nil {
		e.logger().Error("export failed", applog.Format(string(req.Format)), slog.Any("err", err))
		return err
	}
	n, err := io.Copy(w, &buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", req.Format, err)
	}
	e.logger().Info("export finished",
		applog.Format(string(req.Format)),
		slog.Int("pages", len(pages)),
		slog.Int64("bytes", n),
		slog.Duration("took", time.Since(start)))
	return nil
}

// encodeEach encodes pages in order, checking ctx between pages and reporting
// progress after each one has been handed to write.
func (e *Exporter) encodeEach(ctx context.Context, codec ImageCodec, pages []image.Image, progress Progress, write func(i int, img image.Image, data []byte) error) error {
	for i, img := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if img == nil {
			return fmt.Errorf("page %d: no image", i+1)
		}
		data, err := codec.Encode(img)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		if err := write(i, img, data); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		progress((i + 1) * 100 / len(pages))
	}
	return nil
}

func (e *Exporter) writeCBZ(ctx context.Context, w io.Writer, pages []image.Image, req Request, progress Progress) error {
	aw := e.archive(w)
	codec := e.cbzCodec()
	ext := codec.Ext()
	err := e.encodeEach(ctx, codec, pages, progress, func(i int, _ image.Image, data []byte) error {
		return aw.Add(pageName(i, ext), data)
	})
	if err != nil {
		_ = aw.Close()
		return err
	}
	manifest, err := buildComicInfoXML(title(req), len(pages))
	if err != nil {
		_ = aw.Close()
		return fmt.Errorf("build manifest: %w", err)
	}
	if err := aw.Add("ComicInfo.xml", manifest); err != nil {
		_ = aw.Close()
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func (e *Exporter) writePDF(ctx context.Context, w io.Writer, pages []image.Image, req Request, progress Progress) error {
	pw := e.pdfWriter(w, title(req))
	codec := e.codec()
	media := codec.MediaType()
	err := e.encodeEach(ctx, codec, pages, progress, func(_ int, img image.Image, data []byte) error {
		width, height := float64(req.Width), float64(req.Height)
		if width <= 0 || height <= 0 {
			b := img.Bounds()
			width, height = float64(b.Dx()), float64(b.Dy())
		}
		return pw.AddImagePage(data, media, width, height)
	})
	if err != nil {
		return err
	}
	return pw.Close()
}

func (e *Exporter) writeEPUB(ctx context.Context, w io.Writer, pages []image.Image, req Request, progress Progress) error {
	newID := e.NewUUID
	if newID == nil {
		newID = uuid.NewString
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}
	codec := e.codec()
	book := &epubBook{
		title:    title(req),
		language: lang,
		uid:      "urn:uuid:" + newID(),
		modified: now(),
		media:    codec.MediaType(),
	}
	aw := e.archive(w)
	if err := writeEPUBHead(aw); err != nil {
		_ = aw.Close()
		return err
	}
	err := e.encodeEach(ctx, codec, pages, progress, func(i int, _ image.Image, data []byte) error {
		return writeEPUBPage(aw, book, i, data, codec.Ext())
	})
	if err == nil {
		err = writeEPUBTail(aw, book)
	}
	if err != nil {
		_ = aw.Close()
		return err
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func title(req Request) string {
	if req.Name == "" {
		return "Untitled Comic"
	}
	return req.Name
}

// ExportPages rasterizes pages and packages the result. Rendering accounts for
// the first half of the reported progress, packaging for the second. Any page
// that fails to render fails the export.
func (e *Exporter) ExportPages(ctx context.Context, r raster.Renderer, pages []domain.ComicPage, opts raster.Options, batch raster.BatchOptions, req Request, w io.Writer, progress Progress) error {
	if len(pages) == 0 {
		return ErrNoPages
	}
	if progress == nil {
		progress = func(int) {}
	}
	opts, err := opts.Normalize()
	if err != nil {
		return err
	}
	batch.Progress = func(_, _, percent int) { progress(percent / 2) }
	imgs, err := raster.RenderAll(ctx, r, pages, opts, batch)
	if err != nil {
		e.logger().Error("export render failed", applog.Format(string(req.Format)), slog.Any("err", err))
		return fmt.Errorf("render: %w", err)
	}
	if req.Width == 0 && req.Height == 0 {
		req.Width, req.Height = opts.Width, opts.Height
	}
	return e.Export(ctx, imgs, req, w, func(p int) { progress(50 + p/2) })
}
