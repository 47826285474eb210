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
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"visory/internal/export"

	"github.com/disintegration/imaging"
)

func solid(w, h int, c color.NRGBA) image.Image { return imaging.New(w, h, c) }

func near(a, b uint8) bool { return int(a)-int(b) < 12 && int(b)-int(a) < 12 }

func makePDF(t *testing.T, pages ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	pw := export.NewFPDFWriter(&buf, "Reader (test)")
	for i, p := range pages {
		mt := "image/jpeg"
		if bytes.HasPrefix(p, []byte("\x89PNG")) {
			mt = "image/png"
		}
		if err := pw.AddImagePage(p, mt, 40, 30); err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
	}
	if err := pw.Close(); err != nil {
		t.Fatalf("close pdf: %v", err)
	}
	return buf.Bytes()
}

func encode(t *testing.T, c export.ImageCodec, img image.Image) []byte {
	t.Helper()
	b, err := c.Encode(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func makeZip(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	png := encode(t, export.PNGCodec{}, solid(2, 2, color.NRGBA{0, 0, 255, 255}))
	for _, n := range names {
		if strings.HasSuffix(n, "/") {
			if _, err := zw.Create(n); err != nil {
				t.Fatalf("dir: %v", err)
			}
			continue
		}
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
		if _, err := w.Write(png); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDetectType(t *testing.T) {
	cases := []struct {
		url, ct string
		want    FileType
		err     bool
	}{
		{"https://cdn.test/book.PDF?sig=1", "", TypePDF, false},
		{"/tmp/issue.cbz", "", TypeCBZ, false},
		{"file:///tmp/issue.cbr", "", TypeCBZ, false},
		{"https://cdn.test/download?id=3", "application/pdf; charset=binary", TypePDF, false},
		{"https://cdn.test/download?id=3", "application/vnd.comicbook+zip", TypeCBZ, false},
		{"https://cdn.test/cover.png", "image/png", "", true},
	}
	for _, c := range cases {
		got, err := DetectType(c.url, c.ct)
		if c.err {
			if !errors.Is(err, ErrUnknownType) {
				t.Fatalf("%s: expected ErrUnknownType, got %v", c.url, err)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Fatalf("%s: got %q, %v; want %q", c.url, got, err, c.want)
		}
	}
	if ft, err := Sniff([]byte("%PDF-1.4\n")); err != nil || ft != TypePDF {
		t.Fatalf("sniff pdf: %q %v", ft, err)
	}
}

func TestOpenCBZNaturalOrderAndFilter(t *testing.T) {
	data := makeZip(t, "page_10.png", "page_2.png", "chapter/", "page_1.PNG", "__MACOSX/page_1.png", "notes.txt", "._page_3.png")
	var last int
	pages, err := OpenCBZ(context.Background(), data, func(p int) { last = p })
	if err != nil {
		t.Fatalf("OpenCBZ: %v", err)
	}
	var names []string
	for _, p := range pages {
		names = append(names, p.Name)
	}
	if got := strings.Join(names, ","); got != "page_1.PNG,page_2.png,page_10.png" {
		t.Fatalf("order = %s", got)
	}
	if last != 100 {
		t.Fatalf("final progress = %d", last)
	}
	img, err := pages[0].Decode()
	if err != nil || img.Bounds().Dx() != 2 {
		t.Fatalf("decode page: %v", err)
	}
	if _, err := OpenCBZ(context.Background(), []byte("not a zip"), nil); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestOpenPDFFromExporterJPEG(t *testing.T) {
	red := encode(t, export.JPEGCodec{Quality: 95}, solid(40, 30, color.NRGBA{220, 20, 20, 255}))
	green := encode(t, export.JPEGCodec{Quality: 95}, solid(40, 30, color.NRGBA{20, 200, 20, 255}))
	doc, err := OpenPDF(makePDF(t, red, green))
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	if doc.NumPages() != 2 {
		t.Fatalf("pages = %d", doc.NumPages())
	}
	if w, h, err := doc.PageSize(2); err != nil || w != 40 || h != 30 {
		t.Fatalf("page size = %vx%v %v", w, h, err)
	}
	img, err := doc.RenderPage(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 15 {
		t.Fatalf("scaled size = %v", b)
	}
	c := color.NRGBAModel.Convert(img.At(10, 7)).(color.NRGBA)
	if !near(c.R, 20) || !near(c.G, 200) {
		t.Fatalf("page 2 colour = %v", c)
	}
	if _, err := doc.RenderPage(context.Background(), 3, 20); !errors.Is(err, ErrPageRange) {
		t.Fatalf("expected ErrPageRange, got %v", err)
	}
}

func TestOpenPDFFlatePredictorImage(t *testing.T) {
	src := imaging.New(4, 4, color.NRGBA{255, 255, 255, 255})
	src.SetNRGBA(1, 2, color.NRGBA{10, 20, 30, 255})
	src.SetNRGBA(3, 3, color.NRGBA{200, 100, 50, 255})
	doc, err := OpenPDF(makePDF(t, encode(t, export.PNGCodec{}, src)))
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	img, err := doc.RenderPage(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	for _, p := range []image.Point{{1, 2}, {3, 3}, {0, 0}} {
		want := src.NRGBAAt(p.X, p.Y)
		if got := color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA); got != want {
			t.Fatalf("pixel %v = %v, want %v", p, got, want)
		}
	}
}

func handPDF(objs ...string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Root 1 0 R /Size %d >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestOpenPDFNestedTreeWithoutImages(t *testing.T) {
	content := "BT /F1 12 Tf (Hello \\(world\\)) Tj ET"
	data := handPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 100 200] /Resources << >> >>",
		"<< /Type /Pages /Parent 2 0 R /Kids [4 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 3 0 R /Contents 5 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	)
	doc, err := OpenPDF(data)
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	if doc.NumPages() != 1 {
		t.Fatalf("pages = %d", doc.NumPages())
	}
	if w, h, _ := doc.PageSize(1); w != 100 || h != 200 {
		t.Fatalf("inherited media box = %vx%v", w, h)
	}
	if _, err := doc.RenderPage(context.Background(), 1, 50); !errors.Is(err, ErrNoPageImage) {
		t.Fatalf("expected ErrNoPageImage, got %v", err)
	}
	if _, err := OpenPDF([]byte("PK\x03\x04")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestOpenPDFRejectsDeepNesting(t *testing.T) {
	body := "%PDF-1.4\n1 0 obj\n" + strings.Repeat("[", 1<<20) + "\nendobj\n%%EOF\n"
	if _, err := OpenPDF([]byte(body)); !errors.Is(err, ErrMalformedPDF) {
		t.Fatalf("expected ErrMalformedPDF, got %v", err)
	}
	dicts := "%PDF-1.4\n" + strings.Repeat("<< /A ", maxNesting+1)
	if err := checkNesting([]byte(dicts), maxNesting); !errors.Is(err, ErrMalformedPDF) {
		t.Fatalf("deep dictionaries accepted: %v", err)
	}
}

func TestCheckNestingSkipsStringsAndStreams(t *testing.T) {
	deep := strings.Repeat("[", 2*maxNesting)
	data := "%PDF-1.4\n% " + deep + "\n1 0 obj\n<< /T (" + deep + ") /Length 3 >>\nstream\n" + deep + "\nendstream\nendobj\n[ [ ] ]\n"
	if err := checkNesting([]byte(data), maxNesting); err != nil {
		t.Fatalf("brackets in comments, strings or streams must not count: %v", err)
	}
}

func TestOpenCBZRejectsOversizedEntry(t *testing.T) {
	data := makeZip(t, "1.png")
	old := maxFileBytes
	maxFileBytes = 16
	t.Cleanup(func() { maxFileBytes = old })
	if _, err := OpenCBZ(context.Background(), data, nil); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

type stubSource struct {
	files   map[string][]byte
	gate    map[string]chan struct{}
	started chan string
}

func (s *stubSource) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if s.started != nil {
		s.started <- ref
	}
	if g, ok := s.gate[ref]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	b, ok := s.files[ref]
	if !ok {
		return nil, "", fmt.Errorf("fetch %s: status 404", ref)
	}
	return b, "", nil
}

func TestReaderLoadStates(t *testing.T) {
	src := &stubSource{files: map[string][]byte{
		"book.cbz": makeZip(t, "1.png", "2.png"),
		"download": makeZip(t, "only.png"),
	}}
	r := New(src)
	if err := r.Load(context.Background(), "book.cbz"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := r.Snapshot()
	if s.Status != StatusReady || s.Type != TypeCBZ || s.Pages != 2 || s.Progress != 100 {
		t.Fatalf("snapshot = %+v", s)
	}
	if p, err := r.Page(1); err != nil || p.Name != "2.png" {
		t.Fatalf("Page(1) = %v %v", p.Name, err)
	}

	if err := r.Load(context.Background(), "download"); err != nil {
		t.Fatalf("sniffed load: %v", err)
	}
	if s := r.Snapshot(); s.Type != TypeCBZ || s.Pages != 1 {
		t.Fatalf("sniffed snapshot = %+v", s)
	}

	if err := r.Load(context.Background(), "missing.pdf"); err == nil {
		t.Fatalf("expected fetch error")
	}
	s = r.Snapshot()
	if s.Status != StatusError || s.Err == nil {
		t.Fatalf("snapshot after failure = %+v", s)
	}
	if _, err := r.Page(0); !errors.Is(err, ErrPageRange) {
		t.Fatalf("pages must be released after failure, got %v", err)
	}

	r.Close()
	if err := r.Load(context.Background(), "book.cbz"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestReaderDropsSupersededLoad(t *testing.T) {
	red := encode(t, export.JPEGCodec{}, solid(40, 30, color.NRGBA{255, 0, 0, 255}))
	src := &stubSource{
		files: map[string][]byte{
			"slow.cbz": makeZip(t, "a.png", "b.png", "c.png"),
			"fast.pdf": makePDF(t, red),
		},
		gate:    map[string]chan struct{}{"slow.cbz": make(chan struct{})},
		started: make(chan string, 2),
	}
	r := New(src)
	done := make(chan error, 1)
	go func() { done <- r.Load(context.Background(), "slow.cbz") }()
	if got := <-src.started; got != "slow.cbz" {
		t.Fatalf("unexpected first fetch %s", got)
	}
	if err := r.Load(context.Background(), "fast.pdf"); err != nil {
		t.Fatalf("Load fast: %v", err)
	}
	<-src.started
	close(src.gate["slow.cbz"])
	select {
	case err := <-done:
		if !errors.Is(err, ErrStale) {
			t.Fatalf("slow load returned %v, want ErrStale", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("slow load did not finish")
	}
	s := r.Snapshot()
	if s.Status != StatusReady || s.Type != TypePDF || s.Pages != 1 || r.Document() == nil {
		t.Fatalf("stale result leaked into state: %+v", s)
	}
}

func TestPageRendererCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	pr := &PageRenderer{render: func(ctx context.Context, page, width int) (image.Image, error) {
		if page == 1 {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return solid(width, width, color.NRGBA{A: 255}), nil
	}}
	first := make(chan error, 1)
	go func() {
		_, err := pr.Render(context.Background(), 1, 10)
		first <- err
	}()
	<-started
	img, err := pr.Render(context.Background(), 2, 10)
	if err != nil || img.Bounds().Dx() != 10 {
		t.Fatalf("second render: %v", err)
	}
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first render returned %v, want ErrSuperseded", err)
	}
}

func TestRenderAllKeepsOrder(t *testing.T) {
	var pages [][]byte
	shades := []uint8{30, 120, 220}
	for _, s := range shades {
		pages = append(pages, encode(t, export.JPEGCodec{Quality: 95}, solid(40, 30, color.NRGBA{s, s, s, 255})))
	}
	doc, err := OpenPDF(makePDF(t, pages...))
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	imgs, err := RenderAll(context.Background(), doc, 8, 2)
	if err != nil {
		t.Fatalf("RenderAll: %v", err)
	}
	for i, img := range imgs {
		c := color.NRGBAModel.Convert(img.At(4, 3)).(color.NRGBA)
		if !near(c.R, shades[i]) {
			t.Fatalf("page %d shade = %d, want %d", i+1, c.R, shades[i])
		}
	}
}
