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
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

const epubContainerXML = "" +
	"<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
	"<container version=\"1.0\" xmlns=\"urn:oasis:names:tc:opendocument:xmlns:container\">\n" +
	"  <rootfiles>\n" +
	"    <rootfile full-path=\"OEBPS/content.opf\" media-type=\"application/oebps-package+xml\"/>\n" +
	"  </rootfiles>\n" +
	"</container>\n"

const epubCSS = "html, body { margin:0; padding:0; }\n" +
	".page { text-align:center; }\n" +
	"img { max-width:100%; max-height:100%; }\n"

// epubBook collects what the OPF and NCX need while pages are written.
type epubBook struct {
	title    string
	language string
	uid      string // urn:uuid:..., shared by OPF and NCX
	modified time.Time
	images   []string // file names under OEBPS/Images
	media    string   // image media type
}

// writeEPUBHead writes the entries that precede the pages. mimetype must be
// the first entry and stored uncompressed.
func writeEPUBHead(aw ArchiveWriter) error {
	if err := aw.AddStored("mimetype", []byte("application/epub+zip")); err != nil {
		return fmt.Errorf("write mimetype: %w", err)
	}
	if err := aw.Add("META-INF/container.xml", []byte(epubContainerXML)); err != nil {
		return fmt.Errorf("write container.xml: %w", err)
	}
	if err := aw.Add("OEBPS/Styles/style.css", []byte(epubCSS)); err != nil {
		return fmt.Errorf("write css: %w", err)
	}
	return nil
}

// writeEPUBPage adds one image and the XHTML page that shows it.
func writeEPUBPage(aw ArchiveWriter, b *epubBook, i int, data []byte, ext string) error {
	img := pageName(i, ext)
	if err := aw.Add("OEBPS/Images/"+img, data); err != nil {
		return fmt.Errorf("zip add image: %w", err)
	}
	xhtml := fmt.Sprintf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+
		"<!DOCTYPE html PUBLIC \"-//W3C//DTD XHTML 1.1//EN\" \"http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd\">\n"+
		"<html xmlns=\"http://www.w3.org/1999/xhtml\">\n<head>\n"+
		"<title>Page %d</title>\n"+
		"<link rel=\"stylesheet\" type=\"text/css\" href=\"../Styles/style.css\"/>\n"+
		"</head>\n<body>\n<div class=\"page\"><img src=\"../Images/%s\" alt=\"Page %d\"/></div>\n"+
		"</body>\n</html>\n", i+1, img, i+1)
	if err := aw.Add(fmt.Sprintf("OEBPS/Text/page_%03d.xhtml", i+1), []byte(xhtml)); err != nil {
		return fmt.Errorf("write page xhtml: %w", err)
	}
	b.images = append(b.images, img)
	return nil
}

// writeEPUBTail writes the package document and the NCX table of contents.
func writeEPUBTail(aw ArchiveWriter, b *epubBook) error {
	opf, err := b.opf()
	if err != nil {
		return err
	}
	if err := aw.Add("OEBPS/content.opf", opf); err != nil {
		return fmt.Errorf("write content.opf: %w", err)
	}
	ncx, err := b.ncx()
	if err != nil {
		return err
	}
	if err := aw.Add("OEBPS/toc.ncx", ncx); err != nil {
		return fmt.Errorf("write toc.ncx: %w", err)
	}
	return nil
}

func (b *epubBook) opf() ([]byte, error) {
	buf := &bytes.Buffer{}
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(buf, format, args...)
	}
	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<package xmlns=\"http://www.idpf.org/2007/opf\" unique-identifier=\"BookId\" version=\"2.0\">\n")
	wf("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\" xmlns:opf=\"http://www.idpf.org/2007/opf\">\n")
	wf("    <dc:title>%s</dc:title>\n", xmlText(b.title))
	wf("    <dc:language>%s</dc:language>\n", xmlText(b.language))
	wf("    <dc:identifier id=\"BookId\" opf:scheme=\"UUID\">%s</dc:identifier>\n", b.uid)
	wf("    <dc:creator opf:role=\"aut\">visory</dc:creator>\n")
	wf("    <dc:date>%s</dc:date>\n", b.modified.UTC().Format("2006-01-02"))
	if len(b.images) > 0 {
		wf("    <meta name=\"cover\" content=\"img_001\"/>\n")
	}
	wf("  </metadata>\n")
	wf("  <manifest>\n")
	wf("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	wf("    <item id=\"style\" href=\"Styles/style.css\" media-type=\"text/css\"/>\n")
	for i, img := range b.images {
		wf("    <item id=\"page_%03d\" href=\"Text/page_%03d.xhtml\" media-type=\"application/xhtml+xml\"/>\n", i+1, i+1)
		wf("    <item id=\"img_%03d\" href=\"Images/%s\" media-type=\"%s\"/>\n", i+1, img, b.media)
	}
	wf("  </manifest>\n")
	wf("  <spine toc=\"ncx\">\n")
	for i := range b.images {
		wf("    <itemref idref=\"page_%03d\"/>\n", i+1)
	}
	wf("  </spine>\n")
	wf("</package>\n")
	if werr != nil {
		return nil, fmt.Errorf("build opf: %w", werr)
	}
	return buf.Bytes(), nil
}

func (b *epubBook) ncx() ([]byte, error) {
	buf := &bytes.Buffer{}
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(buf, format, args...)
	}
	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<!DOCTYPE ncx PUBLIC \"-//NISO//DTD ncx 2005-1//EN\" \"http://www.daisy.org/z3986/2005/ncx-2005-1.dtd\">\n")
	wf("<ncx xmlns=\"http://www.daisy.org/z3986/2005/ncx/\" version=\"2005-1\">\n")
	wf("  <head>\n")
	wf("    <meta name=\"dtb:uid\" content=\"%s\"/>\n", b.uid)
	wf("    <meta name=\"dtb:depth\" content=\"1\"/>\n")
	wf("    <meta name=\"dtb:totalPageCount\" content=\"0\"/>\n")
	wf("    <meta name=\"dtb:maxPageNumber\" content=\"0\"/>\n")
	wf("  </head>\n")
	wf("  <docTitle><text>%s</text></docTitle>\n", xmlText(b.title))
	wf("  <navMap>\n")
	for i := range b.images {
		wf("    <navPoint id=\"navPoint-%d\" playOrder=\"%d\">\n", i+1, i+1)
		wf("      <navLabel><text>Page %d</text></navLabel>\n", i+1)
		wf("      <content src=\"Text/page_%03d.xhtml\"/>\n", i+1)
		wf("    </navPoint>\n")
	}
	wf("  </navMap>\n")
	wf("</ncx>\n")
	if werr != nil {
		return nil, fmt.Errorf("build ncx: %w", werr)
	}
	return buf.Bytes(), nil
}

// xmlText escapes s for use as element text.
func xmlText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
