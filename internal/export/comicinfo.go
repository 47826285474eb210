/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"encoding/xml"
	"fmt"
)

// comicInfoFormat is the fixed <Format> tag written for zip comics.
const comicInfoFormat = "CBZ"

// comicInfo is the ComicRack manifest stored as ComicInfo.xml.
type comicInfo struct {
	XMLName   xml.Name        `xml:"ComicInfo"`
	XSI       string          `xml:"xmlns:xsi,attr"`
	XSD       string          `xml:"xmlns:xsd,attr"`
	Title     string          `xml:"Title"`
	Series    string          `xml:"Series"`
	PageCount int             `xml:"PageCount"`
	Format    string          `xml:"Format"`
	Manga     string          `xml:"Manga"`
	Pages     []comicInfoPage `xml:"Pages>Page"`
}

type comicInfoPage struct {
	Image int    `xml:"Image,attr"`
	Type  string `xml:"Type,attr,omitempty"`
}

// buildComicInfoXML writes the ComicRack manifest for a zip comic.
func buildComicInfoXML(title string, pageCount int) ([]byte, error) {
	info := comicInfo{
		XSI:       "http://www.w3.org/2001/XMLSchema-instance",
		XSD:       "http://www.w3.org/2001/XMLSchema",
		Title:     title,
		Series:    title,
		PageCount: pageCount,
		Format:    comicInfoFormat,
		Manga:     "No",
	}
	for i := 0; i < pageCount; i++ {
		pg := comicInfoPage{Image: i}
		if i == 0 {
			pg.Type = "FrontCover"
		}
		info.Pages = append(info.Pages, pg)
	}
	body, err := xml.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("build xml: %w", err)
	}
	out := append([]byte(xml.Header), body...)
	return append(out, '\n'), nil
}

// pageName is the 1-indexed, zero padded image name used inside archives.
func pageName(i int, ext string) string { return fmt.Sprintf("page_%03d.%s", i+1, ext) }
