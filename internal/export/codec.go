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
	"image"

	"github.com/disintegration/imaging"
)

// ImageCodec encodes a page bitmap for embedding in an archive.
type ImageCodec interface {
	Encode(img image.Image) ([]byte, error)
	Ext() string       // without dot
	MediaType() string // MIME type
}

// DefaultJPEGQuality matches the web preset.
const DefaultJPEGQuality = 85

// JPEGCodec encodes baseline JPEG. Quality outside 1..100 uses the default.
type JPEGCodec struct{ Quality int }

func (c JPEGCodec) Encode(img image.Image) ([]byte, error) {
	q := c.Quality
	if q < 1 || q > 100 {
		q = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (JPEGCodec) Ext() string       { return "jpg" }
func (JPEGCodec) MediaType() string { return "image/jpeg" }

// PNGCodec encodes lossless PNG.
type PNGCodec struct{}

func (PNGCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (PNGCodec) Ext() string       { return "png" }
func (PNGCodec) MediaType() string { return "image/png" }
