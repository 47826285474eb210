/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"io"
	"time"
)

// ArchiveWriter builds a zip-style container.
type ArchiveWriter interface {
	Add(name string, data []byte) error
	// AddStored writes an uncompressed entry.
	AddStored(name string, data []byte) error
	Close() error
}

// ZipArchive is an ArchiveWriter over archive/zip.
type ZipArchive struct {
	zw  *zip.Writer
	now func() time.Time
}

func NewZipArchive(w io.Writer) *ZipArchive {
	return &ZipArchive{zw: zip.NewWriter(w), now: time.Now}
}

func (z *ZipArchive) Add(name string, data []byte) error { return addZipFile(z.zw, name, data, z.now()) }

func (z *ZipArchive) AddStored(name string, data []byte) error {
	return addStoredZipFile(z.zw, name, data, z.now())
}

func (z *ZipArchive) Close() error { return z.zw.Close() }

func addZipFile(zw *zip.Writer, name string, data []byte, mod time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: mod})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// addStoredZipFile writes an entry with STORE method (no compression), required for EPUB mimetype.
func addStoredZipFile(zw *zip.Writer, name string, data []byte, mod time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: mod})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
