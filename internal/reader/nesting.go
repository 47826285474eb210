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
	"fmt"
)

// maxNesting bounds array and dictionary nesting in a PDF body.
const maxNesting = 256

// checkNesting scans the object syntax of data and rejects documents whose
// arrays or dictionaries nest deeper than limit. Strings, comments and stream
// payloads are skipped.
func checkNesting(data []byte, limit int) error {
	depth := 0
	open := func(at int) error {
		depth++
		if depth > limit {
			return fmt.Errorf("%w: nesting deeper than %d at offset %d", ErrMalformedPDF, limit, at)
		}
		return nil
	}
	for i := 0; i < len(data); i++ {
		switch c := data[i]; c {
		case '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case '(':
			i = skipLiteral(data, i)
		case '[':
			if err := open(i); err != nil {
				return err
			}
		case '<':
			if i+1 < len(data) && data[i+1] == '<' {
				if err := open(i); err != nil {
					return err
				}
				i++
				continue
			}
			for i < len(data) && data[i] != '>' {
				i++
			}
		case ']':
			if depth > 0 {
				depth--
			}
		case '>':
			if i+1 < len(data) && data[i+1] == '>' {
				if depth > 0 {
					depth--
				}
				i++
			}
		case 's':
			if bytes.HasPrefix(data[i:], []byte("stream")) && (i+6 == len(data) || data[i+6] == '\r' || data[i+6] == '\n') {
				end := bytes.Index(data[i+6:], []byte("endstream"))
				if end < 0 {
					return nil
				}
				i += 6 + end + len("endstream") - 1
			}
		}
	}
	return nil
}

// skipLiteral returns the index of the parenthesis closing the literal string
// that opens at data[i].
func skipLiteral(data []byte, i int) int {
	level := 0
	for ; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			level++
		case ')':
			level--
			if level == 0 {
				return i
			}
		}
	}
	return i
}
