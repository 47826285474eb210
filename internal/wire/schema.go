/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// pageSchema describes PagePayload. Geometry is not range checked: the model
// allows elements that hang off the canvas.
const pageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["elements"],
  "properties": {
    "elements": {"type": "array", "items": {"$ref": "#/definitions/element"}}
  },
  "definitions": {
    "element": {
      "type": "object",
      "required": ["id", "type", "position", "size", "layer_index"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "type": {"enum": ["panel", "speech_bubble"]},
        "position": {
          "type": "object",
          "required": ["x", "y"],
          "properties": {"x": {"type": "integer"}, "y": {"type": "integer"}}
        },
        "size": {
          "type": "object",
          "required": ["width", "height"],
          "properties": {
            "width": {"type": "integer", "minimum": 0},
            "height": {"type": "integer", "minimum": 0}
          }
        },
        "layer_index": {"type": "integer", "minimum": 0},
        "image": {"type": "string"},
        "rotation": {"type": "number"},
        "text": {"type": "string"},
        "bubble_subtype": {"enum": ["speech", "thought", "narration", "shout", "whisper"]},
        "show_tail": {"type": "boolean"},
        "style": {
          "type": "object",
          "properties": {
            "font_size": {"type": "number", "minimum": 0},
            "color": {"type": "string"},
            "font_family": {"type": "string"},
            "font_weight": {"type": "string"},
            "font_style": {"type": "string"},
            "background_color": {"type": "string"},
            "border_color": {"type": "string"},
            "border_width": {"type": "number", "minimum": 0},
            "text_align": {"type": "string"},
            "border_radius": {"type": "number"}
          }
        }
      }
    }
  }
}`

// ErrInvalidPayload wraps every schema violation reported by Validate.
var ErrInvalidPayload = errors.New("invalid page payload")

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(pageSchema))
	})
	return schema, schemaErr
}

// Validate checks a raw page document against the element schema.
func Validate(doc []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile page schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(msgs, "; "))
}

// Decode validates doc and unmarshals it.
func Decode(doc []byte) (PagePayload, error) {
	if err := Validate(doc); err != nil {
		return PagePayload{}, err
	}
	var p PagePayload
	if err := json.Unmarshal(doc, &p); err != nil {
		return PagePayload{}, fmt.Errorf("decode page payload: %w", err)
	}
	return p, nil
}
