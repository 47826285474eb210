/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

var (
	Black       = color.NRGBA{0, 0, 0, 255}
	White       = color.NRGBA{255, 255, 255, 255}
	Transparent = color.NRGBA{}
)

var (
	ErrEmptyColor       = errors.New("empty color")
	ErrUnsupportedColor = errors.New("unsupported color syntax")
)

var namedColors = map[string]color.NRGBA{
	"black":       Black,
	"white":       White,
	"transparent": Transparent,
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"lime":        {0, 255, 0, 255},
	"blue":        {0, 0, 255, 255},
	"navy":        {0, 0, 128, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"purple":      {128, 0, 128, 255},
	"pink":        {255, 192, 203, 255},
	"brown":       {165, 42, 42, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"silver":      {192, 192, 192, 255},
	"maroon":      {128, 0, 0, 255},
	"olive":       {128, 128, 0, 255},
	"teal":        {0, 128, 128, 255},
	"cyan":        {0, 255, 255, 255},
	"aqua":        {0, 255, 255, 255},
	"magenta":     {255, 0, 255, 255},
	"fuchsia":     {255, 0, 255, 255},
}

// ParseColor understands hex (#rgb, #rgba, #rrggbb, #rrggbbaa), rgb()/rgba(),
// hsl()/hsla() and a set of CSS names. Anything else, including newer colour
// spaces such as oklch() or color(), is ErrUnsupportedColor.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Black, ErrEmptyColor
	}
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	name, args, ok := splitFunc(s)
	if !ok {
		return Black, fmt.Errorf("%w: %q", ErrUnsupportedColor, s)
	}
	switch name {
	case "rgb", "rgba":
		return parseRGB(args, s)
	case "hsl", "hsla":
		return parseHSL(args, s)
	}
	return Black, fmt.Errorf("%w: %q", ErrUnsupportedColor, s)
}

// ColorOr parses s, returning fallback when s is empty and Black when s
// cannot be parsed.
func ColorOr(s string, fallback color.NRGBA) color.NRGBA {
	c, err := ParseColor(s)
	switch {
	case errors.Is(err, ErrEmptyColor):
		return fallback
	case err != nil:
		return Black
	}
	return c
}

// NormalizeColor rewrites s as #rrggbb or #rrggbbaa; unparseable input
// becomes "#000000".
func NormalizeColor(s string) string {
	c, err := ParseColor(s)
	if err != nil {
		return "#000000"
	}
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func parseHex(h string) (color.NRGBA, error) {
	switch len(h) {
	case 3, 4:
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	case 6, 8:
	default:
		return Black, fmt.Errorf("%w: #%s", ErrUnsupportedColor, h)
	}
	if len(h) == 6 {
		h += "ff"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Black, fmt.Errorf("%w: #%s", ErrUnsupportedColor, h)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// splitFunc splits "name(a, b, c)" or "name(a b c / d)" into name and args.
func splitFunc(s string) (string, []string, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	inner := strings.NewReplacer(",", " ", "/", " ").Replace(s[open+1 : len(s)-1])
	return strings.TrimSpace(s[:open]), strings.Fields(inner), true
}

func parseRGB(args []string, src string) (color.NRGBA, error) {
	if len(args) != 3 && len(args) != 4 {
		return Black, fmt.Errorf("%w: %q", ErrUnsupportedColor, src)
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := channel(args[i], 255)
		if err != nil {
			return Black, fmt.Errorf("%w: %q", ErrUnsupportedColor, src)
		}
		ch[i] = uint8(math.Round(v))
	}
	a, err := alpha(args, src)
	if err != nil {
		return Black, err
	}
	return color.NRGBA{R: ch[0], G: ch[1], B: ch[2], A: a}, nil
}

func parseHSL(args []string, src string) (color.NRGBA, error) {
	if len(args) != 3 && len(args) != 4 {
		return Black, fmt.Errorf("%w: %q", ErrUnsupportedColor, src)
	}
	h, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "deg"), 64)
	if err != nil {
		return Black, fmt.Errorf("%w: %q", ErrUnsupportedColor, src)
	}
	sat, err1 := channel(args[1], 1)
	lig, err2 := channel(args[2], 1)
	if err1 != nil || err2 != nil || !strings.HasSuffix(args[1], "%") || !strings.HasSuffix(args[2], "%") {
		return Black, fmt.Errorf("%w: %q", ErrUnsupportedColor, src)
	}
	a, err := alpha(args, src)
	if err != nil {
		return Black, err
	}
	r, g, b := hslToRGB(math.Mod(math.Mod(h, 360)+360, 360)/360, sat, lig)
	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}

// channel parses a number or percentage, scaling percentages to max and
// clamping to [0, max].
func channel(s string, max float64) (float64, error) {
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clamp(v/100*max, max), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp(v, max), nil
}

func alpha(args []string, src string) (uint8, error) {
	if len(args) < 4 {
		return 255, nil
	}
	v, err := channel(args[3], 1)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedColor, src)
	}
	return uint8(math.Round(v * 255)), nil
}

func clamp(v, max float64) float64 { return math.Max(0, math.Min(max, v)) }

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) uint8 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return conv(h + 1.0/3), conv(h), conv(h - 1.0/3)
}
