/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package lettering turns a plain-text lettering script into speech bubbles.
//
// Script syntax:
//
//	# Page 2              starts page 2 ("Page 2" and "PAGE 2:" work too)
//	Panel 3               following lines go into panel 3 of the page
//	ALICE: Hello!         speech bubble
//	ALICE (thought): ...  bubble type from the modifier (thought, whisper, shout, speech)
//	CAPTION: Later...     narration box (NARRATION: works too)
//	  more text           indented lines continue the previous bubble
//	; note                ignored
package lettering

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"visory/internal/domain"
)

// LineKind classifies a script line.
type LineKind int

const (
	LineDialogue LineKind = iota + 1
	LineCaption
	LinePanel
	LineNote
)

// Line is one logical script line, continuations included.
type Line struct {
	Kind    LineKind
	Speaker string // upper-cased
	Bubble  domain.BubbleType
	Text    string
	Panel   int // 1-based target panel; 0 means the page itself
	LineNo  int // 1-based source line
}

// Page collects the lines of one page heading.
type Page struct {
	Number int
	Lines  []Line
}

// Script is a parsed lettering script, pages in source order.
type Script struct {
	Pages []Page
}

// Bubbles returns the dialogue and caption lines of the page.
func (p Page) Bubbles() []Line {
	out := make([]Line, 0, len(p.Lines))
	for _, l := range p.Lines {
		if l.Kind == LineDialogue || l.Kind == LineCaption {
			out = append(out, l)
		}
	}
	return out
}

// Error is a parse problem at a source line. Parsing continues past it.
type Error struct {
	Line    int
	Message string
}

func (e Error) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Message) }

var (
	rePage    = regexp.MustCompile(`^(?i)#*\s*page\s+(\d+)\s*:?\s*$`)
	rePanel   = regexp.MustCompile(`^(?i)panel\s+(\d+)\s*:?\s*$`)
	reSpeaker = regexp.MustCompile(`^([A-Za-z0-9_\-. ]{1,64}?)\s*(?:\(([A-Za-z]+)\))?\s*:\s*(.*)$`)
)

var modifiers = map[string]domain.BubbleType{
	"speech":  domain.BubbleSpeech,
	"thought": domain.BubbleThought,
	"thinks":  domain.BubbleThought,
	"whisper": domain.BubbleWhisper,
	"shout":   domain.BubbleShout,
	"yell":    domain.BubbleShout,
}

// Parse reads a lettering script. Lines before the first page heading belong
// to page 1. Unrecognized lines are reported and skipped.
func Parse(input string) (Script, []Error) {
	var (
		sc    Script
		errs  []Error
		cur   *Page
		last  *Line
		panel int
	)
	pageFor := func(n int) *Page {
		for i := range sc.Pages {
			if sc.Pages[i].Number == n {
				return &sc.Pages[i]
			}
		}
		sc.Pages = append(sc.Pages, Page{Number: n})
		return &sc.Pages[len(sc.Pages)-1]
	}

	scanner := bufio.NewScanner(strings.NewReader(input))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")

		if strings.HasPrefix(line, "  ") && last != nil {
			if cont := strings.TrimSpace(line); cont != "" {
				last.Text += "\n" + cont
			}
			continue
		}
		trim := strings.TrimSpace(line)
		last = nil
		if trim == "" {
			continue
		}

		if m := rePage.FindStringSubmatch(trim); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n < 1 {
				errs = append(errs, Error{Line: lineNo, Message: "page numbers start at 1"})
				continue
			}
			cur = pageFor(n)
			panel = 0
			continue
		}
		if cur == nil {
			cur = pageFor(1)
		}
		if strings.HasPrefix(trim, ";") {
			cur.Lines = append(cur.Lines, Line{Kind: LineNote, Text: strings.TrimSpace(trim[1:]), LineNo: lineNo})
			continue
		}
		if m := rePanel.FindStringSubmatch(trim); m != nil {
			panel, _ = strconv.Atoi(m[1])
			cur.Lines = append(cur.Lines, Line{Kind: LinePanel, Panel: panel, LineNo: lineNo})
			continue
		}
		if m := reSpeaker.FindStringSubmatch(trim); m != nil {
			speaker := strings.ToUpper(strings.TrimSpace(m[1]))
			l := Line{Kind: LineDialogue, Speaker: speaker, Bubble: domain.BubbleSpeech, Text: strings.TrimSpace(m[3]), Panel: panel, LineNo: lineNo}
			if speaker == "CAPTION" || speaker == "NARRATION" {
				l.Kind = LineCaption
				l.Bubble = domain.BubbleNarration
			} else if mod := strings.ToLower(m[2]); mod != "" {
				t, ok := modifiers[mod]
				if !ok {
					errs = append(errs, Error{Line: lineNo, Message: fmt.Sprintf("unknown bubble modifier %q", m[2])})
				} else {
					l.Bubble = t
				}
			}
			cur.Lines = append(cur.Lines, l)
			last = &cur.Lines[len(cur.Lines)-1]
			continue
		}
		errs = append(errs, Error{Line: lineNo, Message: fmt.Sprintf("unrecognized line %q", trim)})
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{Line: lineNo, Message: err.Error()})
	}
	return sc, errs
}
