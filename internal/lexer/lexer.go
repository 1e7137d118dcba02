/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package lexer turns Lex source text into classified line records.
// Each record carries its indentation depth, the leading sigil and the payload
// text with the sigil removed. Double-quoted spans are tracked so that callers
// can search the payload for separators without splitting inside strings.
package lexer

import (
	"fmt"
	"strings"
)

// Sigil classifies the leading marker of a line.
type Sigil int

const (
	SigilNone            Sigil = iota // prose (text or anonymous dialogue)
	SigilBlank                        // empty or whitespace-only line
	SigilCharacter                    // @
	SigilVariable                     // $
	SigilFunction                     // !
	SigilSection                      // #
	SigilControl                      // ~
	SigilJump                         // =>
	SigilBounce                       // =><=
	SigilChoice                       // -
	SigilAnnotationOpen               // [
	SigilAnnotationClose              // ]
	SigilInfo                         // ///
	SigilWarning                      // //?
	SigilError                        // //!
)

var sigilNames = map[Sigil]string{
	SigilNone:            "text",
	SigilBlank:           "blank",
	SigilCharacter:       "@",
	SigilVariable:        "$",
	SigilFunction:        "!",
	SigilSection:         "#",
	SigilControl:         "~",
	SigilJump:            "=>",
	SigilBounce:          "=><=",
	SigilChoice:          "-",
	SigilAnnotationOpen:  "[",
	SigilAnnotationClose: "]",
	SigilInfo:            "///",
	SigilWarning:         "//?",
	SigilError:           "//!",
}

func (s Sigil) String() string {
	if n, ok := sigilNames[s]; ok {
		return n
	}
	return fmt.Sprintf("sigil(%d)", int(s))
}

// IsLog reports whether the sigil is one of the logged comment severities.
func (s Sigil) IsLog() bool { return s == SigilInfo || s == SigilWarning || s == SigilError }

// Record is one classified source line.
// Continued is set for lines that started with `|`; the bar is stripped and
// the remainder classified like any other line.
type Record struct {
	Line      int
	Depth     int
	Sigil     Sigil
	Payload   string
	Continued bool

	// mask has the same length as Payload with quoted bytes replaced by NUL.
	mask string
}

// Index returns the byte index of sep in the payload, ignoring occurrences
// inside double-quoted strings, or -1.
func (r Record) Index(sep string) int {
	m := r.mask
	if m == "" && r.Payload != "" {
		m = r.Payload
	}
	return strings.Index(m, sep)
}

// Cut splits the payload around the first unquoted sep.
func (r Record) Cut(sep string) (before, after string, found bool) {
	i := r.Index(sep)
	if i < 0 {
		return r.Payload, "", false
	}
	return r.Payload[:i], r.Payload[i+len(sep):], true
}

// Error is a lexical error: malformed indentation or quoting.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("lex error at %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("lex error at line %d: %s", e.Line, e.Message)
}

type indentStyle struct {
	char byte // ' ' or '\t'; 0 until the first indented line
	unit int
	line int // line that fixed the style
}

// Tokenize splits source into records. Silent `//` comments are dropped here;
// logged comments (`///`, `//?`, `//!`) are kept as records.
func Tokenize(source string) ([]Record, error) {
	source = strings.TrimPrefix(source, "\ufeff")
	lines := strings.Split(source, "\n")
	out := make([]Record, 0, len(lines))
	var style indentStyle

	for i, raw := range lines {
		lineNo := i + 1
		raw = strings.TrimRight(raw, "\r")
		content := strings.TrimLeft(raw, " \t")
		content = strings.TrimRight(content, " \t")
		if content == "" {
			out = append(out, Record{Line: lineNo, Sigil: SigilBlank})
			continue
		}
		if isSilentComment(content) {
			continue
		}
		depth, err := measureIndent(raw[:len(raw)-len(strings.TrimLeft(raw, " \t"))], lineNo, &style)
		if err != nil {
			return nil, err
		}
		rec, err := classify(content, lineNo)
		if err != nil {
			return nil, err
		}
		rec.Depth = depth
		out = append(out, rec)
	}
	return out, nil
}

func isSilentComment(s string) bool {
	if !strings.HasPrefix(s, "//") {
		return false
	}
	return !strings.HasPrefix(s, "///") && !strings.HasPrefix(s, "//?") && !strings.HasPrefix(s, "//!")
}

func measureIndent(ws string, lineNo int, st *indentStyle) (int, error) {
	if ws == "" {
		return 0, nil
	}
	hasTab := strings.ContainsRune(ws, '\t')
	hasSpace := strings.ContainsRune(ws, ' ')
	if hasTab && hasSpace {
		return 0, &Error{Line: lineNo, Column: 1, Message: "indentation mixes tabs and spaces"}
	}
	ch := byte(' ')
	if hasTab {
		ch = '\t'
	}
	if st.char == 0 {
		st.char = ch
		st.line = lineNo
		st.unit = len(ws)
		if ch == '\t' {
			st.unit = 1
		}
	}
	if ch != st.char {
		return 0, &Error{Line: lineNo, Column: 1, Message: fmt.Sprintf("indentation uses %s but line %d uses %s", charName(ch), st.line, charName(st.char))}
	}
	if len(ws)%st.unit != 0 {
		return 0, &Error{Line: lineNo, Column: len(ws) + 1, Message: fmt.Sprintf("indentation of %d is not a multiple of %d (unit set on line %d)", len(ws), st.unit, st.line)}
	}
	return len(ws) / st.unit, nil
}

func charName(c byte) string {
	if c == '\t' {
		return "tabs"
	}
	return "spaces"
}

// classify assigns the sigil of a trimmed, non-empty line.
func classify(s string, lineNo int) (Record, error) {
	rec := Record{Line: lineNo}
	switch {
	case strings.HasPrefix(s, "///"):
		rec.Sigil, rec.Payload = SigilInfo, strings.TrimSpace(s[3:])
		return rec, nil
	case strings.HasPrefix(s, "//?"):
		rec.Sigil, rec.Payload = SigilWarning, strings.TrimSpace(s[3:])
		return rec, nil
	case strings.HasPrefix(s, "//!"):
		rec.Sigil, rec.Payload = SigilError, strings.TrimSpace(s[3:])
		return rec, nil
	case strings.HasPrefix(s, "|"):
		rest := strings.TrimSpace(s[1:])
		if rest == "" {
			return Record{Line: lineNo, Sigil: SigilNone, Continued: true}, nil
		}
		if strings.HasPrefix(rest, "|") {
			return rec, &Error{Line: lineNo, Column: 2, Message: "nested '|' continuation"}
		}
		inner, err := classify(rest, lineNo)
		if err != nil {
			return rec, err
		}
		inner.Continued = true
		return inner, nil
	case strings.HasPrefix(s, "=><="):
		rec.Sigil, rec.Payload = SigilBounce, s[4:]
	case strings.HasPrefix(s, "=>"):
		rec.Sigil, rec.Payload = SigilJump, s[2:]
	case strings.HasPrefix(s, "#"):
		rec.Sigil, rec.Payload = SigilSection, s[1:]
	case strings.HasPrefix(s, "@"):
		rec.Sigil, rec.Payload = SigilCharacter, s[1:]
	case strings.HasPrefix(s, "$"):
		rec.Sigil, rec.Payload = SigilVariable, s[1:]
	case strings.HasPrefix(s, "!"):
		rec.Sigil, rec.Payload = SigilFunction, s[1:]
	case strings.HasPrefix(s, "~"):
		rec.Sigil, rec.Payload = SigilControl, s[1:]
	case s == "-" || strings.HasPrefix(s, "- "):
		rec.Sigil, rec.Payload = SigilChoice, s[1:]
	case strings.HasPrefix(s, "["):
		rec.Sigil, rec.Payload = SigilAnnotationOpen, s[1:]
	case s == "]":
		rec.Sigil = SigilAnnotationClose
	default:
		rec.Sigil, rec.Payload = SigilNone, s
	}
	rec.Payload = strings.TrimSpace(rec.Payload)
	mask, col, err := maskQuotes(rec.Payload)
	if err != nil {
		// report the column relative to the full trimmed line
		return rec, &Error{Line: lineNo, Column: len(s) - len(rec.Payload) + col, Message: err.Error()}
	}
	rec.mask = mask
	return rec, nil
}

// maskQuotes blanks every byte inside double-quoted spans (quotes included).
// It returns the 1-based column of an unterminated quote on failure.
func maskQuotes(s string) (string, int, error) {
	if !strings.Contains(s, `"`) {
		return s, 0, nil
	}
	b := []byte(s)
	open := -1
	for i := 0; i < len(b); i++ {
		c := b[i]
		if open < 0 {
			if c == '"' {
				open = i
				b[i] = 0
			}
			continue
		}
		if c == '\\' && i+1 < len(b) {
			b[i], b[i+1] = 0, 0
			i++
			continue
		}
		if c == '"' {
			open = -1
		}
		b[i] = 0
	}
	if open >= 0 {
		return "", open + 1, fmt.Errorf("unterminated string literal")
	}
	return string(b), 0, nil
}
