/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"fmt"
	"strings"

	"golex/internal/lexer"
)

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrBadIndentation
	ErrUnknownCharacter
	ErrDuplicateSection
	ErrUnclosedBlock
	ErrBadJump
	ErrLex
)

var errorKindNames = []string{
	"syntax error", "bad indentation", "unknown character", "duplicate section",
	"unclosed block", "bad jump", "lex error",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("error(%d)", int(k))
}

// Error represents a parse error with position context. Parsing stops at the
// first error; no partial document is returned.
type Error struct {
	Kind    ErrorKind
	Line    int
	Column  int
	Message string
	// Hint is an optional "did you mean" suggestion.
	Hint string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Message)
	if e.Hint != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Hint)
	}
	return msg
}

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &script.Error{Kind: script.ErrBadIndentation}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Line == 0
}

// KindOf returns the kind of a parse error, or false if err is not one.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

func errorf(kind ErrorKind, line int, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: line, Message: fmt.Sprintf(format, args...)}
}

func fromLexError(err error) error {
	var le *lexer.Error
	if errors.As(err, &le) {
		return &Error{Kind: ErrLex, Line: le.Line, Column: le.Column, Message: le.Message}
	}
	return err
}

// FormatError renders err with the offending source lines around it:
//
//	line 4: bad indentation: ...
//	   3 | - Go left
//	>  4 |       text
func FormatError(err error, source string) string {
	var pe *Error
	if !errors.As(err, &pe) || pe.Line < 1 {
		return err.Error()
	}
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteByte('\n')
	width := len(fmt.Sprint(pe.Line + 1))
	for n := pe.Line - 1; n <= pe.Line+1; n++ {
		if n < 1 || n > len(lines) {
			continue
		}
		marker := " "
		if n == pe.Line {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %*d | %s\n", marker, width, n, lines[n-1])
	}
	return strings.TrimRight(b.String(), "\n")
}
