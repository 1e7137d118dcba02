/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package lexer

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`^[+-]?[0-9](_?[0-9])*(\.[0-9](_?[0-9])*)?$`)

// ParseNumber parses a numeric literal with optional sign, decimal part and
// `_` digit grouping ("1_000.5").
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numberRe.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsQuoted reports whether s is wrapped in a matching pair of single or double quotes.
func IsQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	q := s[0]
	return (q == '"' || q == '\'') && s[len(s)-1] == q
}

// Unquote strips the quotes of a single- or double-quoted literal and
// resolves backslash escapes.
func Unquote(s string) (string, error) {
	if !IsQuoted(s) {
		return "", errors.New("not a quoted string")
	}
	body := s[1 : len(s)-1]
	if s[0] == '\'' {
		body = singleToDouble(body)
	}
	out, err := strconv.Unquote(`"` + body + `"`)
	if err != nil {
		return "", errors.New("invalid escape in string literal")
	}
	return out, nil
}

// singleToDouble rewrites the body of a single-quoted literal so that
// strconv.Unquote can read it as a double-quoted one.
func singleToDouble(body string) string {
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(body):
			b.WriteByte(c)
			b.WriteByte(body[i+1])
			i++
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
