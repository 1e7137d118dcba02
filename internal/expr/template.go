/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package expr

import (
	"strings"
)

// Part is a literal run or an interpolated expression of a Template.
type Part struct {
	Text string
	Expr *Expr
}

// Template is text with `{expr}` interpolations. `\{` and `\}` escape braces.
// Templates are parsed once and rendered against the current state each time.
type Template struct {
	Source string
	Parts  []Part
}

// ParseTemplate splits text into literal and expression parts.
func ParseTemplate(text string) (*Template, error) {
	t := &Template{Source: text}
	var lit strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text) && (text[i+1] == '{' || text[i+1] == '}'):
			lit.WriteByte(text[i+1])
			i++
		case c == '{':
			end := closingBrace(text, i+1)
			if end < 0 {
				return nil, &Error{Kind: ErrSyntax, Source: text, Detail: "unclosed '{' in text"}
			}
			e, err := Parse(text[i+1 : end])
			if err != nil {
				return nil, err
			}
			if lit.Len() > 0 {
				t.Parts = append(t.Parts, Part{Text: lit.String()})
				lit.Reset()
			}
			t.Parts = append(t.Parts, Part{Expr: e})
			i = end
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.Parts = append(t.Parts, Part{Text: lit.String()})
	}
	return t, nil
}

// closingBrace finds the `}` ending an interpolation, skipping quoted strings.
func closingBrace(s string, from int) int {
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '}':
			return i
		}
	}
	return -1
}

// Static reports whether the template has no interpolations.
func (t *Template) Static() bool {
	for _, p := range t.Parts {
		if p.Expr != nil {
			return false
		}
	}
	return true
}

// Render evaluates each interpolation and joins the parts.
func (t *Template) Render(env Env) (string, error) {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.Expr == nil {
			b.WriteString(p.Text)
			continue
		}
		v, err := p.Expr.Eval(env)
		if err != nil {
			return "", err
		}
		b.WriteString(v.Text())
	}
	return b.String(), nil
}

// Refs lists the references of every interpolation.
func (t *Template) Refs() []Ref {
	var out []Ref
	for _, p := range t.Parts {
		if p.Expr != nil {
			out = append(out, p.Expr.Refs()...)
		}
	}
	return out
}

func (t *Template) String() string { return t.Source }

// Equal compares templates by source text.
func (t *Template) Equal(o *Template) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Source == o.Source
}

// MarshalText writes the source text.
func (t *Template) MarshalText() ([]byte, error) { return []byte(t.Source), nil }

// UnmarshalText re-parses the source text.
func (t *Template) UnmarshalText(b []byte) error {
	p, err := ParseTemplate(string(b))
	if err != nil {
		return err
	}
	*t = *p
	return nil
}
