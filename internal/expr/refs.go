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

	"golex/internal/lexer"
)

// RefKind classifies a reference found in an expression.
type RefKind int

const (
	RefVariable RefKind = iota
	RefProperty
	RefCall
)

// Ref is a name an expression depends on. For properties Name is the
// character id and Prop the property name.
type Ref struct {
	Kind RefKind
	Name string
	Prop string
}

// Refs lists every variable, property and call reference in source order.
func (e *Expr) Refs() []Ref {
	var out []Ref
	e.root.walk(func(p *primaryExpr) {
		switch {
		case p.Variable != nil:
			out = append(out, Ref{Kind: RefVariable, Name: (*p.Variable)[1:]})
		case p.Property != nil:
			id, prop, _ := strings.Cut((*p.Property)[1:], ".")
			out = append(out, Ref{Kind: RefProperty, Name: id, Prop: prop})
		case p.Call != nil:
			out = append(out, Ref{Kind: RefCall, Name: p.Call.Name[1:]})
		}
	})
	return out
}

func (e *Expr) checkLiterals() error {
	var bad *Error
	e.root.walk(func(p *primaryExpr) {
		if bad != nil {
			return
		}
		if p.Number != nil {
			if _, ok := lexer.ParseNumber(*p.Number); !ok {
				bad = &Error{Kind: ErrSyntax, Source: e.Source, Detail: "malformed number " + *p.Number}
			}
		}
		if p.String != nil {
			if _, err := lexer.Unquote(*p.String); err != nil {
				bad = &Error{Kind: ErrSyntax, Source: e.Source, Detail: err.Error()}
			}
		}
	})
	if bad != nil {
		return bad
	}
	return nil
}

func (o *orExpr) walk(fn func(*primaryExpr)) {
	o.Left.walk(fn)
	for _, r := range o.Rest {
		r.walk(fn)
	}
}

func (a *andExpr) walk(fn func(*primaryExpr)) {
	a.Left.walk(fn)
	for _, r := range a.Rest {
		r.walk(fn)
	}
}

func (c *cmpExpr) walk(fn func(*primaryExpr)) {
	c.Left.walk(fn)
	if c.Right != nil {
		c.Right.walk(fn)
	}
}

func (a *addExpr) walk(fn func(*primaryExpr)) {
	a.Left.walk(fn)
	for _, r := range a.Rest {
		r.Operand.walk(fn)
	}
}

func (m *mulExpr) walk(fn func(*primaryExpr)) {
	m.Left.walk(fn)
	for _, r := range m.Rest {
		r.Operand.walk(fn)
	}
}

func (u *unaryExpr) walk(fn func(*primaryExpr)) {
	if u.Primary != nil {
		u.Primary.walk(fn)
		return
	}
	u.Operand.walk(fn)
}

func (p *primaryExpr) walk(fn func(*primaryExpr)) {
	fn(p)
	switch {
	case p.Call != nil:
		for _, a := range p.Call.Args {
			a.walk(fn)
		}
	case p.Array != nil:
		for _, it := range p.Array.Items {
			it.walk(fn)
		}
	case p.Group != nil:
		p.Group.walk(fn)
	}
}
