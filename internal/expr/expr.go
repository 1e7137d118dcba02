/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package expr parses and evaluates the inline expression language used in
// conditions, assignments, declarations and `{...}` interpolations.
//
// Values are typed (see domain.Value) and operators never coerce between
// kinds: mixing kinds is a type mismatch.
package expr

import (
	"errors"
	"fmt"
	"strings"

	"golex/internal/domain"
	"golex/internal/lexer"
)

// Env resolves references during evaluation. Names are passed as written;
// implementations normalize them.
type Env interface {
	Lookup(name string) (domain.Value, bool)
	Property(id, prop string) (domain.Value, bool)
	Invoke(name string, args []domain.Value) (domain.Value, error)
}

// Expr is a parsed expression. It keeps its source text, which is also its
// serialized form.
type Expr struct {
	Source string
	root   *orExpr
}

// Parse parses a single expression.
func Parse(text string) (*Expr, error) {
	src := strings.TrimSpace(text)
	if src == "" {
		return nil, &Error{Kind: ErrSyntax, Detail: "empty expression"}
	}
	root, err := exprParser.ParseString("", src)
	if err != nil {
		return nil, &Error{Kind: ErrSyntax, Source: src, Detail: syntaxDetail(err)}
	}
	e := &Expr{Source: src, root: root}
	if err := e.checkLiterals(); err != nil {
		return nil, err
	}
	return e, nil
}

// MustParse is Parse for literals known to be valid; it panics on error.
func MustParse(text string) *Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

func syntaxDetail(err error) string {
	var perr interface{ Message() string }
	if errors.As(err, &perr) {
		return perr.Message()
	}
	return err.Error()
}

func (e *Expr) String() string { return e.Source }

// Equal compares expressions by source text.
func (e *Expr) Equal(o *Expr) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Source == o.Source
}

// MarshalText writes the source text.
func (e *Expr) MarshalText() ([]byte, error) { return []byte(e.Source), nil }

// UnmarshalText re-parses the source text.
func (e *Expr) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*e = *p
	return nil
}

// Eval evaluates the expression against env.
func (e *Expr) Eval(env Env) (domain.Value, error) {
	v, err := e.root.eval(env)
	if err != nil {
		var ee *Error
		if errors.As(err, &ee) && ee.Source == "" {
			ee.Source = e.Source
		}
		return domain.Value{}, err
	}
	return v, nil
}

// EvalBool evaluates a condition; the result must be a Bool.
func (e *Expr) EvalBool(env Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	if v.Kind != domain.KindBool {
		return false, &Error{Kind: ErrTypeMismatch, Source: e.Source, Detail: fmt.Sprintf("condition is %s, want bool", v.Kind)}
	}
	return v.Bool, nil
}

// Constant evaluates an expression that has no references. It is used for
// declaration values and parameter defaults.
func (e *Expr) Constant() (domain.Value, error) { return e.Eval(emptyEnv{}) }

type emptyEnv struct{}

func (emptyEnv) Lookup(string) (domain.Value, bool)           { return domain.Value{}, false }
func (emptyEnv) Property(string, string) (domain.Value, bool) { return domain.Value{}, false }
func (emptyEnv) Invoke(name string, _ []domain.Value) (domain.Value, error) {
	return domain.Value{}, newError(ErrUnknownFunction, "!%s", name)
}

func (o *orExpr) eval(env Env) (domain.Value, error) {
	v, err := o.Left.eval(env)
	if err != nil || len(o.Rest) == 0 {
		return v, err
	}
	for _, r := range o.Rest {
		if v.Kind != domain.KindBool {
			return v, newError(ErrTypeMismatch, "'or' needs bool operands, got %s", v.Kind)
		}
		if v.Bool {
			return v, nil
		}
		if v, err = r.eval(env); err != nil {
			return v, err
		}
	}
	if v.Kind != domain.KindBool {
		return v, newError(ErrTypeMismatch, "'or' needs bool operands, got %s", v.Kind)
	}
	return v, nil
}

func (a *andExpr) eval(env Env) (domain.Value, error) {
	v, err := a.Left.eval(env)
	if err != nil || len(a.Rest) == 0 {
		return v, err
	}
	for _, r := range a.Rest {
		if v.Kind != domain.KindBool {
			return v, newError(ErrTypeMismatch, "'and' needs bool operands, got %s", v.Kind)
		}
		if !v.Bool {
			return v, nil
		}
		if v, err = r.eval(env); err != nil {
			return v, err
		}
	}
	if v.Kind != domain.KindBool {
		return v, newError(ErrTypeMismatch, "'and' needs bool operands, got %s", v.Kind)
	}
	return v, nil
}

func (c *cmpExpr) eval(env Env) (domain.Value, error) {
	l, err := c.Left.eval(env)
	if err != nil || c.Op == "" {
		return l, err
	}
	r, err := c.Right.eval(env)
	if err != nil {
		return r, err
	}
	return Compare(strings.ToLower(c.Op), l, r)
}

// Compare applies a comparison or membership operator.
func Compare(op string, l, r domain.Value) (domain.Value, error) {
	switch op {
	case "in":
		if r.Kind != domain.KindArray {
			return domain.Value{}, newError(ErrTypeMismatch, "'in' needs an array on the right, got %s", r.Kind)
		}
		for _, it := range r.Items {
			if it.Equal(l) {
				return domain.Bool(true), nil
			}
		}
		return domain.Bool(false), nil
	case "==", "!=":
		if l.Kind != r.Kind {
			return domain.Value{}, newError(ErrTypeMismatch, "cannot compare %s %s %s", l.Kind, op, r.Kind)
		}
		eq := l.Equal(r)
		return domain.Bool(eq == (op == "==")), nil
	}
	var c int
	switch {
	case l.Kind == domain.KindNumber && r.Kind == domain.KindNumber:
		switch {
		case l.Num < r.Num:
			c = -1
		case l.Num > r.Num:
			c = 1
		}
	case l.Kind == domain.KindString && r.Kind == domain.KindString:
		c = strings.Compare(l.Str, r.Str)
	default:
		return domain.Value{}, newError(ErrTypeMismatch, "cannot order %s %s %s", l.Kind, op, r.Kind)
	}
	switch op {
	case "<":
		return domain.Bool(c < 0), nil
	case ">":
		return domain.Bool(c > 0), nil
	case "<=":
		return domain.Bool(c <= 0), nil
	case ">=":
		return domain.Bool(c >= 0), nil
	}
	return domain.Value{}, newError(ErrSyntax, "unknown operator %q", op)
}

func (a *addExpr) eval(env Env) (domain.Value, error) {
	v, err := a.Left.eval(env)
	if err != nil {
		return v, err
	}
	for _, r := range a.Rest {
		rv, err := r.Operand.eval(env)
		if err != nil {
			return rv, err
		}
		if v, err = Arith(r.Op, v, rv); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (m *mulExpr) eval(env Env) (domain.Value, error) {
	v, err := m.Left.eval(env)
	if err != nil {
		return v, err
	}
	for _, r := range m.Rest {
		rv, err := r.Operand.eval(env)
		if err != nil {
			return rv, err
		}
		if v, err = Arith(r.Op, v, rv); err != nil {
			return v, err
		}
	}
	return v, nil
}

// Arith applies + - * /. It is shared with compound assignment statements.
func Arith(op string, l, r domain.Value) (domain.Value, error) {
	if op == "+" {
		switch {
		case l.Kind == domain.KindString && r.Kind == domain.KindString:
			return domain.String(l.Str + r.Str), nil
		case l.Kind == domain.KindArray && r.Kind == domain.KindArray:
			items := make([]domain.Value, 0, len(l.Items)+len(r.Items))
			items = append(items, l.Items...)
			items = append(items, r.Items...)
			return domain.Array(items...).Clone(), nil
		}
	}
	if l.Kind != domain.KindNumber || r.Kind != domain.KindNumber {
		return domain.Value{}, newError(ErrTypeMismatch, "cannot apply %s to %s and %s", op, l.Kind, r.Kind)
	}
	switch op {
	case "+":
		return domain.Number(l.Num + r.Num), nil
	case "-":
		return domain.Number(l.Num - r.Num), nil
	case "*":
		return domain.Number(l.Num * r.Num), nil
	case "/":
		if r.Num == 0 {
			return domain.Value{}, newError(ErrDivisionByZero, "%s / 0", domain.FormatNumber(l.Num))
		}
		return domain.Number(l.Num / r.Num), nil
	}
	return domain.Value{}, newError(ErrSyntax, "unknown operator %q", op)
}

func (u *unaryExpr) eval(env Env) (domain.Value, error) {
	if u.Primary != nil {
		return u.Primary.eval(env)
	}
	v, err := u.Operand.eval(env)
	if err != nil {
		return v, err
	}
	switch strings.ToLower(u.Op) {
	case "-", "+":
		if v.Kind != domain.KindNumber {
			return domain.Value{}, newError(ErrTypeMismatch, "unary %s needs a number, got %s", u.Op, v.Kind)
		}
		if u.Op == "-" {
			return domain.Number(-v.Num), nil
		}
		return v, nil
	default:
		if v.Kind != domain.KindBool {
			return domain.Value{}, newError(ErrTypeMismatch, "'%s' needs a bool, got %s", u.Op, v.Kind)
		}
		return domain.Bool(!v.Bool), nil
	}
}

func (p *primaryExpr) eval(env Env) (domain.Value, error) {
	switch {
	case p.Number != nil:
		f, _ := lexer.ParseNumber(*p.Number)
		return domain.Number(f), nil
	case p.String != nil:
		s, err := lexer.Unquote(*p.String)
		if err != nil {
			return domain.Value{}, newError(ErrSyntax, "%v", err)
		}
		return domain.String(s), nil
	case p.Bool != nil:
		return domain.Bool(strings.EqualFold(*p.Bool, "true")), nil
	case p.Variable != nil:
		name := (*p.Variable)[1:]
		v, ok := env.Lookup(name)
		if !ok {
			return domain.Value{}, newError(ErrUndefinedReference, "$%s", name)
		}
		return v, nil
	case p.Property != nil:
		id, prop, _ := strings.Cut((*p.Property)[1:], ".")
		v, ok := env.Property(id, prop)
		if !ok {
			return domain.Value{}, newError(ErrUndefinedReference, "@%s.%s", id, prop)
		}
		return v, nil
	case p.Call != nil:
		return p.Call.eval(env)
	case p.Array != nil:
		items := make([]domain.Value, 0, len(p.Array.Items))
		for _, it := range p.Array.Items {
			v, err := it.eval(env)
			if err != nil {
				return v, err
			}
			items = append(items, v)
		}
		return domain.Value{Kind: domain.KindArray, Items: items}, nil
	case p.Group != nil:
		return p.Group.eval(env)
	default:
		return domain.String(strings.Join(p.Words, " ")), nil
	}
}

func (c *callExpr) eval(env Env) (domain.Value, error) {
	args := make([]domain.Value, 0, len(c.Args))
	for _, a := range c.Args {
		v, err := a.eval(env)
		if err != nil {
			return v, err
		}
		args = append(args, v)
	}
	name := c.Name[1:]
	v, err := env.Invoke(name, args)
	if err == nil {
		return v, nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return domain.Value{}, err
	}
	return domain.Value{}, &Error{Kind: ErrHostFunction, Detail: "!" + name, Cause: err}
}
