/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package runtime holds the mutable state a running document works on:
// variables with their loop-local scopes, character property tables, the
// host function registry and the log sink.
//
// An Env implements expr.Env, so expressions evaluate directly against it.
// It is not safe for concurrent use; the engine owns it.
package runtime

import (
	"fmt"
	"sort"

	"golex/internal/domain"
	"golex/internal/expr"
	"golex/internal/script"
	"golex/internal/suggest"
)

// HostFunc is a host callback bound to a declared function.
type HostFunc func(args []domain.Value) (domain.Value, error)

// Binding is one named value. Globals and loop-local scopes are both stored
// as bindings so the state can be copied out as plain data.
type Binding struct {
	Name  string       `json:"name" yaml:"name" cbor:"1,keyasint"`
	Value domain.Value `json:"value" yaml:"value" cbor:"2,keyasint"`
}

type function struct {
	decl domain.FunctionDecl
	fn   HostFunc
}

// Env is the runtime environment of one engine.
type Env struct {
	globals    []Binding
	locals     []Binding // loop-local scopes, innermost last
	floor      int       // locals below floor belong to calling frames
	characters []domain.Character
	funcs      map[string]*function
	sink       LogSink
}

// New builds an environment from the document declarations. overrides
// replace the initial value of declared globals; naming an undeclared
// global is an error.
func New(doc *script.Document, overrides map[string]domain.Value) (*Env, error) {
	e := &Env{funcs: map[string]*function{}, sink: DefaultSink()}
	for _, g := range doc.Globals {
		e.globals = append(e.globals, Binding{Name: g.Name, Value: g.Value.Clone()})
	}
	for _, c := range doc.Characters {
		e.characters = append(e.characters, c.Clone())
	}
	for _, f := range doc.Functions {
		e.funcs[f.Name] = &function{decl: f}
	}

	// apply in a stable order so the first bad name reported is deterministic
	names := make([]string, 0, len(overrides))
	for n := range overrides {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := e.Assign(n, overrides[n]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func undefined(format string, args ...any) *expr.Error {
	return &expr.Error{Kind: expr.ErrUndefinedReference, Detail: fmt.Sprintf(format, args...)}
}

func (e *Env) globalNames() []string {
	out := make([]string, len(e.globals))
	for i, g := range e.globals {
		out[i] = g.Name
	}
	return out
}

// find returns a pointer to the innermost visible binding of name.
func (e *Env) find(name string) *Binding {
	key := domain.NormalizeID(name)
	for i := len(e.locals) - 1; i >= e.floor; i-- {
		if e.locals[i].Name == key {
			return &e.locals[i]
		}
	}
	for i := range e.globals {
		if e.globals[i].Name == key {
			return &e.globals[i]
		}
	}
	return nil
}

// Lookup resolves a variable innermost scope first, down to the current
// scope floor, then among the globals.
func (e *Env) Lookup(name string) (domain.Value, bool) {
	if b := e.find(name); b != nil {
		return b.Value, true
	}
	return domain.Value{}, false
}

// Assign updates the innermost visible binding of name. Variables are never
// created by assignment.
func (e *Env) Assign(name string, v domain.Value) error {
	b := e.find(name)
	if b == nil {
		err := undefined("$%s is not declared", name)
		if hint := suggest.Closest(domain.NormalizeID(name), e.globalNames()); hint != "" {
			err.Detail += fmt.Sprintf(" (did you mean $%s?)", hint)
		}
		return err
	}
	b.Value = v.Clone()
	return nil
}

// Push opens a loop-local scope binding name to v.
func (e *Env) Push(name string, v domain.Value) {
	e.locals = append(e.locals, Binding{Name: domain.NormalizeID(name), Value: v.Clone()})
}

// Pop closes the innermost loop-local scope.
func (e *Env) Pop() {
	if len(e.locals) > e.floor {
		e.locals = e.locals[:len(e.locals)-1]
	}
}

// Depth is the number of open loop-local scopes.
func (e *Env) Depth() int { return len(e.locals) }

// Truncate closes scopes until depth n remains.
func (e *Env) Truncate(n int) {
	if n < len(e.locals) {
		e.locals = e.locals[:n]
	}
	if e.floor > len(e.locals) {
		e.floor = len(e.locals)
	}
}

// Floor is the lowest scope visible to the current frame.
func (e *Env) Floor() int { return e.floor }

// SetFloor hides scopes below n from lookups.
func (e *Env) SetFloor(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(e.locals) {
		n = len(e.locals)
	}
	e.floor = n
}

// Property reads a character property.
func (e *Env) Property(id, prop string) (domain.Value, bool) {
	c := e.character(id)
	if c == nil {
		return domain.Value{}, false
	}
	return c.Get(prop)
}

// SetProperty assigns a character property, adding it when missing.
func (e *Env) SetProperty(id, prop string, v domain.Value) error {
	c := e.character(id)
	if c == nil {
		return undefined("character @%s is not declared", id)
	}
	c.Set(prop, v.Clone())
	return nil
}

func (e *Env) character(id string) *domain.Character {
	key := domain.NormalizeID(id)
	for i := range e.characters {
		if e.characters[i].ID == key {
			return &e.characters[i]
		}
	}
	return nil
}

// DisplayName returns the display name of a declared character, or id.
func (e *Env) DisplayName(id string) string {
	if c := e.character(id); c != nil {
		return c.DisplayName()
	}
	return id
}

// Bind attaches a host callback to a declared function. Binding nil
// restores the stub.
func (e *Env) Bind(name string, fn HostFunc) error {
	f, ok := e.funcs[domain.NormalizeID(name)]
	if !ok {
		return &expr.Error{Kind: expr.ErrUnknownFunction, Detail: "!" + name}
	}
	f.fn = fn
	return nil
}

// Invoke calls a declared function. Missing arguments are filled from the
// parameter defaults; arguments beyond the declared parameters are passed
// through. Without a bound callback the stub value is returned.
func (e *Env) Invoke(name string, args []domain.Value) (domain.Value, error) {
	f, ok := e.funcs[domain.NormalizeID(name)]
	if !ok {
		return domain.Value{}, &expr.Error{Kind: expr.ErrUnknownFunction, Detail: "!" + name}
	}
	full := make([]domain.Value, 0, max(len(args), len(f.decl.Params)))
	for _, a := range args {
		full = append(full, a.Clone())
	}
	for _, p := range f.decl.Params[min(len(args), len(f.decl.Params)):] {
		if p.Default == nil {
			return domain.Value{}, undefined("!%s: missing argument %s", f.decl.Label, p.Name)
		}
		full = append(full, p.Default.Clone())
	}
	if f.fn == nil {
		return f.decl.Stub.Clone(), nil
	}
	return f.fn(full)
}

// Variables returns a copy of the globals in declaration order.
func (e *Env) Variables() []Binding {
	out := make([]Binding, len(e.globals))
	for i, g := range e.globals {
		out[i] = Binding{Name: g.Name, Value: g.Value.Clone()}
	}
	return out
}

// Locals returns a copy of the open loop-local scopes, outermost first.
func (e *Env) Locals() []Binding {
	out := make([]Binding, len(e.locals))
	for i, b := range e.locals {
		out[i] = Binding{Name: b.Name, Value: b.Value.Clone()}
	}
	return out
}

// Characters returns a copy of the character tables.
func (e *Env) Characters() []domain.Character {
	out := make([]domain.Character, len(e.characters))
	for i, c := range e.characters {
		out[i] = c.Clone()
	}
	return out
}

// State is the plain-data form of the mutable environment.
type State struct {
	Globals    []Binding          `cbor:"1,keyasint"`
	Locals     []Binding          `cbor:"2,keyasint"`
	Floor      int                `cbor:"3,keyasint"`
	Characters []domain.Character `cbor:"4,keyasint"`
}

// State copies out the mutable environment.
func (e *Env) State() State {
	return State{Globals: e.Variables(), Locals: e.Locals(), Floor: e.floor, Characters: e.Characters()}
}

// Restore replaces the mutable environment. Function bindings and the log
// sink are kept.
func (e *Env) Restore(s State) {
	e.globals = make([]Binding, len(s.Globals))
	for i, g := range s.Globals {
		e.globals[i] = Binding{Name: g.Name, Value: g.Value.Clone()}
	}
	e.locals = make([]Binding, len(s.Locals))
	for i, b := range s.Locals {
		e.locals[i] = Binding{Name: b.Name, Value: b.Value.Clone()}
	}
	e.characters = make([]domain.Character, len(s.Characters))
	for i, c := range s.Characters {
		e.characters[i] = c.Clone()
	}
	e.floor = 0
	e.SetFloor(s.Floor)
}
