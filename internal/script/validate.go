/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"

	"golex/internal/domain"
	"golex/internal/expr"
	"golex/internal/suggest"
)

// Warning is a lint finding. Warnings never stop a document from running,
// but most of them turn into runtime errors when the line is reached.
type Warning struct {
	Line    int
	Message string
	Hint    string
}

func (w Warning) String() string {
	s := fmt.Sprintf("line %d: %s", w.Line, w.Message)
	if w.Hint != "" {
		s += fmt.Sprintf(" (did you mean %q?)", w.Hint)
	}
	return s
}

// Inspect walks nodes depth-first in source order. If fn returns false the
// children of that node are skipped.
func Inspect(nodes []*Node, fn func(*Node) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		for _, body := range n.Bodies() {
			Inspect(body, fn)
		}
	}
}

// Validate reports references that cannot resolve at run time: jumps to
// unknown sections, calls to undeclared functions, and reads or writes of
// undeclared variables, characters or properties.
func Validate(doc *Document) []Warning {
	v := &validator{doc: doc}
	for _, g := range doc.Globals {
		v.globals = append(v.globals, g.Name)
	}
	for _, f := range doc.Functions {
		v.funcs = append(v.funcs, f.Name)
	}
	for _, c := range doc.Characters {
		v.chars = append(v.chars, c.ID)
	}
	// all names first so forward jumps get hints
	for _, s := range doc.Sections {
		if s.Name != "" {
			v.sections = append(v.sections, s.Name)
		}
	}
	for _, s := range doc.Sections {
		v.body(s.Body, nil)
	}
	return v.out
}

type validator struct {
	doc      *Document
	globals  []string
	funcs    []string
	chars    []string
	sections []string
	out      []Warning
}

func (v *validator) warn(line int, hint string, format string, args ...any) {
	v.out = append(v.out, Warning{Line: line, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (v *validator) body(nodes []*Node, locals []string) {
	for _, n := range nodes {
		v.node(n, locals)
	}
}

func (v *validator) node(n *Node, locals []string) {
	if n.Text != nil {
		v.refs(n.Line, n.Text.Refs(), locals)
	}
	if n.Cond != nil {
		v.refs(n.Line, n.Cond.Refs(), locals)
	}
	switch n.Kind {
	case NodeDialogue:
		if n.Speaker.Identified {
			v.character(n.Line, n.Speaker.ID)
		}
	case NodeChoiceSet:
		for _, c := range n.Choices {
			v.refs(c.Line, c.Prompt.Refs(), locals)
			if c.Cond != nil {
				v.refs(c.Line, c.Cond.Refs(), locals)
			}
			v.body(c.Body, locals)
		}
		return
	case NodeIf:
		for _, b := range n.Branches {
			if b.Cond != nil {
				v.refs(b.Line, b.Cond.Refs(), locals)
			}
			v.body(b.Body, locals)
		}
		return
	case NodeEach:
		v.body(n.Body, append(locals[:len(locals):len(locals)], n.Var))
		return
	case NodeAssign:
		a := n.Assign
		v.refs(n.Line, a.Value.Refs(), locals)
		if a.Target == TargetVariable {
			if !contains(locals, a.Name) && !contains(v.globals, a.Name) {
				v.warn(n.Line, suggest.Closest(a.Name, v.globals), "assignment to undeclared variable $%s", a.Name)
			}
		} else {
			v.character(n.Line, a.Name)
		}
	case NodeJump:
		if k := n.Jump.Kind; k == JumpToSection || k == JumpBounce {
			if _, _, ok := v.doc.Section(n.Jump.Target); !ok {
				v.warn(n.Line, suggest.Closest(n.Jump.Target, v.sections), "jump to unknown section #%s", n.Jump.Target)
			}
		}
	}
	for _, b := range n.Bodies() {
		v.body(b, locals)
	}
}

func (v *validator) refs(line int, refs []expr.Ref, locals []string) {
	for _, r := range refs {
		name := domain.NormalizeID(r.Name)
		switch r.Kind {
		case expr.RefVariable:
			if !contains(locals, name) && !contains(v.globals, name) {
				v.warn(line, suggest.Closest(name, v.globals), "undeclared variable $%s", r.Name)
			}
		case expr.RefCall:
			if !contains(v.funcs, name) {
				v.warn(line, suggest.Closest(name, v.funcs), "call to undeclared function !%s", r.Name)
			}
		case expr.RefProperty:
			if !v.character(line, name) {
				continue
			}
			ch, _ := v.doc.Character(name)
			if _, ok := ch.Get(r.Prop); !ok && !v.assigned(name, r.Prop) {
				v.warn(line, "", "character @%s has no property %q", r.Name, r.Prop)
			}
		}
	}
}

func (v *validator) character(line int, id string) bool {
	if contains(v.chars, id) {
		return true
	}
	v.warn(line, suggest.Closest(id, v.chars), "unknown character @%s", id)
	return false
}

// assigned reports whether any assignment in the document creates the property.
func (v *validator) assigned(id, prop string) bool {
	prop = domain.NormalizeID(prop)
	found := false
	for _, s := range v.doc.Sections {
		Inspect(s.Body, func(n *Node) bool {
			if n.Kind == NodeAssign && n.Assign.Target == TargetProperty && n.Assign.Name == id && n.Assign.Prop == prop {
				found = true
			}
			return !found
		})
	}
	return found
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
