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
	"strings"

	"golex/internal/domain"
	"golex/internal/expr"
)

// Document is the immutable result of parsing a .lex source.
// Declarations are hoisted out of the sections they appear in; sections keep
// source order. Jumps are resolved by name at execution time.
type Document struct {
	Characters []domain.Character    `json:"characters" yaml:"characters"`
	Globals    []Global              `json:"globals" yaml:"globals"`
	Functions  []domain.FunctionDecl `json:"functions" yaml:"functions"`
	Sections   []*Section            `json:"sections" yaml:"sections"`
}

// Global is a document variable with its initial value.
type Global struct {
	Name  string       `json:"name" yaml:"name"`
	Value domain.Value `json:"value" yaml:"value"`
	Line  int          `json:"line,omitempty" yaml:"line,omitempty"`
}

// Section is a named, ordered node list. The implicit section holding content
// written before the first header has the empty name.
type Section struct {
	Name string  `json:"name" yaml:"name"`
	Body []*Node `json:"body" yaml:"body"`
	Line int     `json:"line,omitempty" yaml:"line,omitempty"`
}

// ID is the normalized section name used for jump resolution.
func (s *Section) ID() string { return domain.NormalizeID(s.Name) }

// Section returns the section with the given name (case-insensitive).
func (d *Document) Section(name string) (*Section, int, bool) {
	id := domain.NormalizeID(strings.TrimPrefix(strings.TrimSpace(name), "#"))
	for i, s := range d.Sections {
		if s.ID() == id {
			return s, i, true
		}
	}
	return nil, -1, false
}

// SectionNames lists section names in source order.
func (d *Document) SectionNames() []string {
	out := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		out = append(out, s.Name)
	}
	return out
}

// Character returns the declared character with the given id.
func (d *Document) Character(id string) (*domain.Character, bool) {
	key := domain.NormalizeID(id)
	for i := range d.Characters {
		if d.Characters[i].ID == key {
			return &d.Characters[i], true
		}
	}
	return nil, false
}

// Global returns the declared global with the given name.
func (d *Document) Global(name string) (*Global, bool) {
	key := domain.NormalizeID(name)
	for i := range d.Globals {
		if d.Globals[i].Name == key {
			return &d.Globals[i], true
		}
	}
	return nil, false
}

// Function returns the declared function with the given name.
func (d *Document) Function(name string) (*domain.FunctionDecl, bool) {
	key := domain.NormalizeID(name)
	for i := range d.Functions {
		if d.Functions[i].Name == key {
			return &d.Functions[i], true
		}
	}
	return nil, false
}

// NodeKind identifies the variant held by a Node.
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeDialogue
	NodeChoiceSet
	NodeAnnotation
	NodeIf
	NodeRepeat
	NodeWhile
	NodeEach
	NodeAssign
	NodeCall
	NodeJump
	NodeGroup
	NodeLog
	NodePageBreak
)

var nodeKindNames = []string{
	"text", "dialogue", "choices", "annotation", "if", "repeat", "while", "each",
	"assign", "call", "jump", "group", "log", "page_break",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("node(%d)", int(k))
}

func (k NodeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Node is one element of a section body. Only the fields that belong to its
// Kind are set:
//
//	Text, Log      Text
//	Dialogue       Speaker, Text
//	ChoiceSet      Choices
//	Annotation     Attrs, Cond, Body, Else
//	If             Branches
//	Repeat         Cond (count), Body
//	While          Cond, Body
//	Each           Cond (array), Var, Body
//	Assign         Assign
//	Call           Cond (the call expression)
//	Jump           Jump
//	Group          Body
type Node struct {
	Kind     NodeKind       `json:"kind" yaml:"kind"`
	Line     int            `json:"line" yaml:"line"`
	Text     *expr.Template `json:"text,omitempty" yaml:"text,omitempty"`
	Speaker  *Speaker       `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	Severity Severity       `json:"severity,omitempty" yaml:"severity,omitempty"`
	Choices  []*Choice      `json:"choices,omitempty" yaml:"choices,omitempty"`
	Attrs    []Attr         `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Cond     *expr.Expr     `json:"expr,omitempty" yaml:"expr,omitempty"`
	Var      string         `json:"var,omitempty" yaml:"var,omitempty"`
	Branches []*Branch      `json:"branches,omitempty" yaml:"branches,omitempty"`
	Assign   *Assignment    `json:"assign,omitempty" yaml:"assign,omitempty"`
	Jump     *Jump          `json:"jump,omitempty" yaml:"jump,omitempty"`
	Body     []*Node        `json:"body,omitempty" yaml:"body,omitempty"`
	Else     []*Node        `json:"else,omitempty" yaml:"else,omitempty"`
}

// Bodies returns the nested node lists of n in a fixed order. The engine
// addresses nested bodies by their index in this list.
func (n *Node) Bodies() [][]*Node {
	switch n.Kind {
	case NodeChoiceSet:
		out := make([][]*Node, len(n.Choices))
		for i, c := range n.Choices {
			out[i] = c.Body
		}
		return out
	case NodeIf:
		out := make([][]*Node, len(n.Branches))
		for i, b := range n.Branches {
			out[i] = b.Body
		}
		return out
	case NodeAnnotation:
		return [][]*Node{n.Body, n.Else}
	case NodeRepeat, NodeWhile, NodeEach, NodeGroup:
		return [][]*Node{n.Body}
	}
	return nil
}

// Speaker of a dialogue line. Identified lines are bound to a declared
// character by ID; anonymous lines only carry a display name.
type Speaker struct {
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string `json:"name" yaml:"name"`
	Identified bool   `json:"identified" yaml:"identified"`
}

// Severity of a logged comment.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return ""
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Attr is one key=value pair of an annotation. Keys are lower-cased.
type Attr struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Choice is one selectable option of a choice set.
type Choice struct {
	Prompt *expr.Template `json:"prompt" yaml:"prompt"`
	Cond   *expr.Expr     `json:"if,omitempty" yaml:"if,omitempty"`
	Attrs  []Attr         `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Body   []*Node        `json:"body,omitempty" yaml:"body,omitempty"`
	Line   int            `json:"line" yaml:"line"`
}

// Branch is one arm of an IF chain. The ELSE arm has no condition.
type Branch struct {
	Cond *expr.Expr `json:"if,omitempty" yaml:"if,omitempty"`
	Body []*Node    `json:"body" yaml:"body"`
	Line int        `json:"line" yaml:"line"`
}

// TargetKind distinguishes variable and character property assignment.
type TargetKind int

const (
	TargetVariable TargetKind = iota
	TargetProperty
)

func (k TargetKind) MarshalText() ([]byte, error) {
	if k == TargetProperty {
		return []byte("property"), nil
	}
	return []byte("variable"), nil
}

// Assignment is `$v = e`, `@Id.prop = e` or a compound form (`+=` etc.).
// Op is "" for plain assignment, otherwise the arithmetic operator.
type Assignment struct {
	Target TargetKind `json:"target" yaml:"target"`
	Name   string     `json:"name" yaml:"name"`
	Prop   string     `json:"prop,omitempty" yaml:"prop,omitempty"`
	Op     string     `json:"op,omitempty" yaml:"op,omitempty"`
	Value  *expr.Expr `json:"value" yaml:"value"`
}

// JumpKind is the flavor of a jump directive.
type JumpKind int

const (
	JumpToSection JumpKind = iota
	JumpEnd
	JumpBounce
	JumpTerminate
)

var jumpKindNames = []string{"section", "end", "bounce", "terminate"}

func (k JumpKind) String() string {
	if int(k) < len(jumpKindNames) {
		return jumpKindNames[k]
	}
	return fmt.Sprintf("jump(%d)", int(k))
}

func (k JumpKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Jump is `=> #Name`, `=> END`, `=><= #Name` or `=> TERMINATE`.
type Jump struct {
	Kind   JumpKind `json:"kind" yaml:"kind"`
	Target string   `json:"target,omitempty" yaml:"target,omitempty"`
}
