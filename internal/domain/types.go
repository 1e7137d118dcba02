/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the declaration records shared by the parser and the runtime:
// characters and host functions. Values live in value.go.

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeID folds an identifier so lookups of characters, variables,
// properties and functions are case-insensitive.
func NormalizeID(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Property is one entry of a character's ordered property table.
type Property struct {
	Name  string `json:"name" yaml:"name" cbor:"1,keyasint"`
	Value Value  `json:"value" yaml:"value" cbor:"2,keyasint"`
}

// Character is an actor declared in the document preamble (`@Id`).
// ID is normalized; Label keeps the spelling used in the declaration.
type Character struct {
	ID         string     `json:"id" yaml:"id" cbor:"1,keyasint"`
	Label      string     `json:"label" yaml:"label" cbor:"2,keyasint"`
	Properties []Property `json:"properties" yaml:"properties" cbor:"3,keyasint"`
	Line       int        `json:"line,omitempty" yaml:"line,omitempty" cbor:"-"`
}

// Get returns the named property. Names are matched after normalization.
func (c *Character) Get(name string) (Value, bool) {
	key := NormalizeID(name)
	for _, p := range c.Properties {
		if p.Name == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the named property or appends it, keeping declaration order.
func (c *Character) Set(name string, v Value) {
	key := NormalizeID(name)
	for i := range c.Properties {
		if c.Properties[i].Name == key {
			c.Properties[i].Value = v
			return
		}
	}
	c.Properties = append(c.Properties, Property{Name: key, Value: v})
}

// DisplayName is the `name` property when it is a string, otherwise the label.
func (c *Character) DisplayName() string {
	if v, ok := c.Get("name"); ok && v.Kind == KindString && v.Str != "" {
		return v.Str
	}
	return c.Label
}

// Clone deep-copies the character so runtime mutation never touches the document.
func (c Character) Clone() Character {
	out := c
	out.Properties = make([]Property, len(c.Properties))
	for i, p := range c.Properties {
		out.Properties[i] = Property{Name: p.Name, Value: p.Value.Clone()}
	}
	return out
}

// Param is a declared function parameter with an optional default literal.
type Param struct {
	Name    string `json:"name" yaml:"name"`
	Default *Value `json:"default,omitempty" yaml:"default,omitempty"`
}

// FunctionDecl describes a host hook (`!name(a=1, b): stub`).
// Stub is returned whenever no host callback is bound.
type FunctionDecl struct {
	Name   string  `json:"name" yaml:"name"`
	Label  string  `json:"label" yaml:"label"`
	Params []Param `json:"params,omitempty" yaml:"params,omitempty"`
	Stub   Value   `json:"stub" yaml:"stub"`
	Line   int     `json:"line,omitempty" yaml:"line,omitempty"`
}
