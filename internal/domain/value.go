/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindNumber
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is the tagged union used for variables, character properties,
// function arguments and expression results.
// The zero Value is the empty string.
type Value struct {
	Kind  Kind    `cbor:"1,keyasint"`
	Str   string  `cbor:"2,keyasint,omitempty"`
	Bool  bool    `cbor:"3,keyasint,omitempty"`
	Num   float64 `cbor:"4,keyasint,omitempty"`
	Items []Value `cbor:"5,keyasint,omitempty"`
}

func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Array builds an array value. The items are copied.
func Array(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{Kind: KindArray, Items: out}
}

// Text renders the value the way it appears inside dialogue text.
// Integral numbers print without a decimal part; arrays are comma separated.
func (v Value) Text() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return FormatNumber(v.Num)
	case KindArray:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = it.Text()
		}
		return strings.Join(parts, ", ")
	default:
		return v.Str
	}
}

// String implements fmt.Stringer with a literal-like rendering used in
// diagnostics: strings are quoted, arrays bracketed.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(v.Str)
	case KindArray:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return v.Text()
	}
}

// Equal reports deep equality. Values of different kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Num == o.Num
	case KindArray:
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	default:
		return v.Str == o.Str
	}
}

// Clone returns a deep copy so array contents are never shared between
// the document and runtime state.
func (v Value) Clone() Value {
	if v.Kind != KindArray {
		return v
	}
	out := make([]Value, len(v.Items))
	for i, it := range v.Items {
		out[i] = it.Clone()
	}
	return Value{Kind: KindArray, Items: out}
}

// FormatNumber prints integral values without a fractional part.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Native converts the value into plain Go data (string, bool, float64, []any)
// for exporters.
func (v Value) Native() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindArray:
		out := make([]any, len(v.Items))
		for i, it := range v.Items {
			out[i] = it.Native()
		}
		return out
	default:
		return v.Str
	}
}

// FromNative is the inverse of Native. Integer types are widened to float64.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return String(""), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, it := range t {
			v, err := FromNative(it)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{Kind: KindArray, Items: items}, nil
	case Value:
		return t, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// MarshalJSON writes the natural JSON form of the value.
func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Native()) }

// UnmarshalJSON reads the natural JSON form written by MarshalJSON.
func (v *Value) UnmarshalJSON(b []byte) error {
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	nv, err := FromNative(x)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

// MarshalYAML writes the natural YAML form of the value.
func (v Value) MarshalYAML() (any, error) { return v.Native(), nil }
