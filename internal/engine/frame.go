/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"fmt"

	"golex/internal/domain"
	"golex/internal/script"
)

// FrameKind tells section activations from choice bodies.
type FrameKind int

const (
	FrameSection FrameKind = iota
	FrameChoice
)

func (k FrameKind) String() string {
	if k == FrameChoice {
		return "choice"
	}
	return "section"
}

// BlockKind is the construct a block executes the body of.
type BlockKind int

const (
	BlockBody BlockKind = iota // frame root, IF branch, group
	BlockAnnotation
	BlockRepeat
	BlockWhile
	BlockEach
)

// Block is an open node list inside a frame. Path addresses the list from the
// section body as pairs of (node index, body index), see script.Node.Bodies.
// Cursor is the index of the next node to execute.
type Block struct {
	Kind   BlockKind `cbor:"1,keyasint"`
	Path   []int     `cbor:"2,keyasint"`
	Cursor int       `cbor:"3,keyasint"`
	// Remaining counts REPEAT iterations left after the current one.
	Remaining int `cbor:"4,keyasint,omitempty"`
	// Iter counts WHILE iterations, or indexes Items for EACH.
	Iter  int            `cbor:"5,keyasint,omitempty"`
	Items []domain.Value `cbor:"6,keyasint,omitempty"`
}

// Frame is one activation record. Section frames below the top of the stack
// are callers waiting on a bounce; choice frames run one choice body of the
// section frame beneath them.
//
// ScopeBase is the number of loop-local scopes open when the frame was
// pushed; they are restored when it pops. ScopeFloor is the lowest scope
// the frame can see: a bounce hides its caller's loop variables, a choice
// body does not.
type Frame struct {
	Kind       FrameKind `cbor:"1,keyasint"`
	Section    string    `cbor:"2,keyasint"`
	Blocks     []Block   `cbor:"3,keyasint"`
	ScopeBase  int       `cbor:"4,keyasint"`
	ScopeFloor int       `cbor:"5,keyasint"`
}

func (f *Frame) top() *Block { return &f.Blocks[len(f.Blocks)-1] }

func (f Frame) clone() Frame {
	out := f
	out.Blocks = make([]Block, len(f.Blocks))
	for i, b := range f.Blocks {
		b.Path = append([]int(nil), b.Path...)
		if b.Items != nil {
			items := make([]domain.Value, len(b.Items))
			for j, it := range b.Items {
				items[j] = it.Clone()
			}
			b.Items = items
		}
		out.Blocks[i] = b
	}
	return out
}

// childPath returns path extended by (node, body).
func childPath(path []int, node, body int) []int {
	out := make([]int, len(path), len(path)+2)
	copy(out, path)
	return append(out, node, body)
}

// nodesAt resolves a block path inside sec.
func nodesAt(sec *script.Section, path []int) ([]*script.Node, error) {
	if len(path)%2 != 0 {
		return nil, fmt.Errorf("odd path length %d", len(path))
	}
	list := sec.Body
	for i := 0; i < len(path); i += 2 {
		ni, bi := path[i], path[i+1]
		if ni < 0 || ni >= len(list) {
			return nil, fmt.Errorf("node %d out of range", ni)
		}
		bodies := list[ni].Bodies()
		if bi < 0 || bi >= len(bodies) {
			return nil, fmt.Errorf("body %d of %s node out of range", bi, list[ni].Kind)
		}
		list = bodies[bi]
	}
	return list, nil
}

// ownerAt returns the node whose body the path ends in, or nil for the
// section body itself.
func ownerAt(sec *script.Section, path []int) *script.Node {
	if len(path) < 2 {
		return nil
	}
	list, err := nodesAt(sec, path[:len(path)-2])
	if err != nil {
		return nil
	}
	return list[path[len(path)-2]]
}
