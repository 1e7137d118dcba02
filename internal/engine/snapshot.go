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
	"slices"

	"github.com/fxamacker/cbor/v2"

	"golex/internal/runtime"
	"golex/internal/script"
)

const snapshotVersion = 1

// Snapshot is the complete execution state of an engine at a suspension
// point. It refers to the document by section names and node paths, so it
// can only be restored into an engine over the same document.
type Snapshot struct {
	Version  int            `cbor:"1,keyasint"`
	State    State          `cbor:"2,keyasint"`
	Frames   []Frame        `cbor:"3,keyasint"`
	Pending  *PendingChoice `cbor:"4,keyasint,omitempty"`
	Env      runtime.State  `cbor:"5,keyasint"`
	Sections []string       `cbor:"6,keyasint"`
}

// Snapshot copies out the execution state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Version:  snapshotVersion,
		State:    e.state,
		Frames:   e.Frames(),
		Env:      e.env.State(),
		Sections: e.doc.SectionNames(),
	}
	if e.pending != nil {
		p := *e.pending
		p.SetPath = slices.Clone(p.SetPath)
		p.Options = slices.Clone(p.Options)
		s.Pending = &p
	}
	return s
}

// Restore replaces the execution state with s. Host bindings and the log
// sink are kept. The snapshot is checked against the document first; on
// error the engine is unchanged.
func (e *Engine) Restore(s Snapshot) error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("%w: version %d", ErrBadSnapshot, s.Version)
	}
	if !slices.Equal(s.Sections, e.doc.SectionNames()) {
		return fmt.Errorf("%w: sections differ", ErrBadSnapshot)
	}
	for _, f := range s.Frames {
		sec := e.section(f.Section)
		if sec == nil {
			return fmt.Errorf("%w: unknown section %q", ErrBadSnapshot, f.Section)
		}
		if len(f.Blocks) == 0 {
			return fmt.Errorf("%w: frame without blocks", ErrBadSnapshot)
		}
		for _, b := range f.Blocks {
			if err := checkBlock(sec, b); err != nil {
				return fmt.Errorf("%w: section %q: %v", ErrBadSnapshot, f.Section, err)
			}
		}
	}
	switch {
	case s.State == AwaitingChoice && (s.Pending == nil || len(s.Frames) == 0):
		return fmt.Errorf("%w: awaiting a choice without one", ErrBadSnapshot)
	case s.State == AwaitingChoice:
		if err := e.checkPending(s.Frames[len(s.Frames)-1], s.Pending); err != nil {
			return err
		}
	case s.State < Running || s.State > Terminated:
		return fmt.Errorf("%w: state %d", ErrBadSnapshot, s.State)
	}

	e.frames = make([]Frame, len(s.Frames))
	for i, f := range s.Frames {
		e.frames[i] = f.clone()
	}
	e.pending = nil
	if s.State == AwaitingChoice {
		p := *s.Pending
		p.SetPath = slices.Clone(p.SetPath)
		p.Options = slices.Clone(p.Options)
		e.pending = &p
	}
	e.state = s.State
	e.buf = Page{}
	e.env.Restore(s.Env)
	if len(e.frames) > 0 {
		e.env.SetFloor(e.top().ScopeFloor)
	}
	return nil
}

var blockOwners = map[BlockKind]script.NodeKind{
	BlockAnnotation: script.NodeAnnotation,
	BlockRepeat:     script.NodeRepeat,
	BlockWhile:      script.NodeWhile,
	BlockEach:       script.NodeEach,
}

// checkBlock verifies that b addresses a node list of the construct its
// kind names, so resuming never evaluates a missing condition.
func checkBlock(sec *script.Section, b Block) error {
	if _, err := nodesAt(sec, b.Path); err != nil {
		return err
	}
	if b.Cursor < 0 {
		return fmt.Errorf("negative cursor %d", b.Cursor)
	}
	owner := ownerAt(sec, b.Path)
	switch b.Kind {
	case BlockBody:
		return nil
	case BlockAnnotation, BlockRepeat, BlockWhile, BlockEach:
		if owner == nil || owner.Kind != blockOwners[b.Kind] || b.Path[len(b.Path)-1] != 0 {
			return fmt.Errorf("block kind %d does not match its node", b.Kind)
		}
	default:
		return fmt.Errorf("unknown block kind %d", b.Kind)
	}
	switch b.Kind {
	case BlockWhile, BlockRepeat:
		if owner.Cond == nil {
			return fmt.Errorf("loop at line %d has no condition", owner.Line)
		}
		if b.Remaining < 0 || b.Iter < 0 {
			return fmt.Errorf("negative loop counter")
		}
	case BlockEach:
		if b.Iter < 0 || b.Iter >= len(b.Items) {
			return fmt.Errorf("EACH index %d out of range", b.Iter)
		}
	}
	return nil
}

func (e *Engine) checkPending(f Frame, p *PendingChoice) error {
	n := len(p.SetPath)
	if n == 0 || n%2 != 1 || len(p.Options) == 0 {
		return fmt.Errorf("%w: malformed pending choice", ErrBadSnapshot)
	}
	list, err := nodesAt(e.section(f.Section), p.SetPath[:n-1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	idx := p.SetPath[n-1]
	if idx < 0 || idx >= len(list) || list[idx].Kind != script.NodeChoiceSet {
		return fmt.Errorf("%w: pending choice does not point at a choice set", ErrBadSnapshot)
	}
	for _, o := range p.Options {
		if o.Source < 0 || o.Source >= len(list[idx].Choices) {
			return fmt.Errorf("%w: option %d out of range", ErrBadSnapshot, o.Source)
		}
	}
	return nil
}

// MarshalSnapshot encodes s as canonical CBOR, so equal states encode to
// equal bytes.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	b, err := em.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// UnmarshalSnapshot decodes bytes written by MarshalSnapshot.
func UnmarshalSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// Save is MarshalSnapshot(e.Snapshot()).
func (e *Engine) Save() ([]byte, error) { return MarshalSnapshot(e.Snapshot()) }

// Load restores a state encoded by Save.
func (e *Engine) Load(b []byte) error {
	s, err := UnmarshalSnapshot(b)
	if err != nil {
		return err
	}
	return e.Restore(s)
}
