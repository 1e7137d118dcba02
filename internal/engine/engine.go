/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package engine executes a parsed document as a stream of pages.
//
// The engine is pull based: each Step runs until the next suspension point
// (a page boundary, a choice, completion or termination) and returns an
// Event. Execution state is plain data (a stack of Frames) so it can be
// inspected and snapshotted. An Engine is not safe for concurrent use and
// Step must not be called from within a host callback.
package engine

import (
	"log/slog"

	"golex/internal/domain"
	"golex/internal/log"
	"golex/internal/runtime"
	"golex/internal/script"
	"golex/internal/suggest"
)

// State of the engine between steps.
type State int

const (
	Running State = iota
	AwaitingChoice
	Completed
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case AwaitingChoice:
		return "awaiting choice"
	case Completed:
		return "completed"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Defaults for the execution guards.
const (
	DefaultLoopLimit = 100_000
	DefaultStepLimit = 1_000_000
	DefaultMaxFrames = 4_096
)

type options struct {
	overrides map[string]domain.Value
	start     string
	loopLimit int
	stepLimit int
	maxFrames int
	sink      runtime.LogSink
	hasSink   bool
	logger    *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithOverrides replaces the initial values of declared globals.
func WithOverrides(vars map[string]domain.Value) Option {
	return func(o *options) { o.overrides = vars }
}

// WithStart begins execution at the named section instead of the first one.
func WithStart(section string) Option { return func(o *options) { o.start = section } }

// WithLoopLimit caps WHILE iterations and REPEAT counts.
func WithLoopLimit(n int) Option { return func(o *options) { o.loopLimit = n } }

// WithStepLimit caps the number of nodes a single Step may execute.
func WithStepLimit(n int) Option { return func(o *options) { o.stepLimit = n } }

// WithMaxFrames caps the frame stack depth.
func WithMaxFrames(n int) Option { return func(o *options) { o.maxFrames = n } }

// WithLogSink routes logged comments to fn instead of slog.
func WithLogSink(fn runtime.LogSink) Option {
	return func(o *options) { o.sink, o.hasSink = fn, true }
}

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// PendingChoice is a choice set waiting for a selection. SetPath addresses
// the set node: the path of its list followed by its index.
type PendingChoice struct {
	SetPath []int          `cbor:"1,keyasint"`
	Options []ChoiceOption `cbor:"2,keyasint"`
}

// Engine runs one session over a Document.
type Engine struct {
	doc      *script.Document
	env      *runtime.Env
	sections map[string]*script.Section
	frames   []Frame
	state    State
	pending  *PendingChoice
	buf      Page
	opts     options
	steps    int
	log      *slog.Logger
}

// New prepares an engine positioned at the start of the first section (or
// the WithStart section). A document without sections completes at once.
func New(doc *script.Document, opts ...Option) (*Engine, error) {
	o := options{loopLimit: DefaultLoopLimit, stepLimit: DefaultStepLimit, maxFrames: DefaultMaxFrames}
	for _, fn := range opts {
		fn(&o)
	}
	env, err := runtime.New(doc, o.overrides)
	if err != nil {
		return nil, err
	}
	if o.hasSink {
		env.OnLog(o.sink)
	}
	if o.logger == nil {
		o.logger = log.WithComponent("engine")
	}
	e := &Engine{
		doc:      doc,
		env:      env,
		sections: make(map[string]*script.Section, len(doc.Sections)),
		opts:     o,
		log:      o.logger,
	}
	for _, s := range doc.Sections {
		e.sections[s.ID()] = s
	}

	if o.start != "" {
		sec, _, ok := doc.Section(o.start)
		if !ok {
			return nil, &RuntimeError{Err: ErrUnknownSection, Section: o.start, Hint: suggest.Closest(o.start, doc.SectionNames())}
		}
		e.frames = []Frame{newSectionFrame(sec, 0)}
	} else if len(doc.Sections) > 0 {
		e.frames = []Frame{newSectionFrame(doc.Sections[0], 0)}
	}
	return e, nil
}

func newSectionFrame(sec *script.Section, scopes int) Frame {
	return Frame{Kind: FrameSection, Section: sec.Name, Blocks: []Block{{Kind: BlockBody}}, ScopeBase: scopes, ScopeFloor: scopes}
}

// Document returns the document the engine runs.
func (e *Engine) Document() *script.Document { return e.doc }

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Variables returns a copy of the global variables.
func (e *Engine) Variables() []runtime.Binding { return e.env.Variables() }

// Characters returns a copy of the character property tables.
func (e *Engine) Characters() []domain.Character { return e.env.Characters() }

// Frames returns a copy of the frame stack, bottom first.
func (e *Engine) Frames() []Frame {
	out := make([]Frame, len(e.frames))
	for i, f := range e.frames {
		out[i] = f.clone()
	}
	return out
}

// Choices returns the visible options while AwaitingChoice.
func (e *Engine) Choices() []ChoiceOption {
	if e.pending == nil {
		return nil
	}
	return append([]ChoiceOption(nil), e.pending.Options...)
}

// Bind attaches a host callback to a declared function.
func (e *Engine) Bind(name string, fn runtime.HostFunc) error { return e.env.Bind(name, fn) }

// OnLog replaces the sink receiving logged comments.
func (e *Engine) OnLog(fn runtime.LogSink) { e.env.OnLog(fn) }

// Next continues a running engine. It is Step(nil).
func (e *Engine) Next() (Event, error) { return e.Step(nil) }

// Choose selects the visible option i of the pending choice. It is Step(&i).
func (e *Engine) Choose(i int) (Event, error) { return e.Step(&i) }

// Step runs until the next suspension point. While AwaitingChoice a
// selection is required; otherwise it must be nil. Misuse returns an error
// and leaves the engine untouched. Evaluation and runtime errors terminate
// the session and are returned with an empty event.
func (e *Engine) Step(choice *int) (Event, error) {
	switch e.state {
	case Completed, Terminated:
		return Event{}, ErrFinished
	case AwaitingChoice:
		if choice == nil {
			return Event{}, ErrChoiceRequired
		}
		if *choice < 0 || *choice >= len(e.pending.Options) {
			return Event{}, ErrInvalidChoice
		}
		if err := e.choose(*choice); err != nil {
			return e.fail(err)
		}
	default:
		if choice != nil {
			return Event{}, ErrUnexpectedChoice
		}
	}
	e.steps = 0
	return e.run()
}

func (e *Engine) choose(i int) error {
	opt := e.pending.Options[i]
	path := append(append([]int(nil), e.pending.SetPath...), opt.Source)
	parent := e.frames[len(e.frames)-1]
	e.pending = nil
	e.state = Running
	if len(e.frames) >= e.opts.maxFrames {
		return &RuntimeError{Section: parent.Section, Line: opt.Line, Err: ErrStackOverflow}
	}
	e.frames = append(e.frames, Frame{
		Kind:       FrameChoice,
		Section:    parent.Section,
		Blocks:     []Block{{Kind: BlockBody, Path: path}},
		ScopeBase:  e.env.Depth(),
		ScopeFloor: parent.ScopeFloor,
	})
	e.log.Debug("choice selected", slog.String("section", parent.Section), slog.Int("option", opt.Source), slog.String("prompt", opt.Prompt))
	return nil
}

// fail ends the session after a runtime error.
func (e *Engine) fail(err error) (Event, error) {
	e.frames = nil
	e.pending = nil
	e.buf = Page{}
	e.state = Terminated
	e.env.Truncate(0)
	e.log.Debug("session terminated by error", slog.Any("err", err))
	return Event{}, err
}

// takePage returns the buffered page and resets the buffer.
func (e *Engine) takePage() Page {
	p := e.buf
	e.buf = Page{}
	return p
}
