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
	"log/slog"
	"math"

	"golex/internal/domain"
	"golex/internal/expr"
	"golex/internal/runtime"
	"golex/internal/script"
	"golex/internal/suggest"
)

// run executes nodes until a suspension point.
func (e *Engine) run() (Event, error) {
	for {
		if len(e.frames) == 0 {
			e.state = Completed
			e.env.Truncate(0)
			return Event{Kind: EventCompleted, Page: e.takePage()}, nil
		}
		f := &e.frames[len(e.frames)-1]
		if !e.inLoop() {
			e.steps++
		}
		if e.steps > e.opts.stepLimit {
			return e.fail(&RuntimeError{Section: f.Section, Err: ErrStepLimitExceeded})
		}
		sec := e.section(f.Section)
		if sec == nil {
			return e.fail(&RuntimeError{Section: f.Section, Err: ErrUnknownSection})
		}
		b := f.top()
		list, err := nodesAt(sec, b.Path)
		if err != nil {
			return e.fail(&RuntimeError{Section: f.Section, Err: fmt.Errorf("%w: %v", ErrBadSnapshot, err)})
		}

		var (
			ev   Event
			stop bool
		)
		if b.Cursor >= len(list) {
			ev, stop, err = e.endBlock(sec)
		} else {
			n := list[b.Cursor]
			b.Cursor++
			ev, stop, err = e.exec(sec, b.Path, b.Cursor-1, n)
			if err != nil {
				err = e.locate(n.Line, err)
			}
		}
		if err != nil {
			return e.fail(err)
		}
		if stop {
			return ev, nil
		}
	}
}

// inLoop reports whether a loop block is open in any frame. Loop bodies are
// bounded by the loop limit, so their nodes do not count as steps.
func (e *Engine) inLoop() bool {
	for i := len(e.frames) - 1; i >= 0; i-- {
		for _, b := range e.frames[i].Blocks {
			switch b.Kind {
			case BlockRepeat, BlockWhile, BlockEach:
				return true
			}
		}
	}
	return false
}

func (e *Engine) section(name string) *script.Section {
	return e.sections[domain.NormalizeID(name)]
}

func (e *Engine) top() *Frame { return &e.frames[len(e.frames)-1] }

// locate attaches the current section and line to err.
func (e *Engine) locate(line int, err error) error {
	if re, ok := err.(*RuntimeError); ok {
		if re.Line == 0 {
			re.Line = line
		}
		return re
	}
	sec := ""
	if len(e.frames) > 0 {
		sec = e.top().Section
	}
	return &RuntimeError{Section: sec, Line: line, Err: err}
}

func (e *Engine) push(b Block) {
	f := e.top()
	f.Blocks = append(f.Blocks, b)
}

// exec runs node n found at index idx of the list addressed by path.
func (e *Engine) exec(sec *script.Section, path []int, idx int, n *script.Node) (Event, bool, error) {
	switch n.Kind {
	case script.NodeText, script.NodeDialogue:
		text, err := n.Text.Render(e.env)
		if err != nil {
			return Event{}, false, err
		}
		seg := Segment{Kind: SegmentText, Text: text, Line: n.Line, Attrs: e.activeAttrs(sec)}
		if n.Kind == script.NodeDialogue {
			seg.Kind = SegmentDialogue
			seg.Speaker = n.Speaker.Name
			if n.Speaker.Identified {
				seg.SpeakerID = n.Speaker.ID
				seg.Speaker = e.env.DisplayName(n.Speaker.ID)
			}
		}
		e.buf.Segments = append(e.buf.Segments, seg)

	case script.NodePageBreak:
		if !e.buf.Empty() {
			return Event{Kind: EventPage, Page: e.takePage()}, true, nil
		}

	case script.NodeChoiceSet:
		return e.offer(path, idx, n)

	case script.NodeAnnotation:
		pass := true
		if n.Cond != nil {
			ok, err := n.Cond.EvalBool(e.env)
			if err != nil {
				return Event{}, false, err
			}
			pass = ok
		}
		if pass {
			e.buf.Annotations = append(e.buf.Annotations, n.Attrs...)
			e.push(Block{Kind: BlockAnnotation, Path: childPath(path, idx, 0)})
		} else if len(n.Else) > 0 {
			e.push(Block{Kind: BlockBody, Path: childPath(path, idx, 1)})
		}

	case script.NodeIf:
		for bi, br := range n.Branches {
			if br.Cond != nil {
				ok, err := br.Cond.EvalBool(e.env)
				if err != nil {
					return Event{}, false, err
				}
				if !ok {
					continue
				}
			}
			e.push(Block{Kind: BlockBody, Path: childPath(path, idx, bi)})
			break
		}

	case script.NodeRepeat:
		v, err := n.Cond.Eval(e.env)
		if err != nil {
			return Event{}, false, err
		}
		if v.Kind != domain.KindNumber {
			return Event{}, false, &expr.Error{Kind: expr.ErrTypeMismatch, Source: n.Cond.Source, Detail: fmt.Sprintf("REPEAT count is %s, want number", v.Kind)}
		}
		count := math.Trunc(v.Num)
		if math.IsNaN(count) {
			return Event{}, false, &expr.Error{Kind: expr.ErrTypeMismatch, Source: n.Cond.Source, Detail: "REPEAT count is NaN"}
		}
		// compare before converting, huge counts overflow int
		if count > float64(e.opts.loopLimit) {
			return Event{}, false, fmt.Errorf("%w: REPEAT %s exceeds %d", ErrLoopLimitExceeded, domain.FormatNumber(count), e.opts.loopLimit)
		}
		if count > 0 {
			e.push(Block{Kind: BlockRepeat, Path: childPath(path, idx, 0), Remaining: int(count) - 1})
		}

	case script.NodeWhile:
		ok, err := n.Cond.EvalBool(e.env)
		if err != nil {
			return Event{}, false, err
		}
		if ok {
			e.push(Block{Kind: BlockWhile, Path: childPath(path, idx, 0), Iter: 1})
		}

	case script.NodeEach:
		v, err := n.Cond.Eval(e.env)
		if err != nil {
			return Event{}, false, err
		}
		if v.Kind != domain.KindArray {
			return Event{}, false, &expr.Error{Kind: expr.ErrTypeMismatch, Source: n.Cond.Source, Detail: fmt.Sprintf("EACH over %s, want array", v.Kind)}
		}
		if len(v.Items) > 0 {
			items := v.Clone().Items
			e.env.Push(n.Var, items[0])
			e.push(Block{Kind: BlockEach, Path: childPath(path, idx, 0), Items: items})
		}

	case script.NodeGroup:
		e.push(Block{Kind: BlockBody, Path: childPath(path, idx, 0)})

	case script.NodeAssign:
		return Event{}, false, e.assign(n.Assign)

	case script.NodeCall:
		if _, err := n.Cond.Eval(e.env); err != nil {
			return Event{}, false, err
		}

	case script.NodeLog:
		text, err := n.Text.Render(e.env)
		if err != nil {
			return Event{}, false, err
		}
		e.env.Log(runtime.LogEvent{Severity: n.Severity, Text: text, Section: sec.Name, Line: n.Line})

	case script.NodeJump:
		return e.jump(n)
	}
	return Event{}, false, nil
}

func (e *Engine) assign(a *script.Assignment) error {
	v, err := a.Value.Eval(e.env)
	if err != nil {
		return err
	}
	if a.Op != "" {
		var cur domain.Value
		var ok bool
		if a.Target == script.TargetVariable {
			cur, ok = e.env.Lookup(a.Name)
		} else {
			cur, ok = e.env.Property(a.Name, a.Prop)
		}
		if !ok {
			return &expr.Error{Kind: expr.ErrUndefinedReference, Source: a.Value.Source, Detail: assignTarget(a)}
		}
		if v, err = expr.Arith(a.Op, cur, v); err != nil {
			return err
		}
	}
	if a.Target == script.TargetVariable {
		return e.env.Assign(a.Name, v)
	}
	return e.env.SetProperty(a.Name, a.Prop, v)
}

func assignTarget(a *script.Assignment) string {
	if a.Target == script.TargetProperty {
		return "@" + a.Name + "." + a.Prop
	}
	return "$" + a.Name
}

// offer suspends on a choice set, or skips it when no option is visible.
func (e *Engine) offer(path []int, idx int, n *script.Node) (Event, bool, error) {
	var opts []ChoiceOption
	for i, c := range n.Choices {
		if c.Cond != nil {
			ok, err := c.Cond.EvalBool(e.env)
			if err != nil {
				return Event{}, false, err
			}
			if !ok {
				continue
			}
		}
		prompt, err := c.Prompt.Render(e.env)
		if err != nil {
			return Event{}, false, err
		}
		opts = append(opts, ChoiceOption{Index: len(opts), Source: i, Prompt: prompt, Attrs: c.Attrs, Line: c.Line})
	}
	if len(opts) == 0 {
		e.log.Debug("choice set skipped, no visible options", slog.Int("line", n.Line))
		return Event{}, false, nil
	}
	setPath := append(append([]int(nil), path...), idx)
	e.pending = &PendingChoice{SetPath: setPath, Options: opts}
	e.state = AwaitingChoice
	return Event{Kind: EventChoice, Page: e.takePage(), Choices: append([]ChoiceOption(nil), opts...)}, true, nil
}

// endBlock handles the top block running off its end.
func (e *Engine) endBlock(sec *script.Section) (Event, bool, error) {
	f := e.top()
	if len(f.Blocks) == 1 {
		return e.endFrame()
	}
	b := f.top()
	switch b.Kind {
	case BlockRepeat:
		if b.Remaining > 0 {
			b.Remaining--
			b.Cursor = 0
			return Event{}, false, nil
		}
	case BlockWhile:
		owner := ownerAt(sec, b.Path)
		ok, err := owner.Cond.EvalBool(e.env)
		if err != nil {
			return Event{}, false, e.locate(owner.Line, err)
		}
		if ok {
			if b.Iter >= e.opts.loopLimit {
				return Event{}, false, e.locate(owner.Line, fmt.Errorf("%w: WHILE ran %d times", ErrLoopLimitExceeded, b.Iter))
			}
			b.Iter++
			b.Cursor = 0
			return Event{}, false, nil
		}
	case BlockEach:
		owner := ownerAt(sec, b.Path)
		e.env.Pop()
		b.Iter++
		if b.Iter < len(b.Items) {
			e.env.Push(owner.Var, b.Items[b.Iter])
			b.Cursor = 0
			return Event{}, false, nil
		}
	}
	f.Blocks = f.Blocks[:len(f.Blocks)-1]
	return Event{}, false, nil
}

// endFrame handles a frame running off the end of its root list. A choice
// body resumes after its choice set, a bounced section returns to its
// caller and the bottom section continues with the next section in
// document order.
func (e *Engine) endFrame() (Event, bool, error) {
	f := e.top()
	switch {
	case f.Kind == FrameChoice:
		e.popFrame()
		return Event{}, false, nil
	case len(e.frames) > 1:
		e.popFrame()
		return e.boundary()
	}
	_, i, _ := e.doc.Section(f.Section)
	if i < 0 || i+1 >= len(e.doc.Sections) {
		e.popFrame()
		return Event{}, false, nil
	}
	next := e.doc.Sections[i+1]
	*f = newSectionFrame(next, f.ScopeBase)
	return e.boundary()
}

func (e *Engine) popFrame() {
	f := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	e.env.Truncate(f.ScopeBase)
	if len(e.frames) > 0 {
		e.env.SetFloor(e.top().ScopeFloor)
	}
}

func (e *Engine) unwindChoices() {
	for len(e.frames) > 0 && e.top().Kind == FrameChoice {
		e.popFrame()
	}
}

// boundary ends the page when control moves to another section.
func (e *Engine) boundary() (Event, bool, error) {
	if e.buf.Empty() {
		return Event{}, false, nil
	}
	return Event{Kind: EventPage, Page: e.takePage()}, true, nil
}

func (e *Engine) jump(n *script.Node) (Event, bool, error) {
	j := n.Jump
	switch j.Kind {
	case script.JumpTerminate:
		page := e.takePage()
		e.frames = nil
		e.pending = nil
		e.env.Truncate(0)
		e.state = Terminated
		e.log.Debug("terminated", slog.Int("line", n.Line))
		return Event{Kind: EventTerminated, Page: page}, true, nil

	case script.JumpEnd:
		e.unwindChoices()
		e.popFrame()
		if len(e.frames) == 0 {
			return Event{}, false, nil
		}
		return e.boundary()

	case script.JumpToSection:
		sec, err := e.target(j.Target)
		if err != nil {
			return Event{}, false, err
		}
		e.unwindChoices()
		f := e.top()
		e.env.Truncate(f.ScopeBase)
		base, floor := f.ScopeBase, f.ScopeFloor
		*f = newSectionFrame(sec, base)
		f.ScopeFloor = floor
		e.env.SetFloor(floor)
		e.log.Debug("jump", slog.String("to", sec.Name))
		return e.boundary()

	case script.JumpBounce:
		sec, err := e.target(j.Target)
		if err != nil {
			return Event{}, false, err
		}
		if len(e.frames) >= e.opts.maxFrames {
			return Event{}, false, fmt.Errorf("%w: %d frames", ErrStackOverflow, len(e.frames))
		}
		depth := e.env.Depth()
		e.frames = append(e.frames, newSectionFrame(sec, depth))
		e.env.SetFloor(depth)
		e.log.Debug("bounce", slog.String("to", sec.Name), slog.Int("depth", len(e.frames)))
		return e.boundary()
	}
	return Event{}, false, nil
}

func (e *Engine) target(name string) (*script.Section, error) {
	sec, _, ok := e.doc.Section(name)
	if !ok {
		return nil, &RuntimeError{
			Section: e.top().Section,
			Err:     fmt.Errorf("%w: #%s", ErrUnknownSection, name),
			Hint:    suggest.Closest(name, e.doc.SectionNames()),
		}
	}
	return sec, nil
}

// activeAttrs collects the attributes of the annotation blocks open in the
// top frame.
func (e *Engine) activeAttrs(sec *script.Section) []script.Attr {
	var out []script.Attr
	for _, b := range e.top().Blocks {
		if b.Kind != BlockAnnotation {
			continue
		}
		if owner := ownerAt(sec, b.Path); owner != nil {
			out = append(out, owner.Attrs...)
		}
	}
	return out
}
