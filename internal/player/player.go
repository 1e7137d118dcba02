/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package player drives an engine from a terminal: it prints pages and
// numbered choices and reads the reader's commands.
package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golex/internal/engine"
	"golex/internal/log"
	"golex/internal/runtime"
	"golex/internal/script"
	"golex/internal/undo"
)

// Options controls a play session.
type Options struct {
	// Auto takes the first visible choice and never waits at page breaks.
	Auto bool
	// ShowAnnotations prefixes segments with their annotation attributes.
	ShowAnnotations bool
	// Session keys the history; usually the script path.
	Session string
	// History enables the `back` command. A nil History disables it.
	History *undo.Manager
}

type player struct {
	eng  *engine.Engine
	out  io.Writer
	opts Options
	log  *slog.Logger
}

// Run plays eng until it completes or terminates, the reader quits, input
// ends or ctx is cancelled. It returns the engine state at exit.
func Run(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, opts Options) (engine.State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := &player{eng: eng, out: out, opts: opts, log: log.WithOperation(log.WithComponent("player"), "play")}
	eng.OnLog(p.printLog)
	lines := readLines(ctx, in)

	var (
		ev  engine.Event
		err error
	)
	if eng.State() == engine.AwaitingChoice {
		// restored at a choice
		ev = engine.Event{Kind: engine.EventChoice, Choices: eng.Choices()}
	} else {
		ev, err = p.advance(undo.NoInput)
	}
	show := true
	for {
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return eng.State(), err
		}
		if show {
			p.render(ev)
			if ev.Kind == engine.EventCompleted || ev.Kind == engine.EventTerminated {
				p.log.Debug("session finished", slog.String("state", eng.State().String()))
				return eng.State(), nil
			}
		}
		show = true

		cmd, input, ok, rerr := p.prompt(ctx, lines, ev)
		if rerr != nil {
			return eng.State(), rerr
		}
		if !ok || cmd == cmdQuit {
			return eng.State(), nil
		}
		if cmd != cmdBack {
			ev, err = p.advance(input)
			continue
		}
		prev, moved, berr := p.back()
		switch {
		case berr != nil:
			err = berr
		case !moved:
			fmt.Fprintln(out, "(nothing to go back to)")
			show = false
		default:
			ev = prev
		}
	}
}

type command int

const (
	cmdNext command = iota
	cmdBack
	cmdQuit
)

// prompt reads until the line is a usable command for ev. ok is false when
// input ended.
func (p *player) prompt(ctx context.Context, lines <-chan string, ev engine.Event) (command, int, bool, error) {
	if p.opts.Auto {
		if ev.Kind == engine.EventChoice {
			fmt.Fprintf(p.out, "> %d\n", 1)
			return cmdNext, 0, true, nil
		}
		return cmdNext, undo.NoInput, true, nil
	}
	for {
		if ev.Kind == engine.EventChoice {
			fmt.Fprint(p.out, "> ")
		} else {
			fmt.Fprint(p.out, "[enter] ")
		}
		var line string
		select {
		case <-ctx.Done():
			return 0, 0, false, ctx.Err()
		case l, open := <-lines:
			if !open {
				fmt.Fprintln(p.out)
				return 0, 0, false, nil
			}
			line = strings.ToLower(strings.TrimSpace(l))
		}
		switch line {
		case "q", "quit", "exit":
			return cmdQuit, 0, true, nil
		case "b", "back":
			return cmdBack, 0, true, nil
		}
		if ev.Kind != engine.EventChoice {
			return cmdNext, undo.NoInput, true, nil
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(ev.Choices) {
			fmt.Fprintf(p.out, "pick 1-%d, back or quit\n", len(ev.Choices))
			continue
		}
		return cmdNext, n - 1, true, nil
	}
}

// advance records the current state and steps the engine.
func (p *player) advance(input int) (engine.Event, error) {
	if p.opts.History != nil {
		blob, err := p.eng.Save()
		if err != nil {
			return engine.Event{}, fmt.Errorf("snapshot: %w", err)
		}
		s := p.opts.History.Push(undo.Snapshot{Session: p.opts.Session, Blob: blob, Input: input})
		p.log.Debug("snapshot", slog.Int("seq", s.Seq), slog.Int("bytes", len(blob)))
	}
	if input == undo.NoInput {
		return p.eng.Next()
	}
	return p.eng.Choose(input)
}

// back restores the state the previous page came from and replays its step.
func (p *player) back() (engine.Event, bool, error) {
	if p.opts.History == nil {
		return engine.Event{}, false, nil
	}
	s, ok := p.opts.History.Back(p.opts.Session)
	if !ok {
		return engine.Event{}, false, nil
	}
	if err := p.eng.Load(s.Blob); err != nil {
		return engine.Event{}, false, err
	}
	p.log.Debug("back", slog.Int("seq", s.Seq))
	ev, err := p.advance(s.Input)
	return ev, true, err
}

func (p *player) render(ev engine.Event) {
	for _, seg := range ev.Page.Segments {
		if p.opts.ShowAnnotations && len(seg.Attrs) > 0 {
			fmt.Fprintf(p.out, "%s ", formatAttrs(seg.Attrs))
		}
		fmt.Fprintln(p.out, seg.String())
	}
	switch ev.Kind {
	case engine.EventChoice:
		for i, o := range ev.Choices {
			fmt.Fprintf(p.out, "  %d) %s\n", i+1, o.Prompt)
		}
	case engine.EventCompleted:
		fmt.Fprintln(p.out, "-- end --")
	case engine.EventTerminated:
		fmt.Fprintln(p.out, "-- terminated --")
	default:
		fmt.Fprintln(p.out)
	}
}

func (p *player) printLog(ev runtime.LogEvent) {
	switch ev.Severity {
	case script.SeverityWarning:
		fmt.Fprintf(p.out, "warning: %s (#%s line %d)\n", ev.Text, ev.Section, ev.Line)
	case script.SeverityError:
		fmt.Fprintf(p.out, "error: %s (#%s line %d)\n", ev.Text, ev.Section, ev.Line)
	default:
		fmt.Fprintf(p.out, "// %s\n", ev.Text)
	}
}

func formatAttrs(attrs []script.Attr) string {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		if a.Value == "" {
			parts[i] = a.Key
		} else {
			parts[i] = a.Key + "=" + a.Value
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// readLines feeds input lines to a channel that closes at EOF.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
			log.WithComponent("player").Warn("reading input failed", slog.Any("err", err))
		}
	}()
	return ch
}
