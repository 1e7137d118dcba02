/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package runtime

import (
	"log/slog"

	"golex/internal/log"
	"golex/internal/script"
)

// LogEvent is a logged comment (`///`, `//?`, `//!`) reached during execution.
// Text is already interpolated.
type LogEvent struct {
	Severity script.Severity
	Text     string
	Section  string
	Line     int
}

// LogSink receives log events synchronously from the engine.
type LogSink func(LogEvent)

// DefaultSink forwards log events to the `script` component logger.
func DefaultSink() LogSink {
	return func(ev LogEvent) {
		l := log.WithComponent("script")
		attrs := []any{slog.String("section", ev.Section), slog.Int("line", ev.Line)}
		switch ev.Severity {
		case script.SeverityError:
			l.Error(ev.Text, attrs...)
		case script.SeverityWarning:
			l.Warn(ev.Text, attrs...)
		default:
			l.Info(ev.Text, attrs...)
		}
	}
}

// OnLog replaces the log sink. A nil sink discards events.
func (e *Env) OnLog(fn LogSink) { e.sink = fn }

// Log delivers ev to the sink.
func (e *Env) Log(ev LogEvent) {
	if e.sink != nil {
		e.sink(ev)
	}
}
