/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"errors"
	"fmt"
)

// Runtime failures. They end the session: the engine moves to Terminated.
var (
	ErrUnknownSection    = errors.New("unknown section")
	ErrLoopLimitExceeded = errors.New("loop limit exceeded")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrStackOverflow     = errors.New("frame stack overflow")
)

// Caller misuse. The engine state is left unchanged.
var (
	ErrChoiceRequired   = errors.New("a choice must be selected")
	ErrInvalidChoice    = errors.New("invalid choice index")
	ErrUnexpectedChoice = errors.New("no choice is pending")
	ErrFinished         = errors.New("engine has finished")
	ErrBadSnapshot      = errors.New("snapshot does not match the document")
)

// RuntimeError locates a failure in the document. Err is either one of the
// runtime sentinels above or an expression error (see expr.Error).
type RuntimeError struct {
	Section string
	Line    int
	Err     error
	Hint    string
}

func (e *RuntimeError) Error() string {
	where := fmt.Sprintf("line %d", e.Line)
	if e.Section != "" {
		where = fmt.Sprintf("section %q, %s", e.Section, where)
	}
	msg := fmt.Sprintf("%s: %v", where, e.Err)
	if e.Hint != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Hint)
	}
	return msg
}

func (e *RuntimeError) Unwrap() error { return e.Err }
