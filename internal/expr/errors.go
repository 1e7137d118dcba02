/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package expr

import (
	"errors"
	"fmt"
)

// Sentinel kinds of evaluation failures. Concrete errors wrap one of these
// and are matched with errors.Is.
var (
	ErrSyntax             = errors.New("syntax error")
	ErrUndefinedReference = errors.New("undefined reference")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrUnknownFunction    = errors.New("unknown function")
	ErrHostFunction       = errors.New("host function failed")
)

// Error is an expression failure tied to the source text it came from.
type Error struct {
	Kind   error
	Source string
	Detail string
	// Cause is an underlying error, e.g. one returned by a host callback.
	Cause error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Source != "" {
		msg += fmt.Sprintf(" in %q", e.Source)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
