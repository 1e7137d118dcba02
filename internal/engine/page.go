/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"strings"

	"golex/internal/script"
)

// SegmentKind distinguishes narration from spoken lines.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentDialogue
)

// Segment is one rendered line of a page.
type Segment struct {
	Kind SegmentKind `cbor:"1,keyasint"`
	// Speaker is the display name; SpeakerID is set for declared characters.
	Speaker   string        `cbor:"2,keyasint,omitempty"`
	SpeakerID string        `cbor:"3,keyasint,omitempty"`
	Text      string        `cbor:"4,keyasint"`
	Attrs     []script.Attr `cbor:"5,keyasint,omitempty"`
	Line      int           `cbor:"6,keyasint"`
}

// String renders the segment as `Speaker: text` or plain text.
func (s Segment) String() string {
	if s.Kind == SegmentDialogue {
		return s.Speaker + ": " + s.Text
	}
	return s.Text
}

// Page is one unit of presented content. Annotations lists the attributes
// of every annotation entered while the page was built, in order.
type Page struct {
	Segments    []Segment     `cbor:"1,keyasint"`
	Annotations []script.Attr `cbor:"2,keyasint,omitempty"`
}

// Empty reports whether the page has no segments.
func (p Page) Empty() bool { return len(p.Segments) == 0 }

// Text joins the rendered segments with newlines.
func (p Page) Text() string {
	lines := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		lines[i] = s.String()
	}
	return strings.Join(lines, "\n")
}

// ChoiceOption is a visible choice. Index is the position to pass to Choose;
// Source is the position within the choice set as written.
type ChoiceOption struct {
	Index  int           `cbor:"1,keyasint"`
	Source int           `cbor:"2,keyasint"`
	Prompt string        `cbor:"3,keyasint"`
	Attrs  []script.Attr `cbor:"4,keyasint,omitempty"`
	Line   int           `cbor:"5,keyasint"`
}

// EventKind identifies what Step stopped at.
type EventKind int

const (
	EventPage EventKind = iota
	EventChoice
	EventCompleted
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventPage:
		return "page"
	case EventChoice:
		return "choice"
	case EventCompleted:
		return "completed"
	case EventTerminated:
		return "terminated"
	}
	return "unknown"
}

// Event is the result of one Step. Page holds the content accumulated since
// the previous suspension: the page itself, the lead-in of a choice, or the
// last content before completion or termination.
type Event struct {
	Kind    EventKind
	Page    Page
	Choices []ChoiceOption
}
