/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"strings"

	"golex/internal/script"
)

// LineStyle selects how a listing line is printed.
type LineStyle int

const (
	StyleText LineStyle = iota
	StyleHeading
	StyleDialogue
	StyleControl
	StyleComment
	StyleBlank
)

// ListingLine is one printable line of a script listing.
type ListingLine struct {
	Depth int
	Style LineStyle
	Text  string
	// Source line, 0 for synthesized lines.
	Line int
}

// Listing flattens doc into indented lines in Lex notation: declarations
// first, then each section with its nested bodies.
func Listing(doc *script.Document) []ListingLine {
	var out []ListingLine
	add := func(depth int, style LineStyle, line int, format string, args ...any) {
		out = append(out, ListingLine{Depth: depth, Style: style, Text: fmt.Sprintf(format, args...), Line: line})
	}

	for _, c := range doc.Characters {
		add(0, StyleHeading, c.Line, "@%s", c.Label)
		for _, p := range c.Properties {
			add(1, StyleText, 0, "%s: %s", p.Name, p.Value)
		}
	}
	for _, g := range doc.Globals {
		add(0, StyleControl, g.Line, "$%s: %s", g.Name, g.Value)
	}
	for _, f := range doc.Functions {
		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			params[i] = p.Name
			if p.Default != nil {
				params[i] += "=" + p.Default.String()
			}
		}
		add(0, StyleControl, f.Line, "!%s(%s): %s", f.Label, strings.Join(params, ", "), f.Stub)
	}

	for _, s := range doc.Sections {
		if len(out) > 0 {
			add(0, StyleBlank, 0, "")
		}
		if s.Name != "" {
			add(0, StyleHeading, s.Line, "# %s", s.Name)
		}
		out = listNodes(out, s.Body, 0)
	}
	return out
}

func listNodes(out []ListingLine, nodes []*script.Node, depth int) []ListingLine {
	add := func(d int, style LineStyle, line int, text string) {
		out = append(out, ListingLine{Depth: d, Style: style, Text: text, Line: line})
	}
	for _, n := range nodes {
		switch n.Kind {
		case script.NodeText:
			add(depth, StyleText, n.Line, n.Text.Source)
		case script.NodeDialogue:
			name := n.Speaker.Name
			if n.Speaker.Identified {
				name = "@" + name
			}
			add(depth, StyleDialogue, n.Line, name+": "+n.Text.Source)
		case script.NodePageBreak:
			add(depth, StyleBlank, n.Line, "")
		case script.NodeLog:
			add(depth, StyleComment, n.Line, logPrefix(n.Severity)+" "+n.Text.Source)
		case script.NodeChoiceSet:
			for _, c := range n.Choices {
				if c.Cond != nil {
					add(depth, StyleControl, c.Line, annotationText(c.Attrs, c.Cond.Source))
				} else if len(c.Attrs) > 0 {
					add(depth, StyleControl, c.Line, annotationText(c.Attrs, ""))
				}
				add(depth, StyleText, c.Line, "- "+c.Prompt.Source)
				out = listNodes(out, c.Body, depth+1)
			}
		case script.NodeAnnotation:
			cond := ""
			if n.Cond != nil {
				cond = n.Cond.Source
			}
			add(depth, StyleControl, n.Line, annotationText(n.Attrs, cond))
			out = listNodes(out, n.Body, depth+1)
			if n.Else != nil {
				add(depth, StyleControl, 0, "~ ELSE")
				out = listNodes(out, n.Else, depth+1)
				add(depth, StyleControl, 0, "~")
			}
		case script.NodeIf:
			for i, br := range n.Branches {
				switch {
				case i == 0:
					add(depth, StyleControl, br.Line, "~ IF "+br.Cond.Source)
				case br.Cond != nil:
					add(depth, StyleControl, br.Line, "~ ELSE IF "+br.Cond.Source)
				default:
					add(depth, StyleControl, br.Line, "~ ELSE")
				}
				out = listNodes(out, br.Body, depth+1)
			}
			add(depth, StyleControl, 0, "~")
		case script.NodeRepeat, script.NodeWhile, script.NodeEach:
			head := "~ REPEAT " + n.Cond.Source
			switch n.Kind {
			case script.NodeWhile:
				head = "~ WHILE " + n.Cond.Source
			case script.NodeEach:
				head = "~ EACH " + n.Cond.Source + " as $" + n.Var
			}
			add(depth, StyleControl, n.Line, head)
			out = listNodes(out, n.Body, depth+1)
			add(depth, StyleControl, 0, "~")
		case script.NodeGroup:
			add(depth, StyleControl, n.Line, "|")
			out = listNodes(out, n.Body, depth+1)
		case script.NodeAssign:
			add(depth, StyleControl, n.Line, assignText(n.Assign))
		case script.NodeCall:
			add(depth, StyleControl, n.Line, n.Cond.Source)
		case script.NodeJump:
			add(depth, StyleControl, n.Line, jumpText(n.Jump))
		}
	}
	return out
}

func logPrefix(s script.Severity) string {
	switch s {
	case script.SeverityWarning:
		return "//?"
	case script.SeverityError:
		return "//!"
	}
	return "///"
}

func annotationText(attrs []script.Attr, cond string) string {
	parts := make([]string, 0, len(attrs)+1)
	for _, a := range attrs {
		if a.Value == "" {
			parts = append(parts, a.Key)
		} else {
			parts = append(parts, a.Key+"="+a.Value)
		}
	}
	if cond != "" {
		parts = append(parts, "if="+cond)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func assignText(a *script.Assignment) string {
	target := "$" + a.Name
	if a.Target == script.TargetProperty {
		target = "@" + a.Name + "." + a.Prop
	}
	return fmt.Sprintf("%s %s= %s", target, a.Op, a.Value.Source)
}

func jumpText(j *script.Jump) string {
	switch j.Kind {
	case script.JumpEnd:
		return "=> END"
	case script.JumpTerminate:
		return "=> TERMINATE"
	case script.JumpBounce:
		return "=><= #" + j.Target
	}
	return "=> #" + j.Target
}
