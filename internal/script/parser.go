/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"regexp"
	"strings"

	"golex/internal/domain"
	"golex/internal/expr"
	"golex/internal/lexer"
	"golex/internal/suggest"
)

// Parse parses Lex source text into a Document.
//
// Supported syntax:
//   - Declarations (top level, hoisted): `@Id` followed by `key: value` lines,
//     `$name: value`, `!name(p=default, ...): stub`.
//   - Sections: `# Name` at depth 0. Content before the first header forms an
//     implicit section with the empty name.
//   - Text and dialogue: `@Id: text` (declared character), `Name: text`
//     (anonymous speaker) or plain prose. `{expr}` interpolates.
//   - Choices: `- prompt`, with the body indented one level.
//   - Control blocks: `~ IF c` / `~ ELSE IF c` / `~ ELSE`, `~ REPEAT n`,
//     `~ WHILE c`, `~ EACH arr as $v`, closed by a bare `~`.
//   - Annotations: `[k=v, if=c]` wraps the next node; `[k=v` opens a block
//     closed by `]`.
//   - Jumps: `=> #Name`, `=> END`, `=><= #Name`, `=> TERMINATE`.
//   - Assignments `$v = e`, `@Id.prop += e`; calls `!name(args)`.
//   - Lines starting with `|` are joined into one page group.
//
// Parsing is not fault tolerant: the first error aborts with an *Error.
func Parse(source string) (*Document, error) {
	recs, err := lexer.Tokenize(source)
	if err != nil {
		return nil, fromLexError(err)
	}
	p := &parser{
		doc:        &Document{},
		characters: declaredCharacters(recs),
		sections:   map[string]int{},
	}
	for _, r := range recs {
		if err := p.line(r); err != nil {
			return nil, err
		}
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

// Patterns
var (
	reIdent       = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)
	reFuncName    = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)
	reDisplayName = regexp.MustCompile(`^[\p{L}\p{N}_][\p{L}\p{N}_\-'. ]{0,63}$`)
	reVarAssign   = regexp.MustCompile(`^([\p{L}\p{N}_]+)\s*([-+*/]?=)([^=].*|)$`)
	rePropAssign  = regexp.MustCompile(`^([\p{L}\p{N}_]+)\.([\p{L}\p{N}_]+)\s*([-+*/]?=)([^=].*|)$`)
	reControl     = regexp.MustCompile(`(?i)^(else\s+if|elseif|elif|if|else|repeat|while|each)\b\s*(.*)$`)
	reEach        = regexp.MustCompile(`(?i)^(.+?)\s+as\s+\$([\p{L}\p{N}_]+)$`)
)

type blockKind int

const (
	blockSection blockKind = iota
	blockChoice
	blockControl
	blockAnnotation
)

// block is one open container on the depth stack.
type block struct {
	kind      blockKind
	depth     int // header depth; -1 for the section root
	bodyDepth int // depth of children; -1 until the first child fixes it
	body      *[]*Node
	node      *Node
	keyword   string
	line      int
}

type pendingAnnotation struct {
	attrs []Attr
	cond  *expr.Expr
	depth int
	line  int
}

type parser struct {
	doc        *Document
	section    *Section
	stack      []*block
	sections   map[string]int
	characters map[string]string // normalized id -> label, from the pre-scan
	seenHeader bool

	pendingBlank bool
	blankLine    int
	annot        *pendingAnnotation
	decl         *domain.Character
	group        *Node
	groupDepth   int
}

// declaredCharacters pre-scans the records for character declarations so
// dialogue lines may refer to characters declared further down.
func declaredCharacters(recs []lexer.Record) map[string]string {
	out := map[string]string{}
	for _, r := range recs {
		if r.Sigil == lexer.SigilCharacter && r.Depth == 0 && !r.Continued && isCharacterDecl(r) {
			label := strings.TrimSpace(r.Payload)
			out[domain.NormalizeID(label)] = label
		}
	}
	return out
}

func isCharacterDecl(r lexer.Record) bool {
	return r.Index(":") < 0 && !rePropAssign.MatchString(r.Payload)
}

func (p *parser) top() *block {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *parser) push(b *block) { p.stack = append(p.stack, b) }

func (p *parser) pop() { p.stack = p.stack[:len(p.stack)-1] }

func (p *parser) line(r lexer.Record) error {
	if r.Sigil == lexer.SigilBlank {
		p.group = nil
		p.decl = nil
		if p.annot != nil {
			return errorf(ErrSyntax, p.annot.line, "annotation is not followed by a node")
		}
		if !p.pendingBlank {
			p.pendingBlank, p.blankLine = true, r.Line
		}
		return nil
	}

	if p.decl != nil {
		if ok, err := p.property(r); ok || err != nil {
			return err
		}
		p.decl = nil
	}

	if p.annot != nil && r.Depth != p.annot.depth {
		return errorf(ErrSyntax, p.annot.line, "annotation must be followed by a node at the same depth")
	}

	if r.Continued {
		return p.continued(r)
	}
	p.group = nil

	switch r.Sigil {
	case lexer.SigilSection:
		return p.sectionHeader(r)
	case lexer.SigilCharacter:
		if isCharacterDecl(r) {
			return p.characterDecl(r)
		}
	case lexer.SigilVariable:
		if !reVarAssign.MatchString(r.Payload) {
			return p.variableDecl(r)
		}
	case lexer.SigilFunction:
		sig, err := parseSignature(r)
		if err != nil {
			return err
		}
		if !p.seenHeader || sig.hasStub {
			return p.functionDecl(r, sig)
		}
	}

	b, consumed, err := p.resolve(r)
	if err != nil || consumed {
		if consumed {
			p.pendingBlank = false
		}
		return err
	}
	p.flushBlank(b, r)
	return p.content(b, r)
}

// resolve pops finished containers and returns the block the record belongs
// to. consumed is set when the record was a closer or an ELSE arm.
func (p *parser) resolve(r lexer.Record) (*block, bool, error) {
	d := r.Depth
	if len(p.stack) == 0 {
		if d != 0 {
			return nil, false, errorf(ErrBadIndentation, r.Line, "unexpected indentation at top level")
		}
		p.openSection("", r.Line)
	}
	for {
		b := p.top()
		switch b.kind {
		case blockSection:
			if d != 0 {
				return nil, false, errorf(ErrBadIndentation, r.Line, "unexpected indentation (depth %d, expected 0)", d)
			}
			return b, false, nil

		case blockChoice:
			if d > b.depth {
				if d != b.depth+1 {
					return nil, false, errorf(ErrBadIndentation, r.Line, "choice body must be indented exactly one level (depth %d, expected %d)", d, b.depth+1)
				}
				return b, false, nil
			}
			p.pop()

		case blockControl, blockAnnotation:
			if d == b.depth {
				if closes(b, r) {
					p.pop()
					return nil, true, nil
				}
				if kw, rest, ok := elseArm(r); ok && b.node.Kind == NodeIf {
					return nil, true, p.addBranch(b, r, kw, rest)
				}
			}
			if b.bodyDepth < 0 && (d == b.depth || d == b.depth+1) {
				b.bodyDepth = d
			}
			if d == b.bodyDepth {
				return b, false, nil
			}
			if d < b.bodyDepth {
				return nil, false, unclosed(b)
			}
			return nil, false, errorf(ErrBadIndentation, r.Line, "unexpected indentation inside %s block (depth %d, expected %d)", b.keyword, d, b.bodyDepth)
		}
	}
}

func closes(b *block, r lexer.Record) bool {
	switch b.kind {
	case blockControl:
		return r.Sigil == lexer.SigilControl && strings.TrimSpace(r.Payload) == ""
	case blockAnnotation:
		return r.Sigil == lexer.SigilAnnotationClose
	}
	return false
}

func unclosed(b *block) *Error {
	closer := "~"
	if b.kind == blockAnnotation {
		closer = "]"
	}
	return errorf(ErrUnclosedBlock, b.line, "%s block is not closed with '%s'", b.keyword, closer)
}

// elseArm recognizes `~ ELSE`, `~ ELSE IF c`, `~ ELSEIF c` and `~ ELIF c`.
func elseArm(r lexer.Record) (kw, rest string, ok bool) {
	if r.Sigil != lexer.SigilControl {
		return "", "", false
	}
	m := reControl.FindStringSubmatch(strings.TrimSpace(r.Payload))
	if m == nil {
		return "", "", false
	}
	kw = strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
	switch kw {
	case "ELSE", "ELSE IF", "ELSEIF", "ELIF":
		return kw, strings.TrimSpace(m[2]), true
	}
	return "", "", false
}

func (p *parser) addBranch(b *block, r lexer.Record, kw, rest string) error {
	last := b.node.Branches[len(b.node.Branches)-1]
	if last.Cond == nil {
		return errorf(ErrSyntax, r.Line, "%s after ELSE", kw)
	}
	br := &Branch{Line: r.Line}
	if kw != "ELSE" {
		cond, err := parseExpr(rest, r.Line, kw)
		if err != nil {
			return err
		}
		br.Cond = cond
	} else if rest != "" {
		return errorf(ErrSyntax, r.Line, "unexpected text after ELSE: %q", rest)
	}
	b.node.Branches = append(b.node.Branches, br)
	b.body = &br.Body
	b.bodyDepth = -1
	return nil
}

// flushBlank turns a pending blank line into a page break when the record
// lands in a section or choice body. Blank lines inside control and
// annotation blocks, and between sibling choices, are dropped.
func (p *parser) flushBlank(b *block, r lexer.Record) {
	if !p.pendingBlank {
		return
	}
	p.pendingBlank = false
	if b.kind != blockSection && b.kind != blockChoice {
		return
	}
	body := *b.body
	if len(body) == 0 {
		return
	}
	last := body[len(body)-1]
	if last.Kind == NodePageBreak {
		return
	}
	if (r.Sigil == lexer.SigilChoice || r.Sigil == lexer.SigilAnnotationOpen) && last.Kind == NodeChoiceSet {
		return
	}
	*b.body = append(*b.body, &Node{Kind: NodePageBreak, Line: p.blankLine})
}

// add appends n to the block body, wrapping it in a pending annotation.
func (p *parser) add(b *block, n *Node) {
	if a := p.annot; a != nil {
		p.annot = nil
		n = &Node{Kind: NodeAnnotation, Line: a.line, Attrs: a.attrs, Cond: a.cond, Body: []*Node{n}}
	}
	*b.body = append(*b.body, n)
}

func (p *parser) openSection(name string, line int) {
	sec := &Section{Name: name, Line: line}
	p.sections[domain.NormalizeID(name)] = line
	p.doc.Sections = append(p.doc.Sections, sec)
	p.section = sec
	p.stack = []*block{{kind: blockSection, depth: -1, bodyDepth: 0, body: &sec.Body, keyword: "section", line: line}}
}

func (p *parser) sectionHeader(r lexer.Record) error {
	if r.Depth != 0 {
		return errorf(ErrBadIndentation, r.Line, "section headers must not be indented")
	}
	if p.annot != nil {
		return errorf(ErrSyntax, p.annot.line, "annotation is not followed by a node")
	}
	for i := len(p.stack) - 1; i >= 0; i-- {
		if b := p.stack[i]; b.kind == blockControl || b.kind == blockAnnotation {
			return unclosed(b)
		}
	}
	name := strings.TrimSpace(r.Payload)
	if name == "" {
		return errorf(ErrSyntax, r.Line, "section name is empty")
	}
	if prev, dup := p.sections[domain.NormalizeID(name)]; dup {
		return errorf(ErrDuplicateSection, r.Line, "section %q already defined on line %d", name, prev)
	}
	p.pendingBlank = false
	p.seenHeader = true
	p.openSection(name, r.Line)
	return nil
}

// topLevel checks that a declaration is not nested in a block.
func (p *parser) topLevel(r lexer.Record, what string) error {
	if r.Depth != 0 {
		return errorf(ErrBadIndentation, r.Line, "%s must not be indented", what)
	}
	for i := len(p.stack) - 1; i >= 0; i-- {
		switch b := p.stack[i]; b.kind {
		case blockControl, blockAnnotation:
			return errorf(ErrSyntax, r.Line, "%s inside the %s block opened on line %d", what, b.keyword, b.line)
		case blockChoice:
			p.pop()
		}
	}
	if p.annot != nil {
		return errorf(ErrSyntax, p.annot.line, "annotations cannot wrap a declaration")
	}
	p.pendingBlank = false
	return nil
}

func (p *parser) characterDecl(r lexer.Record) error {
	if err := p.topLevel(r, "character declaration"); err != nil {
		return err
	}
	label := strings.TrimSpace(r.Payload)
	if !reIdent.MatchString(label) {
		return errorf(ErrSyntax, r.Line, "invalid character id %q", label)
	}
	if _, dup := p.doc.Character(label); dup {
		return errorf(ErrSyntax, r.Line, "character @%s already declared", label)
	}
	p.doc.Characters = append(p.doc.Characters, domain.Character{
		ID:         domain.NormalizeID(label),
		Label:      label,
		Properties: []domain.Property{},
		Line:       r.Line,
	})
	p.decl = &p.doc.Characters[len(p.doc.Characters)-1]
	return nil
}

// property consumes a `key: value` line following a character declaration.
func (p *parser) property(r lexer.Record) (bool, error) {
	if r.Sigil != lexer.SigilNone || r.Continued || r.Depth > 1 {
		return false, nil
	}
	key, val, ok := r.Cut(":")
	key = strings.TrimSpace(key)
	if !ok || !reIdent.MatchString(key) {
		return false, nil
	}
	// the slice may have grown since decl was taken
	ch, _ := p.doc.Character(p.decl.ID)
	ch.Set(key, declValue(val))
	p.decl = ch
	return true, nil
}

func (p *parser) variableDecl(r lexer.Record) error {
	if err := p.topLevel(r, "variable declaration"); err != nil {
		return err
	}
	name, val, ok := r.Cut(":")
	name = strings.TrimSpace(name)
	if !ok || !reIdent.MatchString(name) {
		return errorf(ErrSyntax, r.Line, "expected `$name: value` or `$name = expr`, got %q", "$"+r.Payload)
	}
	if g, dup := p.doc.Global(name); dup {
		return errorf(ErrSyntax, r.Line, "variable $%s already declared on line %d", name, g.Line)
	}
	p.doc.Globals = append(p.doc.Globals, Global{Name: domain.NormalizeID(name), Value: declValue(val), Line: r.Line})
	return nil
}

type signature struct {
	name    string
	args    string
	stub    string
	hasStub bool
}

// parseSignature reads `name`, `name(a=1, b)`, each optionally followed by
// `: stub`. Separators inside double quotes are ignored.
func parseSignature(r lexer.Record) (signature, error) {
	var sig signature
	head := r.Payload
	open, colon := r.Index("("), r.Index(":")
	switch {
	case open >= 0 && (colon < 0 || open < colon):
		closeAt := matchingParen(r.Payload, open)
		if closeAt < 0 {
			return sig, errorf(ErrSyntax, r.Line, "missing ')' in %q", "!"+r.Payload)
		}
		head = r.Payload[:open]
		sig.args = r.Payload[open+1 : closeAt]
		tail := strings.TrimSpace(r.Payload[closeAt+1:])
		if tail != "" {
			if !strings.HasPrefix(tail, ":") {
				return sig, errorf(ErrSyntax, r.Line, "unexpected %q after ')'", tail)
			}
			sig.hasStub, sig.stub = true, tail[1:]
		}
	case colon >= 0:
		head = r.Payload[:colon]
		sig.hasStub, sig.stub = true, r.Payload[colon+1:]
	}
	sig.name = strings.TrimSpace(head)
	if !reFuncName.MatchString(sig.name) {
		return sig, errorf(ErrSyntax, r.Line, "invalid function name %q", sig.name)
	}
	return sig, nil
}

func (p *parser) functionDecl(r lexer.Record, sig signature) error {
	if err := p.topLevel(r, "function declaration"); err != nil {
		return err
	}
	if f, dup := p.doc.Function(sig.name); dup {
		return errorf(ErrSyntax, r.Line, "function !%s already declared on line %d", sig.name, f.Line)
	}
	decl := domain.FunctionDecl{
		Name:  domain.NormalizeID(sig.name),
		Label: sig.name,
		Stub:  declValue(sig.stub),
		Line:  r.Line,
	}
	if strings.TrimSpace(sig.args) != "" {
		for _, part := range splitTopLevel(sig.args, ',') {
			name, def, hasDef := strings.Cut(part, "=")
			name = strings.TrimSpace(name)
			if !reIdent.MatchString(name) {
				return errorf(ErrSyntax, r.Line, "invalid parameter %q", strings.TrimSpace(part))
			}
			param := domain.Param{Name: domain.NormalizeID(name)}
			if hasDef {
				v := declValue(def)
				param.Default = &v
			}
			decl.Params = append(decl.Params, param)
		}
	}
	p.doc.Functions = append(p.doc.Functions, decl)
	return nil
}

// declValue evaluates a declaration literal. Text that is not a constant
// expression is kept verbatim as a string.
func declValue(raw string) domain.Value {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.String("")
	}
	if e, err := expr.Parse(raw); err == nil {
		if v, err := e.Constant(); err == nil {
			return v
		}
	}
	return domain.String(raw)
}

// content builds the node for r and appends it to b.
func (p *parser) content(b *block, r lexer.Record) error {
	switch r.Sigil {
	case lexer.SigilNone:
		n, err := textNode(r)
		if err != nil {
			return err
		}
		p.add(b, n)

	case lexer.SigilCharacter:
		if m := rePropAssign.FindStringSubmatch(r.Payload); m != nil {
			n, err := assignNode(r, TargetProperty, m[1], m[2], m[3], m[4])
			if err != nil {
				return err
			}
			p.add(b, n)
			return nil
		}
		n, err := p.dialogueNode(r)
		if err != nil {
			return err
		}
		p.add(b, n)

	case lexer.SigilVariable:
		m := reVarAssign.FindStringSubmatch(r.Payload)
		n, err := assignNode(r, TargetVariable, m[1], "", m[2], m[3])
		if err != nil {
			return err
		}
		p.add(b, n)

	case lexer.SigilFunction:
		call, err := parseExpr("!"+r.Payload, r.Line, "call")
		if err != nil {
			return err
		}
		p.add(b, &Node{Kind: NodeCall, Line: r.Line, Cond: call})

	case lexer.SigilJump, lexer.SigilBounce:
		j, err := parseJump(r)
		if err != nil {
			return err
		}
		p.add(b, &Node{Kind: NodeJump, Line: r.Line, Jump: j})

	case lexer.SigilChoice:
		c, err := p.choice(r)
		if err != nil {
			return err
		}
		p.addChoice(b.body, c)
		p.push(&block{kind: blockChoice, depth: r.Depth, bodyDepth: r.Depth + 1, body: &c.Body, keyword: "choice", line: r.Line})

	case lexer.SigilControl:
		return p.control(b, r)

	case lexer.SigilAnnotationOpen:
		return p.annotation(b, r)

	case lexer.SigilAnnotationClose:
		return errorf(ErrSyntax, r.Line, "']' without an open annotation block")

	case lexer.SigilInfo, lexer.SigilWarning, lexer.SigilError:
		n, err := logNode(r)
		if err != nil {
			return err
		}
		p.add(b, n)
	}
	return nil
}

func textNode(r lexer.Record) (*Node, error) {
	if name, text, ok := r.Cut(":"); ok {
		name, text = strings.TrimSpace(name), strings.TrimSpace(text)
		if text != "" && reDisplayName.MatchString(name) {
			tpl, err := parseTemplate(text, r.Line)
			if err != nil {
				return nil, err
			}
			return &Node{Kind: NodeDialogue, Line: r.Line, Speaker: &Speaker{Name: name}, Text: tpl}, nil
		}
	}
	tpl, err := parseTemplate(r.Payload, r.Line)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeText, Line: r.Line, Text: tpl}, nil
}

func (p *parser) dialogueNode(r lexer.Record) (*Node, error) {
	id, text, ok := r.Cut(":")
	id = strings.TrimSpace(id)
	if !ok || !reIdent.MatchString(id) {
		return nil, errorf(ErrSyntax, r.Line, "expected `@Id: text`, got %q", "@"+r.Payload)
	}
	key := domain.NormalizeID(id)
	if _, declared := p.characters[key]; !declared {
		e := errorf(ErrUnknownCharacter, r.Line, "character @%s is not declared", id)
		labels := make([]string, 0, len(p.characters))
		for _, l := range p.characters {
			labels = append(labels, l)
		}
		e.Hint = suggest.Closest(id, labels)
		return nil, e
	}
	tpl, err := parseTemplate(strings.TrimSpace(text), r.Line)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeDialogue, Line: r.Line, Speaker: &Speaker{ID: key, Name: id, Identified: true}, Text: tpl}, nil
}

func assignNode(r lexer.Record, target TargetKind, name, prop, op, value string) (*Node, error) {
	v, err := parseExpr(value, r.Line, "assignment")
	if err != nil {
		return nil, err
	}
	a := &Assignment{Target: target, Name: domain.NormalizeID(name), Value: v}
	if prop != "" {
		a.Prop = domain.NormalizeID(prop)
	}
	if op != "=" {
		a.Op = strings.TrimSuffix(op, "=")
	}
	return &Node{Kind: NodeAssign, Line: r.Line, Assign: a}, nil
}

func parseJump(r lexer.Record) (*Jump, error) {
	target := strings.TrimSpace(r.Payload)
	if r.Sigil == lexer.SigilBounce {
		name := strings.TrimSpace(strings.TrimPrefix(target, "#"))
		if name == "" {
			return nil, errorf(ErrBadJump, r.Line, "bounce jump needs a section name")
		}
		return &Jump{Kind: JumpBounce, Target: name}, nil
	}
	if !strings.HasPrefix(target, "#") {
		switch strings.ToUpper(target) {
		case "END":
			return &Jump{Kind: JumpEnd}, nil
		case "TERMINATE":
			return &Jump{Kind: JumpTerminate}, nil
		}
	}
	name := strings.TrimSpace(strings.TrimPrefix(target, "#"))
	if name == "" {
		return nil, errorf(ErrBadJump, r.Line, "jump needs a section name, END or TERMINATE")
	}
	return &Jump{Kind: JumpToSection, Target: name}, nil
}

func logNode(r lexer.Record) (*Node, error) {
	sev := SeverityInfo
	switch r.Sigil {
	case lexer.SigilWarning:
		sev = SeverityWarning
	case lexer.SigilError:
		sev = SeverityError
	}
	tpl, err := parseTemplate(r.Payload, r.Line)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeLog, Line: r.Line, Severity: sev, Text: tpl}, nil
}

func (p *parser) choice(r lexer.Record) (*Choice, error) {
	prompt := strings.TrimSpace(r.Payload)
	if prompt == "" {
		return nil, errorf(ErrSyntax, r.Line, "choice has no prompt")
	}
	tpl, err := parseTemplate(prompt, r.Line)
	if err != nil {
		return nil, err
	}
	c := &Choice{Prompt: tpl, Line: r.Line}
	if a := p.annot; a != nil {
		p.annot = nil
		c.Cond, c.Attrs = a.cond, a.attrs
	}
	return c, nil
}

// addChoice appends c to the choice set ending body, or starts a new one.
func (p *parser) addChoice(body *[]*Node, c *Choice) {
	if n := len(*body); n > 0 && (*body)[n-1].Kind == NodeChoiceSet {
		set := (*body)[n-1]
		set.Choices = append(set.Choices, c)
		return
	}
	*body = append(*body, &Node{Kind: NodeChoiceSet, Line: c.Line, Choices: []*Choice{c}})
}

func (p *parser) control(b *block, r lexer.Record) error {
	payload := strings.TrimSpace(r.Payload)
	if payload == "" {
		return errorf(ErrSyntax, r.Line, "'~' without an open control block")
	}
	m := reControl.FindStringSubmatch(payload)
	if m == nil {
		return errorf(ErrSyntax, r.Line, "unknown control keyword in %q", "~ "+payload)
	}
	kw := strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
	rest := strings.TrimSpace(m[2])

	var n *Node
	var body *[]*Node
	switch kw {
	case "IF":
		cond, err := parseExpr(rest, r.Line, kw)
		if err != nil {
			return err
		}
		br := &Branch{Cond: cond, Line: r.Line}
		n = &Node{Kind: NodeIf, Line: r.Line, Branches: []*Branch{br}}
		body = &br.Body
	case "REPEAT", "WHILE":
		cond, err := parseExpr(rest, r.Line, kw)
		if err != nil {
			return err
		}
		kind := NodeRepeat
		if kw == "WHILE" {
			kind = NodeWhile
		}
		n = &Node{Kind: kind, Line: r.Line, Cond: cond}
		body = &n.Body
	case "EACH":
		em := reEach.FindStringSubmatch(rest)
		if em == nil {
			return errorf(ErrSyntax, r.Line, "expected `~ EACH array as $name`")
		}
		arr, err := parseExpr(em[1], r.Line, kw)
		if err != nil {
			return err
		}
		n = &Node{Kind: NodeEach, Line: r.Line, Cond: arr, Var: domain.NormalizeID(em[2])}
		body = &n.Body
	case "ELSE":
		// ELSE after an `[if=...]` annotated node
		last := lastNode(*b.body)
		if rest != "" || last == nil || last.Kind != NodeAnnotation || last.Cond == nil || last.Else != nil {
			return errorf(ErrSyntax, r.Line, "ELSE without a matching IF")
		}
		last.Else = []*Node{}
		p.push(&block{kind: blockControl, depth: r.Depth, bodyDepth: -1, body: &last.Else, node: last, keyword: "ELSE", line: r.Line})
		return nil
	default:
		return errorf(ErrSyntax, r.Line, "%s without a matching IF", kw)
	}
	p.add(b, n)
	p.push(&block{kind: blockControl, depth: r.Depth, bodyDepth: -1, body: body, node: n, keyword: kw, line: r.Line})
	return nil
}

func lastNode(body []*Node) *Node {
	if len(body) == 0 {
		return nil
	}
	return body[len(body)-1]
}

func (p *parser) annotation(b *block, r lexer.Record) error {
	payload := strings.TrimSpace(r.Payload)
	inline := closesInline(payload)
	if inline {
		payload = strings.TrimSpace(strings.TrimSuffix(payload, "]"))
	}
	attrs, cond, err := parseAttrs(payload, r.Line)
	if err != nil {
		return err
	}
	if inline {
		if p.annot != nil {
			return errorf(ErrSyntax, r.Line, "two annotations in a row; combine them into one")
		}
		p.annot = &pendingAnnotation{attrs: attrs, cond: cond, depth: r.Depth, line: r.Line}
		return nil
	}
	n := &Node{Kind: NodeAnnotation, Line: r.Line, Attrs: attrs, Cond: cond, Body: []*Node{}}
	p.add(b, n)
	p.push(&block{kind: blockAnnotation, depth: r.Depth, bodyDepth: -1, body: &n.Body, node: n, keyword: "annotation", line: r.Line})
	return nil
}

// parseAttrs reads `k=v, if=cond`. A bare key is a flag with an empty value.
func parseAttrs(s string, line int) ([]Attr, *expr.Expr, error) {
	var attrs []Attr
	var cond *expr.Expr
	if strings.TrimSpace(s) == "" {
		return nil, nil, nil
	}
	for _, part := range splitTopLevel(s, ',') {
		k, v, _ := strings.Cut(part, "=")
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		if k == "" {
			return nil, nil, errorf(ErrSyntax, line, "annotation entry %q has no key", strings.TrimSpace(part))
		}
		if k == "if" {
			e, err := parseExpr(v, line, "annotation condition")
			if err != nil {
				return nil, nil, err
			}
			cond = e
			continue
		}
		if lexer.IsQuoted(v) {
			if uq, err := lexer.Unquote(v); err == nil {
				v = uq
			}
		}
		attrs = append(attrs, Attr{Key: k, Value: v})
	}
	return attrs, cond, nil
}

// matchingParen returns the index of the ')' closing the '(' at open, or -1.
func matchingParen(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// closesInline reports whether the annotation payload ends with the ']'
// that balances the opening '['.
func closesInline(s string) bool {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth < 0 {
				return i == len(s)-1
			}
		}
	}
	return false
}

// splitTopLevel splits s at sep outside quotes, brackets and parentheses.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// continued handles `|` lines. A run of them forms one Group node.
func (p *parser) continued(r lexer.Record) error {
	switch r.Sigil {
	case lexer.SigilNone, lexer.SigilCharacter, lexer.SigilChoice, lexer.SigilInfo, lexer.SigilWarning, lexer.SigilError:
	default:
		return errorf(ErrSyntax, r.Line, "'%s' is not allowed in a '|' page group", r.Sigil)
	}
	if p.group == nil {
		b, consumed, err := p.resolve(r)
		if err != nil {
			return err
		}
		if consumed {
			return errorf(ErrSyntax, r.Line, "unexpected closer in a '|' page group")
		}
		p.flushBlank(b, r)
		g := &Node{Kind: NodeGroup, Line: r.Line}
		p.add(b, g)
		p.group, p.groupDepth = g, r.Depth
	} else if r.Depth != p.groupDepth {
		return errorf(ErrBadIndentation, r.Line, "lines of a '|' page group must share one depth")
	}

	var n *Node
	var err error
	switch r.Sigil {
	case lexer.SigilNone:
		n, err = textNode(r)
	case lexer.SigilCharacter:
		if rePropAssign.MatchString(r.Payload) {
			return errorf(ErrSyntax, r.Line, "assignments are not allowed in a '|' page group")
		}
		n, err = p.dialogueNode(r)
	case lexer.SigilChoice:
		c, cerr := p.choice(r)
		if cerr != nil {
			return cerr
		}
		p.addChoice(&p.group.Body, c)
		return nil
	default:
		n, err = logNode(r)
	}
	if err != nil {
		return err
	}
	p.group.Body = append(p.group.Body, n)
	return nil
}

func (p *parser) finish() error {
	if p.annot != nil {
		return errorf(ErrSyntax, p.annot.line, "annotation is not followed by a node")
	}
	for i := len(p.stack) - 1; i >= 0; i-- {
		if b := p.stack[i]; b.kind == blockControl || b.kind == blockAnnotation {
			return unclosed(b)
		}
	}
	return nil
}

func parseExpr(text string, line int, what string) (*expr.Expr, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errorf(ErrSyntax, line, "%s needs an expression", what)
	}
	e, err := expr.Parse(text)
	if err != nil {
		return nil, errorf(ErrSyntax, line, "%s: %v", what, err)
	}
	return e, nil
}

func parseTemplate(text string, line int) (*expr.Template, error) {
	t, err := expr.ParseTemplate(text)
	if err != nil {
		return nil, errorf(ErrSyntax, line, "%v", err)
	}
	return t, nil
}
