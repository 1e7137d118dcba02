/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// exprLexer splits inline expressions. Rule order matters: keywords must be
// tried before Word and calls before the bare `!` operator.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`},
	{Name: "Number", Pattern: `[0-9][0-9_]*(?:\.[0-9][0-9_]*)?`},
	{Name: "Bool", Pattern: `(?i:true|false)\b`},
	{Name: "AndOp", Pattern: `&&|(?i:and)\b`},
	{Name: "OrOp", Pattern: `\|\||(?i:or)\b`},
	{Name: "NotOp", Pattern: `(?i:not)\b`},
	{Name: "InOp", Pattern: `(?i:in)\b`},
	{Name: "Call", Pattern: `![\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Property", Pattern: `@[\p{L}\p{N}_]+\.[\p{L}\p{N}_]+`},
	{Name: "Variable", Pattern: `\$[\p{L}\p{N}_]+`},
	{Name: "Operator", Pattern: `==|!=|<=|>=|[-+*/<>!(),\[\]]`},
	{Name: "Word", Pattern: `[\p{L}_][\p{L}\p{N}_'.\-]*`},
})

var exprParser = participle.MustBuild[orExpr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

type orExpr struct {
	Left *andExpr   `@@`
	Rest []*andExpr `( OrOp @@ )*`
}

type andExpr struct {
	Left *cmpExpr   `@@`
	Rest []*cmpExpr `( AndOp @@ )*`
}

// cmpExpr allows a single comparison; `a < b < c` is a syntax error.
type cmpExpr struct {
	Left  *addExpr `@@`
	Op    string   `( @( "==" | "!=" | "<=" | ">=" | "<" | ">" | InOp )`
	Right *addExpr `  @@ )?`
}

type addExpr struct {
	Left *mulExpr `@@`
	Rest []*addOp `@@*`
}

type addOp struct {
	Op      string   `@( "+" | "-" )`
	Operand *mulExpr `@@`
}

type mulExpr struct {
	Left *unaryExpr `@@`
	Rest []*mulOp   `@@*`
}

type mulOp struct {
	Op      string     `@( "*" | "/" )`
	Operand *unaryExpr `@@`
}

type unaryExpr struct {
	Op      string       `(  @( "-" | "+" | "!" | NotOp )`
	Operand *unaryExpr   `   @@ )`
	Primary *primaryExpr `| @@`
}

type primaryExpr struct {
	Number   *string   `  @Number`
	String   *string   `| @String`
	Bool     *string   `| @Bool`
	Variable *string   `| @Variable`
	Property *string   `| @Property`
	Call     *callExpr `| @@`
	Array    *arrayLit `| @@`
	Group    *orExpr   `| "(" @@ ")"`
	Words    []string  `| @Word ( @Word | @Number )*`
}

type callExpr struct {
	Name string    `@Call`
	Args []*orExpr `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

type arrayLit struct {
	Items []*orExpr `"[" ( @@ ( "," @@ )* )? "]"`
}
