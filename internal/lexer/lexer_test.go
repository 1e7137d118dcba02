package lexer

import (
	"errors"
	"testing"
)

func TestTokenizeClassifiesSigils(t *testing.T) {
	src := "@Oscar\n$n: 5\n!roll(sides=6): 1\n# Intro\n~ IF $n > 3\n=> #Outro\n=><= #Shop\n- Go left\n[mood=sad]\n]\nHello there\n/// info\n//? warn\n//! bad\n// silent\n"
	recs, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []Sigil{
		SigilCharacter, SigilVariable, SigilFunction, SigilSection, SigilControl,
		SigilJump, SigilBounce, SigilChoice, SigilAnnotationOpen, SigilAnnotationClose,
		SigilNone, SigilInfo, SigilWarning, SigilError, SigilBlank,
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %d: %+v", len(want), len(recs), recs)
	}
	for i, w := range want {
		if recs[i].Sigil != w {
			t.Fatalf("record %d: sigil %s, want %s", i, recs[i].Sigil, w)
		}
	}
	if recs[3].Payload != "Intro" || recs[5].Payload != "#Outro" || recs[11].Payload != "info" {
		t.Fatalf("unexpected payloads: %q %q %q", recs[3].Payload, recs[5].Payload, recs[11].Payload)
	}
	// the silent comment on line 15 is dropped; the trailing blank is line 16
	if recs[14].Line != 16 {
		t.Fatalf("blank line number = %d", recs[14].Line)
	}
}

func TestTokenizeDepthAndUnit(t *testing.T) {
	recs, err := Tokenize("- a\n    - b\n        text\n    c\nd\r\n")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	depths := []int{0, 1, 2, 1, 0}
	for i, d := range depths {
		if recs[i].Depth != d {
			t.Fatalf("line %d depth %d, want %d", recs[i].Line, recs[i].Depth, d)
		}
	}
	if recs[4].Payload != "d" {
		t.Fatalf("CR not stripped: %q", recs[4].Payload)
	}
}

func TestTokenizeTabs(t *testing.T) {
	recs, err := Tokenize("- a\n\t- b\n\t\tc\n")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if recs[2].Depth != 2 {
		t.Fatalf("depth = %d", recs[2].Depth)
	}
}

func TestTokenizeIndentErrors(t *testing.T) {
	cases := map[string]string{
		"mixed in line":  "- a\n \t- b\n",
		"mixed in file":  "- a\n  - b\n\t- c\n",
		"not a multiple": "- a\n    - b\n      c\n",
		"unterminated":   "say \"hello\n",
		"nested bar":     "| | a\n",
	}
	for name, src := range cases {
		_, err := Tokenize(src)
		var le *Error
		if !errors.As(err, &le) {
			t.Fatalf("%s: expected *Error, got %v", name, err)
		}
		if le.Line < 1 {
			t.Fatalf("%s: line not set: %+v", name, le)
		}
	}
}

func TestContinuationReclassified(t *testing.T) {
	recs, err := Tokenize("| @Oscar: hi\n|\n| plain\n")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if !recs[0].Continued || recs[0].Sigil != SigilCharacter || recs[0].Payload != "Oscar: hi" {
		t.Fatalf("unexpected first record %+v", recs[0])
	}
	if !recs[1].Continued || recs[1].Sigil != SigilNone || recs[1].Payload != "" {
		t.Fatalf("bare bar should be empty continued prose: %+v", recs[1])
	}
	if !recs[2].Continued || recs[2].Sigil != SigilNone {
		t.Fatalf("unexpected third record %+v", recs[2])
	}
}

func TestQuotedSeparatorsIgnored(t *testing.T) {
	recs, err := Tokenize(`$greeting: "a: b = c"` + "\n")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	name, val, ok := recs[0].Cut(":")
	if !ok || name != "greeting" || val != ` "a: b = c"` {
		t.Fatalf("Cut = %q %q %v", name, val, ok)
	}
	if i := recs[0].Index("="); i != -1 {
		t.Fatalf("found '=' inside quotes at %d", i)
	}
}

func TestDashWithoutSpaceIsProse(t *testing.T) {
	recs, err := Tokenize("-5 degrees outside\n")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if recs[0].Sigil != SigilNone {
		t.Fatalf("sigil = %s", recs[0].Sigil)
	}
}

func TestParseNumber(t *testing.T) {
	ok := map[string]float64{"1_000.5": 1000.5, "-3": -3, "+2.25": 2.25, "42": 42}
	for in, want := range ok {
		got, valid := ParseNumber(in)
		if !valid || got != want {
			t.Fatalf("ParseNumber(%q) = %v, %v", in, got, valid)
		}
	}
	for _, in := range []string{"", "_1", "1_", "1__0", "1.", ".5", "abc", "1e5"} {
		if _, valid := ParseNumber(in); valid {
			t.Fatalf("ParseNumber(%q) should fail", in)
		}
	}
}

func TestUnquote(t *testing.T) {
	cases := map[string]string{
		`"hi"`:          "hi",
		`'hi'`:          "hi",
		`'it\'s'`:       "it's",
		`'say "x"'`:     `say "x"`,
		`"tab\there"`:   "tab\there",
		`"quote \"q\""`: `quote "q"`,
	}
	for in, want := range cases {
		got, err := Unquote(in)
		if err != nil || got != want {
			t.Fatalf("Unquote(%s) = %q, %v", in, got, err)
		}
	}
	if _, err := Unquote("bare"); err == nil {
		t.Fatalf("expected error for unquoted input")
	}
}
