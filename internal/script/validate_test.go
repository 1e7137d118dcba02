package script

import (
	"strings"
	"testing"
)

func TestValidateReportsUnresolvedNames(t *testing.T) {
	src := "$n: 1\n# A\n=> #Shpo\n$m = 2\n{$x}\n!nope()\n~ EACH [1] as $v\n    {$v}\n~\n# Shop\n"
	doc, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ws := Validate(doc)
	if len(ws) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(ws), ws)
	}
	if ws[0].Line != 3 || ws[0].Hint != "Shop" {
		t.Fatalf("jump warning = %v", ws[0])
	}
	if !strings.Contains(ws[1].Message, "$m") || !strings.Contains(ws[2].Message, "$x") || !strings.Contains(ws[3].Message, "!nope") {
		t.Fatalf("unexpected warnings %v", ws)
	}
}

func TestValidateCleanDocument(t *testing.T) {
	doc, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ws := Validate(doc); len(ws) != 0 {
		t.Fatalf("unexpected warnings %v", ws)
	}
}

func TestValidateForwardJumps(t *testing.T) {
	doc, err := Parse("# Intro\n=> #Outro\n=><= #Shpo\n# Shop\n=> #Intro\n# Outro\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ws := Validate(doc)
	if len(ws) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(ws), ws)
	}
	if ws[0].Line != 3 || ws[0].Hint != "Shop" {
		t.Fatalf("bounce warning = %v", ws[0])
	}
}
