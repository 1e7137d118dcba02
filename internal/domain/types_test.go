package domain

import (
	"encoding/json"
	"testing"
)

func TestValueJSONNaturalForm(t *testing.T) {
	v := Array(String("sword"), Number(2), Bool(true))
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["sword",2,true]` {
		t.Fatalf("unexpected json: %s", b)
	}
	var got Value
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Equal(v) {
		t.Fatalf("round trip mismatch: got %s want %s", got, v)
	}
}

func TestValueText(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Number(26), "26"},
		{Number(-3), "-3"},
		{Number(123.456), "123.456"},
		{Bool(false), "false"},
		{String("hi"), "hi"},
		{Array(Number(1), String("a")), "1, a"},
	}
	for _, c := range cases {
		if got := c.v.Text(); got != c.want {
			t.Fatalf("Text(%s) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestEqualRequiresSameKind(t *testing.T) {
	if String("1").Equal(Number(1)) {
		t.Fatalf("string and number must not be equal")
	}
	if !Array(Number(1)).Equal(Array(Number(1))) {
		t.Fatalf("arrays with same items must be equal")
	}
}

func TestCharacterPropertiesOrderedAndCaseInsensitive(t *testing.T) {
	c := Character{ID: NormalizeID("Oscar"), Label: "Oscar"}
	c.Set("Full_Name", String("Oscar Cooke-Abbott"))
	c.Set("age", Number(26))
	c.Set("AGE", Number(27))

	if len(c.Properties) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(c.Properties))
	}
	if c.Properties[0].Name != "full_name" {
		t.Fatalf("unexpected first property %q", c.Properties[0].Name)
	}
	if v, ok := c.Get("Age"); !ok || v.Num != 27 {
		t.Fatalf("age = %v, %v", v, ok)
	}
	if c.DisplayName() != "Oscar" {
		t.Fatalf("display name = %q", c.DisplayName())
	}
	c.Set("name", String("Ozzy"))
	if c.DisplayName() != "Ozzy" {
		t.Fatalf("display name override = %q", c.DisplayName())
	}
}

func TestCloneDoesNotShareArrays(t *testing.T) {
	orig := Character{ID: "a", Properties: []Property{{Name: "bag", Value: Array(String("x"))}}}
	cp := orig.Clone()
	cp.Properties[0].Value.Items[0] = String("y")
	if orig.Properties[0].Value.Items[0].Str != "x" {
		t.Fatalf("clone shares array storage")
	}
}
