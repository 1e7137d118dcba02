package suggest

import "testing"

func TestClosest(t *testing.T) {
	names := []string{"Intro", "Outro", "Shop"}
	cases := map[string]string{
		"intr":     "Intro",
		"Otro":     "Outro",
		"Shpo":     "Shop",
		"Basement": "",
		"":         "",
	}
	for in, want := range cases {
		if got := Closest(in, names); got != want {
			t.Fatalf("Closest(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Closest("x", nil); got != "" {
		t.Fatalf("expected no suggestion without candidates, got %q", got)
	}
}
