package id

import (
	"strings"
	"testing"
)

func TestNewFormat(t *testing.T) {
	got := New()
	if got == "" {
		t.Fatal("expected non-empty id")
	}
	if len(got) != 36 {
		t.Fatalf("expected 36-character canonical uuid, got %d", len(got))
	}
	if strings.Count(got, "-") != 4 {
		t.Fatalf("expected 4 dashes, got %d in %q", strings.Count(got, "-"), got)
	}
	if got != strings.ToLower(got) {
		t.Fatalf("expected lowercase id, got %q", got)
	}
	if !Valid(got) {
		t.Fatalf("expected Valid(%q) to be true", got)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		got := New()
		if seen[got] {
			t.Fatalf("duplicate id generated: %s", got)
		}
		seen[got] = true
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-uuid", "1234"} {
		if Valid(s) {
			t.Fatalf("expected Valid(%q) to be false", s)
		}
	}
}
