package language

import (
	"strings"
	"testing"
)

func TestFilterIsTarget(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "russian sentence", text: "Отличное приложение", want: true},
		{name: "single yo", text: "ё", want: true},
		{name: "capital yo", text: "Ё", want: true},
		{name: "mixed with latin", text: "App is норм", want: true},
		{name: "english", text: "Great app", want: false},
		{name: "empty", text: "", want: false},
		{name: "digits and emoji", text: "10/10 👍", want: false},
		{name: "ukrainian only letter", text: "ї", want: false},
		{name: "serbian cyrillic outside alphabet", text: "Ђ", want: false},
	}

	f, err := NewFilter(Russian, 16)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.IsTarget(tt.text); got != tt.want {
				t.Fatalf("IsTarget(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFilterMemoizesRepeatedText(t *testing.T) {
	f, err := NewFilter(Russian, 16)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	for i := 0; i < 5; i++ {
		if !f.IsTarget("Плохо лагает") {
			t.Fatalf("iteration %d: expected target language", i)
		}
		if f.IsTarget("Great app") {
			t.Fatalf("iteration %d: expected non-target language", i)
		}
	}

	hits, misses := f.Stats()
	if misses != 2 {
		t.Fatalf("misses=%d, want 2", misses)
	}
	if hits != 8 {
		t.Fatalf("hits=%d, want 8", hits)
	}
}

func TestFilterMemoIsBounded(t *testing.T) {
	f, err := NewFilter(Russian, 4)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}

	for i := 0; i < 20; i++ {
		f.IsTarget(strings.Repeat("я", i+1))
	}
	if got := f.Len(); got != 4 {
		t.Fatalf("memo len=%d, want 4", got)
	}
	if !f.IsTarget("я") {
		t.Fatalf("evicted text must still classify correctly")
	}
}

func TestLookup(t *testing.T) {
	a, err := Lookup(" RU ")
	if err != nil {
		t.Fatalf("lookup ru: %v", err)
	}
	if a.Name != "ru" {
		t.Fatalf("name=%q, want ru", a.Name)
	}
	if _, err := Lookup("xx"); err == nil {
		t.Fatalf("expected error for unknown language")
	}
}
