package importer

import (
	"testing"

	"github.com/ogorman/cardbox/internal/domain"
)

func TestNormalize(t *testing.T) {
	card := domain.Card{
		Question: "  What is Go?  ",
		Answer:   "A programming\r\nlanguage.",
		Context:  "LANGUAGES",
	}
	want := "what is go?\na programming\nlanguage.\nlanguages"
	if got := Normalize(card); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestContentHashIgnoresFormatting(t *testing.T) {
	base := domain.Card{Question: "What is Go?", Answer: "A language.", Context: "Languages"}

	variants := []domain.Card{
		{Question: "  What is Go?  ", Answer: "A language.", Context: "Languages"},
		{Question: "WHAT IS GO?", Answer: "a language.", Context: "LANGUAGES"},
		{Question: "What is Go?", Answer: "A language.\r", Context: "Languages"},
	}
	for i, v := range variants {
		if ContentHash(v) != ContentHash(base) {
			t.Errorf("Variant %d should hash the same as the base card", i)
		}
	}

	different := domain.Card{Question: "What is Rust?", Answer: "A language.", Context: "Languages"}
	if ContentHash(different) == ContentHash(base) {
		t.Error("Different content must not collide")
	}
}

func TestContentHashFieldBoundaries(t *testing.T) {
	// Field contents must not run together across the join.
	a := domain.Card{Question: "ab", Answer: "c"}
	b := domain.Card{Question: "a", Answer: "bc"}
	if ContentHash(a) == ContentHash(b) {
		t.Error("Shifting content across a field boundary must change the hash")
	}
}
