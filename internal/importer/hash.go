package importer

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ogorman/cardbox/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part: trim
// whitespace, lowercase, unify line endings. Fields are joined with a
// newline so adjacent words from different fields never run together.
func Normalize(card domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	q := normalizePart(card.Question)
	a := normalizePart(card.Answer)
	c := normalizePart(card.Context)

	return strings.Join([]string{q, a, c}, "\n")
}

// ContentHash returns the SHA-256 of the normalized card content as a hex
// string. Two cards that differ only in formatting hash the same, which is
// what makes re-imports idempotent.
func ContentHash(card domain.Card) string {
	normalized := Normalize(card)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(normalized)))
}
