// Package cardid derives stable identifiers for catalog cards that do not
// declare one. The id is a content hash over normalised prompt and answer
// text, so reformatting whitespace or line endings does not reset a
// learner's progress, while a real wording change does.
package cardid

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/drillcard/internal/domain"
)

// Normalize produces the canonical text a card's derived id is computed
// from: prompt and answer, lowercased, trimmed, with line endings unified,
// joined by a newline so fields can never run together.
func Normalize(card domain.Card) string {
	part := func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimSpace(s)
		return strings.ReplaceAll(s, "\r\n", "\n")
	}
	return part(card.Prompt) + "\n" + part(card.Answer)
}

// Derive returns the content-hash id for a card as a hex string.
func Derive(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum[:12])
}
