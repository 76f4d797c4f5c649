// Package parser reads catalog card files. Cards are authored as plain text
// blocks:
//
//	ID: q001
//	Q: What is 7 + 5?
//	A: 12
//	E: Count up five from seven.
//	---
//
// Q, A and E may continue over multiple lines; ID and P (presentation
// descriptor) are single-line. A new Q or a "---" separator starts the next
// card. ID is optional; cards without one get a content-derived id later.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/drillcard/internal/domain"
)

const separator = "---"

// field identifies which card field a prefixed line opens.
type field int

const (
	none field = iota
	prompt
	answer
	explanation
)

var blockPrefixes = map[string]field{
	"Q:": prompt,
	"A:": answer,
	"E:": explanation,
}

// ParseFile reads the file at path and extracts all cards from it.
func ParseFile(path string) ([]domain.Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse extracts all cards from r. Cards without a prompt are skipped.
func Parse(r io.Reader) ([]domain.Card, error) {
	var (
		cards   []domain.Card
		current domain.Card
		block   []string
		active  field
	)

	flushBlock := func() {
		if active == none || len(block) == 0 {
			block, active = nil, none
			return
		}
		content := strings.Join(block, "\n")
		switch active {
		case prompt:
			current.Prompt = content
		case answer:
			current.Answer = content
		case explanation:
			current.Explanation = content
		}
		block, active = nil, none
	}

	finishCard := func() {
		flushBlock()
		if current.Prompt != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finishCard()
			continue
		}

		if rest, ok := cutPrefix(line, "ID:"); ok {
			flushBlock()
			current.ID = strings.TrimSpace(rest)
			continue
		}
		if rest, ok := cutPrefix(line, "P:"); ok {
			flushBlock()
			current.Presentation = strings.TrimSpace(rest)
			continue
		}

		opened := false
		for prefix, f := range blockPrefixes {
			rest, ok := cutPrefix(line, prefix)
			if !ok {
				continue
			}
			if f == prompt && (active != none || current.Prompt != "") {
				// A new question always starts a new card.
				finishCard()
			} else {
				flushBlock()
			}
			active = f
			block = append(block, rest)
			opened = true
			break
		}
		if opened {
			continue
		}

		if active != none {
			block = append(block, line)
		}
	}
	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// cutPrefix strips a field prefix and one optional following space.
func cutPrefix(line, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(rest, " "), true
}
