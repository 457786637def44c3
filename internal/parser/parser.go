// Package parser extracts flashcards from markdown files.
//
// A card is a block of the form:
//
//	Q: question text
//	A: answer text
//	C: optional context
//
// Each field may span multiple lines. A new "Q:" line or a "---" separator
// starts the next card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/ogorman/cardbox/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
)

type section int

const (
	none section = iota
	question
	answer
	contextSection
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Only the content
// fields (Question, Answer, Context) are populated; identity and schedule
// are assigned by the importer.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)

	var cards []domain.Card
	var current domain.Card
	var block []string
	active := none

	// flush stores the accumulated block into the active field.
	flush := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch active {
		case question:
			current.Question = content
		case answer:
			current.Answer = content
		case contextSection:
			current.Context = content
		}
		block = nil
	}

	// finish closes out the card under construction.
	finish := func() {
		flush()
		if current.Question != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
		active = none
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			finish()
			continue
		}

		prefix, sec := classify(line)
		if sec == none {
			if active != none {
				block = append(block, line)
			}
			continue
		}

		flush()
		if sec == question && active != none {
			// A new question always starts a new card.
			finish()
		}
		active = sec
		block = append(block, strings.TrimPrefix(line[len(prefix):], " "))
	}

	finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// classify reports which card field a line opens, if any.
func classify(line string) (string, section) {
	switch {
	case strings.HasPrefix(line, questionPrefix):
		return questionPrefix, question
	case strings.HasPrefix(line, answerPrefix):
		return answerPrefix, answer
	case strings.HasPrefix(line, contextPrefix):
		return contextPrefix, contextSection
	default:
		return "", none
	}
}
