package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ogorman/cardbox/internal/domain"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []domain.Card
	}{
		{
			name:  "Simple Q&A",
			input: "Q: What is the capital of France?\nA: Paris",
			expected: []domain.Card{
				{Question: "What is the capital of France?", Answer: "Paris"},
			},
		},
		{
			name:  "Q, A and C",
			input: "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expected: []domain.Card{
				{Question: "What is 1+1?", Answer: "2", Context: "Basic arithmetic"},
			},
		},
		{
			name: "Multiline answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expected: []domain.Card{
				{Question: "What are the primary colors?", Answer: "Red\nBlue\nYellow"},
			},
		},
		{
			name: "New question starts a new card",
			input: `
Q: First question
A: First answer
Q: Second question
A: Second answer
`,
			expected: []domain.Card{
				{Question: "First question", Answer: "First answer"},
				{Question: "Second question", Answer: "Second answer"},
			},
		},
		{
			name: "Separator between cards",
			input: `
Q: First question
A: First answer
---
Q: Second question
A: Second answer
`,
			expected: []domain.Card{
				{Question: "First question", Answer: "First answer"},
				{Question: "Second question", Answer: "Second answer"},
			},
		},
		{
			name:     "Separator alone yields nothing",
			input:    "---\n---",
			expected: nil,
		},
		{
			name:     "No cards, just prose",
			input:    "This is a file with no questions.",
			expected: nil,
		},
		{
			name:  "Prefixes with no space",
			input: "Q:Question\nA:Answer",
			expected: []domain.Card{
				{Question: "Question", Answer: "Answer"},
			},
		},
		{
			name:  "Only the first leading space is trimmed",
			input: "Q:  indented question\nA: answer",
			expected: []domain.Card{
				{Question: " indented question", Answer: "answer"},
			},
		},
		{
			name:     "Answer without a question is discarded",
			input:    "A: orphaned answer",
			expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != len(tc.expected) {
				t.Fatalf("Expected %d cards, but got %d", len(tc.expected), len(cards))
			}
			for i, want := range tc.expected {
				got := cards[i]
				if got.Question != want.Question {
					t.Errorf("Card %d: expected Question %q, got %q", i, want.Question, got.Question)
				}
				if got.Answer != want.Answer {
					t.Errorf("Card %d: expected Answer %q, got %q", i, want.Answer, got.Answer)
				}
				if got.Context != want.Context {
					t.Errorf("Card %d: expected Context %q, got %q", i, want.Context, got.Context)
				}
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.md")
	content := "Q: From a file\nA: Yes\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	cards, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].Question != "From a file" {
		t.Errorf("Expected one card from the file, got %+v", cards)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
