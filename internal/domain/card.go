package domain

import "time"

// Card is a single question-answer-context entry belonging to a deck.
//
// ID is either issued by the server (Synced=true) or generated locally
// (Synced=false). The flag, not the shape of the id, decides whether a
// pending change is routed to the remote store as a create or an update.
type Card struct {
	ID          string    `json:"id"`
	DeckID      string    `json:"deck_id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Context     string    `json:"context,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	SourceID    string    `json:"source_id,omitempty"`
	Synced      bool      `json:"synced"`
	Schedule    Schedule  `json:"schedule"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Deck is a named collection of cards.
type Deck struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Synced      bool      `json:"synced"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
