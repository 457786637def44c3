package storage

// One JSON value per key. Entity collections, sync queues, the daily
// progress record and the session log each live under their own key and are
// always read and rewritten whole.
const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at DATETIME NOT NULL
);
`

// Well-known keys. Per-deck and per-queue keys are derived with the helpers
// below so the two namespaces can never collide.
const (
	KeyDecks         = "decks"
	KeyDailyProgress = "daily_progress"
	KeySessions      = "sessions"
	KeySources       = "sources"
)

// CardsKey returns the storage key holding a deck's card collection.
func CardsKey(deckID string) string {
	return "cards/" + deckID
}

// QueueKey returns the storage key holding a named sync queue.
func QueueKey(name string) string {
	return "queue/" + name
}
