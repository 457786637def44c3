package storage

import (
	"context"
	"fmt"

	"github.com/ogorman/cardbox/internal/domain"
)

// Collection is a typed view over one JSON array key. Every mutation
// re-reads the latest persisted array and rewrites it whole, so a
// foreground write and a background flush never clobber each other's
// persisted changes.
type Collection[T any] struct {
	db  *DB
	key string
}

// NewCollection returns a collection bound to the given key.
func NewCollection[T any](db *DB, key string) *Collection[T] {
	return &Collection[T]{db: db, key: key}
}

// Key returns the storage key backing the collection.
func (c *Collection[T]) Key() string {
	return c.key
}

// All reads the full collection. An absent key yields an empty slice.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	if _, err := c.db.Get(ctx, c.key, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Replace overwrites the whole collection.
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	return c.db.Set(ctx, c.key, items)
}

// Update applies fn to a freshly-read copy of the collection and persists
// the result. fn runs between the read and the write.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) []T) error {
	items, err := c.All(ctx)
	if err != nil {
		return err
	}
	return c.Replace(ctx, fn(items))
}

// DailyProgress reads the daily new-card counter. An absent record yields
// the zero value, which callers treat as a stale date.
func (db *DB) DailyProgress(ctx context.Context) (domain.DailyProgress, error) {
	var p domain.DailyProgress
	if _, err := db.Get(ctx, KeyDailyProgress, &p); err != nil {
		return domain.DailyProgress{}, err
	}
	return p, nil
}

// SetDailyProgress persists the daily new-card counter.
func (db *DB) SetDailyProgress(ctx context.Context, p domain.DailyProgress) error {
	return db.Set(ctx, KeyDailyProgress, p)
}

// Sessions reads the session log, a map keyed by session id.
func (db *DB) Sessions(ctx context.Context) (map[string]domain.StudySession, error) {
	sessions := make(map[string]domain.StudySession)
	if _, err := db.Get(ctx, KeySessions, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveSession upserts one study session into the session log.
func (db *DB) SaveSession(ctx context.Context, s domain.StudySession) error {
	if s.ID == "" {
		return fmt.Errorf("failed to save session: missing id")
	}
	sessions, err := db.Sessions(ctx)
	if err != nil {
		return err
	}
	sessions[s.ID] = s
	return db.Set(ctx, KeySessions, sessions)
}
