// Package session selects the cards to study, sequences them and applies
// scheduling updates as the user grades each one.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ogorman/cardbox/internal/domain"
	"github.com/ogorman/cardbox/internal/fsrs"
	"github.com/ogorman/cardbox/internal/storage"
)

// Mode selects which cards a session studies.
type Mode string

const (
	// ModeReview studies cards that are due, most overdue first.
	ModeReview Mode = "review"
	// ModeNew introduces never-studied cards, bounded by the daily limit.
	ModeNew Mode = "new"
	// ModeAll studies the whole deck.
	ModeAll Mode = "all"
)

const (
	// DefaultDailyLimit bounds how many New cards a day may introduce.
	DefaultDailyLimit = 20
	// DefaultDebounce absorbs duplicate start triggers from the UI.
	DefaultDebounce = time.Second
)

var (
	ErrSessionActive  = errors.New("session: a session is already active")
	ErrNoSession      = errors.New("session: no active session")
	ErrStartThrottled = errors.New("session: start attempted within the debounce window")
	ErrOutOfRange     = errors.New("session: current index is out of range")
)

// CardSyncer pushes an updated card toward the remote store.
type CardSyncer interface {
	EnqueueUpdate(ctx context.Context, card domain.Card) bool
}

// Options tunes a Session. Zero values select the defaults.
type Options struct {
	DailyLimit int
	Debounce   time.Duration
	Now        func() time.Time
}

// Session runs study sittings over one deck.
type Session struct {
	engine *fsrs.Engine
	db     *storage.DB
	cards  *storage.Collection[domain.Card]
	syncer CardSyncer
	deckID string

	dailyLimit int
	debounce   time.Duration
	now        func() time.Time

	active    bool
	selected  []domain.Card
	idx       int
	record    domain.StudySession
	lastStart time.Time
}

// New creates a session manager for the given deck.
func New(engine *fsrs.Engine, db *storage.DB, cards *storage.Collection[domain.Card], syncer CardSyncer, deckID string, opts Options) *Session {
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = DefaultDailyLimit
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		engine:     engine,
		db:         db,
		cards:      cards,
		syncer:     syncer,
		deckID:     deckID,
		dailyLimit: opts.DailyLimit,
		debounce:   opts.Debounce,
		now:        opts.Now,
	}
}

// Start selects cards for the given mode and opens a study session.
// maxCards <= 0 means no truncation. It fails if a session is already
// active or if the previous start attempt was under a debounce ago.
func (s *Session) Start(ctx context.Context, mode Mode, maxCards int) (string, error) {
	now := s.now()
	if s.active {
		return "", ErrSessionActive
	}
	if !s.lastStart.IsZero() && now.Sub(s.lastStart) < s.debounce {
		return "", ErrStartThrottled
	}
	s.lastStart = now

	var selected []domain.Card
	var err error
	switch mode {
	case ModeReview:
		selected, err = s.dueCards(ctx, now)
	case ModeNew:
		selected, err = s.NewCardsForToday(ctx, now)
	case ModeAll:
		selected, err = s.cards.All(ctx)
	default:
		return "", fmt.Errorf("session: unknown mode %q", mode)
	}
	if err != nil {
		return "", err
	}

	if maxCards > 0 && len(selected) > maxCards {
		selected = selected[:maxCards]
	}

	record := domain.StudySession{
		ID:        uuid.NewString(),
		DeckID:    s.deckID,
		StartTime: now,
	}
	if err := s.db.SaveSession(ctx, record); err != nil {
		return "", err
	}

	s.active = true
	s.selected = selected
	s.idx = 0
	s.record = record
	slog.Info("study session started", "session", record.ID, "deck", s.deckID, "mode", mode, "cards", len(selected))
	return record.ID, nil
}

// dueCards returns the deck's due cards, most overdue first.
func (s *Session) dueCards(ctx context.Context, now time.Time) ([]domain.Card, error) {
	all, err := s.cards.All(ctx)
	if err != nil {
		return nil, err
	}
	var due []domain.Card
	for _, c := range all {
		if !c.Schedule.Due.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Schedule.Due.Before(due[j].Schedule.Due)
	})
	return due, nil
}

// NewCardsForToday returns the never-reviewed cards studyable today:
// reps == 0, due, capped at the remaining daily allowance. A stale stored
// date resets the counter first.
func (s *Session) NewCardsForToday(ctx context.Context, now time.Time) ([]domain.Card, error) {
	allowance, err := s.newCardAllowance(ctx, now)
	if err != nil {
		return nil, err
	}
	if allowance <= 0 {
		return nil, nil
	}

	all, err := s.cards.All(ctx)
	if err != nil {
		return nil, err
	}
	var fresh []domain.Card
	for _, c := range all {
		if c.Schedule.Reps == 0 && !c.Schedule.Due.After(now) {
			fresh = append(fresh, c)
			if len(fresh) == allowance {
				break
			}
		}
	}
	return fresh, nil
}

// newCardAllowance reads the daily counter, resetting it on a new calendar
// day, and returns how many new cards remain today.
func (s *Session) newCardAllowance(ctx context.Context, now time.Time) (int, error) {
	progress, err := s.db.DailyProgress(ctx)
	if err != nil {
		return 0, err
	}
	today := domain.DayString(now)
	if progress.Date != today {
		progress = domain.DailyProgress{Date: today}
		if err := s.db.SetDailyProgress(ctx, progress); err != nil {
			return 0, err
		}
	}
	remaining := s.dailyLimit - progress.NewCardsStudied
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Current returns the card at the session cursor.
func (s *Session) Current() (domain.Card, bool) {
	if !s.active || s.idx < 0 || s.idx >= len(s.selected) {
		return domain.Card{}, false
	}
	return s.selected[s.idx], true
}

// Advance moves the cursor forward and reports whether a next card exists.
func (s *Session) Advance() bool {
	if !s.active {
		return false
	}
	s.idx++
	return s.idx < len(s.selected)
}

// IsLastCard reports whether the cursor is on the final card.
func (s *Session) IsLastCard() bool {
	return s.active && len(s.selected) > 0 && s.idx == len(s.selected)-1
}

// Progress returns the fraction of the session completed so far.
func (s *Session) Progress() float64 {
	if !s.active || len(s.selected) == 0 {
		return 0
	}
	return float64(s.idx) / float64(len(s.selected))
}

// PreviewCurrent returns the scheduling outcome of each rating for the
// card under the cursor, for "next review in N days" style display.
func (s *Session) PreviewCurrent(ctx context.Context) (map[domain.Rating]fsrs.Outcome, error) {
	card, ok := s.Current()
	if !ok {
		return nil, ErrNoSession
	}
	return s.engine.Preview(card.Schedule, s.now())
}

// ReviewCard grades the current card: the engine computes the next
// schedule, the store persists it, the session record is updated and the
// change is pushed toward the remote store. Remote failure is absorbed by
// the sync queue and does not fail the review.
func (s *Session) ReviewCard(ctx context.Context, rating domain.Rating, timeTaken float64) error {
	if !s.active {
		return ErrNoSession
	}
	if s.idx < 0 || s.idx >= len(s.selected) {
		return ErrOutOfRange
	}

	now := s.now()
	card := s.selected[s.idx]
	wasNew := card.Schedule.State == domain.New

	next, err := s.engine.Review(card.Schedule, rating, now)
	if err != nil {
		return err
	}
	card.Schedule = next
	card.UpdatedAt = now

	err = s.cards.Update(ctx, func(cards []domain.Card) []domain.Card {
		for i := range cards {
			if cards[i].ID == card.ID {
				cards[i] = card
			}
		}
		return cards
	})
	if err != nil {
		return err
	}
	s.selected[s.idx] = card

	s.record.CardsStudied++
	if rating.IsCorrect() {
		s.record.CorrectAnswers++
	}
	s.record.Reviews = append(s.record.Reviews, domain.ReviewRecord{
		CardID:     card.ID,
		Rating:     rating,
		Timestamp:  now,
		TimeTaken:  timeTaken,
		WasCorrect: rating.IsCorrect(),
	})
	if err := s.db.SaveSession(ctx, s.record); err != nil {
		return err
	}

	if wasNew {
		if err := s.countNewCard(ctx, now); err != nil {
			return err
		}
	}

	s.syncer.EnqueueUpdate(ctx, card)
	return nil
}

// countNewCard bumps today's new-card counter.
func (s *Session) countNewCard(ctx context.Context, now time.Time) error {
	progress, err := s.db.DailyProgress(ctx)
	if err != nil {
		return err
	}
	today := domain.DayString(now)
	if progress.Date != today {
		progress = domain.DailyProgress{Date: today}
	}
	progress.NewCardsStudied++
	return s.db.SetDailyProgress(ctx, progress)
}

// End stamps the session record and clears the active state.
func (s *Session) End(ctx context.Context) error {
	if !s.active {
		return ErrNoSession
	}
	now := s.now()
	s.record.EndTime = &now
	if err := s.db.SaveSession(ctx, s.record); err != nil {
		return err
	}
	slog.Info("study session ended", "session", s.record.ID,
		"studied", s.record.CardsStudied, "correct", s.record.CorrectAnswers)
	s.active = false
	s.selected = nil
	s.idx = 0
	s.record = domain.StudySession{}
	return nil
}
