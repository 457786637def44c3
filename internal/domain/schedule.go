package domain

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidState reports a schedule whose stored state is missing or
// corrupt. It is a data-integrity error, not retryable.
var ErrInvalidState = errors.New("domain: invalid schedule state")

// ErrInvalidRating reports a rating value outside Again..Easy.
var ErrInvalidRating = errors.New("domain: invalid rating")

// State is the learning stage of a card's schedule.
type State int

const (
	New        State = iota // Never reviewed, immediately studyable.
	Learning                // In the initial learning steps.
	Review                  // Entered the long-term review cycle.
	Relearning              // Lapsed, relearning.
)

var (
	stateNames  = [...]string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}
	stateByName = map[string]State{
		"New":        New,
		"Learning":   Learning,
		"Review":     Review,
		"Relearning": Relearning,
	}
)

var (
	_ fmt.Stringer             = State(0)
	_ encoding.TextMarshaler   = State(0)
	_ encoding.TextUnmarshaler = (*State)(nil)
)

// IsValid reports whether s is one of the four known states.
func (s State) IsValid() bool {
	return s >= New && s <= Relearning
}

// String returns the name of the state. For invalid values it returns "State(n)".
func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidState, int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, ok := stateByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidState, text)
	}
	*s = v
	return nil
}

// Rating is the user's assessment of recall quality.
//
// Manual marks a review record produced outside normal grading (e.g. a
// rescheduled card) and is never a valid input to the scheduler.
type Rating int

const (
	Manual Rating = iota // Not a grade; log-only.
	Again                // Complete failure to recall.
	Hard                 // Recalled with significant difficulty.
	Good                 // Recalled with some effort.
	Easy                 // Recalled effortlessly.
)

var (
	ratingNames  = [...]string{Manual: "Manual", Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}
	ratingByName = map[string]Rating{
		"Manual": Manual,
		"Again":  Again,
		"Hard":   Hard,
		"Good":   Good,
		"Easy":   Easy,
	}
)

var (
	_ fmt.Stringer             = Rating(0)
	_ encoding.TextMarshaler   = Rating(0)
	_ encoding.TextUnmarshaler = (*Rating)(nil)
)

// IsGrade reports whether r is a gradable rating (Again through Easy).
func (r Rating) IsGrade() bool {
	return r >= Again && r <= Easy
}

// IsCorrect reports whether r counts as a remembered answer.
func (r Rating) IsCorrect() bool {
	return r >= Good
}

// String returns the name of the rating. For invalid values it returns "Rating(n)".
func (r Rating) String() string {
	if r >= Manual && r <= Easy {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if r < Manual || r > Easy {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, ok := ratingByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRating, text)
	}
	*r = v
	return nil
}

// Schedule holds the spaced-repetition state of one card.
//
// A freshly created schedule has Due <= now, Reps = 0 and State = New.
// Reps only ever increases. Lapses increases only when a Review-state card
// is rated below Good, which also forces State to Relearning.
type Schedule struct {
	Due           time.Time  `json:"due"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	ElapsedDays   int        `json:"elapsed_days"`
	ScheduledDays int        `json:"scheduled_days"`
	Reps          int        `json:"reps"`
	Lapses        int        `json:"lapses"`
	State         State      `json:"state"`
	LastReview    *time.Time `json:"last_review,omitempty"`
	LearningStep  int        `json:"learning_steps"`
}

// Validate checks the stored state for corruption.
func (s Schedule) Validate() error {
	if !s.State.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidState, int(s.State))
	}
	return nil
}

// UnmarshalJSON rejects a schedule whose state field fails to parse rather
// than silently zeroing it.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	type plain Schedule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Schedule(p)
	return s.Validate()
}
