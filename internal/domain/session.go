package domain

import "time"

// ReviewRecord captures a single graded review inside a study session.
type ReviewRecord struct {
	CardID     string    `json:"card_id"`
	Rating     Rating    `json:"rating"`
	Timestamp  time.Time `json:"timestamp"`
	TimeTaken  float64   `json:"time_taken_seconds"`
	WasCorrect bool      `json:"was_correct"`
}

// StudySession is one sitting over a deck. It is created on session start,
// mutated by every review and closed by setting EndTime.
type StudySession struct {
	ID             string         `json:"id"`
	DeckID         string         `json:"deck_id"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	CardsStudied   int            `json:"cards_studied"`
	CorrectAnswers int            `json:"correct_answers"`
	Reviews        []ReviewRecord `json:"reviews"`
}

// DailyProgress bounds how many New-state cards may be introduced per
// calendar day. Date is a "2006-01-02" day string; whenever it differs from
// today the counter resets.
type DailyProgress struct {
	Date            string `json:"date"`
	NewCardsStudied int    `json:"new_cards_studied"`
}

// DayString formats t as the calendar-day key used by DailyProgress.
func DayString(t time.Time) string {
	return t.Format("2006-01-02")
}
