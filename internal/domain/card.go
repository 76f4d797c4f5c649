package domain

import "time"

// Card is a single exercise as authored in the catalog: the prompt shown to
// the learner, the expected answer, and an optional explanation and
// presentation descriptor for interactive exercises. Content is read-only to
// the scheduling core; only ID is used to key learning state.
type Card struct {
	ID           string
	Prompt       string
	Answer       string
	Explanation  string
	Presentation string
}

// CardState is the learning state of one card. A zero DueAt means the card
// has never been reviewed.
type CardState struct {
	ID           string    `json:"id"`
	Reps         int       `json:"repetitionCount"`
	IntervalDays int       `json:"intervalDays"`
	EaseFactor   float64   `json:"easeFactor"`
	DueAt        time.Time `json:"dueAt"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// NewCardState returns the fresh state for a card that has never been
// reviewed.
func NewCardState(id string) CardState {
	return CardState{
		ID:         id,
		EaseFactor: 2.5,
	}
}

// Reviewed reports whether the card has been reviewed at least once.
func (s CardState) Reviewed() bool {
	return !s.DueAt.IsZero()
}

// Due reports whether the card is eligible for review at the given time.
// A never-reviewed card is always due.
func (s CardState) Due(now time.Time) bool {
	return !s.DueAt.After(now)
}

// Progress is the per-profile document persisted locally and remotely.
// Content fields are never part of it; only learning state travels.
type Progress struct {
	Cards []CardState `json:"cards"`
}

// Profile describes one learner whose progress lives under its own document.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewLog records a single rating event for a card.
type ReviewLog struct {
	ProfileID  string
	CardID     string
	Quality    int
	ReviewedAt time.Time
}
