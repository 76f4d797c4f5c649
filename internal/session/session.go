// Package session runs one practice session over a deck: a FIFO queue of due
// cards where failures are re-tested later in the same session and successes
// retire the card until its next due date.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/drillcard/internal/deck"
	"github.com/conorfennell/drillcard/internal/domain"
	"github.com/conorfennell/drillcard/internal/sm2"
)

// ErrNotInProgress is returned by Rate when the session has no current card
// to rate. It indicates a caller bug rather than a recoverable condition.
var ErrNotInProgress = errors.New("session: not in progress")

// substituteLimit caps how many not-yet-due cards a substitute session pulls
// in when nothing is due.
const substituteLimit = 5

// Status is the session lifecycle state.
type Status int

const (
	NotStarted Status = iota
	InProgress
	Complete
)

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case InProgress:
		return "InProgress"
	case Complete:
		return "Complete"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Session is a single practice run over a deck. It owns the in-session
// ordering only; scheduling state lives in the deck and is updated through
// the scheduler on every rating.
type Session struct {
	deck   *deck.Deck
	queue  []string
	status Status
}

// New returns an unstarted session over the given deck.
func New(d *deck.Deck) *Session {
	return &Session{deck: d}
}

// Status returns the session's lifecycle state.
func (s *Session) Status() Status {
	return s.status
}

// Remaining returns how many cards are still queued, counting requeued
// failures once per queue position.
func (s *Session) Remaining() int {
	return len(s.queue)
}

// Start selects the cards for this session. All due cards are queued in
// catalog order; if none are due, up to five of the earliest-due cards are
// pulled in as a substitute so practice is always possible. An empty catalog
// completes the session immediately.
func (s *Session) Start(now time.Time) {
	s.queue = s.deck.Due(now)
	if len(s.queue) == 0 {
		s.queue = s.deck.EarliestDue(substituteLimit)
	}
	if len(s.queue) == 0 {
		s.status = Complete
		return
	}
	s.status = InProgress
}

// Current returns the card at the head of the queue. ok is false once the
// session is complete (or not yet started); calling it repeatedly on a
// finished session is harmless.
func (s *Session) Current() (domain.Card, domain.CardState, bool) {
	if s.status != InProgress || len(s.queue) == 0 {
		return domain.Card{}, domain.CardState{}, false
	}
	id := s.queue[0]
	card, _ := s.deck.Card(id)
	state, _ := s.deck.State(id)
	return card, state, true
}

// Rate applies the learner's quality rating to the current card. The
// scheduler's output always updates the deck; the in-session queue does not
// re-check due dates. A failed card moves to the tail of the queue for
// another attempt this session, a successful one is retired. When the queue
// empties the session becomes Complete.
func (s *Session) Rate(q sm2.Quality, now time.Time) (domain.CardState, error) {
	if s.status != InProgress || len(s.queue) == 0 {
		return domain.CardState{}, ErrNotInProgress
	}

	id := s.queue[0]
	state, _ := s.deck.State(id)
	next, err := sm2.Review(state, q, now)
	if err != nil {
		return domain.CardState{}, err
	}
	s.deck.SetState(next)

	if q < sm2.Ok {
		s.queue = append(s.queue[1:], id)
	} else {
		s.queue = s.queue[1:]
	}
	if len(s.queue) == 0 {
		s.status = Complete
	}
	return next, nil
}
