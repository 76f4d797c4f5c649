// Package sm2 implements a simplified SM-2 spaced-repetition scheduler.
//
// A card's interval follows the classic fixed steps of one day and six days
// for its first two successful reviews, then grows multiplicatively by the
// card's ease factor. Failures reset the repetition count and bring the card
// back almost immediately.
package sm2

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/drillcard/internal/domain"
)

const (
	// minEase is the floor for the ease factor; repeated "Ok" ratings can
	// never push a card below it.
	minEase = 1.3

	// failRetryDelay is how soon a failed card becomes due again. Failed
	// cards are kept in near-term rotation rather than pushed to tomorrow.
	failRetryDelay = time.Minute
)

// Review computes the next state of a card after the learner rates it with
// the given quality at the given time. The input state is not mutated.
//
// An invalid quality returns ErrInvalidRating; callers must not clamp or
// ignore it, since it indicates a contract violation upstream.
func Review(s domain.CardState, q Quality, now time.Time) (domain.CardState, error) {
	if !q.IsValid() {
		return domain.CardState{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(q))
	}

	next := s
	next.LastUpdated = now

	if q < Ok {
		next.Reps = 0
		next.IntervalDays = 1
		next.DueAt = now.Add(failRetryDelay)
		return next, nil
	}

	// Success. Ease moves first, then the interval step uses the adjusted
	// ease for cards past the two fixed steps.
	if q == Ok {
		next.EaseFactor = math.Max(minEase, next.EaseFactor-0.15)
	} else {
		next.EaseFactor += 0.1
	}

	switch next.Reps {
	case 0:
		next.IntervalDays = 1
	case 1:
		next.IntervalDays = 6
	default:
		next.IntervalDays = int(math.Round(float64(next.IntervalDays) * next.EaseFactor))
	}
	next.Reps++
	next.DueAt = now.Add(time.Duration(next.IntervalDays) * 24 * time.Hour)

	return next, nil
}
