package sm2

import (
	"errors"
	"fmt"
)

// ErrInvalidRating is returned when a quality value outside the 0-5 grade
// scale is passed to Review. It signals a caller bug, not a recoverable
// condition.
var ErrInvalidRating = errors.New("sm2: invalid rating")

// Quality is the learner's self-assessed recall grade on the 0-5 scale.
// Only three tiers are distinguished: below 3 is a failure, exactly 3 is a
// hard-won success, and anything above 3 counts as easy.
type Quality int

const (
	Fail Quality = 1 // Could not recall; the card starts over.
	Ok   Quality = 3 // Recalled, but with effort.
	Easy Quality = 5 // Recalled without effort.
)

// IsValid reports whether q is on the recognised 0-5 grade scale.
func (q Quality) IsValid() bool {
	return q >= 0 && q <= 5
}

// String returns the tier name for q, or "Quality(n)" for invalid values.
func (q Quality) String() string {
	switch {
	case !q.IsValid():
		return fmt.Sprintf("Quality(%d)", int(q))
	case q < Ok:
		return "Fail"
	case q == Ok:
		return "Ok"
	default:
		return "Easy"
	}
}
