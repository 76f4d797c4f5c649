// Package remote defines the document store used to share a learner's
// progress across devices, keyed by profile id. Implementations must provide
// an atomic read-modify-write so two devices saving concurrently cannot lose
// each other's committed progress.
package remote

import (
	"context"
	"errors"

	"github.com/conorfennell/drillcard/internal/domain"
)

// ErrProfileNotFound is returned when a lookup for a profile id finds no
// document. Callers decide whether to create the profile or abort.
var ErrProfileNotFound = errors.New("remote: profile not found")

// ErrSyncFailed is returned when an atomic update could not commit within
// the store's retry budget. Local state is unaffected; the caller may retry
// the whole operation later.
var ErrSyncFailed = errors.New("remote: sync failed")

// UpdateFunc computes the new progress document from the current one. It may
// be invoked more than once if the underlying transaction retries, so it
// must be free of side effects.
type UpdateFunc func(current domain.Progress) (domain.Progress, error)

// Store is a keyed document store for learner profiles and their progress.
type Store interface {
	// ListProfiles returns all known profiles.
	ListProfiles(ctx context.Context) ([]domain.Profile, error)

	// CreateProfile stores a new profile document with empty progress.
	CreateProfile(ctx context.Context, p domain.Profile) error

	// GetProfile returns the profile with the given id, or
	// ErrProfileNotFound.
	GetProfile(ctx context.Context, id string) (domain.Profile, error)

	// LoadProgress reads the progress document for a profile. A profile
	// that exists but has never saved yields empty progress, not an error.
	LoadProgress(ctx context.Context, id string) (domain.Progress, error)

	// SaveProgress overwrites the progress document for a profile. Only the
	// progress document is touched; profile metadata is left as is.
	SaveProgress(ctx context.Context, id string, p domain.Progress) error

	// UpdateProgress atomically reads the current progress, applies fn and
	// writes the result back, retrying the whole cycle if another writer
	// commits in between. Exhausting the retry budget returns ErrSyncFailed.
	UpdateProgress(ctx context.Context, id string, fn UpdateFunc) (domain.Progress, error)
}
