// Package reconcile merges two copies of the same learner's progress into
// one. The local, catalog-driven snapshot decides which card ids exist; per
// card the copy with more repetitions wins, ties fall back to the later
// lastUpdated timestamp and then to the local side. The merge runs inside
// the remote store's atomic read-modify-write, so concurrent saves from two
// devices serialise on the store rather than on any client-side lock.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/conorfennell/drillcard/internal/domain"
	"github.com/conorfennell/drillcard/internal/remote"
)

// Merge resolves divergence between a local and a remote snapshot of the
// same profile's progress. The result contains exactly the ids of the local
// snapshot, in local order; remote-only cards are discarded. Neither input
// is mutated.
func Merge(local, remoteCards []domain.CardState) []domain.CardState {
	remoteByID := make(map[string]domain.CardState, len(remoteCards))
	for _, c := range remoteCards {
		remoteByID[c.ID] = c
	}

	merged := make([]domain.CardState, 0, len(local))
	for _, lc := range local {
		rc, ok := remoteByID[lc.ID]
		if !ok {
			merged = append(merged, normalize(lc))
			continue
		}
		merged = append(merged, normalize(pick(lc, rc)))
	}
	return merged
}

// pick chooses between the local and remote copy of one card. More
// repetitions means more elapsed learning and wins outright; on equal
// repetitions the later lastUpdated wins, and the local writer wins the
// final tie.
func pick(local, remoteCard domain.CardState) domain.CardState {
	switch {
	case local.Reps > remoteCard.Reps:
		return local
	case remoteCard.Reps > local.Reps:
		return remoteCard
	case remoteCard.LastUpdated.After(local.LastUpdated):
		return remoteCard
	default:
		return local
	}
}

// normalize makes every field of the winning card concrete so the write
// payload carries no holes: a missing ease factor becomes the fresh-card
// default and out-of-range values are clamped to their invariants.
func normalize(c domain.CardState) domain.CardState {
	if c.EaseFactor == 0 {
		c.EaseFactor = 2.5
	}
	if c.EaseFactor < 1.3 {
		c.EaseFactor = 1.3
	}
	if c.Reps < 0 {
		c.Reps = 0
	}
	if c.IntervalDays < 0 {
		c.IntervalDays = 0
	}
	return c
}

// Reconciler exchanges a local snapshot with the remote copy of the same
// profile and writes back the merged result.
type Reconciler struct {
	store remote.Store
}

// New returns a Reconciler over the given store.
func New(store remote.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile merges the local snapshot with the remote progress document in
// one atomic read-modify-write and returns the merged cards, which become
// the caller's new local state. On failure the error is surfaced (including
// remote.ErrSyncFailed when the transaction could not commit) and the caller
// keeps its local state; nothing is ever discarded on a failed sync.
func (r *Reconciler) Reconcile(ctx context.Context, profileID string, local []domain.CardState) ([]domain.CardState, error) {
	merged, err := r.store.UpdateProgress(ctx, profileID, func(current domain.Progress) (domain.Progress, error) {
		return domain.Progress{Cards: Merge(local, current.Cards)}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("reconciled progress", "profile", profileID, "cards", len(merged.Cards))
	return merged.Cards, nil
}
