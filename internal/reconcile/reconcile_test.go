package reconcile

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/conorfennell/drillcard/internal/domain"
	"github.com/conorfennell/drillcard/internal/remote"
)

var (
	earlier = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	later   = earlier.Add(2 * time.Hour)
)

func card(id string, reps int, updated time.Time) domain.CardState {
	return domain.CardState{
		ID: id, Reps: reps, IntervalDays: reps, EaseFactor: 2.5,
		DueAt: earlier, LastUpdated: updated,
	}
}

func TestMergeRules(t *testing.T) {
	testCases := []struct {
		name       string
		local      []domain.CardState
		remoteSide []domain.CardState
		expected   []domain.CardState
	}{
		{
			name:     "local only card is kept",
			local:    []domain.CardState{card("q1", 2, earlier)},
			expected: []domain.CardState{card("q1", 2, earlier)},
		},
		{
			name:       "higher local repetition count wins",
			local:      []domain.CardState{card("q1", 5, earlier)},
			remoteSide: []domain.CardState{card("q1", 3, later)},
			expected:   []domain.CardState{card("q1", 5, earlier)},
		},
		{
			name:       "higher remote repetition count wins",
			local:      []domain.CardState{card("q1", 1, later)},
			remoteSide: []domain.CardState{card("q1", 4, earlier)},
			expected:   []domain.CardState{card("q1", 4, earlier)},
		},
		{
			name:       "equal reps fall back to later timestamp",
			local:      []domain.CardState{card("q1", 2, earlier)},
			remoteSide: []domain.CardState{card("q1", 2, later)},
			expected:   []domain.CardState{card("q1", 2, later)},
		},
		{
			name:       "equal reps and timestamps favour local",
			local:      []domain.CardState{{ID: "q1", Reps: 2, IntervalDays: 6, EaseFactor: 2.2, LastUpdated: earlier}},
			remoteSide: []domain.CardState{{ID: "q1", Reps: 2, IntervalDays: 9, EaseFactor: 2.9, LastUpdated: earlier}},
			expected:   []domain.CardState{{ID: "q1", Reps: 2, IntervalDays: 6, EaseFactor: 2.2, LastUpdated: earlier}},
		},
		{
			name:       "remote only card is discarded",
			local:      []domain.CardState{card("q1", 1, earlier)},
			remoteSide: []domain.CardState{card("q1", 1, earlier), card("orphan", 8, later)},
			expected:   []domain.CardState{card("q1", 1, earlier)},
		},
		{
			name:       "missing ease factor on the winner becomes the default",
			local:      []domain.CardState{{ID: "q1", Reps: 3}},
			remoteSide: []domain.CardState{{ID: "q1", Reps: 1, EaseFactor: 2.5}},
			expected:   []domain.CardState{{ID: "q1", Reps: 3, EaseFactor: 2.5}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Merge(tc.local, tc.remoteSide)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Merge mismatch:\n got %+v\nwant %+v", got, tc.expected)
			}
		})
	}
}

func TestMergeIdempotentOnConvergedState(t *testing.T) {
	snapshot := []domain.CardState{card("q1", 2, earlier), card("q2", 0, time.Time{})}
	got := Merge(snapshot, snapshot)
	if !reflect.DeepEqual(got, snapshot) {
		t.Errorf("merging identical snapshots changed the result:\n got %+v\nwant %+v", got, snapshot)
	}
}

func TestMergeCommutativeOnRepetitionCount(t *testing.T) {
	a := []domain.CardState{card("q1", 5, earlier)}
	b := []domain.CardState{card("q1", 3, later)}

	ab := Merge(a, b)
	ba := Merge(b, a)
	if !reflect.DeepEqual(ab, ba) {
		t.Errorf("merge not commutative for shared ids:\n a,b: %+v\n b,a: %+v", ab, ba)
	}
	if !reflect.DeepEqual(ab, a) {
		t.Errorf("expected the five-repetition side to win, got %+v", ab)
	}
}

func TestReconcileExchangesWithStore(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	profile := domain.Profile{ID: "kid_1", Name: "Kid"}
	if err := store.CreateProfile(ctx, profile); err != nil {
		t.Fatal(err)
	}
	// Another device already saved more progress on q2.
	seed := domain.Progress{Cards: []domain.CardState{card("q2", 6, later), card("orphan", 9, later)}}
	if err := store.SaveProgress(ctx, profile.ID, seed); err != nil {
		t.Fatal(err)
	}

	local := []domain.CardState{card("q1", 1, earlier), card("q2", 2, earlier)}
	merged, err := New(store).Reconcile(ctx, profile.ID, local)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	expected := []domain.CardState{card("q1", 1, earlier), card("q2", 6, later)}
	if !reflect.DeepEqual(merged, expected) {
		t.Errorf("merged result mismatch:\n got %+v\nwant %+v", merged, expected)
	}

	// The merged result is also what the store now holds.
	stored, err := store.LoadProgress(ctx, profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stored.Cards, expected) {
		t.Errorf("store not updated with merged result: %+v", stored.Cards)
	}
}

// failingStore aborts every atomic update, standing in for a store whose
// transaction retry budget is exhausted.
type failingStore struct {
	remote.Store
}

func (failingStore) UpdateProgress(ctx context.Context, id string, fn remote.UpdateFunc) (domain.Progress, error) {
	return domain.Progress{}, fmt.Errorf("%w: profile %s: transaction retries exhausted", remote.ErrSyncFailed, id)
}

func TestReconcileSurfacesSyncFailure(t *testing.T) {
	local := []domain.CardState{card("q1", 4, earlier)}
	localBefore := append([]domain.CardState(nil), local...)

	_, err := New(failingStore{}).Reconcile(context.Background(), "kid_1", local)
	if !errors.Is(err, remote.ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}
	if !reflect.DeepEqual(local, localBefore) {
		t.Error("local snapshot must be untouched after a failed sync")
	}
}
