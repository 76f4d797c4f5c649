package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/drillcard/internal/domain"
	"github.com/conorfennell/drillcard/internal/remote"
	"github.com/conorfennell/drillcard/internal/storage"
)

func newTestServer(t *testing.T, store remote.Store) *Server {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	catalog := []domain.Card{
		{ID: "q1", Prompt: "What is 7 + 5?", Answer: "12"},
		{ID: "q2", Prompt: "What is 9 - 4?", Answer: "5"},
	}
	return NewServer(db, catalog, store)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func postForm(t *testing.T, srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func TestReviewFlow(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	if err := store.CreateProfile(ctx, domain.Profile{ID: "mei_1", Name: "Mei"}); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, store)

	// Selecting the profile shows the deck with both cards due.
	w := postForm(t, srv, "/profiles/select/mei_1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("select profile: status %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Mei") || !strings.Contains(body, "2") {
		t.Errorf("deck view missing profile or due count: %s", body)
	}

	// Start a session: first card front.
	w = postForm(t, srv, "/session", nil)
	if !strings.Contains(w.Body.String(), "What is 7 + 5?") {
		t.Fatalf("expected first card prompt, got: %s", w.Body.String())
	}

	// Reveal the answer.
	w = get(t, srv, "/review/answer/q1")
	if !strings.Contains(w.Body.String(), "12") {
		t.Errorf("expected the answer, got: %s", w.Body.String())
	}

	// Pass the first card: second card comes up.
	w = postForm(t, srv, "/review/q1", url.Values{"grade": {"5"}})
	if !strings.Contains(w.Body.String(), "What is 9 - 4?") {
		t.Fatalf("expected second card prompt, got: %s", w.Body.String())
	}

	// Fail the second card: it is the only one left, so it comes right back.
	w = postForm(t, srv, "/review/q2", url.Values{"grade": {"1"}})
	if !strings.Contains(w.Body.String(), "What is 9 - 4?") {
		t.Fatalf("expected failed card to be re-queued, got: %s", w.Body.String())
	}

	// Pass it: session complete.
	w = postForm(t, srv, "/review/q2", url.Values{"grade": {"3"}})
	if !strings.Contains(w.Body.String(), "All done") {
		t.Fatalf("expected session completion, got: %s", w.Body.String())
	}

	// The rating eventually reaches the remote store via reconciliation.
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, err := store.LoadProgress(ctx, "mei_1")
		if err == nil && len(p.Cards) == 2 {
			var q1 domain.CardState
			for _, c := range p.Cards {
				if c.ID == "q1" {
					q1 = c
				}
			}
			if q1.Reps == 1 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("remote store never received the reviewed progress")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// blockingStore wraps a Store and, once armed, parks every UpdateProgress
// call until released. It simulates a slow remote during reconciliation.
type blockingStore struct {
	remote.Store
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore(inner remote.Store) *blockingStore {
	return &blockingStore{
		Store:   inner,
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (s *blockingStore) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
}

func (s *blockingStore) UpdateProgress(ctx context.Context, id string, fn remote.UpdateFunc) (domain.Progress, error) {
	s.mu.Lock()
	armed := s.armed
	s.mu.Unlock()
	if armed {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.Store.UpdateProgress(ctx, id, fn)
}

func TestRatingDuringSyncIsNotLost(t *testing.T) {
	ctx := context.Background()
	inner := remote.NewMemoryStore()
	if err := inner.CreateProfile(ctx, domain.Profile{ID: "mei_1", Name: "Mei"}); err != nil {
		t.Fatal(err)
	}
	store := newBlockingStore(inner)
	srv := newTestServer(t, store)

	postForm(t, srv, "/profiles/select/mei_1", nil)
	postForm(t, srv, "/session", nil)

	// The first rating's exchange parks inside the store, holding the
	// in-flight slot with a snapshot that predates the second rating.
	store.arm()
	postForm(t, srv, "/review/q1", url.Values{"grade": {"5"}})
	<-store.entered

	// Rate the second card while the first exchange is still in flight.
	postForm(t, srv, "/review/q2", url.Values{"grade": {"5"}})

	close(store.release)

	// The stale exchange must not roll q2 back, and a follow-up exchange
	// must carry its rating to the remote store.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var q2 domain.CardState
		if p, err := inner.LoadProgress(ctx, "mei_1"); err == nil {
			for _, c := range p.Cards {
				if c.ID == "q2" {
					q2 = c
				}
			}
		}
		if q2.Reps == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("remote store never received q2's rating, last saw %+v", q2)
		}
		time.Sleep(10 * time.Millisecond)
	}

	srv.mu.Lock()
	state, ok := srv.deck.State("q2")
	srv.mu.Unlock()
	if !ok || state.Reps != 1 {
		t.Errorf("q2's rating was rolled back by the stale exchange: %+v", state)
	}
}

func TestRejectsBadGrade(t *testing.T) {
	srv := newTestServer(t, nil)
	postForm(t, srv, "/profiles/select/local", nil)
	postForm(t, srv, "/session", nil)

	if w := postForm(t, srv, "/review/q1", url.Values{"grade": {"banana"}}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unparseable grade, got %d", w.Code)
	}
	if w := postForm(t, srv, "/review/q1", url.Values{"grade": {"9"}}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range grade, got %d", w.Code)
	}
	// The card is still there to be rated properly.
	if w := postForm(t, srv, "/review/q1", url.Values{"grade": {"3"}}); w.Code != http.StatusOK {
		t.Errorf("expected rating to succeed after bad grades, got %d", w.Code)
	}
}

func TestRatingWrongCardConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	postForm(t, srv, "/profiles/select/local", nil)
	postForm(t, srv, "/session", nil)

	if w := postForm(t, srv, "/review/q2", url.Values{"grade": {"3"}}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 when rating a card that is not current, got %d", w.Code)
	}
}

func TestOfflineModeUsesLocalProfile(t *testing.T) {
	srv := newTestServer(t, nil)

	w := get(t, srv, "/profiles")
	if !strings.Contains(w.Body.String(), "This device") {
		t.Errorf("expected the local pseudo-profile, got: %s", w.Body.String())
	}

	if w := postForm(t, srv, "/profiles/select/somebody", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown profile offline, got %d", w.Code)
	}

	if w := postForm(t, srv, "/profiles", url.Values{"name": {"Mei"}}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 creating profiles offline, got %d", w.Code)
	}
}

func TestCardBrowserShowsState(t *testing.T) {
	srv := newTestServer(t, nil)
	postForm(t, srv, "/profiles/select/local", nil)
	postForm(t, srv, "/session", nil)
	postForm(t, srv, "/review/q1", url.Values{"grade": {"5"}})

	w := get(t, srv, "/cards")
	body := w.Body.String()
	if !strings.Contains(body, "What is 7 + 5?") || !strings.Contains(body, "What is 9 - 4?") {
		t.Errorf("card list missing catalog prompts: %s", body)
	}
	// q1 was rated Easy once: ease 2.60; q2 is untouched at 2.50.
	if !strings.Contains(body, "2.60") || !strings.Contains(body, "2.50") {
		t.Errorf("card list missing per-card learning state: %s", body)
	}
	if !strings.Contains(body, "new") {
		t.Errorf("never-reviewed card should show as new: %s", body)
	}
}

func TestCardPreview(t *testing.T) {
	srv := newTestServer(t, nil)

	w := get(t, srv, "/cards/preview/q1")
	if !strings.Contains(w.Body.String(), "What is 7 + 5?") || !strings.Contains(w.Body.String(), "12") {
		t.Errorf("preview missing prompt or answer: %s", w.Body.String())
	}

	if w := get(t, srv, "/cards/preview/nope"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown card, got %d", w.Code)
	}
}

func TestResetClearsProgress(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	if err := store.CreateProfile(ctx, domain.Profile{ID: "mei_1", Name: "Mei"}); err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, store)

	postForm(t, srv, "/profiles/select/mei_1", nil)
	postForm(t, srv, "/session", nil)
	postForm(t, srv, "/review/q1", url.Values{"grade": {"5"}})

	// Wait for the rating's background exchange to finish so it cannot
	// interleave with the reset.
	deadline := time.Now().Add(2 * time.Second)
	for {
		settled := false
		if p, err := store.LoadProgress(ctx, "mei_1"); err == nil {
			for _, c := range p.Cards {
				if c.ID == "q1" && c.Reps == 1 {
					settled = true
				}
			}
		}
		if settled {
			srv.mu.Lock()
			settled = !srv.syncing
			srv.mu.Unlock()
		}
		if settled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background sync never settled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := postForm(t, srv, "/progress/reset", nil); w.Code != http.StatusOK {
		t.Fatalf("reset: status %d", w.Code)
	}

	srv.mu.Lock()
	state, ok := srv.deck.State("q1")
	srv.mu.Unlock()
	if !ok || state.Reps != 0 || state.Reviewed() {
		t.Errorf("expected q1 back to fresh state, got %+v", state)
	}

	p, found, err := srv.db.LoadProgress("mei_1")
	if err != nil || !found {
		t.Fatalf("expected reset progress in local storage, found=%v err=%v", found, err)
	}
	for _, c := range p.Cards {
		if c.Reps != 0 {
			t.Errorf("local progress not reset for %s: %+v", c.ID, c)
		}
	}

	rp, err := store.LoadProgress(ctx, "mei_1")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range rp.Cards {
		if c.Reps != 0 {
			t.Errorf("remote progress not reset for %s: %+v", c.ID, c)
		}
	}
}

func TestResetWithoutProfileConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	if w := postForm(t, srv, "/progress/reset", nil); w.Code != http.StatusConflict {
		t.Errorf("expected 409 resetting with no profile selected, got %d", w.Code)
	}
}

func TestProgressSurvivesReselect(t *testing.T) {
	srv := newTestServer(t, nil)
	postForm(t, srv, "/profiles/select/local", nil)
	postForm(t, srv, "/session", nil)
	postForm(t, srv, "/review/q1", url.Values{"grade": {"5"}})

	// Re-selecting the profile reloads from the local database.
	w := postForm(t, srv, "/profiles/select/local", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reselect: status %d", w.Code)
	}

	srv.mu.Lock()
	state, ok := srv.deck.State("q1")
	srv.mu.Unlock()
	if !ok || state.Reps != 1 {
		t.Errorf("expected q1 progress restored from local storage, got %+v", state)
	}
}
