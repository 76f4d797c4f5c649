// Package web serves the review UI: profile selection, the deck overview
// and the practice session loop. It is the only writer of the in-process
// deck; handlers serialise on a single lock and hand ratings to the
// scheduler through the session.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conorfennell/drillcard/internal/deck"
	"github.com/conorfennell/drillcard/internal/domain"
	"github.com/conorfennell/drillcard/internal/profile"
	"github.com/conorfennell/drillcard/internal/reconcile"
	"github.com/conorfennell/drillcard/internal/remote"
	"github.com/conorfennell/drillcard/internal/session"
	"github.com/conorfennell/drillcard/internal/sm2"
	"github.com/conorfennell/drillcard/internal/storage"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// localProfileID is the pseudo-profile used when no remote store is
// configured; progress then lives only in the local database.
const localProfileID = "local"

const syncTimeout = 10 * time.Second

// Server holds the dependencies for the HTTP server.
type Server struct {
	db        *storage.DB
	catalog   []domain.Card
	store     remote.Store          // nil when running without a remote store
	profiles  *profile.Manager      // nil when running without a remote store
	rec       *reconcile.Reconciler // nil when running without a remote store
	router    *http.ServeMux
	templates *template.Template

	mu          sync.Mutex
	profileID   string
	profileName string
	deck        *deck.Deck
	sess        *session.Session
	syncing     bool
	syncPending bool
	lastSyncErr error
}

// NewServer creates and configures a new server. store may be nil, in which
// case cross-device sync is disabled and a single local profile is used.
func NewServer(db *storage.DB, catalog []domain.Card, store remote.Store) *Server {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	s := &Server{
		db:        db,
		catalog:   catalog,
		router:    http.NewServeMux(),
		templates: tpl,
	}
	if store != nil {
		s.store = store
		s.profiles = profile.NewManager(store)
		s.rec = reconcile.New(store)
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("Failed to create sub-filesystem for static assets: %v", err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	s.router.Handle("/static/", http.StripPrefix("/static/", fileServer))
	s.router.Handle("/", fileServer)

	s.router.HandleFunc("/profiles", s.handleProfiles())
	s.router.HandleFunc("/profiles/select/", s.handleSelectProfile())
	s.router.HandleFunc("/deck", s.handleGetDeck())
	s.router.HandleFunc("/cards", s.handleListCards())
	s.router.HandleFunc("/cards/preview/", s.handlePreviewCard())
	s.router.HandleFunc("/progress/reset", s.handleResetProgress())
	s.router.HandleFunc("/session", s.handleStartSession())
	s.router.HandleFunc("/review/next", s.handleGetNextCard())
	s.router.HandleFunc("/review/answer/", s.handleShowAnswer())
	s.router.HandleFunc("/review/", s.handlePostReview())
	s.router.HandleFunc("/sync", s.handlePostSync())
}

// handleProfiles lists profiles on GET and creates one on POST.
func (s *Server) handleProfiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.renderProfileList(w, r)
		case http.MethodPost:
			if s.profiles == nil {
				http.Error(w, "Profiles need a remote store", http.StatusConflict)
				return
			}
			name := r.PostFormValue("name")
			if _, err := s.profiles.Create(r.Context(), name); err != nil {
				slog.Error("failed to create profile", "name", name, "error", err)
				http.Error(w, "Failed to create profile", http.StatusBadRequest)
				return
			}
			s.renderProfileList(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) renderProfileList(w http.ResponseWriter, r *http.Request) {
	var profiles []domain.Profile
	if s.profiles == nil {
		profiles = []domain.Profile{{ID: localProfileID, Name: "This device"}}
	} else {
		var err error
		profiles, err = s.profiles.List(r.Context())
		if err != nil {
			slog.Error("failed to list profiles", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
	s.templates.ExecuteTemplate(w, "profile_list", map[string]interface{}{
		"Profiles":  profiles,
		"CanCreate": s.profiles != nil,
	})
}

// handleSelectProfile loads the chosen profile's progress into a fresh deck:
// local state first, then a reconcile against the remote copy when sync is
// available. A failed reconcile degrades to offline practice, never to an
// error page.
func (s *Server) handleSelectProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/profiles/select/")

		name := "This device"
		if s.profiles != nil {
			p, err := s.profiles.Get(r.Context(), id)
			if errors.Is(err, remote.ErrProfileNotFound) {
				http.NotFound(w, r)
				return
			}
			if err != nil {
				slog.Error("failed to load profile", "id", id, "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			name = p.Name
		} else if id != localProfileID {
			http.NotFound(w, r)
			return
		}

		stored, _, err := s.db.LoadProgress(id)
		if err != nil {
			slog.Error("failed to load local progress", "id", id, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		s.mu.Lock()
		s.profileID = id
		s.profileName = name
		s.deck = deck.Load(s.catalog, stored.Cards)
		s.sess = nil
		s.lastSyncErr = nil
		s.mu.Unlock()

		s.reconcileNow()
		s.renderDeck(w)
	}
}

// handleGetDeck renders the deck overview for the selected profile.
func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderDeck(w)
	}
}

func (s *Server) renderDeck(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deck == nil {
		s.templates.ExecuteTemplate(w, "no_profile", nil)
		return
	}
	st := s.deck.Stats(time.Now())
	s.templates.ExecuteTemplate(w, "deck", map[string]interface{}{
		"ProfileName": s.profileName,
		"DueCount":    st.Due,
		"Total":       st.Total,
		"NeverSeen":   st.NeverSeen,
		"HasDueCards": st.Due > 0,
		"SyncEnabled": s.rec != nil,
		"SyncFailed":  s.lastSyncErr != nil,
	})
}

// handleListCards renders the browser: every catalog card with the selected
// profile's learning state for it.
func (s *Server) handleListCards() http.HandlerFunc {
	type row struct {
		Card  domain.Card
		State domain.CardState
		Due   bool
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.deck == nil {
			s.templates.ExecuteTemplate(w, "no_profile", nil)
			return
		}
		now := time.Now()
		rows := make([]row, 0, len(s.catalog))
		for _, c := range s.catalog {
			state, _ := s.deck.State(c.ID)
			rows = append(rows, row{Card: c, State: state, Due: state.Due(now)})
		}
		s.templates.ExecuteTemplate(w, "card_list", map[string]interface{}{
			"ProfileName": s.profileName,
			"Rows":        rows,
		})
	}
}

// handlePreviewCard shows a card's full content outside a session. Preview is
// catalog-only and works with or without a selected profile.
func (s *Server) handlePreviewCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/cards/preview/")
		for _, c := range s.catalog {
			if c.ID == id {
				s.templates.ExecuteTemplate(w, "card_preview", map[string]interface{}{
					"Card": c,
				})
				return
			}
		}
		http.NotFound(w, r)
	}
}

// handleResetProgress wipes the selected profile's learning state: the deck
// starts fresh and both the local and the remote document are overwritten.
// The confirmation guard lives in the UI; reaching this endpoint is final.
func (s *Server) handleResetProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		if s.deck == nil {
			s.mu.Unlock()
			http.Error(w, "No profile selected", http.StatusConflict)
			return
		}
		profileID := s.profileID
		s.deck = deck.Load(s.catalog, nil)
		s.sess = nil
		fresh := domain.Progress{Cards: s.deck.Snapshot()}
		s.mu.Unlock()

		if err := s.db.SaveProgress(profileID, fresh); err != nil {
			slog.Error("failed to save reset progress", "profile", profileID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if s.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
			defer cancel()
			if err := s.store.SaveProgress(ctx, profileID, fresh); err != nil {
				slog.Warn("failed to reset remote progress", "profile", profileID, "error", err)
				s.mu.Lock()
				s.lastSyncErr = err
				s.mu.Unlock()
			}
		}
		slog.Info("progress reset", "profile", profileID)
		s.renderDeck(w)
	}
}

// handleStartSession begins a practice session over the current deck.
func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.mu.Lock()
		if s.deck == nil {
			s.mu.Unlock()
			http.Error(w, "No profile selected", http.StatusConflict)
			return
		}
		s.sess = session.New(s.deck)
		s.sess.Start(time.Now())
		s.mu.Unlock()

		s.renderCurrentCard(w)
	}
}

// handleGetNextCard renders the front of the card at the head of the queue.
func (s *Server) handleGetNextCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderCurrentCard(w)
	}
}

func (s *Server) renderCurrentCard(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		s.templates.ExecuteTemplate(w, "no_profile", nil)
		return
	}
	card, _, ok := s.sess.Current()
	if !ok {
		s.templates.ExecuteTemplate(w, "session_complete", map[string]interface{}{
			"SyncFailed": s.lastSyncErr != nil,
		})
		return
	}
	s.templates.ExecuteTemplate(w, "card_front", map[string]interface{}{
		"Card":      card,
		"Remaining": s.sess.Remaining(),
	})
}

// handleShowAnswer renders the back of the current card.
func (s *Server) handleShowAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/review/answer/")

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sess == nil {
			http.NotFound(w, r)
			return
		}
		card, _, ok := s.sess.Current()
		if !ok || card.ID != id {
			http.NotFound(w, r)
			return
		}
		s.templates.ExecuteTemplate(w, "card_back", map[string]interface{}{
			"Card":      card,
			"Remaining": s.sess.Remaining(),
		})
	}
}

// handlePostReview rates the current card, persists the updated state and
// kicks off a background reconcile, then shows the next card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/review/")
		grade, err := strconv.Atoi(r.PostFormValue("grade"))
		if err != nil {
			http.Error(w, "Invalid grade", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		if s.sess == nil {
			s.mu.Unlock()
			http.Error(w, "No session in progress", http.StatusConflict)
			return
		}
		current, _, ok := s.sess.Current()
		if !ok || current.ID != id {
			s.mu.Unlock()
			http.Error(w, "Card is not up for review", http.StatusConflict)
			return
		}

		now := time.Now()
		if _, err := s.sess.Rate(sm2.Quality(grade), now); err != nil {
			s.mu.Unlock()
			if errors.Is(err, sm2.ErrInvalidRating) {
				http.Error(w, "Invalid grade", http.StatusBadRequest)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		profileID := s.profileID
		snapshot := s.deck.Snapshot()
		s.mu.Unlock()

		if err := s.db.AppendReview(domain.ReviewLog{
			ProfileID: profileID, CardID: id, Quality: grade, ReviewedAt: now,
		}); err != nil {
			slog.Warn("failed to append review log", "card", id, "error", err)
		}
		if err := s.db.SaveProgress(profileID, domain.Progress{Cards: snapshot}); err != nil {
			slog.Error("failed to save local progress", "profile", profileID, "error", err)
		}
		go s.reconcileAsync(profileID, snapshot)

		s.renderCurrentCard(w)
	}
}

// handlePostSync runs a reconcile in the foreground and re-renders the deck.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.reconcileNow()
		s.renderDeck(w)
	}
}

// reconcileNow reconciles the current deck synchronously. Failures only set
// the sync status; the learner keeps practicing on local state.
func (s *Server) reconcileNow() {
	s.mu.Lock()
	if s.rec == nil || s.deck == nil {
		s.mu.Unlock()
		return
	}
	profileID := s.profileID
	snapshot := s.deck.Snapshot()
	s.mu.Unlock()

	s.reconcileAsync(profileID, snapshot)
}

// reconcileAsync exchanges the snapshot with the remote copy. At most one
// reconciliation is in flight at a time; a rating that arrives while one is
// running marks it pending, and the in-flight run picks up a fresh snapshot
// and goes again before releasing the slot.
func (s *Server) reconcileAsync(profileID string, snapshot []domain.CardState) {
	s.mu.Lock()
	if s.rec == nil {
		s.mu.Unlock()
		return
	}
	if s.syncing {
		s.syncPending = true
		s.mu.Unlock()
		return
	}
	s.syncing = true
	rec := s.rec
	s.mu.Unlock()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		merged, err := rec.Reconcile(ctx, profileID, snapshot)
		cancel()

		s.mu.Lock()
		if err != nil {
			s.lastSyncErr = err
			slog.Warn("reconciliation failed, keeping local progress", "profile", profileID, "error", err)
		} else {
			s.lastSyncErr = nil
			if s.profileID == profileID && s.deck != nil {
				s.applyMerged(profileID, snapshot, merged)
			}
		}

		if !s.syncPending || s.profileID != profileID || s.deck == nil {
			s.syncing = false
			s.syncPending = false
			s.mu.Unlock()
			return
		}
		s.syncPending = false
		snapshot = s.deck.Snapshot()
		s.mu.Unlock()
	}
}

// applyMerged restores the merged result into the deck, except for cards the
// learner rated after the snapshot was taken; those newer local states must
// not be rolled back, they reach the remote on the next exchange. Called with
// s.mu held.
func (s *Server) applyMerged(profileID string, snapshot, merged []domain.CardState) {
	sentAt := make(map[string]time.Time, len(snapshot))
	for _, c := range snapshot {
		sentAt[c.ID] = c.LastUpdated
	}
	for _, c := range merged {
		if cur, ok := s.deck.State(c.ID); ok && cur.LastUpdated.After(sentAt[c.ID]) {
			continue
		}
		s.deck.SetState(c)
	}
	if err := s.db.SaveProgress(profileID, domain.Progress{Cards: s.deck.Snapshot()}); err != nil {
		slog.Error("failed to save merged progress", "profile", profileID, "error", err)
	}
}
