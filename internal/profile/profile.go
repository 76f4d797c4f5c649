// Package profile manages learner profiles in the remote store. Each
// profile owns one progress document; the id embeds a random suffix so two
// learners with the same name never collide.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/drillcard/internal/domain"
	"github.com/conorfennell/drillcard/internal/remote"
)

// Manager creates and looks up profiles.
type Manager struct {
	store remote.Store
}

// NewManager returns a Manager over the given store.
func NewManager(store remote.Store) *Manager {
	return &Manager{store: store}
}

// List returns all known profiles.
func (m *Manager) List(ctx context.Context) ([]domain.Profile, error) {
	return m.store.ListProfiles(ctx)
}

// Get returns the profile with the given id. A missing profile surfaces as
// remote.ErrProfileNotFound for the caller to decide on.
func (m *Manager) Get(ctx context.Context, id string) (domain.Profile, error) {
	return m.store.GetProfile(ctx, id)
}

// Create stores a new profile for the given display name and returns it.
func (m *Manager) Create(ctx context.Context, name string) (domain.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Profile{}, fmt.Errorf("profile name must not be empty")
	}

	p := domain.Profile{
		ID:        newID(name),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateProfile(ctx, p); err != nil {
		return domain.Profile{}, fmt.Errorf("creating profile %q: %w", name, err)
	}
	return p, nil
}

// newID builds a readable, collision-free profile id: a slug of the name
// plus a short random suffix.
func newID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "learner"
	}
	return slug + "_" + uuid.NewString()[:8]
}
