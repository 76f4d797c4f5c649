package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conorfennell/drillcard/internal/domain"
)

// MemoryStore is an in-process Store. Updates are trivially atomic because
// everything happens under one lock. It backs tests and offline development;
// nothing persists beyond the process.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	progress map[string]domain.Progress
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]domain.Profile),
		progress: make(map[string]domain.Progress),
	}
}

// ListProfiles implements Store.
func (s *MemoryStore) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateProfile implements Store.
func (s *MemoryStore) CreateProfile(ctx context.Context, p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

// GetProfile implements Store.
func (s *MemoryStore) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return p, nil
}

// LoadProgress implements Store.
func (s *MemoryStore) LoadProgress(ctx context.Context, id string) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return domain.Progress{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return clone(s.progress[id]), nil
}

// SaveProgress implements Store.
func (s *MemoryStore) SaveProgress(ctx context.Context, id string, p domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = clone(p)
	return nil
}

// UpdateProgress implements Store.
func (s *MemoryStore) UpdateProgress(ctx context.Context, id string, fn UpdateFunc) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(clone(s.progress[id]))
	if err != nil {
		return domain.Progress{}, err
	}
	s.progress[id] = clone(next)
	return next, nil
}

func clone(p domain.Progress) domain.Progress {
	if p.Cards == nil {
		return domain.Progress{}
	}
	out := domain.Progress{Cards: make([]domain.CardState, len(p.Cards))}
	copy(out.Cards, p.Cards)
	return out
}
