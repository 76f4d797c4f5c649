// Package deck holds the in-memory table of per-card learning state for one
// profile, joined against the catalog. The catalog decides which card ids
// exist; stored state for ids the catalog no longer contains is dropped, and
// catalog ids with no stored state start fresh.
package deck

import (
	"sort"
	"time"

	"github.com/conorfennell/drillcard/internal/domain"
)

// Deck is the authoritative in-process copy of one profile's learning state.
// It is not safe for concurrent use; the owning flow must serialise access.
type Deck struct {
	order  []string // catalog order, used for stable iteration
	cards  map[string]domain.Card
	states map[string]domain.CardState
}

// Load joins the catalog against previously stored state. Stored cards whose
// id is absent from the catalog are discarded; catalog cards with no stored
// state are initialised fresh.
func Load(catalog []domain.Card, stored []domain.CardState) *Deck {
	byID := make(map[string]domain.CardState, len(stored))
	for _, s := range stored {
		byID[s.ID] = s
	}

	d := &Deck{
		order:  make([]string, 0, len(catalog)),
		cards:  make(map[string]domain.Card, len(catalog)),
		states: make(map[string]domain.CardState, len(catalog)),
	}
	for _, c := range catalog {
		d.order = append(d.order, c.ID)
		d.cards[c.ID] = c
		if s, ok := byID[c.ID]; ok {
			s.ID = c.ID
			d.states[c.ID] = s
		} else {
			d.states[c.ID] = domain.NewCardState(c.ID)
		}
	}
	return d
}

// Len returns the number of cards in the deck.
func (d *Deck) Len() int {
	return len(d.order)
}

// Card returns the catalog content for the given id.
func (d *Deck) Card(id string) (domain.Card, bool) {
	c, ok := d.cards[id]
	return c, ok
}

// State returns the learning state for the given id.
func (d *Deck) State(id string) (domain.CardState, bool) {
	s, ok := d.states[id]
	return s, ok
}

// SetState replaces the learning state for an id already in the deck.
// States for unknown ids are ignored, keeping the catalog authoritative.
func (d *Deck) SetState(s domain.CardState) {
	if _, ok := d.states[s.ID]; ok {
		d.states[s.ID] = s
	}
}

// Due returns the ids of all cards eligible for review at the given time, in
// catalog order.
func (d *Deck) Due(now time.Time) []string {
	var due []string
	for _, id := range d.order {
		if d.states[id].Due(now) {
			due = append(due, id)
		}
	}
	return due
}

// EarliestDue returns up to n card ids ordered by soonest due date. It backs
// the substitute session when nothing is currently due.
func (d *Deck) EarliestDue(n int) []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	sort.SliceStable(ids, func(i, j int) bool {
		return d.states[ids[i]].DueAt.Before(d.states[ids[j]].DueAt)
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Snapshot returns a copy of all learning state in catalog order, suitable
// for persisting or reconciling.
func (d *Deck) Snapshot() []domain.CardState {
	out := make([]domain.CardState, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.states[id])
	}
	return out
}

// Restore replaces learning state from a snapshot, typically the merged
// result of a reconciliation. Ids not in the catalog are ignored.
func (d *Deck) Restore(snapshot []domain.CardState) {
	for _, s := range snapshot {
		d.SetState(s)
	}
}

// Stats summarises the deck for display.
type Stats struct {
	Total       int
	Due         int
	NeverSeen   int
	AvgEase     float64
	AvgInterval float64
}

// Stats computes aggregate figures over the deck at the given time.
func (d *Deck) Stats(now time.Time) Stats {
	st := Stats{Total: len(d.order)}
	if st.Total == 0 {
		return st
	}
	var easeSum, intervalSum float64
	for _, id := range d.order {
		s := d.states[id]
		if s.Due(now) {
			st.Due++
		}
		if !s.Reviewed() {
			st.NeverSeen++
		}
		easeSum += s.EaseFactor
		intervalSum += float64(s.IntervalDays)
	}
	st.AvgEase = easeSum / float64(st.Total)
	st.AvgInterval = intervalSum / float64(st.Total)
	return st
}
