package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ride-sync/internal/models"
)

// Subject types a mirrored event can be filed under.
const (
	SubjectRide   = "ride"
	SubjectDriver = "driver"
)

// Subject identifies one event log: a ride or a driver.
type Subject struct {
	Type string
	ID   string
}

// Mirror defines persistence for the local copy of the server event log.
// Events returns newest first.
type Mirror interface {
	Append(ctx context.Context, s Subject, ev models.PersistedEvent) error
	Events(ctx context.Context, s Subject, limit int) ([]models.PersistedEvent, error)
}

type MemoryMirror struct {
	mu     sync.RWMutex
	events map[Subject][]models.PersistedEvent
	seen   map[Subject]map[string]struct{}
}

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{
		events: make(map[Subject][]models.PersistedEvent),
		seen:   make(map[Subject]map[string]struct{}),
	}
}

// Append is idempotent on event id.
func (m *MemoryMirror) Append(_ context.Context, s Subject, ev models.PersistedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.seen[s]
	if ids == nil {
		ids = make(map[string]struct{})
		m.seen[s] = ids
	}
	if _, dup := ids[ev.ID]; dup {
		return nil
	}
	ids[ev.ID] = struct{}{}
	m.events[s] = append(m.events[s], ev)
	return nil
}

func (m *MemoryMirror) Events(_ context.Context, s Subject, limit int) ([]models.PersistedEvent, error) {
	m.mu.RLock()
	src := m.events[s]
	out := make([]models.PersistedEvent, len(src))
	copy(out, src)
	m.mu.RUnlock()

	// Stable on insertion order so equal timestamps keep the newest append first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		if a == nil || b == nil {
			return false
		}
		return a.After(*b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
