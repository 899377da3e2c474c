package memory

import (
	"context"
	"slices"
	"sync"

	id "troupon/pkg/domain"
	audit "troupon/pkg/platform/audit"
)

// InMemoryStore keeps the most recent events. Once maxEvents is reached the
// oldest event is discarded for each new one.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    []audit.Event
	maxEvents int
}

type Option func(*InMemoryStore)

// WithMaxEvents caps retention. Zero or negative keeps everything.
func WithMaxEvents(n int) Option {
	return func(s *InMemoryStore) {
		s.maxEvents = n
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.maxEvents > 0 && len(s.events) > s.maxEvents {
		s.events = slices.Delete(s.events, 0, len(s.events)-s.maxEvents)
	}
	return nil
}

// ListByUser returns the user's events in the order they were appended.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns up to limit events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.events)
	slices.SortStableFunc(out, func(a, b audit.Event) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
