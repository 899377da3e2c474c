// Package elevation stores the per-browser-session grants that authorize a
// password reset. A grant is created by a valid recovery link visit and
// consumed by the reset that uses it.
package elevation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"troupon/internal/recovery/models"
	id "troupon/pkg/domain"
	"troupon/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the session holds no grant
// - ErrExpired when the grant exists but has lapsed (it is removed)
// - wrapped infrastructure errors otherwise

// InMemoryStore keeps grants in a map. Used in development and tests.
type InMemoryStore struct {
	mu     sync.Mutex
	grants map[id.SessionID]models.ElevationGrant
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{grants: make(map[id.SessionID]models.ElevationGrant)}
}

// Grant stores g, replacing any grant the session already holds.
func (s *InMemoryStore) Grant(_ context.Context, g *models.ElevationGrant) error {
	if !g.ExpiresAt.After(g.GrantedAt) {
		return fmt.Errorf("elevation grant must expire after it is granted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.SessionID] = *g
	return nil
}

func (s *InMemoryStore) Check(_ context.Context, sessionID id.SessionID, now time.Time) (*models.ElevationGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(sessionID, now)
}

// Consume removes and returns the session's grant. Of concurrent callers at
// most one receives it.
func (s *InMemoryStore) Consume(_ context.Context, sessionID id.SessionID, now time.Time) (*models.ElevationGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.lookupLocked(sessionID, now)
	if err != nil {
		return nil, err
	}
	delete(s.grants, sessionID)
	return g, nil
}

func (s *InMemoryStore) lookupLocked(sessionID id.SessionID, now time.Time) (*models.ElevationGrant, error) {
	g, ok := s.grants[sessionID]
	if !ok {
		return nil, fmt.Errorf("elevation grant: %w", sentinel.ErrNotFound)
	}
	if g.IsExpired(now) {
		delete(s.grants, sessionID)
		return nil, fmt.Errorf("elevation grant: %w", sentinel.ErrExpired)
	}
	return &g, nil
}
