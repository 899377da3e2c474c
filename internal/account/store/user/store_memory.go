package user

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"troupon/internal/account/models"
	id "troupon/pkg/domain"
	"troupon/pkg/platform/sentinel"
)

// InMemoryUserStore keeps accounts in a map. Used in development and tests.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Save inserts or replaces a user. Another account already holding the email
// yields ErrConflict.
func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	key := strings.ToLower(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byEmail[key]; ok && owner != user.ID {
		return fmt.Errorf("email %q: %w", key, sentinel.ErrConflict)
	}
	if existing, ok := s.users[user.ID]; ok {
		delete(s.byEmail, strings.ToLower(existing.Email))
	}
	stored := *user
	s.users[user.ID] = &stored
	s.byEmail[key] = user.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[userID]; ok {
		found := *user
		return &found, nil
	}
	return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.byEmail[strings.ToLower(email)]; ok {
		found := *s.users[userID]
		return &found, nil
	}
	return nil, fmt.Errorf("user with email: %w", sentinel.ErrNotFound)
}

// SetPassword replaces the stored hash and stamps the change time.
func (s *InMemoryUserStore) SetPassword(_ context.Context, userID id.UserID, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = changedAt
	return nil
}

// Delete removes a user.
func (s *InMemoryUserStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	delete(s.byEmail, strings.ToLower(user.Email))
	delete(s.users, userID)
	return nil
}
