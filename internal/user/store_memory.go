package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

// InMemoryStore keeps users in process memory. Used in tests and when no
// database is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*User
	byEmail map[string]id.UserID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.UserID]*User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(u.Email)
	if _, exists := s.byEmail[key]; exists {
		return sentinel.ErrConflict
	}
	if u.ID.IsNil() {
		u.ID = id.NewUserID()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	clone := *u
	s.byID[u.ID] = &clone
	s.byEmail[key] = u.ID
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, userID id.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *InMemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.byID[userID]
	return &clone, nil
}

func (s *InMemoryStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[u.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	key := normalizeEmail(u.Email)
	oldKey := normalizeEmail(existing.Email)
	if key != oldKey {
		if _, taken := s.byEmail[key]; taken {
			return sentinel.ErrConflict
		}
		delete(s.byEmail, oldKey)
		s.byEmail[key] = u.ID
	}
	u.UpdatedAt = time.Now().UTC()

	clone := *u
	s.byID[u.ID] = &clone
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byEmail, normalizeEmail(u.Email))
	delete(s.byID, userID)
	return nil
}

func (s *InMemoryStore) ListScheduledForDeletion(_ context.Context, cutoff time.Time) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*User
	for _, u := range s.byID {
		if u.ScheduledDeletionAt != nil && !u.ScheduledDeletionAt.After(cutoff) {
			clone := *u
			due = append(due, &clone)
		}
	}
	return due, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
