package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

// InMemoryStore keeps consent records in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.ConsentID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.ConsentID]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.UserID == rec.UserID && existing.Purpose == rec.Purpose && existing.Active() {
			return sentinel.ErrConflict
		}
	}

	if rec.ID.IsNil() {
		rec.ID = id.NewConsentID()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *InMemoryStore) GetActive(_ context.Context, userID id.UserID, purpose Purpose) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.UserID == userID && rec.Purpose == purpose && rec.Active() {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return sentinel.ErrNotFound
	}
	rec.UpdatedAt = time.Now().UTC()

	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*Record
	for _, rec := range s.records {
		if rec.UserID == userID {
			clone := *rec
			records = append(records, &clone)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	for recID, rec := range s.records {
		if rec.UserID == userID {
			delete(s.records, recID)
			count++
		}
	}
	return count, nil
}
