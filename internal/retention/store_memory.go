package retention

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

// InMemoryStore keeps policies in process memory. Used in tests and when
// no database is configured.
type InMemoryStore struct {
	mu         sync.RWMutex
	byDataType map[string]*Policy
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byDataType: make(map[string]*Policy),
	}
}

func (s *InMemoryStore) Create(_ context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byDataType[p.DataType]; exists {
		return sentinel.ErrConflict
	}
	if p.ID.IsNil() {
		p.ID = id.NewPolicyID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	clone := *p
	s.byDataType[p.DataType] = &clone
	return nil
}

func (s *InMemoryStore) GetByDataType(_ context.Context, dataType string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byDataType[dataType]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *InMemoryStore) Update(_ context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byDataType[p.DataType]
	if !ok || existing.ID != p.ID {
		return sentinel.ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()

	clone := *p
	s.byDataType[p.DataType] = &clone
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policies := make([]*Policy, 0, len(s.byDataType))
	for _, p := range s.byDataType {
		clone := *p
		policies = append(policies, &clone)
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].DataType < policies[j].DataType
	})
	return policies, nil
}
