package grievance

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

// InMemoryStore keeps grievances in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	cases   map[id.GrievanceID]*Grievance
	tickets map[string]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		cases:   make(map[id.GrievanceID]*Grievance),
		tickets: make(map[string]bool),
	}
}

func (s *InMemoryStore) Create(_ context.Context, g *Grievance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tickets[g.TicketNumber] {
		return sentinel.ErrConflict
	}
	if g.ID.IsNil() {
		g.ID = id.NewGrievanceID()
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	clone := *g
	s.cases[g.ID] = &clone
	s.tickets[g.TicketNumber] = true
	return nil
}

func (s *InMemoryStore) GetForUser(_ context.Context, grievanceID id.GrievanceID, userID id.UserID) (*Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.cases[grievanceID]
	if !ok || g.UserID != userID {
		return nil, sentinel.ErrNotFound
	}
	clone := *g
	return &clone, nil
}

func (s *InMemoryStore) GetByID(_ context.Context, grievanceID id.GrievanceID) (*Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.cases[grievanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *g
	return &clone, nil
}

func (s *InMemoryStore) Update(_ context.Context, g *Grievance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[g.ID]; !ok {
		return sentinel.ErrNotFound
	}
	g.UpdatedAt = time.Now().UTC()

	clone := *g
	s.cases[g.ID] = &clone
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cases []*Grievance
	for _, g := range s.cases {
		if g.UserID == userID {
			clone := *g
			cases = append(cases, &clone)
		}
	}
	sortNewestFirst(cases)
	return cases, nil
}

func (s *InMemoryStore) ListAll(_ context.Context, filter Filter) ([]*Grievance, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Grievance
	for _, g := range s.cases {
		if filter.Status != nil && g.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && g.Priority != *filter.Priority {
			continue
		}
		clone := *g
		matched = append(matched, &clone)
	}
	sortNewestFirst(matched)
	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context, status Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	for _, g := range s.cases {
		if g.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) ListOverdue(_ context.Context, now time.Time) ([]*Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var overdue []*Grievance
	for _, g := range s.cases {
		if g.Overdue(now) {
			clone := *g
			overdue = append(overdue, &clone)
		}
	}
	sortNewestFirst(overdue)
	return overdue, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	for gID, g := range s.cases {
		if g.UserID == userID {
			delete(s.tickets, g.TicketNumber)
			delete(s.cases, gID)
			count++
		}
	}
	return count, nil
}

func sortNewestFirst(cases []*Grievance) {
	sort.Slice(cases, func(i, j int) bool {
		return cases[i].CreatedAt.After(cases[j].CreatedAt)
	})
}
