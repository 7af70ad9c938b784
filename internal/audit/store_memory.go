package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

// InMemoryStore keeps audit entries in memory for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewInMemoryStore constructs an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID.IsNil() {
		entry.ID = id.NewAuditLogID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	copyEntry := *entry
	s.entries = append(s.entries, &copyEntry)
	return nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actorID id.UserID, filter *Filter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Entry
	for _, e := range s.entries {
		if e.ActorID == nil || *e.ActorID != actorID {
			continue
		}
		if !matchesFilter(e, filter) {
			continue
		}
		copyEntry := *e
		matched = append(matched, &copyEntry)
	}
	return paginate(sortNewestFirst(matched), filter), nil
}

func (s *InMemoryStore) List(_ context.Context, filter *Filter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Entry
	for _, e := range s.entries {
		if !matchesFilter(e, filter) {
			continue
		}
		copyEntry := *e
		matched = append(matched, &copyEntry)
	}
	return paginate(sortNewestFirst(matched), filter), nil
}

func (s *InMemoryStore) MarkForwarded(_ context.Context, entryID id.AuditLogID, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID != entryID {
			continue
		}
		if e.SIEMSent {
			return sentinel.ErrInvalidState
		}
		e.SIEMSent = true
		e.SIEMSentAt = &sentAt
		return nil
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryStore) AnonymizeByActor(_ context.Context, actorID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.entries {
		if e.ActorID == nil || *e.ActorID != actorID {
			continue
		}
		e.ActorID = nil
		e.Meta = RequestMeta{}
		count++
	}
	return count, nil
}

func matchesFilter(e *Entry, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if filter.Category != nil && e.Category != *filter.Category {
		return false
	}
	if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
		return false
	}
	return true
}

func sortNewestFirst(entries []*Entry) []*Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries
}

func paginate(entries []*Entry, filter *Filter) []*Entry {
	if filter == nil {
		return entries
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return nil
		}
		entries = entries[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(entries) {
		entries = entries[:filter.Limit]
	}
	return entries
}
