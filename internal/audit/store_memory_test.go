package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) append(actor *id.UserID, action string, at time.Time) *Entry {
	entry := &Entry{
		ActorID:   actor,
		Action:    action,
		Category:  CategoryDataAccess,
		Severity:  SeverityInfo,
		Meta:      RequestMeta{IPAddress: "10.0.0.1", UserAgent: "test", SessionID: "sess"},
		CreatedAt: at,
	}
	s.Require().NoError(s.store.Append(s.ctx, entry))
	return entry
}

func (s *InMemoryStoreSuite) TestListNewestFirst() {
	actor := id.NewUserID()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.append(&actor, "first", base)
	s.append(&actor, "second", base.Add(time.Minute))
	s.append(&actor, "third", base.Add(2*time.Minute))

	entries, err := s.store.ListByActor(s.ctx, actor, nil)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal("third", entries[0].Action)
	s.Equal("first", entries[2].Action)
}

func (s *InMemoryStoreSuite) TestMarkForwarded() {
	actor := id.NewUserID()
	entry := s.append(&actor, "data_export", time.Now().UTC())
	sentAt := time.Now().UTC()

	s.Run("sets forwarded once", func() {
		s.Require().NoError(s.store.MarkForwarded(s.ctx, entry.ID, sentAt))

		entries, err := s.store.ListByActor(s.ctx, actor, nil)
		s.Require().NoError(err)
		s.True(entries[0].SIEMSent)
		s.Require().NotNil(entries[0].SIEMSentAt)
		s.Equal(sentAt, *entries[0].SIEMSentAt)
	})

	s.Run("second mark is rejected", func() {
		err := s.store.MarkForwarded(s.ctx, entry.ID, sentAt)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown entry is not found", func() {
		err := s.store.MarkForwarded(s.ctx, id.NewAuditLogID(), sentAt)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestAnonymizeByActor() {
	actor := id.NewUserID()
	other := id.NewUserID()
	s.append(&actor, "login_success", time.Now().UTC())
	s.append(&actor, "data_export", time.Now().UTC())
	s.append(&other, "login_success", time.Now().UTC())

	count, err := s.store.AnonymizeByActor(s.ctx, actor)
	s.Require().NoError(err)
	s.Equal(2, count)

	entries, err := s.store.ListByActor(s.ctx, actor, nil)
	s.Require().NoError(err)
	s.Empty(entries)

	all, err := s.store.List(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(all, 3)

	var anonymized int
	for _, entry := range all {
		if entry.ActorID == nil {
			anonymized++
			s.Empty(entry.Meta.IPAddress)
			s.Empty(entry.Meta.UserAgent)
			s.Empty(entry.Meta.SessionID)
		}
	}
	s.Equal(2, anonymized)

	kept, err := s.store.ListByActor(s.ctx, other, nil)
	s.Require().NoError(err)
	s.Len(kept, 1)
}
