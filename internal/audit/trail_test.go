package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/sentinel"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

type TrailSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	trail *Trail
}

func TestTrailSuite(t *testing.T) {
	suite.Run(t, new(TrailSuite))
}

func (s *TrailSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.trail = NewTrail(s.store)
}

func (s *TrailSuite) TestRecord() {
	actor := id.NewUserID()

	s.Run("appends entry with generated id and timestamp", func() {
		entry, err := s.trail.Record(s.ctx, Record{
			ActorID:  &actor,
			Action:   "consent_granted",
			Category: CategoryConsent,
			Resource: &Resource{Type: "consent", ID: "abc"},
			Details:  Details{"purpose": "analytics"},
		})
		s.Require().NoError(err)
		s.False(entry.ID.IsNil())
		s.False(entry.CreatedAt.IsZero())
		s.Equal(SeverityInfo, entry.Severity)
		s.False(entry.SIEMSent)

		got, err := s.store.ListByActor(s.ctx, actor, nil)
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("consent_granted", got[0].Action)
	})

	s.Run("rejects missing action", func() {
		_, err := s.trail.Record(s.ctx, Record{Category: CategoryConsent})
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeInvalidInput))
	})

	s.Run("rejects unknown category", func() {
		_, err := s.trail.Record(s.ctx, Record{Action: "x", Category: Category("bogus")})
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeInvalidInput))
	})

	s.Run("rejects unknown severity", func() {
		_, err := s.trail.Record(s.ctx, Record{
			Action:   "x",
			Category: CategoryConsent,
			Severity: Severity("loud"),
		})
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeInvalidInput))
	})

	s.Run("allows system entries without an actor", func() {
		entry, err := s.trail.Record(s.ctx, Record{
			Action:   "retention_sweep",
			Category: CategoryAdminAction,
		})
		s.Require().NoError(err)
		s.Nil(entry.ActorID)
	})
}

func (s *TrailSuite) TestRecordStoreFailure() {
	trail := NewTrail(&failingStore{})

	_, err := trail.Record(s.ctx, Record{
		Action:   "data_export",
		Category: CategoryDataAccess,
	})
	s.Require().Error(err)
	s.True(domainErrors.HasCode(err, domainErrors.CodeInternal))
}

func (s *TrailSuite) TestListByActor() {
	actor := id.NewUserID()
	other := id.NewUserID()

	for _, action := range []string{"login_success", "data_export", "consent_withdrawn"} {
		_, err := s.trail.Record(s.ctx, Record{
			ActorID:  &actor,
			Action:   action,
			Category: CategoryDataAccess,
		})
		s.Require().NoError(err)
	}
	_, err := s.trail.Record(s.ctx, Record{
		ActorID:  &other,
		Action:   "login_success",
		Category: CategoryAuthentication,
	})
	s.Require().NoError(err)

	entries, err := s.trail.ListByActor(s.ctx, actor, nil)
	s.Require().NoError(err)
	s.Len(entries, 3)
	for _, entry := range entries {
		s.Equal(actor, *entry.ActorID)
	}
}

func (s *TrailSuite) TestListFilters() {
	actor := id.NewUserID()
	categories := []Category{CategoryConsent, CategoryConsent, CategoryGrievance}
	for _, c := range categories {
		_, err := s.trail.Record(s.ctx, Record{ActorID: &actor, Action: "a", Category: c})
		s.Require().NoError(err)
	}

	s.Run("by category", func() {
		cat := CategoryConsent
		entries, err := s.trail.List(s.ctx, &Filter{Category: &cat})
		s.Require().NoError(err)
		s.Len(entries, 2)
	})

	s.Run("by since excludes older entries", func() {
		since := time.Now().UTC().Add(time.Hour)
		entries, err := s.trail.List(s.ctx, &Filter{Since: &since})
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("limit and offset paginate", func() {
		entries, err := s.trail.List(s.ctx, &Filter{Limit: 2, Offset: 2})
		s.Require().NoError(err)
		s.Len(entries, 1)
	})
}

type failingStore struct{}

func (f *failingStore) Append(context.Context, *Entry) error {
	return errors.New("disk full")
}

func (f *failingStore) ListByActor(context.Context, id.UserID, *Filter) ([]*Entry, error) {
	return nil, errors.New("disk full")
}

func (f *failingStore) List(context.Context, *Filter) ([]*Entry, error) {
	return nil, errors.New("disk full")
}

func (f *failingStore) MarkForwarded(context.Context, id.AuditLogID, time.Time) error {
	return sentinel.ErrNotFound
}

func (f *failingStore) AnonymizeByActor(context.Context, id.UserID) (int, error) {
	return 0, errors.New("disk full")
}
