package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/internal/notifier"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

type LedgerSuite struct {
	suite.Suite
	ctx        context.Context
	store      *InMemoryStore
	auditStore *audit.InMemoryStore
	ledger     *Ledger
	userID     id.UserID
	meta       RequestMeta
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	trail := audit.NewTrail(s.auditStore)
	s.ledger = NewLedger(s.store, NewMemoryTx(s.store, s.auditStore), trail)
	s.userID = id.NewUserID()
	s.meta = RequestMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent"}
}

func (s *LedgerSuite) TestGrant() {
	s.Run("creates an active record and audits it", func() {
		rec, err := s.ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "2.0", s.meta)
		s.Require().NoError(err)
		s.Equal(StatusGranted, rec.Status)
		s.Equal("2.0", rec.Version)
		s.False(rec.GrantedAt.IsZero())

		entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(ActionGranted, entries[0].Action)
		s.Equal(audit.CategoryConsent, entries[0].Category)
		s.Equal(audit.SeverityInfo, entries[0].Severity)
	})

	s.Run("duplicate active grant conflicts and leaves one active record", func() {
		_, err := s.ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "", s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeConflict))

		records, err := s.store.ListByUser(s.ctx, s.userID)
		s.Require().NoError(err)
		var active int
		for _, rec := range records {
			if rec.Active() {
				active++
			}
		}
		s.Equal(1, active)
	})

	s.Run("invalid purpose is rejected", func() {
		_, err := s.ledger.Grant(s.ctx, s.userID, Purpose("tracking"), "", s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeValidation))
	})

	s.Run("empty version falls back to the default", func() {
		rec, err := s.ledger.Grant(s.ctx, s.userID, PurposeMarketing, "", s.meta)
		s.Require().NoError(err)
		s.Equal(DefaultPolicyVersion, rec.Version)
	})
}

func (s *LedgerSuite) TestWithdraw() {
	s.Run("withdrawing essential always fails", func() {
		_, err := s.ledger.Withdraw(s.ctx, s.userID, PurposeEssential, s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodePolicyViolation))
	})

	s.Run("withdrawing without an active grant is not found", func() {
		_, err := s.ledger.Withdraw(s.ctx, s.userID, PurposeMarketing, s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeNotFound))
	})

	s.Run("withdraw mutates the record in place", func() {
		granted, err := s.ledger.Grant(s.ctx, s.userID, PurposeMarketing, "", s.meta)
		s.Require().NoError(err)

		withdrawn, err := s.ledger.Withdraw(s.ctx, s.userID, PurposeMarketing, s.meta)
		s.Require().NoError(err)
		s.Equal(granted.ID, withdrawn.ID)
		s.Equal(StatusWithdrawn, withdrawn.Status)
		s.Require().NotNil(withdrawn.WithdrawnAt)

		entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
		s.Require().NoError(err)
		s.Equal(ActionWithdrawn, entries[0].Action)
		s.Equal(audit.SeverityWarning, entries[0].Severity)
	})
}

func (s *LedgerSuite) TestGrantWithdrawGrantHistory() {
	// Grant, withdraw, grant again: two granted records and one withdrawn
	// record survive for the purpose.
	_, err := s.ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "", s.meta)
	s.Require().NoError(err)
	_, err = s.ledger.Withdraw(s.ctx, s.userID, PurposeAnalytics, s.meta)
	s.Require().NoError(err)
	_, err = s.ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "", s.meta)
	s.Require().NoError(err)

	records, err := s.ledger.List(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	var granted, withdrawn int
	for _, rec := range records {
		switch rec.Status {
		case StatusGranted:
			granted++
		case StatusWithdrawn:
			withdrawn++
		}
	}
	s.Equal(1, granted)
	s.Equal(1, withdrawn)
}

func (s *LedgerSuite) TestStatus() {
	active, err := s.ledger.Status(s.ctx, s.userID, PurposeAnalytics)
	s.Require().NoError(err)
	s.False(active)

	_, err = s.ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "", s.meta)
	s.Require().NoError(err)

	active, err = s.ledger.Status(s.ctx, s.userID, PurposeAnalytics)
	s.Require().NoError(err)
	s.True(active)

	_, err = s.ledger.Withdraw(s.ctx, s.userID, PurposeAnalytics, s.meta)
	s.Require().NoError(err)

	active, err = s.ledger.Status(s.ctx, s.userID, PurposeAnalytics)
	s.Require().NoError(err)
	s.False(active)
}

func (s *LedgerSuite) TestListNewestFirst() {
	for _, purpose := range []Purpose{PurposeEssential, PurposeAnalytics, PurposeMarketing} {
		_, err := s.ledger.Grant(s.ctx, s.userID, purpose, "", s.meta)
		s.Require().NoError(err)
		time.Sleep(2 * time.Millisecond)
	}

	records, err := s.ledger.List(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(records, 3)
	s.Equal(PurposeMarketing, records[0].Purpose)
	s.Equal(PurposeEssential, records[2].Purpose)
}

func (s *LedgerSuite) TestExpiryIsPreserved() {
	expires := time.Now().UTC().Add(90 * 24 * time.Hour).Truncate(time.Second)
	rec := &Record{
		ID:        id.NewConsentID(),
		UserID:    s.userID,
		Purpose:   PurposeMarketing,
		Status:    StatusGranted,
		Version:   "1.0",
		GrantedAt: time.Now().UTC(),
		ExpiresAt: &expires,
	}
	s.Require().NoError(s.store.Create(s.ctx, rec))

	got, err := s.store.GetActive(s.ctx, s.userID, PurposeMarketing)
	s.Require().NoError(err)
	s.Require().NotNil(got.ExpiresAt)
	s.True(got.ExpiresAt.Equal(expires))

	granted, err := s.ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "", s.meta)
	s.Require().NoError(err)
	s.Nil(granted.ExpiresAt)
}

func (s *LedgerSuite) TestInitializeEssential() {
	rec, err := s.ledger.InitializeEssential(s.ctx, s.userID, s.meta)
	s.Require().NoError(err)
	s.Equal(PurposeEssential, rec.Purpose)
	s.Equal(StatusGranted, rec.Status)

	_, err = s.ledger.InitializeEssential(s.ctx, s.userID, s.meta)
	s.Require().Error(err)
	s.True(domainErrors.HasCode(err, domainErrors.CodeConflict))
}

func (s *LedgerSuite) TestWithdrawalNotice() {
	users := user.NewInMemoryStore()
	u := &user.User{ID: s.userID, Email: "asha@example.com", FullName: "Asha", Role: user.RolePrincipal, IsActive: true}
	s.Require().NoError(users.Create(s.ctx, u))

	notices := notifier.NewMemoryNotifier()
	trail := audit.NewTrail(s.auditStore)
	ledger := NewLedger(s.store, NewMemoryTx(s.store, s.auditStore), trail,
		WithNotifier(notices, users),
	)

	_, err := ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "", s.meta)
	s.Require().NoError(err)
	_, err = ledger.Withdraw(s.ctx, s.userID, PurposeAnalytics, s.meta)
	s.Require().NoError(err)

	recorded := notices.Notices()
	s.Require().Len(recorded, 1)
	s.Equal("consent_withdrawal", recorded[0].Kind)
	s.Equal("asha@example.com", recorded[0].Email)
}

func (s *LedgerSuite) TestAuditFailureAbortsGrant() {
	failing := &failingAuditStore{}
	trail := audit.NewTrail(failing)
	ledger := NewLedger(s.store, NewMemoryTx(s.store, failing), trail)

	_, err := ledger.Grant(s.ctx, s.userID, PurposeAnalytics, "", s.meta)
	s.Require().Error(err)
	s.True(domainErrors.HasCode(err, domainErrors.CodeInternal))
}

type failingAuditStore struct{}

func (f *failingAuditStore) Append(context.Context, *audit.Entry) error {
	return errors.New("disk full")
}

func (f *failingAuditStore) ListByActor(context.Context, id.UserID, *audit.Filter) ([]*audit.Entry, error) {
	return nil, errors.New("disk full")
}

func (f *failingAuditStore) List(context.Context, *audit.Filter) ([]*audit.Entry, error) {
	return nil, errors.New("disk full")
}

func (f *failingAuditStore) MarkForwarded(context.Context, id.AuditLogID, time.Time) error {
	return errors.New("disk full")
}

func (f *failingAuditStore) AnonymizeByActor(context.Context, id.UserID) (int, error) {
	return 0, errors.New("disk full")
}
