package rights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/grievance"
	"custodia/internal/notifier"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

type OperationsSuite struct {
	suite.Suite
	ctx        context.Context
	users      *user.InMemoryStore
	consents   *consent.InMemoryStore
	grievances *grievance.InMemoryStore
	auditStore *audit.InMemoryStore
	trail      *audit.Trail
	ledger     *consent.Ledger
	notices    *notifier.MemoryNotifier
	ops        *Operations
	userID     id.UserID
	meta       RequestMeta
}

func TestOperationsSuite(t *testing.T) {
	suite.Run(t, new(OperationsSuite))
}

func (s *OperationsSuite) SetupTest() {
	s.ctx = context.Background()
	s.users = user.NewInMemoryStore()
	s.consents = consent.NewInMemoryStore()
	s.grievances = grievance.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.trail = audit.NewTrail(s.auditStore)
	s.ledger = consent.NewLedger(s.consents, consent.NewMemoryTx(s.consents, s.auditStore), s.trail)
	s.notices = notifier.NewMemoryNotifier()

	tx := NewMemoryTx(TxStores{
		Users:      s.users,
		Consents:   s.consents,
		Grievances: s.grievances,
		Audit:      s.auditStore,
	})
	s.ops = NewOperations(s.users, s.ledger, tx, s.trail, WithNotifier(s.notices))

	s.userID = id.NewUserID()
	u := &user.User{
		ID:       s.userID,
		Email:    "meera@example.com",
		FullName: "Meera",
		Phone:    "9000000000",
		Address:  "12 Lake Road",
		Role:     user.RolePrincipal,
		IsActive: true,
	}
	s.Require().NoError(s.users.Create(s.ctx, u))
	s.meta = RequestMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent"}
}

func (s *OperationsSuite) TestAccess() {
	u, err := s.ops.Access(s.ctx, s.userID, s.meta)
	s.Require().NoError(err)
	s.Equal("meera@example.com", u.Email)

	entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(ActionAccess, entries[0].Action)
	s.Equal(audit.CategoryDataAccess, entries[0].Category)

	_, err = s.ops.Access(s.ctx, id.NewUserID(), s.meta)
	s.Require().Error(err)
	s.True(domainErrors.HasCode(err, domainErrors.CodeNotFound))
}

func (s *OperationsSuite) TestCorrect() {
	name := "Meera K"
	phone := "9111111111"
	u, err := s.ops.Correct(s.ctx, s.userID, CorrectionRequest{FullName: &name, Phone: &phone}, s.meta)
	s.Require().NoError(err)
	s.Equal("Meera K", u.FullName)
	s.Equal("9111111111", u.Phone)
	s.Equal("12 Lake Road", u.Address)

	entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(ActionCorrected, entries[0].Action)
	s.Equal(audit.CategoryDataModification, entries[0].Category)

	old, ok := entries[0].Details["old_data"].(map[string]any)
	s.Require().True(ok)
	s.Equal("Meera", old["full_name"])
	updated, ok := entries[0].Details["new_data"].(map[string]any)
	s.Require().True(ok)
	s.Equal("Meera K", updated["full_name"])
}

func (s *OperationsSuite) TestExport() {
	cmeta := consent.RequestMeta{IPAddress: s.meta.IPAddress}
	_, err := s.ledger.Grant(s.ctx, s.userID, consent.PurposeEssential, "", cmeta)
	s.Require().NoError(err)
	_, err = s.ledger.Grant(s.ctx, s.userID, consent.PurposeAnalytics, "", cmeta)
	s.Require().NoError(err)
	_, err = s.ledger.Withdraw(s.ctx, s.userID, consent.PurposeAnalytics, cmeta)
	s.Require().NoError(err)

	bundle, err := s.ops.Export(s.ctx, s.userID, s.meta)
	s.Require().NoError(err)
	s.Equal(s.userID, bundle.PersonalData.ID)
	s.Equal("meera@example.com", bundle.PersonalData.Email)
	s.False(bundle.ExportedAt.IsZero())

	records, err := s.ledger.List(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Len(bundle.Consents, len(records))

	// Three consent entries existed before the export was audited.
	s.Len(bundle.RecentActivity, 3)

	entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
	s.Require().NoError(err)
	s.Equal(ActionExport, entries[0].Action)
}

func (s *OperationsSuite) TestExportActivityCap() {
	for i := 0; i < 120; i++ {
		_, err := s.trail.Record(s.ctx, audit.Record{
			ActorID:  &s.userID,
			Action:   "data_access",
			Category: audit.CategoryDataAccess,
		})
		s.Require().NoError(err)
	}

	bundle, err := s.ops.Export(s.ctx, s.userID, s.meta)
	s.Require().NoError(err)
	s.Len(bundle.RecentActivity, 100)
}

func (s *OperationsSuite) TestErasureLifecycle() {
	s.Run("request stamps both timestamps and notifies", func() {
		u, err := s.ops.RequestErasure(s.ctx, s.userID, s.meta)
		s.Require().NoError(err)
		s.Require().NotNil(u.DeletionRequestedAt)
		s.Require().NotNil(u.ScheduledDeletionAt)
		s.Equal(u.DeletionRequestedAt.Add(DefaultGracePeriod), *u.ScheduledDeletionAt)

		entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
		s.Require().NoError(err)
		s.Equal(ActionErasureRequested, entries[0].Action)
		s.Equal(audit.SeverityWarning, entries[0].Severity)

		recorded := s.notices.Notices()
		s.Require().Len(recorded, 1)
		s.Equal("deletion_notice", recorded[0].Kind)
	})

	s.Run("cancel clears both timestamps", func() {
		u, err := s.ops.CancelErasure(s.ctx, s.userID, s.meta)
		s.Require().NoError(err)
		s.Nil(u.DeletionRequestedAt)
		s.Nil(u.ScheduledDeletionAt)
	})

	s.Run("cancel without a pending request conflicts", func() {
		_, err := s.ops.CancelErasure(s.ctx, s.userID, s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeConflict))
	})
}

func (s *OperationsSuite) TestExecuteErasure() {
	cmeta := consent.RequestMeta{IPAddress: s.meta.IPAddress}
	_, err := s.ledger.Grant(s.ctx, s.userID, consent.PurposeEssential, "", cmeta)
	s.Require().NoError(err)
	gtx := grievance.NewMemoryTx(s.grievances, s.auditStore)
	manager := grievance.NewCaseManager(s.grievances, gtx, s.trail)
	_, err = manager.Submit(s.ctx, s.userID, "Subject for case",
		"Description long enough for a case.", grievance.CategoryOther, grievance.RequestMeta{})
	s.Require().NoError(err)

	s.Require().NoError(s.ops.ExecuteErasure(s.ctx, s.userID))

	_, err = s.users.GetByID(s.ctx, s.userID)
	s.Require().Error(err)

	consents, err := s.consents.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Empty(consents)

	cases, err := s.grievances.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Empty(cases)

	// Prior history is anonymized, not destroyed; the final entry is a
	// system event carrying no actor.
	byActor, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
	s.Require().NoError(err)
	s.Empty(byActor)

	all, err := s.auditStore.List(s.ctx, nil)
	s.Require().NoError(err)
	s.Require().NotEmpty(all)

	var final *audit.Entry
	for _, e := range all {
		s.Nil(e.ActorID)
		if e.Action == ActionErasureExecuted {
			final = e
		}
	}
	s.Require().NotNil(final)
	s.Equal(audit.SeverityCritical, final.Severity)
	s.Equal(audit.CategoryDataDeletion, final.Category)
	s.Equal(s.userID.String(), final.Resource.ID)
}

func (s *OperationsSuite) TestExecuteErasureUnknownUser() {
	err := s.ops.ExecuteErasure(s.ctx, id.NewUserID())
	s.Require().Error(err)
	s.True(domainErrors.HasCode(err, domainErrors.CodeNotFound))
}
