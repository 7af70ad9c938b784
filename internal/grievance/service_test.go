package grievance

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	"custodia/internal/notifier"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

var ticketPattern = regexp.MustCompile(`^GRV-\d{8}-\d{4}$`)

type CaseManagerSuite struct {
	suite.Suite
	ctx        context.Context
	store      *InMemoryStore
	auditStore *audit.InMemoryStore
	clock      time.Time
	manager    *CaseManager
	userID     id.UserID
	meta       RequestMeta
}

func TestCaseManagerSuite(t *testing.T) {
	suite.Run(t, new(CaseManagerSuite))
}

func (s *CaseManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.clock = time.Date(2025, 4, 10, 11, 0, 0, 0, time.UTC)
	s.manager = s.newManager()
	s.userID = id.NewUserID()
	s.meta = RequestMeta{IPAddress: "203.0.113.7", UserAgent: "test-agent"}
}

func (s *CaseManagerSuite) newManager(opts ...Option) *CaseManager {
	trail := audit.NewTrail(s.auditStore)
	opts = append([]Option{WithClock(func() time.Time { return s.clock })}, opts...)
	return NewCaseManager(s.store, NewMemoryTx(s.store, s.auditStore), trail, opts...)
}

func (s *CaseManagerSuite) submit() *Grievance {
	g, err := s.manager.Submit(s.ctx, s.userID,
		"Consent withdrawn but still receiving emails",
		"I withdrew marketing consent two weeks ago and still receive promotional mail.",
		CategoryConsentWithdrawal, s.meta)
	s.Require().NoError(err)
	return g
}

func (s *CaseManagerSuite) TestSubmit() {
	s.Run("creates a pending case with ticket and SLA deadline", func() {
		g := s.submit()

		s.Equal(StatusPending, g.Status)
		s.Equal(DefaultPriority, g.Priority)
		s.Regexp(ticketPattern, g.TicketNumber)
		s.True(strings.HasPrefix(g.TicketNumber, "GRV-20250410-"))
		s.Equal(g.CreatedAt.Add(7*24*time.Hour), g.SLADeadline)

		entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(ActionSubmitted, entries[0].Action)
		s.Equal(audit.CategoryGrievance, entries[0].Category)
		s.Equal(g.TicketNumber, entries[0].Details["ticket_number"])
	})

	s.Run("configured SLA window moves the deadline", func() {
		manager := s.newManager(WithSLA(48 * time.Hour))
		g, err := manager.Submit(s.ctx, s.userID, "Valid subject", strings.Repeat("x", 20), CategoryOther, s.meta)
		s.Require().NoError(err)
		s.Equal(g.CreatedAt.Add(48*time.Hour), g.SLADeadline)
	})

	s.Run("short subject is rejected", func() {
		_, err := s.manager.Submit(s.ctx, s.userID, "Hey", strings.Repeat("x", 20), CategoryOther, s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeValidation))
	})

	s.Run("long subject is rejected", func() {
		_, err := s.manager.Submit(s.ctx, s.userID, strings.Repeat("x", 201), strings.Repeat("x", 20), CategoryOther, s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeValidation))
	})

	s.Run("short description is rejected", func() {
		_, err := s.manager.Submit(s.ctx, s.userID, "Valid subject", "too short", CategoryOther, s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeValidation))
	})

	s.Run("long description is rejected", func() {
		_, err := s.manager.Submit(s.ctx, s.userID, "Valid subject", strings.Repeat("x", 5001), CategoryOther, s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeValidation))
	})

	s.Run("empty category defaults to other", func() {
		g, err := s.manager.Submit(s.ctx, s.userID, "Valid subject", strings.Repeat("x", 20), "", s.meta)
		s.Require().NoError(err)
		s.Equal(CategoryOther, g.Category)
	})
}

func (s *CaseManagerSuite) TestEscalate() {
	s.Run("before SLA deadline on a pending case is a policy violation", func() {
		g := s.submit()

		_, err := s.manager.Escalate(s.ctx, g.ID, s.userID, "no response", s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodePolicyViolation))
	})

	s.Run("after SLA deadline succeeds exactly once", func() {
		g := s.submit()
		s.clock = s.clock.Add(DefaultSLA)

		escalated, err := s.manager.Escalate(s.ctx, g.ID, s.userID, "SLA breached", s.meta)
		s.Require().NoError(err)
		s.Equal(StatusEscalated, escalated.Status)
		s.Require().NotNil(escalated.EscalatedAt)
		s.Equal("SLA breached", escalated.EscalationReason)

		_, err = s.manager.Escalate(s.ctx, g.ID, s.userID, "again", s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeConflict))
	})

	s.Run("resolved case escalates before the deadline", func() {
		g := s.submit()
		status := StatusResolved
		_, err := s.manager.UpdateStatus(s.ctx, g.ID, s.userID, UpdateRequest{Status: &status})
		s.Require().NoError(err)

		escalated, err := s.manager.Escalate(s.ctx, g.ID, s.userID, "resolution unsatisfactory", s.meta)
		s.Require().NoError(err)
		s.Equal(StatusEscalated, escalated.Status)
	})

	s.Run("another user's case is not found", func() {
		g := s.submit()
		s.clock = s.clock.Add(DefaultSLA)

		_, err := s.manager.Escalate(s.ctx, g.ID, id.NewUserID(), "not mine", s.meta)
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeNotFound))
	})

	s.Run("escalation audit entry carries warning severity", func() {
		g := s.submit()
		s.clock = s.clock.Add(DefaultSLA + time.Hour)

		_, err := s.manager.Escalate(s.ctx, g.ID, s.userID, "SLA breached", s.meta)
		s.Require().NoError(err)

		entries, err := s.auditStore.ListByActor(s.ctx, s.userID, nil)
		s.Require().NoError(err)
		s.Equal(ActionEscalated, entries[0].Action)
		s.Equal(audit.SeverityWarning, entries[0].Severity)
	})
}

func (s *CaseManagerSuite) TestUpdateStatus() {
	g := s.submit()
	admin := id.NewUserID()

	s.Run("unconstrained status change", func() {
		status := StatusClosed
		updated, err := s.manager.UpdateStatus(s.ctx, g.ID, admin, UpdateRequest{Status: &status})
		s.Require().NoError(err)
		s.Equal(StatusClosed, updated.Status)
	})

	s.Run("resolution stamps resolved_at", func() {
		resolution := "duplicate of an earlier case"
		updated, err := s.manager.UpdateStatus(s.ctx, g.ID, admin, UpdateRequest{Resolution: &resolution})
		s.Require().NoError(err)
		s.Equal(resolution, updated.Resolution)
		s.Require().NotNil(updated.ResolvedAt)
	})

	s.Run("priority and assignee", func() {
		priority := "high"
		assignee := id.NewUserID()
		updated, err := s.manager.UpdateStatus(s.ctx, g.ID, admin, UpdateRequest{Priority: &priority, AssignedTo: &assignee})
		s.Require().NoError(err)
		s.Equal("high", updated.Priority)
		s.Require().NotNil(updated.AssignedTo)
		s.Equal(assignee, *updated.AssignedTo)
	})

	s.Run("unknown case is not found", func() {
		status := StatusClosed
		_, err := s.manager.UpdateStatus(s.ctx, id.NewGrievanceID(), admin, UpdateRequest{Status: &status})
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeNotFound))
	})

	s.Run("bogus status is rejected", func() {
		status := Status("reopened")
		_, err := s.manager.UpdateStatus(s.ctx, g.ID, admin, UpdateRequest{Status: &status})
		s.Require().Error(err)
		s.True(domainErrors.HasCode(err, domainErrors.CodeValidation))
	})
}

func (s *CaseManagerSuite) TestQueries() {
	first := s.submit()
	s.clock = s.clock.Add(time.Minute)
	second := s.submit()
	other := id.NewUserID()
	s.clock = s.clock.Add(time.Minute)
	_, err := s.manager.Submit(s.ctx, other, "Unrelated case subject",
		"Another principal's grievance about data access.", CategoryDataAccess, s.meta)
	s.Require().NoError(err)

	s.Run("list for user newest first", func() {
		cases, err := s.manager.ListForUser(s.ctx, s.userID)
		s.Require().NoError(err)
		s.Require().Len(cases, 2)
		s.Equal(second.ID, cases[0].ID)
		s.Equal(first.ID, cases[1].ID)
	})

	s.Run("list all pages with total", func() {
		page, total, err := s.manager.ListAll(s.ctx, Filter{Limit: 2})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Len(page, 2)
	})

	s.Run("list all filters by status", func() {
		status := StatusPending
		_, total, err := s.manager.ListAll(s.ctx, Filter{Status: &status})
		s.Require().NoError(err)
		s.Equal(3, total)
	})

	s.Run("count pending", func() {
		count, err := s.manager.CountPending(s.ctx)
		s.Require().NoError(err)
		s.Equal(3, count)
	})

	s.Run("overdue lists only open cases past deadline", func() {
		overdue, err := s.manager.ListOverdue(s.ctx)
		s.Require().NoError(err)
		s.Empty(overdue)

		s.clock = s.clock.Add(DefaultSLA + time.Hour)
		overdue, err = s.manager.ListOverdue(s.ctx)
		s.Require().NoError(err)
		s.Len(overdue, 3)

		status := StatusClosed
		_, err = s.manager.UpdateStatus(s.ctx, first.ID, id.NewUserID(), UpdateRequest{Status: &status})
		s.Require().NoError(err)

		overdue, err = s.manager.ListOverdue(s.ctx)
		s.Require().NoError(err)
		s.Len(overdue, 2)
	})
}

func (s *CaseManagerSuite) TestSubmissionConfirmation() {
	users := user.NewInMemoryStore()
	u := &user.User{ID: s.userID, Email: "ravi@example.com", FullName: "Ravi", Role: user.RolePrincipal, IsActive: true}
	s.Require().NoError(users.Create(s.ctx, u))

	notices := notifier.NewMemoryNotifier()
	manager := s.newManager(WithNotifier(notices, users))

	g, err := manager.Submit(s.ctx, s.userID, "Valid subject here",
		"A sufficiently long grievance description.", CategoryOther, s.meta)
	s.Require().NoError(err)

	recorded := notices.Notices()
	s.Require().Len(recorded, 1)
	s.Equal("grievance_confirmation", recorded[0].Kind)
	s.Equal(g.TicketNumber, recorded[0].Subject)
}

func TestNewTicketNumber(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	for i := 0; i < 50; i++ {
		ticket := NewTicketNumber(now)
		if !ticketPattern.MatchString(ticket) {
			t.Fatalf("ticket %q does not match GRV-YYYYMMDD-####", ticket)
		}
		if !strings.HasPrefix(ticket, "GRV-20251231-") {
			t.Fatalf("ticket %q has wrong date component", ticket)
		}
	}
}
