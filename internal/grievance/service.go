package grievance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custodia/internal/anomaly"
	"custodia/internal/audit"
	"custodia/internal/notifier"
	"custodia/internal/platform/metrics"
	"custodia/internal/sentinel"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

// Audit actions emitted by the case manager.
const (
	ActionSubmitted = "grievance_submitted"
	ActionEscalated = "grievance_escalated"
	ActionUpdated   = "grievance_updated"
)

// DefaultSLA is the redressal window granted to every new case.
const DefaultSLA = 7 * 24 * time.Hour

// Subject and description length bounds.
const (
	subjectMinLen     = 5
	subjectMaxLen     = 200
	descriptionMinLen = 10
	descriptionMaxLen = 5000
)

// UpdateRequest is an administrative field update. Nil fields are left
// untouched. Not validated against the state machine: this is the
// operator escape hatch.
type UpdateRequest struct {
	Status     *Status
	Resolution *string
	Priority   *string
	AssignedTo *id.UserID
}

// CaseManager runs the grievance lifecycle: submission, SLA-gated
// escalation, administrative updates and operational queries.
type CaseManager struct {
	store     Store
	tx        StoreTx
	trail     *audit.Trail
	detector  *anomaly.Detector
	forwarder EntryForwarder
	users     user.Store
	notifier  notifier.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sla       time.Duration
	now       func() time.Time
}

// EntryForwarder relays accepted audit entries to the SIEM sink.
type EntryForwarder interface {
	ForwardEntry(entry *audit.Entry)
}

// Option configures a CaseManager.
type Option func(*CaseManager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *CaseManager) { m.logger = logger }
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *CaseManager) { m.metrics = metrics }
}

func WithDetector(d *anomaly.Detector) Option {
	return func(m *CaseManager) { m.detector = d }
}

func WithForwarder(f EntryForwarder) Option {
	return func(m *CaseManager) { m.forwarder = f }
}

// WithNotifier enables submission confirmations. The user store resolves
// the recipient address.
func WithNotifier(n notifier.Notifier, users user.Store) Option {
	return func(m *CaseManager) {
		m.notifier = n
		m.users = users
	}
}

// WithSLA overrides the redressal window. Meant for tests and staging;
// production keeps the default.
func WithSLA(d time.Duration) Option {
	return func(m *CaseManager) {
		if d > 0 {
			m.sla = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *CaseManager) { m.now = now }
}

// NewCaseManager constructs a grievance case manager.
func NewCaseManager(store Store, tx StoreTx, trail *audit.Trail, opts ...Option) *CaseManager {
	m := &CaseManager{
		store:    store,
		tx:       tx,
		trail:    trail,
		detector: anomaly.NewDetector(),
		logger:   slog.Default(),
		sla:      DefaultSLA,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit opens a new case: pending status, medium priority, a fresh ticket
// number and an SLA deadline fixed at submission time plus the redressal
// window (seven days unless overridden).
func (m *CaseManager) Submit(ctx context.Context, userID id.UserID, subject, description string, category Category, meta RequestMeta) (*Grievance, error) {
	if len(subject) < subjectMinLen || len(subject) > subjectMaxLen {
		return nil, domainErrors.New(domainErrors.CodeValidation, "subject must be between 5 and 200 characters")
	}
	if len(description) < descriptionMinLen || len(description) > descriptionMaxLen {
		return nil, domainErrors.New(domainErrors.CodeValidation, "description must be between 10 and 5000 characters")
	}
	if category == "" {
		category = CategoryOther
	}
	if !category.IsValid() {
		return nil, domainErrors.New(domainErrors.CodeValidation, "invalid grievance category")
	}

	now := m.now().UTC()
	g := &Grievance{
		ID:           id.NewGrievanceID(),
		UserID:       userID,
		TicketNumber: NewTicketNumber(now),
		Subject:      subject,
		Description:  description,
		Category:     category,
		Status:       StatusPending,
		Priority:     DefaultPriority,
		SLADeadline:  now.Add(m.sla),
		CreatedAt:    now,
	}

	var entry *audit.Entry
	err := m.tx.RunInTx(ctx, g.ID.String(), func(ctx context.Context, stores TxStores) error {
		if err := stores.Grievances.Create(ctx, g); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return domainErrors.Wrap(err, domainErrors.CodeConflict, "ticket number collision")
			}
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to create grievance")
		}

		var err error
		entry, err = m.recordAudit(ctx, stores.Audit, userID, g, ActionSubmitted, audit.SeverityInfo, audit.Details{
			"ticket_number": g.TicketNumber,
			"subject":       g.Subject,
			"category":      string(g.Category),
		}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.IncrementGrievancesSubmitted(string(category))
	}
	m.forward(entry)
	m.notifyConfirmation(ctx, userID, g.TicketNumber)
	return g, nil
}

// Escalate moves the case to escalated. Only the case owner may escalate,
// only once, and only after the SLA deadline has passed or the case was
// resolved unsatisfactorily.
func (m *CaseManager) Escalate(ctx context.Context, grievanceID id.GrievanceID, userID id.UserID, reason string, meta RequestMeta) (*Grievance, error) {
	var g *Grievance
	var entry *audit.Entry
	err := m.tx.RunInTx(ctx, grievanceID.String(), func(ctx context.Context, stores TxStores) error {
		var err error
		g, err = stores.Grievances.GetForUser(ctx, grievanceID, userID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainErrors.New(domainErrors.CodeNotFound, "grievance not found")
			}
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to load grievance")
		}

		if g.Status == StatusEscalated {
			return domainErrors.New(domainErrors.CodeConflict, "grievance already escalated")
		}

		now := m.now().UTC()
		if !g.CanEscalate(now) {
			return domainErrors.New(domainErrors.CodePolicyViolation,
				"grievance can only be escalated after the SLA deadline or an unsatisfactory resolution")
		}

		g.Status = StatusEscalated
		g.EscalatedAt = &now
		g.EscalationReason = reason
		if err := stores.Grievances.Update(ctx, g); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to escalate grievance")
		}

		entry, err = m.recordAudit(ctx, stores.Audit, userID, g, ActionEscalated, audit.SeverityWarning, audit.Details{
			"ticket_number": g.TicketNumber,
			"reason":        reason,
		}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.IncrementGrievancesEscalated()
	}
	m.forward(entry)
	return g, nil
}

// UpdateStatus applies an administrative update. No state-machine
// validation: operators may set any status. Setting a resolution also
// stamps resolved_at.
func (m *CaseManager) UpdateStatus(ctx context.Context, grievanceID id.GrievanceID, actorID id.UserID, req UpdateRequest) (*Grievance, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return nil, domainErrors.New(domainErrors.CodeValidation, "invalid grievance status")
	}

	var g *Grievance
	var entry *audit.Entry
	err := m.tx.RunInTx(ctx, grievanceID.String(), func(ctx context.Context, stores TxStores) error {
		var err error
		g, err = stores.Grievances.GetByID(ctx, grievanceID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainErrors.New(domainErrors.CodeNotFound, "grievance not found")
			}
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to load grievance")
		}

		details := audit.Details{"ticket_number": g.TicketNumber}
		if req.Status != nil {
			details["status"] = string(*req.Status)
			g.Status = *req.Status
		}
		if req.Resolution != nil {
			now := m.now().UTC()
			g.Resolution = *req.Resolution
			g.ResolvedAt = &now
		}
		if req.Priority != nil {
			g.Priority = *req.Priority
		}
		if req.AssignedTo != nil {
			g.AssignedTo = req.AssignedTo
		}

		if err := stores.Grievances.Update(ctx, g); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to update grievance")
		}

		entry, err = m.recordAuditAs(ctx, stores.Audit, actorID, g, ActionUpdated,
			audit.CategoryAdminAction, audit.SeverityInfo, details, RequestMeta{})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.forward(entry)
	return g, nil
}

// ListForUser returns the user's cases, newest created first.
func (m *CaseManager) ListForUser(ctx context.Context, userID id.UserID) ([]*Grievance, error) {
	cases, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to list grievances")
	}
	return cases, nil
}

// GetForUser returns one case, scoped to its owner.
func (m *CaseManager) GetForUser(ctx context.Context, grievanceID id.GrievanceID, userID id.UserID) (*Grievance, error) {
	g, err := m.store.GetForUser(ctx, grievanceID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainErrors.New(domainErrors.CodeNotFound, "grievance not found")
		}
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to load grievance")
	}
	return g, nil
}

// ListAll returns a filtered administrative page plus the total match count.
func (m *CaseManager) ListAll(ctx context.Context, filter Filter) ([]*Grievance, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	cases, total, err := m.store.ListAll(ctx, filter)
	if err != nil {
		return nil, 0, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to list grievances")
	}
	return cases, total, nil
}

// CountPending returns the number of cases awaiting first action.
func (m *CaseManager) CountPending(ctx context.Context) (int, error) {
	count, err := m.store.CountByStatus(ctx, StatusPending)
	if err != nil {
		return 0, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to count pending grievances")
	}
	return count, nil
}

// ListOverdue returns open cases past their SLA deadline and refreshes the
// overdue gauge.
func (m *CaseManager) ListOverdue(ctx context.Context) ([]*Grievance, error) {
	overdue, err := m.store.ListOverdue(ctx, m.now().UTC())
	if err != nil {
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to list overdue grievances")
	}
	if m.metrics != nil {
		m.metrics.SetGrievancesOverdue(len(overdue))
	}
	return overdue, nil
}

func (m *CaseManager) recordAudit(ctx context.Context, store audit.Store, actorID id.UserID, g *Grievance, action string, severity audit.Severity, details audit.Details, meta RequestMeta) (*audit.Entry, error) {
	return m.recordAuditAs(ctx, store, actorID, g, action, audit.CategoryGrievance, severity, details, meta)
}

func (m *CaseManager) recordAuditAs(ctx context.Context, store audit.Store, actorID id.UserID, g *Grievance, action string, category audit.Category, severity audit.Severity, details audit.Details, meta RequestMeta) (*audit.Entry, error) {
	assessment := m.detector.Assess(action)
	score := assessment.Score

	return m.trail.RecordIn(ctx, store, audit.Record{
		ActorID:  &actorID,
		Action:   action,
		Category: category,
		Severity: severity,
		Resource: &audit.Resource{Type: "grievance", ID: g.ID.String()},
		Details:  details,
		Meta: audit.RequestMeta{
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			SessionID: meta.SessionID,
		},
		IsAnomaly:    assessment.IsAnomalous(),
		AnomalyScore: &score,
	})
}

func (m *CaseManager) forward(entry *audit.Entry) {
	if m.forwarder != nil && entry != nil {
		m.forwarder.ForwardEntry(entry)
	}
}

func (m *CaseManager) notifyConfirmation(ctx context.Context, userID id.UserID, ticketNumber string) {
	if m.notifier == nil || m.users == nil {
		return
	}
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		m.logger.Warn("grievance confirmation skipped: user lookup failed", "user_id", userID, "error", err)
		return
	}
	m.notifier.GrievanceConfirmation(ctx, u.Email, ticketNumber)
}
