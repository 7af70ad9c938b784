package rights

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"custodia/internal/anomaly"
	"custodia/internal/audit"
	"custodia/internal/consent"
	"custodia/internal/notifier"
	"custodia/internal/platform/metrics"
	"custodia/internal/sentinel"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

// Audit actions emitted by rights operations.
const (
	ActionAccess           = "data_access"
	ActionCorrected        = "data_updated"
	ActionExport           = "data_export"
	ActionErasureRequested = "deletion_requested"
	ActionErasureCancelled = "deletion_cancelled"
	ActionErasureExecuted  = "user_deleted_permanently"
)

// DefaultGracePeriod is the window between an erasure request and its
// execution, during which the principal may cancel.
const DefaultGracePeriod = 30 * 24 * time.Hour

// activityExportLimit caps the audit history included in an export bundle.
const activityExportLimit = 100

// Operations exposes the regulation's named rights as single calls. Every
// operation records an audit entry; mutations commit together with theirs.
type Operations struct {
	users       user.Store
	ledger      *consent.Ledger
	tx          StoreTx
	trail       *audit.Trail
	detector    *anomaly.Detector
	forwarder   EntryForwarder
	notifier    notifier.Notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	gracePeriod time.Duration
	now         func() time.Time
}

// EntryForwarder relays accepted audit entries to the SIEM sink.
type EntryForwarder interface {
	ForwardEntry(entry *audit.Entry)
}

// Option configures Operations.
type Option func(*Operations)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Operations) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Operations) { o.metrics = m }
}

func WithDetector(d *anomaly.Detector) Option {
	return func(o *Operations) { o.detector = d }
}

func WithForwarder(f EntryForwarder) Option {
	return func(o *Operations) { o.forwarder = f }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(o *Operations) { o.notifier = n }
}

func WithGracePeriod(d time.Duration) Option {
	return func(o *Operations) { o.gracePeriod = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Operations) { o.now = now }
}

// NewOperations constructs the rights orchestrator.
func NewOperations(users user.Store, ledger *consent.Ledger, tx StoreTx, trail *audit.Trail, opts ...Option) *Operations {
	o := &Operations{
		users:       users,
		ledger:      ledger,
		tx:          tx,
		trail:       trail,
		detector:    anomaly.NewDetector(),
		logger:      slog.Default(),
		gracePeriod: DefaultGracePeriod,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Access returns the principal's profile and records the access.
func (o *Operations) Access(ctx context.Context, userID id.UserID, meta RequestMeta) (*user.User, error) {
	u, err := o.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry, err := o.record(ctx, o.trail.Record, userID, ActionAccess, audit.CategoryDataAccess, audit.SeverityInfo, nil, meta)
	if err != nil {
		return nil, err
	}
	o.forward(entry)
	return u, nil
}

// Correct applies the provided profile fields and records the old and new
// values.
func (o *Operations) Correct(ctx context.Context, userID id.UserID, req CorrectionRequest, meta RequestMeta) (*user.User, error) {
	var u *user.User
	var entry *audit.Entry
	err := o.tx.RunInTx(ctx, userID.String(), func(ctx context.Context, stores TxStores) error {
		var err error
		u, err = o.getUserFrom(ctx, stores.Users, userID)
		if err != nil {
			return err
		}

		old := profileFields(u)
		if req.FullName != nil {
			u.FullName = *req.FullName
		}
		if req.Phone != nil {
			u.Phone = *req.Phone
		}
		if req.Address != nil {
			u.Address = *req.Address
		}
		if err := stores.Users.Update(ctx, u); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to update profile")
		}

		entry, err = o.recordIn(ctx, stores.Audit, userID, ActionCorrected, audit.CategoryDataModification, audit.SeverityInfo, audit.Details{
			"old_data": old,
			"new_data": profileFields(u),
		}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.forward(entry)
	return u, nil
}

// Export assembles the portability bundle: profile, full consent history
// and the most recent audit activity.
func (o *Operations) Export(ctx context.Context, userID id.UserID, meta RequestMeta) (*ExportBundle, error) {
	u, err := o.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var consents []*consent.Record
	var activity []*audit.Entry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		consents, err = o.ledger.List(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		activity, err = o.trail.ListByActor(gctx, userID, &audit.Filter{Limit: activityExportLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to assemble export bundle")
	}

	bundle := &ExportBundle{
		ExportedAt: o.now().UTC(),
		PersonalData: PersonalData{
			ID:          u.ID,
			FullName:    u.FullName,
			Email:       u.Email,
			Phone:       u.Phone,
			Address:     u.Address,
			CreatedAt:   u.CreatedAt,
			LastLoginAt: u.LastLoginAt,
		},
		Consents:       make([]ConsentExport, 0, len(consents)),
		RecentActivity: make([]ActivityExport, 0, len(activity)),
	}
	for _, rec := range consents {
		bundle.Consents = append(bundle.Consents, newConsentExport(rec))
	}
	for _, e := range activity {
		bundle.RecentActivity = append(bundle.RecentActivity, ActivityExport{
			Action:    e.Action,
			Category:  string(e.Category),
			Timestamp: e.CreatedAt,
		})
	}

	entry, err := o.record(ctx, o.trail.Record, userID, ActionExport, audit.CategoryDataAccess, audit.SeverityInfo, nil, meta)
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.IncrementDataExports()
	}
	o.forward(entry)
	return bundle, nil
}

// RequestErasure schedules the account for deletion after the grace period.
func (o *Operations) RequestErasure(ctx context.Context, userID id.UserID, meta RequestMeta) (*user.User, error) {
	var u *user.User
	var entry *audit.Entry
	err := o.tx.RunInTx(ctx, userID.String(), func(ctx context.Context, stores TxStores) error {
		var err error
		u, err = o.getUserFrom(ctx, stores.Users, userID)
		if err != nil {
			return err
		}

		now := o.now().UTC()
		scheduled := now.Add(o.gracePeriod)
		u.DeletionRequestedAt = &now
		u.ScheduledDeletionAt = &scheduled
		if err := stores.Users.Update(ctx, u); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to schedule deletion")
		}

		entry, err = o.recordIn(ctx, stores.Audit, userID, ActionErasureRequested, audit.CategoryDataDeletion, audit.SeverityWarning, audit.Details{
			"scheduled_deletion_at": scheduled.Format(time.RFC3339),
		}, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.IncrementErasureRequests()
	}
	o.forward(entry)
	if o.notifier != nil && u.ScheduledDeletionAt != nil {
		o.notifier.DeletionNotice(ctx, u.Email, *u.ScheduledDeletionAt)
	}
	return u, nil
}

// CancelErasure clears a pending erasure request. Fails with a conflict if
// none is pending.
func (o *Operations) CancelErasure(ctx context.Context, userID id.UserID, meta RequestMeta) (*user.User, error) {
	var u *user.User
	var entry *audit.Entry
	err := o.tx.RunInTx(ctx, userID.String(), func(ctx context.Context, stores TxStores) error {
		var err error
		u, err = o.getUserFrom(ctx, stores.Users, userID)
		if err != nil {
			return err
		}
		if !u.ErasurePending() {
			return domainErrors.New(domainErrors.CodeConflict, "no pending deletion request")
		}

		u.DeletionRequestedAt = nil
		u.ScheduledDeletionAt = nil
		if err := stores.Users.Update(ctx, u); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to cancel deletion")
		}

		entry, err = o.recordIn(ctx, stores.Audit, userID, ActionErasureCancelled, audit.CategoryDataDeletion, audit.SeverityInfo, nil, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.forward(entry)
	return u, nil
}

// ExecuteErasure permanently removes the user and every owned record. A
// final critical audit entry is written first as a system event; the
// user's prior audit history is anonymized rather than destroyed, keeping
// the trail intact without retaining personal data.
func (o *Operations) ExecuteErasure(ctx context.Context, userID id.UserID) error {
	var entry *audit.Entry
	err := o.tx.RunInTx(ctx, userID.String(), func(ctx context.Context, stores TxStores) error {
		u, err := o.getUserFrom(ctx, stores.Users, userID)
		if err != nil {
			return err
		}

		entry, err = o.trail.RecordIn(ctx, stores.Audit, audit.Record{
			Action:   ActionErasureExecuted,
			Category: audit.CategoryDataDeletion,
			Severity: audit.SeverityCritical,
			Resource: &audit.Resource{Type: "user", ID: userID.String()},
			Details: audit.Details{
				"email_domain": emailDomain(u.Email),
				"deleted_at":   o.now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return err
		}

		if _, err := stores.Consents.DeleteByUser(ctx, userID); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to delete consents")
		}
		if _, err := stores.Grievances.DeleteByUser(ctx, userID); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to delete grievances")
		}
		if _, err := stores.Audit.AnonymizeByActor(ctx, userID); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to anonymize audit history")
		}
		if err := stores.Users.Delete(ctx, userID); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to delete user")
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.forward(entry)
	return nil
}

func (o *Operations) getUser(ctx context.Context, userID id.UserID) (*user.User, error) {
	return o.getUserFrom(ctx, o.users, userID)
}

func (o *Operations) getUserFrom(ctx context.Context, store user.Store, userID id.UserID) (*user.User, error) {
	u, err := store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainErrors.New(domainErrors.CodeNotFound, "user not found")
		}
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

type recordFunc func(ctx context.Context, rec audit.Record) (*audit.Entry, error)

func (o *Operations) record(ctx context.Context, fn recordFunc, userID id.UserID, action string, category audit.Category, severity audit.Severity, details audit.Details, meta RequestMeta) (*audit.Entry, error) {
	assessment := o.detector.Assess(action)
	score := assessment.Score

	return fn(ctx, audit.Record{
		ActorID:  &userID,
		Action:   action,
		Category: category,
		Severity: severity,
		Resource: &audit.Resource{Type: "user", ID: userID.String()},
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

func (o *Operations) recordIn(ctx context.Context, store audit.Store, userID id.UserID, action string, category audit.Category, severity audit.Severity, details audit.Details, meta RequestMeta) (*audit.Entry, error) {
	return o.record(ctx, func(ctx context.Context, rec audit.Record) (*audit.Entry, error) {
		return o.trail.RecordIn(ctx, store, rec)
	}, userID, action, category, severity, details, meta)
}

func (o *Operations) forward(entry *audit.Entry) {
	if o.forwarder != nil && entry != nil {
		o.forwarder.ForwardEntry(entry)
	}
}

func profileFields(u *user.User) map[string]any {
	return map[string]any{
		"full_name": u.FullName,
		"phone":     u.Phone,
		"address":   u.Address,
	}
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
