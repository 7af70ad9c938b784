package consent

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

// Audit actions emitted by the ledger.
const (
	ActionGranted   = "consent_granted"
	ActionWithdrawn = "consent_withdrawn"
)

// DefaultPolicyVersion is stamped on records granted without an explicit
// policy version.
const DefaultPolicyVersion = "1.0"

// Ledger manages consent grants and withdrawals. Every mutation commits
// together with its audit entry; a failed audit write aborts the mutation.
type Ledger struct {
	store     Store
	tx        StoreTx
	trail     *audit.Trail
	detector  *anomaly.Detector
	forwarder EntryForwarder
	users     user.Store
	notifier  notifier.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// EntryForwarder relays accepted audit entries to the SIEM sink.
type EntryForwarder interface {
	ForwardEntry(entry *audit.Entry)
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

func WithDetector(d *anomaly.Detector) LedgerOption {
	return func(l *Ledger) { l.detector = d }
}

func WithForwarder(f EntryForwarder) LedgerOption {
	return func(l *Ledger) { l.forwarder = f }
}

// WithNotifier enables withdrawal notices. The user store resolves the
// recipient address.
func WithNotifier(n notifier.Notifier, users user.Store) LedgerOption {
	return func(l *Ledger) {
		l.notifier = n
		l.users = users
	}
}

// NewLedger constructs a consent ledger.
func NewLedger(store Store, tx StoreTx, trail *audit.Trail, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:    store,
		tx:       tx,
		trail:    trail,
		detector: anomaly.NewDetector(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Grant records a new active consent for (user, purpose). Fails with a
// conflict if an active grant already exists.
func (l *Ledger) Grant(ctx context.Context, userID id.UserID, purpose Purpose, version string, meta RequestMeta) (*Record, error) {
	if !purpose.IsValid() {
		return nil, domainErrors.New(domainErrors.CodeValidation, "invalid consent purpose")
	}
	if version == "" {
		version = DefaultPolicyVersion
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:        id.NewConsentID(),
		UserID:    userID,
		Purpose:   purpose,
		Status:    StatusGranted,
		Version:   version,
		GrantedAt: now,
		Meta:      meta,
	}

	var entry *audit.Entry
	err := l.tx.RunInTx(ctx, userID.String(), func(ctx context.Context, stores TxStores) error {
		if _, err := stores.Consents.GetActive(ctx, userID, purpose); err == nil {
			return domainErrors.New(domainErrors.CodeConflict, "active consent already exists for this purpose")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to check active consent")
		}

		if err := stores.Consents.Create(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return domainErrors.New(domainErrors.CodeConflict, "active consent already exists for this purpose")
			}
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to create consent")
		}

		var err error
		entry, err = l.recordAudit(ctx, stores.Audit, userID, rec, ActionGranted, audit.SeverityInfo)
		return err
	})
	if err != nil {
		return nil, err
	}

	if l.metrics != nil {
		l.metrics.IncrementConsentsGranted(string(purpose))
	}
	l.forward(entry)
	return rec, nil
}

// Withdraw transitions the active grant for (user, purpose) to withdrawn,
// preserving the record. Essential consent cannot be withdrawn.
func (l *Ledger) Withdraw(ctx context.Context, userID id.UserID, purpose Purpose, meta RequestMeta) (*Record, error) {
	if !purpose.IsValid() {
		return nil, domainErrors.New(domainErrors.CodeValidation, "invalid consent purpose")
	}
	if purpose == PurposeEssential {
		return nil, domainErrors.New(domainErrors.CodePolicyViolation, "essential consent cannot be withdrawn")
	}

	var rec *Record
	var entry *audit.Entry
	err := l.tx.RunInTx(ctx, userID.String(), func(ctx context.Context, stores TxStores) error {
		active, err := stores.Consents.GetActive(ctx, userID, purpose)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return domainErrors.New(domainErrors.CodeNotFound, "no active consent for this purpose")
			}
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to load active consent")
		}

		now := time.Now().UTC()
		active.Status = StatusWithdrawn
		active.WithdrawnAt = &now
		active.Meta = meta
		if err := stores.Consents.Update(ctx, active); err != nil {
			return domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to withdraw consent")
		}
		rec = active

		entry, err = l.recordAudit(ctx, stores.Audit, userID, active, ActionWithdrawn, audit.SeverityWarning)
		return err
	})
	if err != nil {
		return nil, err
	}

	if l.metrics != nil {
		l.metrics.IncrementConsentsWithdrawn(string(purpose))
	}
	l.forward(entry)
	l.notifyWithdrawal(ctx, userID, purpose)
	return rec, nil
}

// Status reports whether the user currently has an active grant for the purpose.
func (l *Ledger) Status(ctx context.Context, userID id.UserID, purpose Purpose) (bool, error) {
	if !purpose.IsValid() {
		return false, domainErrors.New(domainErrors.CodeValidation, "invalid consent purpose")
	}
	_, err := l.store.GetActive(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to check consent status")
	}
	return true, nil
}

// List returns the user's full consent history, newest created first.
func (l *Ledger) List(ctx context.Context, userID id.UserID) ([]*Record, error) {
	records, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to list consents")
	}
	return records, nil
}

// InitializeEssential grants the essential purpose. Called once, at
// registration.
func (l *Ledger) InitializeEssential(ctx context.Context, userID id.UserID, meta RequestMeta) (*Record, error) {
	return l.Grant(ctx, userID, PurposeEssential, DefaultPolicyVersion, meta)
}

func (l *Ledger) recordAudit(ctx context.Context, store audit.Store, userID id.UserID, rec *Record, action string, severity audit.Severity) (*audit.Entry, error) {
	assessment := l.detector.Assess(action)
	score := assessment.Score

	return l.trail.RecordIn(ctx, store, audit.Record{
		ActorID:  &userID,
		Action:   action,
		Category: audit.CategoryConsent,
		Severity: severity,
		Resource: &audit.Resource{Type: "consent", ID: rec.ID.String()},
		Details: audit.Details{
			"purpose": string(rec.Purpose),
			"version": rec.Version,
		},
		Meta: audit.RequestMeta{
			IPAddress: rec.Meta.IPAddress,
			UserAgent: rec.Meta.UserAgent,
			SessionID: rec.Meta.SessionID,
		},
		IsAnomaly:    assessment.IsAnomalous(),
		AnomalyScore: &score,
	})
}

func (l *Ledger) forward(entry *audit.Entry) {
	if l.forwarder != nil && entry != nil {
		l.forwarder.ForwardEntry(entry)
	}
}

func (l *Ledger) notifyWithdrawal(ctx context.Context, userID id.UserID, purpose Purpose) {
	if l.notifier == nil || l.users == nil {
		return
	}
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		l.logger.Warn("withdrawal notice skipped: user lookup failed", "user_id", userID, "error", err)
		return
	}
	l.notifier.ConsentWithdrawal(ctx, u.Email, string(purpose))
}
