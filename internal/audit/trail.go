package audit

import (
	"context"
	"log/slog"
	"time"

	"custodia/internal/platform/metrics"
	"custodia/internal/platform/tracer"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

// Record describes an audit-worthy action before it is persisted.
type Record struct {
	ActorID      *id.UserID
	Action       string
	Category     Category
	Severity     Severity
	Resource     *Resource
	Details      Details
	Meta         RequestMeta
	IsAnomaly    bool
	AnomalyScore *float64
}

// Trail is the append-only audit log. A failed append is a hard error:
// callers that record inside a transaction must roll the transaction back.
type Trail struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithLogger sets the logger used for audit diagnostics.
func WithLogger(logger *slog.Logger) TrailOption {
	return func(t *Trail) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) TrailOption {
	return func(t *Trail) {
		t.metrics = m
	}
}

// WithTracer sets the tracer used to span audit writes.
func WithTracer(tr tracer.Tracer) TrailOption {
	return func(t *Trail) {
		if tr != nil {
			t.tracer = tr
		}
	}
}

// NewTrail constructs the audit trail over the given store.
func NewTrail(store Store, opts ...TrailOption) *Trail {
	t := &Trail{
		store:  store,
		logger: slog.Default(),
		tracer: tracer.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends an entry through the trail's own store and returns it.
func (t *Trail) Record(ctx context.Context, rec Record) (*Entry, error) {
	return t.RecordIn(ctx, t.store, rec)
}

// RecordIn appends an entry through the supplied store, which may be bound
// to an open transaction so the append commits or rolls back with the
// business mutation it describes.
func (t *Trail) RecordIn(ctx context.Context, store Store, rec Record) (_ *Entry, err error) {
	ctx, span := t.tracer.Start(ctx, "audit.record",
		tracer.String("action", rec.Action),
		tracer.String("category", string(rec.Category)),
	)
	defer func() { span.End(err) }()

	entry, err := buildEntry(rec)
	if err != nil {
		return nil, err
	}
	if entry.IsAnomaly {
		span.SetAttributes(tracer.Bool("anomaly", true))
	}

	if err = store.Append(ctx, entry); err != nil {
		t.logger.Error("audit append failed",
			"action", rec.Action,
			"category", rec.Category,
			"error", err,
		)
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to record audit entry")
	}

	if t.metrics != nil {
		t.metrics.IncrementAuditEntries(string(entry.Category))
		if entry.IsAnomaly {
			t.metrics.IncrementAnomaliesFlagged()
		}
	}
	return entry, nil
}

// List returns entries across all actors, newest first.
func (t *Trail) List(ctx context.Context, filter *Filter) ([]*Entry, error) {
	entries, err := t.store.List(ctx, filter)
	if err != nil {
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}

// ListByActor returns one actor's entries, newest first.
func (t *Trail) ListByActor(ctx context.Context, actorID id.UserID, filter *Filter) ([]*Entry, error) {
	entries, err := t.store.ListByActor(ctx, actorID, filter)
	if err != nil {
		return nil, domainErrors.Wrap(err, domainErrors.CodeInternal, "failed to list audit entries")
	}
	return entries, nil
}

func buildEntry(rec Record) (*Entry, error) {
	if rec.Action == "" {
		return nil, domainErrors.New(domainErrors.CodeInvalidInput, "audit action is required")
	}
	if !rec.Category.IsValid() {
		return nil, domainErrors.New(domainErrors.CodeInvalidInput, "invalid audit category")
	}
	severity := rec.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	if !severity.IsValid() {
		return nil, domainErrors.New(domainErrors.CodeInvalidInput, "invalid audit severity")
	}

	return &Entry{
		ID:           id.NewAuditLogID(),
		ActorID:      rec.ActorID,
		Action:       rec.Action,
		Category:     rec.Category,
		Severity:     severity,
		Resource:     rec.Resource,
		Details:      rec.Details,
		Meta:         rec.Meta,
		IsAnomaly:    rec.IsAnomaly,
		AnomalyScore: rec.AnomalyScore,
		SIEMSent:     false,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
