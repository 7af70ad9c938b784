package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custodia/internal/grievance"
	"custodia/internal/platform/metrics"
	"custodia/internal/sentinel"
	"custodia/internal/user"
	id "custodia/pkg/domain"
	domainErrors "custodia/pkg/domain-errors"
)

// SweepResult contains the results of one sweep run.
type SweepResult struct {
	UsersErased       int
	EraseFailures     int
	OverdueGrievances int
	Duration          time.Duration
}

// Eraser executes the irreversible erasure of one user. Satisfied by
// rights.Operations.
type Eraser interface {
	ExecuteErasure(ctx context.Context, userID id.UserID) error
}

// OverdueLister reports grievances past their SLA deadline. Satisfied by
// grievance.CaseManager.
type OverdueLister interface {
	ListOverdue(ctx context.Context) ([]*grievance.Grievance, error)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithOverdueLister(l OverdueLister) Option {
	return func(s *Sweeper) {
		s.overdue = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// Sweeper periodically erases users whose grace period has elapsed and
// refreshes the overdue-grievance gauge.
type Sweeper struct {
	users    user.Store
	eraser   Eraser
	overdue  OverdueLister
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewSweeper(users user.Store, eraser Eraser, opts ...Option) *Sweeper {
	s := &Sweeper{
		users:    users,
		eraser:   eraser,
		logger:   slog.Default(),
		interval: time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			startTime := time.Now()
			res, err := s.RunOnce(ctx)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Error("retention_sweep_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				continue
			}
			res.Duration = duration

			s.logger.Info("retention_sweep_completed",
				"users_erased", res.UsersErased,
				"erase_failures", res.EraseFailures,
				"overdue_grievances", res.OverdueGrievances,
				"duration_ms", duration.Milliseconds(),
			)

		case <-ctx.Done():
			s.logger.Info("retention sweeper stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single sweep. Logging is handled by the caller (Start).
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}

	due, err := s.users.ListScheduledForDeletion(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, u := range due {
		if err := s.eraser.ExecuteErasure(ctx, u.ID); err != nil {
			// Already gone, e.g. erased by a concurrent sweep.
			if domainErrors.HasCode(err, domainErrors.CodeNotFound) {
				continue
			}
			res.EraseFailures++
			s.logger.Error("scheduled erasure failed", "user_id", u.ID, "error", err)
			continue
		}
		res.UsersErased++
	}

	if s.overdue != nil {
		overdue, err := s.overdue.ListOverdue(ctx)
		if err != nil {
			return nil, err
		}
		res.OverdueGrievances = len(overdue)
		if s.metrics != nil {
			s.metrics.SetGrievancesOverdue(len(overdue))
		}
	}
	return res, nil
}

// SeedPolicies inserts the default policy set, skipping data types that
// already have a policy.
func SeedPolicies(ctx context.Context, store Store, now time.Time) error {
	for _, p := range DefaultPolicies(now) {
		if err := store.Create(ctx, p); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return err
		}
	}
	return nil
}
