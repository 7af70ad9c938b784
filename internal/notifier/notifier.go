// Package notifier delivers user-facing notices for compliance events.
// Delivery is best effort and never blocks or fails a business operation.
package notifier

import (
	"context"
	"log/slog"
	"time"
)

// Notifier fires a notice for each user-visible compliance event.
type Notifier interface {
	Welcome(ctx context.Context, email, name string)
	GrievanceConfirmation(ctx context.Context, email, ticketNumber string)
	ConsentWithdrawal(ctx context.Context, email, purpose string)
	DeletionNotice(ctx context.Context, email string, scheduledAt time.Time)
	BreachNotice(ctx context.Context, email, summary string)
}

// LogNotifier writes each notice to the structured log. Stands in for a
// mail gateway in development and single-binary deployments.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Welcome(_ context.Context, email, name string) {
	n.logger.Info("notice: welcome", "email", email, "name", name)
}

func (n *LogNotifier) GrievanceConfirmation(_ context.Context, email, ticketNumber string) {
	n.logger.Info("notice: grievance confirmation", "email", email, "ticket_number", ticketNumber)
}

func (n *LogNotifier) ConsentWithdrawal(_ context.Context, email, purpose string) {
	n.logger.Info("notice: consent withdrawal", "email", email, "purpose", purpose)
}

func (n *LogNotifier) DeletionNotice(_ context.Context, email string, scheduledAt time.Time) {
	n.logger.Info("notice: deletion scheduled", "email", email, "scheduled_at", scheduledAt)
}

func (n *LogNotifier) BreachNotice(_ context.Context, email, summary string) {
	n.logger.Warn("notice: breach", "email", email, "summary", summary)
}
