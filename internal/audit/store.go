package audit

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Store defines the persistence interface for audit entries.
// Error Contract:
// - MarkForwarded returns sentinel.ErrInvalidState when delivery fields are already set
// - Other methods return nil on success or wrapped errors on failure
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// ListByActor returns entries for one actor, newest first.
	ListByActor(ctx context.Context, actorID id.UserID, filter *Filter) ([]*Entry, error)
	// List returns entries across all actors, newest first. Administrative review only.
	List(ctx context.Context, filter *Filter) ([]*Entry, error)
	// MarkForwarded sets the SIEM delivery fields. It succeeds at most once per entry.
	MarkForwarded(ctx context.Context, entryID id.AuditLogID, sentAt time.Time) error
	// AnonymizeByActor detaches entries from an erased actor, preserving the
	// trail for accountability. Returns the number of entries touched.
	AnonymizeByActor(ctx context.Context, actorID id.UserID) (int, error)
}
