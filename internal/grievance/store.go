package grievance

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Filter narrows administrative queries.
type Filter struct {
	Status   *Status
	Priority *string
	Limit    int
	Offset   int
}

// Store persists grievances. Implementations return sentinel.ErrNotFound
// for missing cases and sentinel.ErrConflict on a ticket number collision.
type Store interface {
	Create(ctx context.Context, g *Grievance) error

	// GetForUser returns the case only if it belongs to the user.
	GetForUser(ctx context.Context, grievanceID id.GrievanceID, userID id.UserID) (*Grievance, error)
	GetByID(ctx context.Context, grievanceID id.GrievanceID) (*Grievance, error)
	Update(ctx context.Context, g *Grievance) error

	// ListByUser returns the user's cases, newest created first.
	ListByUser(ctx context.Context, userID id.UserID) ([]*Grievance, error)

	// ListAll returns a filtered page plus the total match count.
	ListAll(ctx context.Context, filter Filter) ([]*Grievance, int, error)

	CountByStatus(ctx context.Context, status Status) (int, error)

	// ListOverdue returns open cases past their SLA deadline.
	ListOverdue(ctx context.Context, now time.Time) ([]*Grievance, error)

	// DeleteByUser removes every case owned by the user. Used only by erasure.
	DeleteByUser(ctx context.Context, userID id.UserID) (int, error)
}
