package consent

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists consent records. Implementations return
// sentinel.ErrNotFound for missing records and sentinel.ErrConflict when
// the one-active-grant-per-(user, purpose) constraint is violated.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	GetActive(ctx context.Context, userID id.UserID, purpose Purpose) (*Record, error)
	Update(ctx context.Context, rec *Record) error

	// ListByUser returns all records for a user, newest created first.
	ListByUser(ctx context.Context, userID id.UserID) ([]*Record, error)

	// DeleteByUser removes every record owned by the user and returns
	// how many were removed. Used only by erasure.
	DeleteByUser(ctx context.Context, userID id.UserID) (int, error)
}
