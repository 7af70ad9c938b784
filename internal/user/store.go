package user

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Store persists users. Implementations return sentinel errors:
// sentinel.ErrNotFound for missing users, sentinel.ErrConflict for a
// duplicate email.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, userID id.UserID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, userID id.UserID) error

	// ListScheduledForDeletion returns users whose scheduled deletion
	// time is at or before the cutoff.
	ListScheduledForDeletion(ctx context.Context, cutoff time.Time) ([]*User, error)
}
