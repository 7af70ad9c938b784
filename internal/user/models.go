package user

import (
	"time"

	id "custodia/pkg/domain"
)

// Role controls access to the administrative surface.
type Role string

const (
	RolePrincipal Role = "principal"
	RoleDPO       Role = "dpo"
	RoleAdmin     Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePrincipal, RoleDPO, RoleAdmin:
		return true
	}
	return false
}

// User is a data principal registered with the platform.
type User struct {
	ID           id.UserID
	Email        string
	PasswordHash string
	FullName     string
	Phone        string
	Address      string
	Role         Role
	IsActive     bool

	LastLoginAt *time.Time

	// Erasure lifecycle. Both set on request, both cleared on cancel.
	DeletionRequestedAt *time.Time
	ScheduledDeletionAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErasurePending reports whether the user has an uncancelled erasure request.
func (u *User) ErasurePending() bool {
	return u.DeletionRequestedAt != nil
}
