package consent

import (
	"time"

	id "custodia/pkg/domain"
)

// Purpose identifies what a consent record authorizes.
type Purpose string

const (
	PurposeEssential      Purpose = "essential"
	PurposeAnalytics      Purpose = "analytics"
	PurposeMarketing      Purpose = "marketing"
	PurposeDataProcessing Purpose = "data_processing"
)

func (p Purpose) IsValid() bool {
	switch p {
	case PurposeEssential, PurposeAnalytics, PurposeMarketing, PurposeDataProcessing:
		return true
	}
	return false
}

// Status is the lifecycle state of a consent record.
type Status string

const (
	StatusGranted   Status = "granted"
	StatusWithdrawn Status = "withdrawn"
)

// RequestMeta captures where a consent decision came from. SessionID
// travels to the audit entry only; the consent row keeps ip and agent.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	SessionID string
}

// Record is one consent decision. Withdrawal mutates the record in place
// rather than deleting it, so the full decision history stays queryable.
type Record struct {
	ID          id.ConsentID
	UserID      id.UserID
	Purpose     Purpose
	Status      Status
	Version     string
	GrantedAt   time.Time
	WithdrawnAt *time.Time
	// ExpiresAt is an optional consent expiry. Stored for purposes that
	// carry one; no grant path sets it today.
	ExpiresAt *time.Time
	Meta      RequestMeta
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the record currently authorizes its purpose.
func (r *Record) Active() bool {
	return r.Status == StatusGranted
}
