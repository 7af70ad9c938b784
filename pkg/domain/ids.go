// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing UserID where GrievanceID is expected.
type (
	UserID      uuid.UUID
	ConsentID   uuid.UUID
	GrievanceID uuid.UUID
	AuditLogID  uuid.UUID
	PolicyID    uuid.UUID
)

// New functions - used when creating records.

func NewUserID() UserID           { return UserID(uuid.New()) }
func NewConsentID() ConsentID     { return ConsentID(uuid.New()) }
func NewGrievanceID() GrievanceID { return GrievanceID(uuid.New()) }
func NewAuditLogID() AuditLogID   { return AuditLogID(uuid.New()) }
func NewPolicyID() PolicyID       { return PolicyID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseConsentID(s string) (ConsentID, error) {
	id, err := parseUUID(s, "consent ID")
	return ConsentID(id), err
}

func ParseGrievanceID(s string) (GrievanceID, error) {
	id, err := parseUUID(s, "grievance ID")
	return GrievanceID(id), err
}

func ParseAuditLogID(s string) (AuditLogID, error) {
	id, err := parseUUID(s, "audit log ID")
	return AuditLogID(id), err
}

func ParsePolicyID(s string) (PolicyID, error) {
	id, err := parseUUID(s, "policy ID")
	return PolicyID(id), err
}

// String methods - for logging and debugging.

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id ConsentID) String() string   { return uuid.UUID(id).String() }
func (id GrievanceID) String() string { return uuid.UUID(id).String() }
func (id AuditLogID) String() string  { return uuid.UUID(id).String() }
func (id PolicyID) String() string    { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id GrievanceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AuditLogID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id PolicyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic.
// Note: Nil UUIDs are allowed here. Use IsNil() at the service layer for
// business validation, which allows store lookups to return proper
// "not found" errors for consistency.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
