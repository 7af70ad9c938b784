package grievance

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Status is the case lifecycle state. Pending cases move to in_progress,
// resolved and closed; pending, in_progress and resolved cases may be
// escalated. Nothing leaves escalated or closed except an admin override.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusEscalated  Status = "escalated"
	StatusClosed     Status = "closed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusEscalated, StatusClosed:
		return true
	}
	return false
}

// Category classifies what the grievance is about.
type Category string

const (
	CategoryDataAccess        Category = "data_access"
	CategoryDataCorrection    Category = "data_correction"
	CategoryDataDeletion      Category = "data_deletion"
	CategoryConsentWithdrawal Category = "consent_withdrawal"
	CategoryDataBreach        Category = "data_breach"
	CategoryOther             Category = "other"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryDataAccess, CategoryDataCorrection, CategoryDataDeletion,
		CategoryConsentWithdrawal, CategoryDataBreach, CategoryOther:
		return true
	}
	return false
}

// DefaultPriority is assigned at submission; operators may change it later.
const DefaultPriority = "medium"

// RequestMeta captures where a grievance action came from.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	SessionID string
}

// Grievance is one redressal case.
type Grievance struct {
	ID           id.GrievanceID
	UserID       id.UserID
	TicketNumber string
	Subject      string
	Description  string
	Category     Category
	Status       Status
	Priority     string
	AssignedTo   *id.UserID
	Resolution   string
	ResolvedAt   *time.Time

	// SLADeadline is fixed at creation and never recomputed.
	SLADeadline      time.Time
	EscalatedAt      *time.Time
	EscalationReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanEscalate reports whether the case is eligible for escalation: the SLA
// deadline has passed, or it was resolved unsatisfactorily.
func (g *Grievance) CanEscalate(now time.Time) bool {
	return !now.Before(g.SLADeadline) || g.Status == StatusResolved
}

// Overdue reports whether the case has breached its SLA while still open.
func (g *Grievance) Overdue(now time.Time) bool {
	if g.Status != StatusPending && g.Status != StatusInProgress {
		return false
	}
	return g.SLADeadline.Before(now)
}

// NewTicketNumber generates a ticket of the form GRV-YYYYMMDD-####, where
// the digits are the leading four decimal digits of a fresh random 128-bit
// identifier. Uniqueness is not checked; a collision surfaces as a storage
// constraint violation.
func NewTicketNumber(now time.Time) string {
	raw := uuid.New()
	n := new(big.Int).SetBytes(raw[:])
	digits := n.String()
	if len(digits) > 4 {
		digits = digits[:4]
	}
	return fmt.Sprintf("GRV-%s-%s", now.UTC().Format("20060102"), digits)
}
