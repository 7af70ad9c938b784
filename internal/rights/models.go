package rights

import (
	"time"

	"custodia/internal/consent"
	id "custodia/pkg/domain"
)

// RequestMeta captures where a rights request came from.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	SessionID string
}

// CorrectionRequest carries the profile fields a principal may correct.
// Nil fields are left untouched.
type CorrectionRequest struct {
	FullName *string
	Phone    *string
	Address  *string
}

// PersonalData is the profile snapshot included in an export bundle.
type PersonalData struct {
	ID        id.UserID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// ConsentExport is one consent decision in an export bundle.
type ConsentExport struct {
	Purpose     string     `json:"purpose"`
	Status      string     `json:"status"`
	GrantedAt   time.Time  `json:"granted_at"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
}

// ActivityExport is one audit entry in an export bundle.
type ActivityExport struct {
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// ExportBundle is the portability snapshot handed to the principal.
type ExportBundle struct {
	ExportedAt     time.Time        `json:"exported_at"`
	PersonalData   PersonalData     `json:"personal_data"`
	Consents       []ConsentExport  `json:"consents"`
	RecentActivity []ActivityExport `json:"recent_activity"`
}

func newConsentExport(rec *consent.Record) ConsentExport {
	return ConsentExport{
		Purpose:     string(rec.Purpose),
		Status:      string(rec.Status),
		GrantedAt:   rec.GrantedAt,
		WithdrawnAt: rec.WithdrawnAt,
	}
}
