package audit

import (
	"time"

	id "custodia/pkg/domain"
)

// Category classifies audit entries. Values are wire vocabulary consumed by
// dashboards and the SIEM sink; do not rename.
type Category string

const (
	CategoryAuthentication   Category = "authentication"
	CategoryConsent          Category = "consent"
	CategoryDataAccess       Category = "data_access"
	CategoryDataModification Category = "data_modification"
	CategoryDataDeletion     Category = "data_deletion"
	CategoryGrievance        Category = "grievance"
	CategoryAdminAction      Category = "admin_action"
	CategorySecurityEvent    Category = "security_event"
	CategoryBreachDetection  Category = "breach_detection"
)

// IsValid reports whether the category is a known wire value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryAuthentication, CategoryConsent, CategoryDataAccess,
		CategoryDataModification, CategoryDataDeletion, CategoryGrievance,
		CategoryAdminAction, CategorySecurityEvent, CategoryBreachDetection:
		return true
	}
	return false
}

// Severity grades audit entries.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether the severity is a known wire value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Details is the schema-free event payload. Keys vary per category; values
// must be JSON-serializable.
type Details map[string]any

// Resource identifies the entity an entry refers to.
type Resource struct {
	Type string
	ID   string
}

// RequestMeta carries the request context captured alongside an entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	SessionID string
}

// Entry is a single append-only audit record.
//
// Entries are immutable once persisted, with one exception: the SIEM delivery
// fields (SIEMSent, SIEMSentAt), which the forwarder sets exactly once after a
// successful relay.
type Entry struct {
	ID       id.AuditLogID
	ActorID  *id.UserID // nil for system events
	Action   string
	Category Category
	Severity Severity

	Resource *Resource
	Details  Details
	Meta     RequestMeta

	IsAnomaly    bool
	AnomalyScore *float64

	SIEMSent   bool
	SIEMSentAt *time.Time

	CreatedAt time.Time
}

// Filter narrows audit queries. Zero-value fields are ignored.
type Filter struct {
	Category *Category
	Since    *time.Time
	Limit    int
	Offset   int
}
