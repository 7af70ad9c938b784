package retention

import (
	"time"

	id "custodia/pkg/domain"
)

// Data types covered by the default policy set.
const (
	DataTypeUserAccount     = "user_account"
	DataTypeConsentRecord   = "consent_record"
	DataTypeGrievanceRecord = "grievance_record"
)

// Default retention periods, in days.
const (
	DefaultUserAccountDays     = 365
	DefaultConsentRecordDays   = 1095
	DefaultGrievanceRecordDays = 1825
)

// Policy states how long one class of personal data is kept and on what
// legal basis. Data types are unique.
type Policy struct {
	ID                  id.PolicyID
	DataType            string
	RetentionPeriodDays int
	Description         string
	LegalBasis          string
	IsActive            bool

	LastReviewedAt *time.Time
	ReviewedBy     *id.UserID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultPolicies returns the seed policy set applied on first start.
func DefaultPolicies(now time.Time) []*Policy {
	newPolicy := func(dataType string, days int, description, basis string) *Policy {
		return &Policy{
			ID:                  id.NewPolicyID(),
			DataType:            dataType,
			RetentionPeriodDays: days,
			Description:         description,
			LegalBasis:          basis,
			IsActive:            true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	}
	return []*Policy{
		newPolicy(DataTypeUserAccount, DefaultUserAccountDays,
			"Active account profiles and credentials",
			"Service provision under the platform terms"),
		newPolicy(DataTypeConsentRecord, DefaultConsentRecordDays,
			"Consent grant and withdrawal history",
			"Demonstrating lawful basis for processing"),
		newPolicy(DataTypeGrievanceRecord, DefaultGrievanceRecordDays,
			"Grievance tickets and resolutions",
			"Statutory complaint record-keeping"),
	}
}
