// Package anomaly scores audit-worthy actions against a fixed rule table.
package anomaly

import "time"

const (
	// Hours outside this window (UTC) are considered off-hours.
	businessHourStart = 6
	businessHourEnd   = 22

	offHoursWeight        = 0.3
	sensitiveActionWeight = 0.2

	// flagThreshold is exclusive: a score equal to it is not flagged.
	flagThreshold = 0.5
)

const (
	checkSuspiciousIPChange = "suspicious_ip_change"
	checkUnusualAccessTime  = "unusual_access_time"
	checkRapidRequests      = "rapid_requests"
	checkSensitiveAction    = "sensitive_action"
)

// sensitiveActions carry extra weight regardless of when they happen.
var sensitiveActions = map[string]bool{
	"data_export":        true,
	"deletion_requested": true,
	"consent_withdrawn":  true,
}

// Assessment is the outcome of scoring a single action.
type Assessment struct {
	Checks map[string]bool `json:"checks"`
	Score  float64         `json:"score"`
}

// IsAnomalous reports whether the score exceeds the flag threshold.
func (a Assessment) IsAnomalous() bool {
	return a.Score > flagThreshold
}

// Detector applies the rule table. It keeps no per-user state, so the
// same action at the same time of day always scores the same.
type Detector struct {
	now func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector constructs a detector with the default clock.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Assess scores an action. Every rule contributes its weight
// independently; the IP-change and request-rate checks are reported
// but never fire without per-user history to compare against.
func (d *Detector) Assess(action string) Assessment {
	checks := map[string]bool{
		checkSuspiciousIPChange: false,
		checkUnusualAccessTime:  false,
		checkRapidRequests:      false,
		checkSensitiveAction:    false,
	}
	var score float64

	hour := d.now().UTC().Hour()
	if hour < businessHourStart || hour > businessHourEnd {
		checks[checkUnusualAccessTime] = true
		score += offHoursWeight
	}

	if sensitiveActions[action] {
		checks[checkSensitiveAction] = true
		score += sensitiveActionWeight
	}

	return Assessment{Checks: checks, Score: score}
}
