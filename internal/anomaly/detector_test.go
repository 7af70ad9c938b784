package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type DetectorSuite struct {
	suite.Suite
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorSuite))
}

func clockAt(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 3, 15, hour, 30, 0, 0, time.UTC)
	}
}

func (s *DetectorSuite) TestAssess() {
	cases := []struct {
		name      string
		hour      int
		action    string
		score     float64
		anomalous bool
	}{
		{"routine action during business hours", 14, "profile_viewed", 0.0, false},
		{"routine action off hours", 3, "profile_viewed", 0.3, false},
		{"sensitive action during business hours", 14, "data_export", 0.2, false},
		{"sensitive export off hours", 2, "data_export", 0.5, false},
		{"sensitive deletion off hours", 23, "deletion_requested", 0.5, false},
		{"sensitive withdrawal off hours", 5, "consent_withdrawn", 0.5, false},
		{"hour six is business hours", 6, "data_export", 0.2, false},
		{"hour twenty-two is business hours", 22, "data_export", 0.2, false},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			d := NewDetector(WithClock(clockAt(tc.hour)))
			got := d.Assess(tc.action)
			s.InDelta(tc.score, got.Score, 1e-9)
			s.Equal(tc.anomalous, got.IsAnomalous())
		})
	}
}

func (s *DetectorSuite) TestChecksAlwaysPresent() {
	d := NewDetector(WithClock(clockAt(23)))
	got := d.Assess("data_export")

	s.Len(got.Checks, 4)
	s.True(got.Checks["unusual_access_time"])
	s.True(got.Checks["sensitive_action"])
	s.False(got.Checks["suspicious_ip_change"])
	s.False(got.Checks["rapid_requests"])
}

func (s *DetectorSuite) TestThresholdIsExclusive() {
	// Off-hours plus a sensitive action lands exactly on the threshold.
	d := NewDetector(WithClock(clockAt(23)))
	got := d.Assess("data_export")

	s.InDelta(0.5, got.Score, 1e-9)
	s.False(got.IsAnomalous())
}

func (s *DetectorSuite) TestDeterministic() {
	d := NewDetector(WithClock(clockAt(2)))

	first := d.Assess("consent_withdrawn")
	second := d.Assess("consent_withdrawn")
	s.Equal(first, second)
}
