package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	UsersRegistered prometheus.Counter
	AuthFailures    prometheus.Counter
	EndpointLatency *prometheus.HistogramVec

	// Consent metrics
	ConsentsGranted   *prometheus.CounterVec
	ConsentsWithdrawn *prometheus.CounterVec

	// Grievance metrics
	GrievancesSubmitted *prometheus.CounterVec
	GrievancesEscalated prometheus.Counter
	GrievancesOverdue   prometheus.Gauge

	// Audit / security metrics
	AuditEntries     *prometheus.CounterVec
	AnomaliesFlagged prometheus.Counter
	SIEMForwarded    prometheus.Counter
	SIEMFailed       prometheus.Counter

	// Rights metrics
	ErasureRequests prometheus.Counter
	DataExports     prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_users_registered_total",
			Help: "Total number of users registered",
		}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_auth_failures_total",
			Help: "Total number of authentication failures",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ConsentsGranted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_consents_granted_total",
			Help: "Total number of consents granted, labeled by purpose",
		}, []string{"purpose"}),
		ConsentsWithdrawn: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_consents_withdrawn_total",
			Help: "Total number of consents withdrawn, labeled by purpose",
		}, []string{"purpose"}),
		GrievancesSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_grievances_submitted_total",
			Help: "Total number of grievances submitted, labeled by category",
		}, []string{"category"}),
		GrievancesEscalated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_grievances_escalated_total",
			Help: "Total number of grievances escalated",
		}),
		GrievancesOverdue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_grievances_overdue",
			Help: "Grievances currently past their SLA deadline",
		}),
		AuditEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_audit_entries_total",
			Help: "Total number of audit trail entries recorded, labeled by category",
		}, []string{"category"}),
		AnomaliesFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_anomalies_flagged_total",
			Help: "Total number of actions flagged anomalous",
		}),
		SIEMForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_siem_forwarded_total",
			Help: "Total number of events accepted by the SIEM sink",
		}),
		SIEMFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_siem_failed_total",
			Help: "Total number of SIEM forward attempts that failed",
		}),
		ErasureRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_erasure_requests_total",
			Help: "Total number of erasure requests",
		}),
		DataExports: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_data_exports_total",
			Help: "Total number of data export bundles assembled",
		}),
	}
}

func (m *Metrics) IncrementUsersRegistered() {
	m.UsersRegistered.Inc()
}

func (m *Metrics) IncrementAuthFailures() {
	m.AuthFailures.Inc()
}

func (m *Metrics) ObserveEndpointLatency(endpoint string, seconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) IncrementConsentsGranted(purpose string) {
	m.ConsentsGranted.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementConsentsWithdrawn(purpose string) {
	m.ConsentsWithdrawn.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementGrievancesSubmitted(category string) {
	m.GrievancesSubmitted.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementGrievancesEscalated() {
	m.GrievancesEscalated.Inc()
}

func (m *Metrics) SetGrievancesOverdue(count int) {
	m.GrievancesOverdue.Set(float64(count))
}

func (m *Metrics) IncrementAuditEntries(category string) {
	m.AuditEntries.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementAnomaliesFlagged() {
	m.AnomaliesFlagged.Inc()
}

func (m *Metrics) IncrementSIEMForwarded() {
	m.SIEMForwarded.Inc()
}

func (m *Metrics) IncrementSIEMFailed() {
	m.SIEMFailed.Inc()
}

func (m *Metrics) IncrementErasureRequests() {
	m.ErasureRequests.Inc()
}

func (m *Metrics) IncrementDataExports() {
	m.DataExports.Inc()
}
