// Package siem relays compliance events to an external SIEM sink over HTTP.
// Delivery is fire-and-forget: durability lives in the audit trail, so every
// failure here is logged and swallowed.
package siem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"custodia/internal/audit"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/privacy"
)

// Wire event types understood by the downstream dashboards.
const (
	EventAuthenticationFailure = "authentication.failure"
	EventConsentGranted        = "consent.granted"
	EventConsentWithdrawn      = "consent.withdrawn"
	EventDataAccess            = "data.access"
	EventDataExport            = "data.export"
	EventDataDeletionRequest   = "data.deletion.request"
	EventGrievanceSubmitted    = "grievance.submitted"
	EventGrievanceEscalated    = "grievance.escalated"
	EventSecurityAnomaly       = "security.anomaly"
	EventSecurityBreach        = "security.breach"
)

var acceptedStatuses = map[int]bool{
	http.StatusOK:       true,
	http.StatusCreated:  true,
	http.StatusAccepted: true,
}

// Event is a single record bound for the sink.
type Event struct {
	EventType string
	Severity  string
	Fields    map[string]any
}

// Doer issues HTTP requests. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds sink connection settings. An empty URL disables forwarding.
type Config struct {
	URL         string
	APIKey      string
	Timeout     time.Duration
	Source      string
	Application string
}

// Forwarder posts enriched events to the configured sink and stamps the
// originating audit entry once the sink accepts the event.
type Forwarder struct {
	cfg     Config
	client  Doer
	entries audit.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithClient overrides the HTTP client.
func WithClient(client Doer) Option {
	return func(f *Forwarder) {
		f.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forwarder) {
		f.metrics = m
	}
}

// NewForwarder constructs a forwarder. The entries store is used to mark
// audit entries as forwarded; it may be nil when only Forward is used.
func NewForwarder(cfg Config, entries audit.Store, opts ...Option) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "custodia"
	}
	if cfg.Application == "" {
		cfg.Application = "custodia-compliance-core"
	}
	f := &Forwarder{
		cfg:     cfg,
		client:  &http.Client{},
		entries: entries,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward posts one event synchronously and reports whether the sink
// accepted it. It never returns an error.
func (f *Forwarder) Forward(ctx context.Context, event Event) bool {
	if f.cfg.URL == "" {
		f.logger.Debug("siem sink not configured, dropping event", "event_type", event.EventType)
		return false
	}

	payload := map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"source":      f.cfg.Source,
		"application": f.cfg.Application,
		"eventType":   event.EventType,
		"severity":    event.Severity,
	}
	for k, v := range event.Fields {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Error("siem event marshal failed", "event_type", event.EventType, "error", err)
		f.recordFailure()
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		f.logger.Error("siem request build failed", "error", err)
		f.recordFailure()
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", f.cfg.APIKey))

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("siem forward failed", "event_type", event.EventType, "error", err)
		f.recordFailure()
		return false
	}
	defer resp.Body.Close()

	if !acceptedStatuses[resp.StatusCode] {
		f.logger.Warn("siem sink rejected event",
			"event_type", event.EventType,
			"status", resp.StatusCode,
		)
		f.recordFailure()
		return false
	}

	if f.metrics != nil {
		f.metrics.IncrementSIEMForwarded()
	}
	return true
}

// ForwardEntry relays an audit entry on a detached goroutine so the
// originating business operation never waits on the sink. Entries the
// sink accepts are stamped forwarded exactly once.
func (f *Forwarder) ForwardEntry(entry *audit.Entry) {
	if entry == nil {
		return
	}
	eventType, ok := eventTypeFor(entry)
	if !ok {
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		event := Event{
			EventType: eventType,
			Severity:  string(entry.Severity),
			Fields:    entryFields(entry),
		}
		if !f.Forward(context.Background(), event) {
			return
		}
		if f.entries == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.Timeout)
		defer cancel()
		if err := f.entries.MarkForwarded(ctx, entry.ID, time.Now().UTC()); err != nil {
			f.logger.Warn("marking audit entry forwarded failed", "entry_id", entry.ID, "error", err)
		}
	}()
}

// Wait blocks until all in-flight forwards finish. Used during shutdown.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

func (f *Forwarder) recordFailure() {
	if f.metrics != nil {
		f.metrics.IncrementSIEMFailed()
	}
}

// eventTypeFor maps an audit entry onto the sink's event vocabulary.
// Entries with no mapping stay local to the audit trail.
func eventTypeFor(entry *audit.Entry) (string, bool) {
	if entry.Category == audit.CategoryBreachDetection {
		return EventSecurityBreach, true
	}
	if entry.IsAnomaly {
		return EventSecurityAnomaly, true
	}

	switch entry.Action {
	case "failed_login_attempt":
		return EventAuthenticationFailure, true
	case "consent_granted":
		return EventConsentGranted, true
	case "consent_withdrawn":
		return EventConsentWithdrawn, true
	case "data_access":
		return EventDataAccess, true
	case "data_export":
		return EventDataExport, true
	case "deletion_requested":
		return EventDataDeletionRequest, true
	case "grievance_submitted":
		return EventGrievanceSubmitted, true
	case "grievance_escalated":
		return EventGrievanceEscalated, true
	}
	return "", false
}

func entryFields(entry *audit.Entry) map[string]any {
	fields := map[string]any{
		"action":   entry.Action,
		"category": string(entry.Category),
	}
	if entry.ActorID != nil {
		fields["userId"] = entry.ActorID.String()
	}
	if entry.Resource != nil {
		fields["resourceType"] = entry.Resource.Type
		fields["resourceId"] = entry.Resource.ID
	}
	if entry.Meta.IPAddress != "" {
		// The sink is an external system: only the network prefix leaves us.
		fields["ipAddress"] = privacy.AnonymizeIP(entry.Meta.IPAddress)
	}
	if entry.AnomalyScore != nil {
		fields["anomalyScore"] = *entry.AnomalyScore
	}
	for k, v := range entry.Details {
		fields[k] = v
	}
	return fields
}
