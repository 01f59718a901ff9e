// Package alert delivers governance alerts to webhook endpoints.
package alert

import "time"

// Event types an AlertConfig can subscribe to.
const (
	TypeSLABreach        = "sla_breach"
	TypeIntegrityFailure = "integrity_failure"
	TypeAccessDenied     = "access_denied"
	TypeRevocationFailed = "revocation_failed"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["sla_breach", "integrity_failure", ...]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp     string            `json:"timestamp"`
	CorrelationID string            `json:"correlation_id"`
	Type          string            `json:"type"`
	Severity      string            `json:"severity"`
	SubjectType   string            `json:"subject_type,omitempty"`
	SubjectID     string            `json:"subject_id,omitempty"`
	Summary       string            `json:"summary"`
	Details       map[string]string `json:"details,omitempty"`
}

// NewEvent stamps an alert with the current time.
func NewEvent(typ, severity, correlationID, summary string) AlertEvent {
	return AlertEvent{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		CorrelationID: correlationID,
		Type:          typ,
		Severity:      severity,
		Summary:       summary,
	}
}
