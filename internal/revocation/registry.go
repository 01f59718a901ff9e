// Package revocation tracks emergency revocations of access and measures
// how long each takes to propagate against an SLA target.
//
// Lifecycle: pending → {complete, failed}. A subject is revoked from the
// moment a request is created until it fails; failed requests never hold.
package revocation

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
	"github.com/ppiankov/govtrail/internal/statefile"
)

// DefaultSLATargetSeconds is the propagation target when none is configured.
const DefaultSLATargetSeconds = 300

// Status is the lifecycle state of a revocation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(s)); st {
	case StatusPending, StatusComplete, StatusFailed:
		return st, nil
	}
	return "", model.Invalid("status", "must be one of pending, complete, failed")
}

// SubjectTypes and Scopes are the accepted enum values.
var (
	SubjectTypes = []string{"user", "integration", "tool", "agent", "principal"}
	Scopes       = []string{"user_access", "tool_access", "integration_access", "principal_assume"}
)

// ValidSubjectType reports whether s is an accepted subject type.
func ValidSubjectType(s string) bool { return contains(SubjectTypes, s) }

// Record is one revocation.
type Record struct {
	ID                   string     `json:"id"`
	SubjectType          string     `json:"subject_type"`
	SubjectID            string     `json:"subject_id"`
	Scope                string     `json:"scope"`
	Reason               string     `json:"reason,omitempty"`
	InitiatedBy          string     `json:"initiated_by,omitempty"`
	InitiatedAt          time.Time  `json:"initiated_at"`
	PropagatedAt         *time.Time `json:"propagated_at,omitempty"`
	Status               Status     `json:"status"`
	SLATargetSeconds     int        `json:"sla_target_seconds"`
	PropagationLatencyMs *int64     `json:"propagation_latency_ms,omitempty"`
	SLAMet               *bool      `json:"sla_met,omitempty"`
	Error                string     `json:"error,omitempty"`
	FailedAt             *time.Time `json:"failed_at,omitempty"`
	CorrelationID        string     `json:"correlation_id,omitempty"`
}

// Request is the input to Create.
type Request struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Scope       string `json:"scope"`
	Reason      string `json:"reason,omitempty"`
	InitiatedBy string `json:"initiated_by,omitempty"`
	// CorrelationID is the trace of the operation that created the request.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// SLAMetrics aggregates propagation latency over complete revocations.
type SLAMetrics struct {
	Total          int     `json:"total"`
	MetCount       int     `json:"met_count"`
	BreachedCount  int     `json:"breached_count"`
	ComplianceRate float64 `json:"compliance_rate"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	MinLatencyMs   int64   `json:"min_latency_ms"`
	MaxLatencyMs   int64   `json:"max_latency_ms"`
}

// Registry owns the revocation table.
type Registry struct {
	mu        sync.Mutex
	records   map[string]*Record
	path      string
	slaTarget int

	Now func() time.Time
}

// NewRegistry creates an in-memory registry. slaTargetSeconds < 0 selects
// the default.
func NewRegistry(slaTargetSeconds int) *Registry {
	if slaTargetSeconds < 0 {
		slaTargetSeconds = DefaultSLATargetSeconds
	}
	return &Registry{records: make(map[string]*Record), slaTarget: slaTargetSeconds, Now: time.Now}
}

// Open creates a registry persisted to path.
func Open(path string, slaTargetSeconds int) (*Registry, error) {
	r := NewRegistry(slaTargetSeconds)
	r.path = path
	if err := statefile.Load(path, &r.records); err != nil {
		return nil, fmt.Errorf("revocation: %w", err)
	}
	if r.records == nil {
		r.records = make(map[string]*Record)
	}
	return r, nil
}

// SLATargetSeconds returns the target applied to new revocations.
func (r *Registry) SLATargetSeconds() int { return r.slaTarget }

// Create records a pending revocation. The subject is revoked immediately.
func (r *Registry) Create(req Request) (*Record, error) {
	if !ValidSubjectType(req.SubjectType) {
		return nil, model.Invalid("subject_type", "must be one of "+strings.Join(SubjectTypes, ", "))
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		return nil, model.Invalid("subject_id", "must not be empty")
	}
	if !contains(Scopes, req.Scope) {
		return nil, model.Invalid("scope", "must be one of "+strings.Join(Scopes, ", "))
	}
	id, err := generateID()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Record{
		ID:               id,
		SubjectType:      req.SubjectType,
		SubjectID:        req.SubjectID,
		Scope:            req.Scope,
		Reason:           req.Reason,
		InitiatedBy:      req.InitiatedBy,
		InitiatedAt:      r.Now().UTC(),
		Status:           StatusPending,
		SLATargetSeconds: r.slaTarget,
		CorrelationID:    req.CorrelationID,
	}
	r.records[id] = rec
	return rec.clone(), r.save()
}

// MarkPropagated completes a pending revocation and computes SLA compliance.
func (r *Registry) MarkPropagated(id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.pending(id, "mark propagated")
	if err != nil {
		return nil, err
	}
	now := r.Now().UTC()
	latency := now.Sub(rec.InitiatedAt).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	met := latency <= int64(rec.SLATargetSeconds)*1000
	rec.PropagatedAt = &now
	rec.PropagationLatencyMs = &latency
	rec.SLAMet = &met
	rec.Status = StatusComplete
	return rec.clone(), r.save()
}

// MarkFailed records that a pending revocation did not take effect.
func (r *Registry) MarkFailed(id, errMsg string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.pending(id, "mark failed")
	if err != nil {
		return nil, err
	}
	now := r.Now().UTC()
	rec.Status = StatusFailed
	rec.Error = errMsg
	rec.FailedAt = &now
	return rec.clone(), r.save()
}

func (r *Registry) pending(id, op string) (*Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "revocation", ID: id}
	}
	if rec.Status != StatusPending {
		return nil, &model.StateError{Kind: "revocation", ID: id, From: string(rec.Status), Op: op}
	}
	return rec, nil
}

// IsRevoked reports whether any pending or complete revocation holds the subject.
func (r *Registry) IsRevoked(subjectType, subjectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.SubjectType == subjectType && rec.SubjectID == subjectID && rec.Status != StatusFailed {
			return true
		}
	}
	return false
}

// SLAMetrics aggregates over complete revocations only.
func (r *Registry) SLAMetrics() SLAMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	var m SLAMetrics
	var sum int64
	for _, rec := range r.records {
		if rec.Status != StatusComplete || rec.PropagationLatencyMs == nil {
			continue
		}
		lat := *rec.PropagationLatencyMs
		if m.Total == 0 || lat < m.MinLatencyMs {
			m.MinLatencyMs = lat
		}
		if lat > m.MaxLatencyMs {
			m.MaxLatencyMs = lat
		}
		sum += lat
		m.Total++
		if rec.SLAMet != nil && *rec.SLAMet {
			m.MetCount++
		} else {
			m.BreachedCount++
		}
	}
	if m.Total > 0 {
		m.ComplianceRate = float64(m.MetCount) / float64(m.Total) * 100
		m.AvgLatencyMs = float64(sum) / float64(m.Total)
	}
	return m
}

// Get returns a copy of the record.
func (r *Registry) Get(id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "revocation", ID: id}
	}
	return rec.clone(), nil
}

// List returns copies filtered by optional status and subject type,
// ordered by initiation time.
func (r *Registry) List(status Status, subjectType string) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*Record{}
	for _, rec := range r.records {
		if status != "" && rec.Status != status {
			continue
		}
		if subjectType != "" && rec.SubjectType != subjectType {
			continue
		}
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InitiatedAt.Equal(out[j].InitiatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].InitiatedAt.Before(out[j].InitiatedAt)
	})
	return out
}

func (rec *Record) clone() *Record {
	c := *rec
	return &c
}

// save must be called with r.mu held.
func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	if err := statefile.Save(r.path, r.records); err != nil {
		return fmt.Errorf("revocation: persist: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return "rev-" + hex.EncodeToString(b), nil
}
