// Package integration manages the approval-gated allowlist of external
// targets each third-party integration may reach.
//
// Lifecycle: pending → active → {expired, revoked}. Expiry is applied
// lazily by CheckTarget and in bulk by MarkExpired through one shared
// transition.
package integration

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
	"github.com/ppiankov/govtrail/internal/statefile"
)

// Status is the lifecycle state of an integration.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(s)); st {
	case StatusPending, StatusActive, StatusExpired, StatusRevoked:
		return st, nil
	}
	return "", model.Invalid("status", "must be one of pending, active, expired, revoked")
}

// Terminal reports whether s never transitions again.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// Record is one integration allowlist entry.
type Record struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Justification    string     `json:"justification"`
	RequestedTargets []string   `json:"requested_targets"`
	ApprovedTargets  []string   `json:"approved_targets"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiredAt        *time.Time `json:"expired_at,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokeReason     string     `json:"revoke_reason,omitempty"`
	CorrelationID    string     `json:"correlation_id,omitempty"`
}

func (r *Record) clone() *Record {
	c := *r
	c.RequestedTargets = append([]string(nil), r.RequestedTargets...)
	c.ApprovedTargets = append([]string{}, r.ApprovedTargets...)
	return &c
}

// Access is the detailed result of a target check.
type Access struct {
	Authorized bool   `json:"authorized"`
	Found      bool   `json:"found"`
	Status     Status `json:"status,omitempty"`
	Reason     string `json:"reason"`
}

// Registry owns the integration table.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
	path    string

	Now func() time.Time
	// Logger receives persistence failures from transitions that have no
	// error return, such as lazy expiry during a check.
	Logger *log.Logger
}

// NewRegistry creates an in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		Now:     time.Now,
		Logger:  log.New(os.Stderr, "integration: ", log.LstdFlags),
	}
}

// Open creates a registry persisted to path.
func Open(path string) (*Registry, error) {
	r := NewRegistry()
	r.path = path
	if err := statefile.Load(path, &r.records); err != nil {
		return nil, fmt.Errorf("integration: %w", err)
	}
	if r.records == nil {
		r.records = make(map[string]*Record)
	}
	return r, nil
}

// Request creates a pending integration.
func (r *Registry) Request(name, justification string, targets []string) (*Record, error) {
	return r.RequestTraced("", name, justification, targets)
}

// RequestTraced is Request with the trace id of the originating operation
// recorded on the integration, so later transitions can join the same chain.
func (r *Registry) RequestTraced(correlationID, name, justification string, targets []string) (*Record, error) {
	if strings.TrimSpace(name) == "" {
		return nil, model.Invalid("name", "must not be empty")
	}
	if strings.TrimSpace(justification) == "" {
		return nil, model.Invalid("justification", "must not be empty")
	}
	if len(targets) == 0 {
		return nil, model.Invalid("requested_targets", "must be a non-empty list")
	}
	id, err := generateID()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Record{
		ID:               id,
		Name:             name,
		Justification:    justification,
		RequestedTargets: append([]string(nil), targets...),
		ApprovedTargets:  []string{},
		Status:           StatusPending,
		CreatedAt:        r.Now().UTC(),
		CorrelationID:    correlationID,
	}
	r.records[id] = rec
	return rec.clone(), r.save()
}

// Approve activates a pending integration. expiryDays nil means no expiry.
func (r *Registry) Approve(id string, approvedTargets []string, expiryDays *int, approvedBy string) (*Record, error) {
	if strings.TrimSpace(approvedBy) == "" {
		return nil, model.Invalid("approved_by", "must not be empty")
	}
	if approvedTargets == nil {
		return nil, model.Invalid("approved_targets", "must be a list")
	}
	if expiryDays != nil && *expiryDays <= 0 {
		return nil, model.Invalid("expiry_days", "must be a positive integer")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "integration", ID: id}
	}
	if rec.Status != StatusPending {
		return nil, &model.StateError{Kind: "integration", ID: id, From: string(rec.Status), Op: "approve"}
	}
	now := r.Now().UTC()
	rec.ApprovedTargets = append([]string{}, approvedTargets...)
	rec.ApprovedBy = approvedBy
	rec.ApprovedAt = &now
	if expiryDays != nil {
		exp := now.AddDate(0, 0, *expiryDays)
		rec.ExpiresAt = &exp
	}
	rec.Status = StatusActive
	return rec.clone(), r.save()
}

// CheckTarget decides whether target is reachable through integration id.
// An active record past its expiry transitions to expired as a side effect.
func (r *Registry) CheckTarget(id, target string) Access {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Access{Reason: "integration not found"}
	}
	if r.expireIfDue(rec, r.Now().UTC()) {
		r.saveOrWarn(id)
	}
	if rec.Status != StatusActive {
		return Access{Found: true, Status: rec.Status, Reason: fmt.Sprintf("integration is %s", rec.Status)}
	}
	for _, t := range rec.ApprovedTargets {
		if t == target {
			return Access{Authorized: true, Found: true, Status: rec.Status, Reason: "target approved"}
		}
	}
	return Access{Found: true, Status: rec.Status, Reason: "target not in approved list"}
}

// CheckTargetAuthorized is CheckTarget reduced to its verdict.
func (r *Registry) CheckTargetAuthorized(id, target string) bool {
	return r.CheckTarget(id, target).Authorized
}

// MarkExpired transitions every active integration past its expiry and
// returns the number transitioned.
func (r *Registry) MarkExpired() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.Now().UTC()
	n := 0
	for _, rec := range r.records {
		if r.expireIfDue(rec, now) {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, r.save()
}

// expireIfDue is the single expiry transition. Must be called with r.mu held.
func (r *Registry) expireIfDue(rec *Record, now time.Time) bool {
	if rec.Status != StatusActive || rec.ExpiresAt == nil || !now.After(*rec.ExpiresAt) {
		return false
	}
	rec.Status = StatusExpired
	rec.ExpiredAt = &now
	return true
}

// Revoke transitions a non-terminal integration to revoked.
func (r *Registry) Revoke(id, reason string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "integration", ID: id}
	}
	now := r.Now().UTC()
	if r.expireIfDue(rec, now) {
		r.saveOrWarn(id)
	}
	if rec.Status.Terminal() {
		return nil, &model.StateError{Kind: "integration", ID: id, From: string(rec.Status), Op: "revoke"}
	}
	rec.Status = StatusRevoked
	rec.RevokedAt = &now
	rec.RevokeReason = reason
	return rec.clone(), r.save()
}

// Get returns a copy of the record.
func (r *Registry) Get(id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, &model.NotFoundError{Kind: "integration", ID: id}
	}
	return rec.clone(), nil
}

// List returns copies of all records, optionally filtered by status,
// ordered by creation time.
func (r *Registry) List(status Status) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*Record{}
	for _, rec := range r.records {
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// save must be called with r.mu held.
// saveOrWarn persists after a lazy transition and logs a failure.
// Must be called with r.mu held.
func (r *Registry) saveOrWarn(id string) {
	if err := r.save(); err != nil && r.Logger != nil {
		r.Logger.Printf("WARN expire %s: %v", id, err)
	}
}

func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	if err := statefile.Save(r.path, r.records); err != nil {
		return fmt.Errorf("integration: persist: %w", err)
	}
	return nil
}

func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return "int-" + hex.EncodeToString(b), nil
}
