// Package audit defines the typed, integrity-hashed governance events and
// the logs they are appended to.
//
// Every event carries a Header stamped once at construction. The integrity
// hash covers the header identity fields followed by the variant's business
// fields in a fixed order (see HashFields on each variant). Metadata maps are
// never hashed.
package audit

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/govtrail/internal/correlation"
	"github.com/ppiankov/govtrail/internal/integrity"
	"github.com/ppiankov/govtrail/internal/model"
)

// EventType discriminates event variants.
type EventType string

const (
	TypeAuthorizationDecision   EventType = "authorization_decision"
	TypeIntegrationRequest      EventType = "integration_request"
	TypeIntegrationApproval     EventType = "integration_approval"
	TypeIntegrationAccessDenied EventType = "integration_access_denied"
	TypeRevocationRequest       EventType = "revocation_request"
	TypeRevocationPropagated    EventType = "revocation_propagated"
	TypeRevocationAccessDenied  EventType = "revocation_access_denied"
	TypePolicyDecision          EventType = "policy_decision"
	TypeGeneric                 EventType = "audit_event"
)

// Header holds the fields common to every event.
type Header struct {
	ID            string    `json:"id"`
	Type          EventType `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	Outcome       string    `json:"outcome"`
	LatencyMs     int64     `json:"latency_ms"`
	IntegrityHash string    `json:"integrity_hash"`
}

// Meta returns the header itself.
func (h *Header) Meta() *Header { return h }

func (h *Header) baseFields() []string {
	return []string{
		h.ID,
		h.Timestamp.UTC().Format(time.RFC3339Nano),
		h.CorrelationID,
		h.Outcome,
		strconv.FormatInt(h.LatencyMs, 10),
	}
}

// Event is implemented by every variant.
type Event interface {
	Meta() *Header
	// HashFields returns the ordered field list the integrity hash covers.
	HashFields() []string
}

// Step is the workflow step an event represents: the caller-supplied name
// for generic events, the event type otherwise.
func Step(e Event) string {
	if g, ok := e.(*Generic); ok && g.Name != "" {
		return g.Name
	}
	return string(e.Meta().Type)
}

// Now is the clock used to stamp new events.
var Now = func() time.Time { return time.Now().UTC() }

func stamp(h *Header, t EventType, correlationID, outcome string) {
	h.ID = uuid.NewString()
	h.Type = t
	h.Timestamp = Now()
	h.CorrelationID = correlation.OrNew(correlationID)
	h.Outcome = outcome
}

// Seal computes and stores the integrity hash. Constructors call it once;
// it exists separately for callers that stamp a header by hand.
func Seal(e Event) Event {
	e.Meta().IntegrityHash = integrity.Hash(e.HashFields()...)
	return e
}

func joinList(v []string) string { return strings.Join(v, ",") }

// AuthorizationDecision records a tool grant (allow) or removal (deny) for an agent.
// Hash order: base, agent_id, tool_id, effect, reason, classification.
type AuthorizationDecision struct {
	Header
	AgentID        string       `json:"agent_id"`
	ToolID         string       `json:"tool_id"`
	Effect         model.Effect `json:"effect"`
	Reason         string       `json:"reason"`
	Classification string       `json:"classification,omitempty"`
}

func (e *AuthorizationDecision) HashFields() []string {
	return append(e.baseFields(), e.AgentID, e.ToolID, string(e.Effect), e.Reason, e.Classification)
}

// NewAuthorizationDecision constructs a sealed authorization_decision event.
func NewAuthorizationDecision(correlationID, agentID, toolID string, effect model.Effect, reason, classification string) *AuthorizationDecision {
	e := &AuthorizationDecision{AgentID: agentID, ToolID: toolID, Effect: effect, Reason: reason, Classification: classification}
	stamp(&e.Header, TypeAuthorizationDecision, correlationID, string(effect))
	Seal(e)
	return e
}

// IntegrationRequest records a new allowlist request.
// Hash order: base, integration_id, name, justification, targets.
type IntegrationRequest struct {
	Header
	IntegrationID string   `json:"integration_id"`
	Name          string   `json:"name"`
	Justification string   `json:"justification"`
	Targets       []string `json:"targets"`
}

func (e *IntegrationRequest) HashFields() []string {
	return append(e.baseFields(), e.IntegrationID, e.Name, e.Justification, joinList(e.Targets))
}

func NewIntegrationRequest(correlationID, integrationID, name, justification string, targets []string) *IntegrationRequest {
	e := &IntegrationRequest{IntegrationID: integrationID, Name: name, Justification: justification, Targets: append([]string(nil), targets...)}
	stamp(&e.Header, TypeIntegrationRequest, correlationID, "pending")
	Seal(e)
	return e
}

// IntegrationApproval records approval of a pending integration.
// Hash order: base, integration_id, approved_by, approved_targets, expiry_days.
type IntegrationApproval struct {
	Header
	IntegrationID   string   `json:"integration_id"`
	ApprovedBy      string   `json:"approved_by"`
	ApprovedTargets []string `json:"approved_targets"`
	ExpiryDays      *int     `json:"expiry_days,omitempty"`
}

func (e *IntegrationApproval) HashFields() []string {
	expiry := ""
	if e.ExpiryDays != nil {
		expiry = strconv.Itoa(*e.ExpiryDays)
	}
	return append(e.baseFields(), e.IntegrationID, e.ApprovedBy, joinList(e.ApprovedTargets), expiry)
}

func NewIntegrationApproval(correlationID, integrationID, approvedBy string, targets []string, expiryDays *int) *IntegrationApproval {
	e := &IntegrationApproval{IntegrationID: integrationID, ApprovedBy: approvedBy, ApprovedTargets: append([]string(nil), targets...), ExpiryDays: expiryDays}
	stamp(&e.Header, TypeIntegrationApproval, correlationID, "approved")
	Seal(e)
	return e
}

// IntegrationAccessDenied records a target outside an integration's allowlist.
// Hash order: base, integration_id, target, reason.
type IntegrationAccessDenied struct {
	Header
	IntegrationID string `json:"integration_id"`
	Target        string `json:"target"`
	Reason        string `json:"reason"`
}

func (e *IntegrationAccessDenied) HashFields() []string {
	return append(e.baseFields(), e.IntegrationID, e.Target, e.Reason)
}

func NewIntegrationAccessDenied(correlationID, integrationID, target, reason string) *IntegrationAccessDenied {
	e := &IntegrationAccessDenied{IntegrationID: integrationID, Target: target, Reason: reason}
	stamp(&e.Header, TypeIntegrationAccessDenied, correlationID, "denied")
	Seal(e)
	return e
}

// RevocationRequest records the start of an emergency revocation.
// Hash order: base, revocation_id, subject_type, subject_id, scope, reason, initiated_by.
type RevocationRequest struct {
	Header
	RevocationID string `json:"revocation_id"`
	SubjectType  string `json:"subject_type"`
	SubjectID    string `json:"subject_id"`
	Scope        string `json:"scope"`
	Reason       string `json:"reason"`
	InitiatedBy  string `json:"initiated_by"`
}

func (e *RevocationRequest) HashFields() []string {
	return append(e.baseFields(), e.RevocationID, e.SubjectType, e.SubjectID, e.Scope, e.Reason, e.InitiatedBy)
}

func NewRevocationRequest(correlationID, revocationID, subjectType, subjectID, scope, reason, initiatedBy string) *RevocationRequest {
	e := &RevocationRequest{RevocationID: revocationID, SubjectType: subjectType, SubjectID: subjectID, Scope: scope, Reason: reason, InitiatedBy: initiatedBy}
	stamp(&e.Header, TypeRevocationRequest, correlationID, "pending")
	Seal(e)
	return e
}

// RevocationPropagated records completion of a revocation. The header
// latency is the propagation latency.
// Hash order: base, revocation_id, latency_ms, sla_met, sla_target_seconds.
type RevocationPropagated struct {
	Header
	RevocationID     string `json:"revocation_id"`
	SLAMet           bool   `json:"sla_met"`
	SLATargetSeconds int    `json:"sla_target_seconds"`
}

func (e *RevocationPropagated) HashFields() []string {
	return append(e.baseFields(), e.RevocationID, strconv.FormatInt(e.LatencyMs, 10), strconv.FormatBool(e.SLAMet),
		strconv.Itoa(e.SLATargetSeconds))
}

func NewRevocationPropagated(correlationID, revocationID string, latencyMs int64, slaMet bool, slaTargetSeconds int) *RevocationPropagated {
	e := &RevocationPropagated{RevocationID: revocationID, SLAMet: slaMet, SLATargetSeconds: slaTargetSeconds}
	outcome := "sla_met"
	if !slaMet {
		outcome = "sla_breached"
	}
	stamp(&e.Header, TypeRevocationPropagated, correlationID, outcome)
	e.LatencyMs = latencyMs
	Seal(e)
	return e
}

// RevocationAccessDenied records an attempt by a revoked subject.
// Hash order: base, subject_type, subject_id, attempted_action.
type RevocationAccessDenied struct {
	Header
	SubjectType     string `json:"subject_type"`
	SubjectID       string `json:"subject_id"`
	AttemptedAction string `json:"attempted_action"`
}

func (e *RevocationAccessDenied) HashFields() []string {
	return append(e.baseFields(), e.SubjectType, e.SubjectID, e.AttemptedAction)
}

func NewRevocationAccessDenied(correlationID, subjectType, subjectID, attemptedAction string) *RevocationAccessDenied {
	e := &RevocationAccessDenied{SubjectType: subjectType, SubjectID: subjectID, AttemptedAction: attemptedAction}
	stamp(&e.Header, TypeRevocationAccessDenied, correlationID, "denied")
	Seal(e)
	return e
}

// PolicyDecision is one entry of the decision log.
// Hash order: base, subject_type, subject_id, action, resource, effect, policy_reference, reason.
type PolicyDecision struct {
	Header
	SubjectType     string       `json:"subject_type"`
	SubjectID       string       `json:"subject_id"`
	Action          string       `json:"action"`
	Resource        string       `json:"resource"`
	Effect          model.Effect `json:"effect"`
	PolicyReference string       `json:"policy_reference"`
	Reason          string       `json:"reason"`
}

func (e *PolicyDecision) HashFields() []string {
	return append(e.baseFields(), e.SubjectType, e.SubjectID, e.Action, e.Resource, string(e.Effect), e.PolicyReference, e.Reason)
}

func NewPolicyDecision(correlationID, subjectType, subjectID, action, resource string, effect model.Effect, policyRef, reason string) *PolicyDecision {
	e := &PolicyDecision{SubjectType: subjectType, SubjectID: subjectID, Action: action, Resource: resource, Effect: effect, PolicyReference: policyRef, Reason: reason}
	stamp(&e.Header, TypePolicyDecision, correlationID, string(effect))
	Seal(e)
	return e
}

// Generic is a free-form audit_event. Metadata is carried but not hashed.
// Hash order: base, name, principal_id, action, principal_chain.
type Generic struct {
	Header
	Name           string         `json:"name"`
	PrincipalID    string         `json:"principal_id"`
	PrincipalChain []string       `json:"principal_chain,omitempty"`
	Action         string         `json:"action"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (e *Generic) HashFields() []string {
	return append(e.baseFields(), e.Name, e.PrincipalID, e.Action, joinList(e.PrincipalChain))
}

// GenericParams are the caller-supplied fields of a generic event.
type GenericParams struct {
	Name           string
	PrincipalID    string
	PrincipalChain []string
	Action         string
	Outcome        string
	LatencyMs      int64
	Metadata       map[string]any
}

func NewGeneric(correlationID string, p GenericParams) *Generic {
	e := &Generic{
		Name:           p.Name,
		PrincipalID:    p.PrincipalID,
		PrincipalChain: append([]string(nil), p.PrincipalChain...),
		Action:         p.Action,
		Metadata:       p.Metadata,
	}
	if e.PrincipalID == "" && len(e.PrincipalChain) > 0 {
		e.PrincipalID = e.PrincipalChain[0]
	}
	stamp(&e.Header, TypeGeneric, correlationID, p.Outcome)
	e.LatencyMs = p.LatencyMs
	Seal(e)
	return e
}
