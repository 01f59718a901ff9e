package engine

import (
	"strings"
	"time"

	"github.com/ppiankov/govtrail/internal/alert"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/integration"
	"github.com/ppiankov/govtrail/internal/model"
)

// IntegrationRequest is the input to RequestIntegration.
type IntegrationRequest struct {
	Name             string   `json:"name"`
	Justification    string   `json:"justification"`
	RequestedTargets []string `json:"requested_targets"`
}

// IntegrationApproval is the input to ApproveIntegration. A nil
// ExpiryDays applies the configured default (none when that is zero).
type IntegrationApproval struct {
	ApprovedTargets []string `json:"approved_targets"`
	ExpiryDays      *int     `json:"expiry_days,omitempty"`
	ApprovedBy      string   `json:"approved_by"`
}

// IntegrationResult wraps a record with the trace that changed it.
type IntegrationResult struct {
	Integration   *integration.Record `json:"integration"`
	CorrelationID string              `json:"correlation_id"`
	EventID       string              `json:"event_id,omitempty"`
}

// RequestIntegration creates a pending integration.
func (e *Engine) RequestIntegration(correlationID string, req IntegrationRequest) (_ *IntegrationResult, err error) {
	defer e.track("request_integration", time.Now(), &err)
	correlationID = trace(correlationID)
	rec, err := e.integrations.RequestTraced(correlationID, req.Name, req.Justification, req.RequestedTargets)
	if err = e.committed("integration", err); err != nil {
		return nil, err
	}
	ev := e.record(audit.NewIntegrationRequest(correlationID, rec.ID, rec.Name, rec.Justification, rec.RequestedTargets))
	return &IntegrationResult{Integration: rec, CorrelationID: correlationID, EventID: ev.Meta().ID}, nil
}

// ApproveIntegration activates a pending integration. Without an explicit
// correlation id the approval joins the trace of the original request.
func (e *Engine) ApproveIntegration(correlationID, id string, req IntegrationApproval) (_ *IntegrationResult, err error) {
	defer e.track("approve_integration", time.Now(), &err)
	expiry := req.ExpiryDays
	if expiry == nil && e.defaultExpiryDays > 0 {
		d := e.defaultExpiryDays
		expiry = &d
	}
	rec, err := e.integrations.Approve(id, req.ApprovedTargets, expiry, req.ApprovedBy)
	if err = e.committed("integration", err); err != nil {
		return nil, err
	}
	correlationID = trace(firstNonEmpty(correlationID, rec.CorrelationID))
	ev := e.record(audit.NewIntegrationApproval(correlationID, rec.ID, rec.ApprovedBy, rec.ApprovedTargets, expiry))
	return &IntegrationResult{Integration: rec, CorrelationID: correlationID, EventID: ev.Meta().ID}, nil
}

// IntegrationAccess is the decision for one integration/target pair.
type IntegrationAccess struct {
	integration.Access
	IntegrationID string `json:"integration_id"`
	Target        string `json:"target"`
	CorrelationID string `json:"correlation_id"`
	EventID       string `json:"event_id,omitempty"`
}

// CheckIntegrationAccess decides whether target is reachable through the
// integration. A denial against an existing integration is recorded as an
// integration_access_denied event; an unknown id only returns false.
func (e *Engine) CheckIntegrationAccess(correlationID, id, target string) (_ *IntegrationAccess, err error) {
	defer e.track("check_integration_access", time.Now(), &err)
	if strings.TrimSpace(id) == "" {
		return nil, model.Invalid("integration_id", "must not be empty")
	}
	if target == "" {
		return nil, model.Invalid("target", "must not be empty")
	}
	correlationID = trace(correlationID)
	res := &IntegrationAccess{
		Access:        e.integrations.CheckTarget(id, target),
		IntegrationID: id,
		Target:        target,
		CorrelationID: correlationID,
	}
	if res.Authorized || !res.Found {
		return res, nil
	}
	ev := e.record(audit.NewIntegrationAccessDenied(correlationID, id, target, res.Reason))
	res.EventID = ev.Meta().ID
	a := alert.NewEvent(alert.TypeAccessDenied, alert.SeverityWarning, correlationID,
		"integration access denied: "+res.Reason)
	a.SubjectType = "integration"
	a.SubjectID = id
	a.Details = map[string]string{"target": target, "status": string(res.Status)}
	e.alert(a)
	return res, nil
}

// RevokeIntegration transitions a non-terminal integration to revoked.
func (e *Engine) RevokeIntegration(correlationID, id, reason string) (_ *IntegrationResult, err error) {
	defer e.track("revoke_integration", time.Now(), &err)
	rec, err := e.integrations.Revoke(id, reason)
	if err = e.committed("integration", err); err != nil {
		return nil, err
	}
	correlationID = trace(firstNonEmpty(correlationID, rec.CorrelationID))
	ev := e.record(audit.NewGeneric(correlationID, audit.GenericParams{
		Name:        "integration_revoked",
		PrincipalID: rec.ID,
		Action:      "revoke",
		Outcome:     string(rec.Status),
		Metadata:    map[string]any{"reason": reason, "name": rec.Name},
	}))
	return &IntegrationResult{Integration: rec, CorrelationID: correlationID, EventID: ev.Meta().ID}, nil
}

// ExpirySweep is the result of ExpireIntegrations.
type ExpirySweep struct {
	Expired       int    `json:"expired"`
	CorrelationID string `json:"correlation_id"`
}

// ExpireIntegrations transitions every active integration past its
// expiry. Running it twice expires nothing the second time.
func (e *Engine) ExpireIntegrations(correlationID string) (_ *ExpirySweep, err error) {
	defer e.track("expire_integrations", time.Now(), &err)
	n, err := e.integrations.MarkExpired()
	if err = e.committed("integration", err); err != nil {
		return nil, err
	}
	correlationID = trace(correlationID)
	if n > 0 {
		e.record(audit.NewGeneric(correlationID, audit.GenericParams{
			Name:     "integration_expiry_sweep",
			Action:   "expire",
			Outcome:  "success",
			Metadata: map[string]any{"expired": n},
		}))
	}
	return &ExpirySweep{Expired: n, CorrelationID: correlationID}, nil
}

// Integration returns one integration.
func (e *Engine) Integration(id string) (*integration.Record, error) {
	return e.integrations.Get(id)
}

// Integrations lists integrations, optionally filtered by status.
func (e *Engine) Integrations(status string) ([]*integration.Record, error) {
	var st integration.Status
	if status != "" {
		var err error
		if st, err = integration.ParseStatus(status); err != nil {
			return nil, err
		}
	}
	return e.integrations.List(st), nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
