package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/govtrail/internal/alert"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/authz"
	"github.com/ppiankov/govtrail/internal/classification"
	"github.com/ppiankov/govtrail/internal/metrics"
	"github.com/ppiankov/govtrail/internal/model"
)

// AgentTools is an agent's current authorized tool set.
type AgentTools struct {
	AgentID         string   `json:"agent_id"`
	AuthorizedTools []string `json:"authorized_tools"`
	TotalCount      int      `json:"total_count"`
}

// AgentTools returns the tools agentID may invoke. Unknown agents have none.
func (e *Engine) AgentTools(agentID string) (*AgentTools, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, model.Invalid("agent_id", "must not be empty")
	}
	tools := e.authz.Tools(agentID)
	return &AgentTools{AgentID: agentID, AuthorizedTools: tools, TotalCount: len(tools)}, nil
}

// AuthorizationHistory returns the differential report for agentID.
func (e *Engine) AuthorizationHistory(agentID string) (authz.Report, error) {
	if strings.TrimSpace(agentID) == "" {
		return authz.Report{}, model.Invalid("agent_id", "must not be empty")
	}
	return e.authz.DifferentialReport(agentID), nil
}

// Agents lists every agent with an authorization record.
func (e *Engine) Agents() []string { return e.authz.Agents() }

// UpdateToolsRequest replaces an agent's tool set.
type UpdateToolsRequest struct {
	AgentID string   `json:"agent_id"`
	Tools   []string `json:"tools"`
	Reason  string   `json:"reason,omitempty"`
	// Approvals carries approval records for SENSITIVE tools, keyed by tool id.
	Approvals map[string]*classification.ApprovalRecord `json:"approval_records,omitempty"`
	// SkipClassification disables classification enforcement.
	SkipClassification bool `json:"skip_classification,omitempty"`
}

// ToolViolation is one tool rejected by classification enforcement.
type ToolViolation struct {
	ToolID string `json:"tool_id"`
	Reason string `json:"reason"`
}

// ClassificationError rejects an update before any state changes.
// It unwraps to a ValidationError.
type ClassificationError struct {
	AgentID    string
	Violations []ToolViolation
}

func (e *ClassificationError) Error() string {
	ids := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		ids[i] = v.ToolID
	}
	return fmt.Sprintf("authorization update for %s failed due to classification violations: %s",
		e.AgentID, strings.Join(ids, ", "))
}

func (e *ClassificationError) Unwrap() error {
	return model.Invalid("tools", "SENSITIVE tools require an approval record")
}

// ToolsUpdate is the result of UpdateAgentTools.
type ToolsUpdate struct {
	AgentID         string             `json:"agent_id"`
	AuthorizedTools []string           `json:"authorized_tools"`
	TotalCount      int                `json:"total_count"`
	Changes         authz.ChangeRecord `json:"changes"`
	Events          []audit.Event      `json:"audit_events"`
	CorrelationID   string             `json:"correlation_id"`
	Message         string             `json:"message"`
}

// UpdateAgentTools enforces tool classification, replaces the tool set and
// records one allow event per added tool and one deny event per removed tool.
func (e *Engine) UpdateAgentTools(correlationID string, req UpdateToolsRequest) (_ *ToolsUpdate, err error) {
	defer e.track("update_agent_tools", time.Now(), &err)
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, model.Invalid("agent_id", "must not be empty")
	}
	reg := e.classification.Registry()
	if !req.SkipClassification {
		var violations []ToolViolation
		for _, tool := range req.Tools {
			if ok, reason := reg.ValidateAuthorization(tool, req.Approvals[tool]); !ok {
				violations = append(violations, ToolViolation{ToolID: tool, Reason: reason})
			}
		}
		if len(violations) > 0 {
			return nil, &ClassificationError{AgentID: req.AgentID, Violations: violations}
		}
	}

	change, err := e.authz.SetTools(req.AgentID, req.Tools, req.Reason)
	if err = e.committed("authz", err); err != nil {
		return nil, err
	}

	correlationID = trace(correlationID)
	out := &ToolsUpdate{
		AgentID:       req.AgentID,
		Changes:       change,
		Events:        []audit.Event{},
		CorrelationID: correlationID,
		Message:       fmt.Sprintf("Authorization updated: +%d -%d", len(change.Added), len(change.Removed)),
	}
	for _, tool := range change.Added {
		reason := strings.TrimSpace("Tool added to authorized list. " + req.Reason)
		ev := audit.NewAuthorizationDecision(correlationID, req.AgentID, tool, model.Allow, reason, toolClass(reg, tool))
		out.Events = append(out.Events, e.record(ev))
		metrics.TrackDecision(e.metrics, model.Allow)
	}
	for _, tool := range change.Removed {
		reason := strings.TrimSpace("Tool removed from authorized list. " + req.Reason)
		ev := audit.NewAuthorizationDecision(correlationID, req.AgentID, tool, model.Deny, reason, toolClass(reg, tool))
		out.Events = append(out.Events, e.record(ev))
		metrics.TrackDecision(e.metrics, model.Deny)
	}
	out.AuthorizedTools = e.authz.Tools(req.AgentID)
	out.TotalCount = len(out.AuthorizedTools)
	return out, nil
}

// ToolAccess is the decision for one agent/tool pair.
type ToolAccess struct {
	AgentID        string       `json:"agent_id"`
	ToolID         string       `json:"tool_id"`
	Effect         model.Effect `json:"effect"`
	Authorized     bool         `json:"authorized"`
	Reason         string       `json:"reason"`
	Classification string       `json:"classification,omitempty"`
	CorrelationID  string       `json:"correlation_id"`
	EventID        string       `json:"event_id"`
}

// CheckToolAccess decides whether agentID may invoke toolID and records
// the decision. Denials raise an access_denied alert.
func (e *Engine) CheckToolAccess(correlationID, agentID, toolID string) (_ *ToolAccess, err error) {
	defer e.track("check_tool_access", time.Now(), &err)
	if strings.TrimSpace(agentID) == "" {
		return nil, model.Invalid("agent_id", "must not be empty")
	}
	if strings.TrimSpace(toolID) == "" {
		return nil, model.Invalid("tool_id", "must not be empty")
	}
	correlationID = trace(correlationID)
	res := &ToolAccess{
		AgentID:        agentID,
		ToolID:         toolID,
		Authorized:     e.authz.Authorized(agentID, toolID),
		Classification: toolClass(e.classification.Registry(), toolID),
		CorrelationID:  correlationID,
	}
	if res.Authorized {
		res.Effect = model.Allow
		res.Reason = fmt.Sprintf("Tool '%s' is in authorized list for agent '%s'", toolID, agentID)
	} else {
		res.Effect = model.Deny
		res.Reason = fmt.Sprintf("Tool '%s' is NOT in authorized list for agent '%s'", toolID, agentID)
	}
	ev := e.record(audit.NewAuthorizationDecision(correlationID, agentID, toolID, res.Effect, res.Reason, res.Classification))
	res.EventID = ev.Meta().ID
	metrics.TrackDecision(e.metrics, res.Effect)

	if !res.Authorized {
		a := alert.NewEvent(alert.TypeAccessDenied, alert.SeverityWarning, correlationID, res.Reason)
		a.SubjectType = "agent"
		a.SubjectID = agentID
		a.Details = map[string]string{"tool_id": toolID}
		if res.Classification != "" {
			a.Details["classification"] = res.Classification
		}
		e.alert(a)
	}
	return res, nil
}

func toolClass(reg *classification.Registry, toolID string) string {
	if t, ok := reg.Get(toolID); ok {
		return string(t.Classification)
	}
	return ""
}
