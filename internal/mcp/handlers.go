package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/govtrail/internal/audit"
)

// --- Input/Output types ---

// CheckToolInput defines parameters for the govtrail_check_tool tool.
type CheckToolInput struct {
	AgentID string `json:"agent_id,omitempty" jsonschema:"agent id, defaults to the server's configured agent"`
	ToolID  string `json:"tool_id" jsonschema:"tool id to check"`
	TraceID string `json:"trace_id,omitempty" jsonschema:"correlation id, defaults to the session trace"`
}

// CheckToolOutput contains the authorization decision.
type CheckToolOutput struct {
	Decision       string `json:"decision"`
	Reason         string `json:"reason"`
	Classification string `json:"classification,omitempty"`
	TraceID        string `json:"trace_id"`
	EventID        string `json:"event_id"`
}

// CheckIntegrationInput defines parameters for govtrail_check_integration.
type CheckIntegrationInput struct {
	IntegrationID string `json:"integration_id" jsonschema:"integration id"`
	Target        string `json:"target" jsonschema:"target endpoint the integration wants to reach"`
	TraceID       string `json:"trace_id,omitempty" jsonschema:"correlation id, defaults to the session trace"`
}

// CheckIntegrationOutput contains the target decision.
type CheckIntegrationOutput struct {
	Authorized bool   `json:"authorized"`
	Found      bool   `json:"found"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason"`
	TraceID    string `json:"trace_id"`
}

// CheckRevokedInput defines parameters for govtrail_check_revoked.
type CheckRevokedInput struct {
	SubjectType string `json:"subject_type" jsonschema:"one of user, integration, tool, agent, principal"`
	SubjectID   string `json:"subject_id" jsonschema:"subject id"`
	Action      string `json:"action,omitempty" jsonschema:"attempted action, recorded when the subject is revoked"`
	TraceID     string `json:"trace_id,omitempty" jsonschema:"correlation id, defaults to the session trace"`
}

// CheckRevokedOutput reports the revocation state.
type CheckRevokedOutput struct {
	Revoked bool   `json:"revoked"`
	TraceID string `json:"trace_id"`
}

// ReconstructInput defines parameters for govtrail_reconstruct.
type ReconstructInput struct {
	CorrelationID string `json:"correlation_id,omitempty" jsonschema:"correlation id, defaults to the session trace"`
}

// EventSummary is one event of a reconstructed chain.
type EventSummary struct {
	ID        string `json:"id"`
	Type      string `json:"event_type"`
	Step      string `json:"step"`
	Timestamp string `json:"timestamp"`
	Outcome   string `json:"outcome,omitempty"`
	Valid     bool   `json:"valid"`
}

// ReconstructOutput is the verified chain.
type ReconstructOutput struct {
	CorrelationID     string         `json:"correlation_id"`
	EventCount        int            `json:"event_count"`
	Workflow          string         `json:"workflow,omitempty"`
	Complete          bool           `json:"complete"`
	MissingSteps      []string       `json:"missing_steps"`
	IntegrityFailures []string       `json:"integrity_failures"`
	Events            []EventSummary `json:"events"`
}

// --- Handlers ---

func (s *Server) handleCheckTool(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckToolInput) (*mcpsdk.CallToolResult, CheckToolOutput, error) {
	agentID := input.AgentID
	if agentID == "" {
		agentID = s.agentID
	}
	res, err := s.engine.CheckToolAccess(s.trace(input.TraceID), agentID, input.ToolID)
	if err != nil {
		return nil, CheckToolOutput{}, err
	}
	out := CheckToolOutput{
		Decision:       string(res.Effect),
		Reason:         res.Reason,
		Classification: res.Classification,
		TraceID:        res.CorrelationID,
		EventID:        res.EventID,
	}
	if !res.Authorized {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheckIntegration(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckIntegrationInput) (*mcpsdk.CallToolResult, CheckIntegrationOutput, error) {
	res, err := s.engine.CheckIntegrationAccess(s.trace(input.TraceID), input.IntegrationID, input.Target)
	if err != nil {
		return nil, CheckIntegrationOutput{}, err
	}
	out := CheckIntegrationOutput{
		Authorized: res.Authorized,
		Found:      res.Found,
		Status:     string(res.Status),
		Reason:     res.Reason,
		TraceID:    res.CorrelationID,
	}
	if !res.Authorized {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheckRevoked(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckRevokedInput) (*mcpsdk.CallToolResult, CheckRevokedOutput, error) {
	res, err := s.engine.CheckSubjectRevoked(s.trace(input.TraceID), input.SubjectType, input.SubjectID, input.Action)
	if err != nil {
		return nil, CheckRevokedOutput{}, err
	}
	return nil, CheckRevokedOutput{Revoked: res.Revoked, TraceID: res.CorrelationID}, nil
}

func (s *Server) handleReconstruct(ctx context.Context, req *mcpsdk.CallToolRequest, input ReconstructInput) (*mcpsdk.CallToolResult, ReconstructOutput, error) {
	rec, err := s.engine.Reconstruct(s.trace(input.CorrelationID))
	if err != nil {
		return nil, ReconstructOutput{}, err
	}
	out := ReconstructOutput{
		CorrelationID:     rec.CorrelationID,
		EventCount:        rec.EventCount,
		Workflow:          rec.Workflow,
		Complete:          rec.Complete,
		MissingSteps:      rec.MissingSteps,
		IntegrityFailures: rec.IntegrityFailures,
		Events:            make([]EventSummary, 0, len(rec.Events)),
	}
	for _, ev := range rec.Events {
		h := ev.Meta()
		out.Events = append(out.Events, EventSummary{
			ID:        h.ID,
			Type:      string(h.Type),
			Step:      audit.Step(ev),
			Timestamp: h.Timestamp.UTC().Format(time.RFC3339Nano),
			Outcome:   h.Outcome,
			Valid:     audit.Verify(ev),
		})
	}
	return nil, out, nil
}
