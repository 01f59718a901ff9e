package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ppiankov/govtrail/internal/alert"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/metrics"
	"github.com/ppiankov/govtrail/internal/model"
	"github.com/ppiankov/govtrail/internal/revocation"
)

// RevocationResult wraps a record with the trace that changed it.
type RevocationResult struct {
	Revocation    *revocation.Record `json:"revocation"`
	CorrelationID string             `json:"correlation_id"`
	EventID       string             `json:"event_id,omitempty"`
}

// CreateRevocation records a pending revocation. The subject is revoked
// from this moment.
func (e *Engine) CreateRevocation(correlationID string, req revocation.Request) (_ *RevocationResult, err error) {
	defer e.track("create_revocation", time.Now(), &err)
	correlationID = trace(correlationID)
	req.CorrelationID = correlationID
	rec, err := e.revocations.Create(req)
	if err = e.committed("revocation", err); err != nil {
		return nil, err
	}
	ev := e.record(audit.NewRevocationRequest(correlationID, rec.ID, rec.SubjectType, rec.SubjectID,
		rec.Scope, rec.Reason, rec.InitiatedBy))
	return &RevocationResult{Revocation: rec, CorrelationID: correlationID, EventID: ev.Meta().ID}, nil
}

// PropagateRevocation completes a pending revocation and evaluates its
// SLA. A breach raises an sla_breach alert.
func (e *Engine) PropagateRevocation(correlationID, id string) (_ *RevocationResult, err error) {
	defer e.track("propagate_revocation", time.Now(), &err)
	rec, err := e.revocations.MarkPropagated(id)
	if err = e.committed("revocation", err); err != nil {
		return nil, err
	}
	correlationID = trace(firstNonEmpty(correlationID, rec.CorrelationID))
	latency := *rec.PropagationLatencyMs
	met := *rec.SLAMet
	ev := e.record(audit.NewRevocationPropagated(correlationID, rec.ID, latency, met, rec.SLATargetSeconds))
	metrics.TrackRevocationSLA(e.metrics, latency, met)

	if !met {
		a := alert.NewEvent(alert.TypeSLABreach, alert.SeverityError, correlationID,
			fmt.Sprintf("revocation %s propagated in %dms, SLA target %ds", rec.ID, latency, rec.SLATargetSeconds))
		a.SubjectType = rec.SubjectType
		a.SubjectID = rec.SubjectID
		a.Details = map[string]string{
			"revocation_id":      rec.ID,
			"latency_ms":         strconv.FormatInt(latency, 10),
			"sla_target_seconds": strconv.Itoa(rec.SLATargetSeconds),
		}
		e.alert(a)
	}
	return &RevocationResult{Revocation: rec, CorrelationID: correlationID, EventID: ev.Meta().ID}, nil
}

// FailRevocation records that a pending revocation did not take effect.
// The subject is no longer held and a revocation_failed alert is raised.
func (e *Engine) FailRevocation(correlationID, id, errMsg string) (_ *RevocationResult, err error) {
	defer e.track("fail_revocation", time.Now(), &err)
	errMsg = e.redact.Text(errMsg)
	rec, err := e.revocations.MarkFailed(id, errMsg)
	if err = e.committed("revocation", err); err != nil {
		return nil, err
	}
	correlationID = trace(firstNonEmpty(correlationID, rec.CorrelationID))
	ev := e.record(audit.NewGeneric(correlationID, audit.GenericParams{
		Name:        "revocation_failed",
		PrincipalID: rec.SubjectID,
		Action:      rec.Scope,
		Outcome:     string(rec.Status),
		Metadata:    map[string]any{"revocation_id": rec.ID, "error": errMsg},
	}))

	a := alert.NewEvent(alert.TypeRevocationFailed, alert.SeverityCritical, correlationID,
		fmt.Sprintf("revocation %s failed: %s", rec.ID, errMsg))
	a.SubjectType = rec.SubjectType
	a.SubjectID = rec.SubjectID
	a.Details = map[string]string{"revocation_id": rec.ID}
	e.alert(a)
	return &RevocationResult{Revocation: rec, CorrelationID: correlationID, EventID: ev.Meta().ID}, nil
}

// RevokedCheck is the result of CheckSubjectRevoked.
type RevokedCheck struct {
	SubjectType   string `json:"subject_type"`
	SubjectID     string `json:"subject_id"`
	Revoked       bool   `json:"revoked"`
	CorrelationID string `json:"correlation_id"`
	EventID       string `json:"event_id,omitempty"`
}

// CheckSubjectRevoked reports whether the subject is held by a pending or
// complete revocation. When attemptedAction is set and the subject is
// revoked, the denied attempt is recorded.
func (e *Engine) CheckSubjectRevoked(correlationID, subjectType, subjectID, attemptedAction string) (_ *RevokedCheck, err error) {
	defer e.track("check_subject_revoked", time.Now(), &err)
	if !revocation.ValidSubjectType(subjectType) {
		return nil, model.Invalid("subject_type", "must be one of user, integration, tool, agent, principal")
	}
	if subjectID == "" {
		return nil, model.Invalid("subject_id", "must not be empty")
	}
	correlationID = trace(correlationID)
	res := &RevokedCheck{
		SubjectType:   subjectType,
		SubjectID:     subjectID,
		Revoked:       e.revocations.IsRevoked(subjectType, subjectID),
		CorrelationID: correlationID,
	}
	if res.Revoked && attemptedAction != "" {
		ev := e.record(audit.NewRevocationAccessDenied(correlationID, subjectType, subjectID, attemptedAction))
		res.EventID = ev.Meta().ID
		e.logger.Printf("WARN revocation access denied: %s %s attempted %s (event %s)",
			subjectType, subjectID, attemptedAction, res.EventID)
	}
	return res, nil
}

// Revocation returns one revocation.
func (e *Engine) Revocation(id string) (*revocation.Record, error) {
	return e.revocations.Get(id)
}

// Revocations lists revocations filtered by status and subject type.
func (e *Engine) Revocations(status, subjectType string) ([]*revocation.Record, error) {
	var st revocation.Status
	if status != "" {
		var err error
		if st, err = revocation.ParseStatus(status); err != nil {
			return nil, err
		}
	}
	if subjectType != "" && !revocation.ValidSubjectType(subjectType) {
		return nil, model.Invalid("subject_type", "must be one of user, integration, tool, agent, principal")
	}
	return e.revocations.List(st, subjectType), nil
}

// SLAMetrics aggregates propagation latency over complete revocations.
func (e *Engine) SLAMetrics() revocation.SLAMetrics {
	return e.revocations.SLAMetrics()
}

// Probe runs count synthetic revocations through the engine.
func (e *Engine) Probe(ctx context.Context, count int, delay, pause time.Duration) (revocation.ProbeSummary, error) {
	if count < 1 {
		return revocation.ProbeSummary{}, model.Invalid("count", "must be >= 1")
	}
	p := revocation.NewProber(probeTarget{e})
	if delay >= 0 {
		p.Delay = delay
	}
	if pause >= 0 {
		p.Pause = pause
	}
	return p.Run(ctx, count), nil
}

// probeTarget drives synthetic probes through the engine so they leave
// the same audit trail as real revocations.
type probeTarget struct{ e *Engine }

func (t probeTarget) Create(_ context.Context, req revocation.Request) (*revocation.Record, error) {
	res, err := t.e.CreateRevocation("", req)
	if err != nil {
		return nil, err
	}
	return res.Revocation, nil
}

func (t probeTarget) Propagate(_ context.Context, id string) (*revocation.Record, error) {
	res, err := t.e.PropagateRevocation("", id)
	if err != nil {
		return nil, err
	}
	return res.Revocation, nil
}

func (t probeTarget) IsRevoked(_ context.Context, subjectType, subjectID, attemptedAction string) bool {
	res, err := t.e.CheckSubjectRevoked("", subjectType, subjectID, attemptedAction)
	return err == nil && res.Revoked
}
