package engine

import (
	"time"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/decision"
	"github.com/ppiankov/govtrail/internal/metrics"
)

// RecordDecision appends a policy decision to the decision log and the
// audit log.
func (e *Engine) RecordDecision(correlationID string, in decision.Input) (_ *audit.PolicyDecision, err error) {
	defer e.track("record_decision", time.Now(), &err)
	in.CorrelationID = trace(firstNonEmpty(correlationID, in.CorrelationID))
	in.Reason = e.redact.Text(in.Reason)
	d, err := e.decisions.Record(in)
	if err != nil {
		return nil, err
	}
	e.record(d)
	metrics.TrackDecision(e.metrics, d.Effect)
	return d, nil
}

// ListDecisions queries the decision log.
func (e *Engine) ListDecisions(f decision.Filter) (_ *decision.Result, err error) {
	defer e.track("list_decisions", time.Now(), &err)
	return e.decisions.List(f)
}

// RecordEvent appends a caller-described generic audit event.
func (e *Engine) RecordEvent(correlationID string, p audit.GenericParams) *audit.Generic {
	if p.Name == "" {
		p.Name = string(audit.TypeGeneric)
	}
	p.Metadata = e.redact.Map(p.Metadata)
	ev := audit.NewGeneric(trace(correlationID), p)
	e.record(ev)
	return ev
}
