package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/govtrail/internal/alert"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/chain"
	"github.com/ppiankov/govtrail/internal/evidence"
	"github.com/ppiankov/govtrail/internal/metrics"
)

// EvidencePack builds a point-in-time evidence pack. Collaborator failures
// appear in the pack's degradations.
func (e *Engine) EvidencePack(ctx context.Context, p evidence.Params) (_ *evidence.Pack, err error) {
	defer e.track("evidence_pack", time.Now(), &err)
	return e.evidence.Build(ctx, p)
}

// Reconstruct returns the ordered, verified chain for correlationID.
// Tampered events raise an integrity_failure alert.
func (e *Engine) Reconstruct(correlationID string) (_ *chain.Reconstruction, err error) {
	defer e.track("reconstruct", time.Now(), &err)
	rec, err := e.chains.Reconstruct(correlationID)
	if err != nil {
		return nil, err
	}
	for _, s := range rec.SourceErrors {
		e.logger.Printf("WARN reconstruct %s: %s", correlationID, s)
	}
	metrics.TrackIntegrity(e.metrics, len(rec.IntegrityFailures))
	if n := len(rec.IntegrityFailures); n > 0 {
		e.integrityAlert(correlationID, n, rec.IntegrityFailures)
	}
	return rec, nil
}

// ValidateIntegrity verifies a caller-supplied batch of events.
func (e *Engine) ValidateIntegrity(events []audit.Event) audit.IntegrityReport {
	r := audit.ValidateIntegrity(events)
	metrics.TrackIntegrity(e.metrics, r.Tampered)
	if r.Tampered > 0 {
		var ids []string
		for _, res := range r.Results {
			if res.Status == audit.StatusTampered {
				ids = append(ids, res.EventID)
			}
		}
		e.integrityAlert("", r.Tampered, ids)
	}
	return r
}

func (e *Engine) integrityAlert(correlationID string, n int, ids []string) {
	a := alert.NewEvent(alert.TypeIntegrityFailure, alert.SeverityCritical, correlationID,
		fmt.Sprintf("%d audit event(s) failed integrity verification", n))
	a.Details = map[string]string{"event_ids": strings.Join(ids, ",")}
	e.alert(a)
}
