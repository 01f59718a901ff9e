package metrics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
)

// Metric names.
const (
	EndpointInvocations     = "governance.endpoint.invocations"
	EndpointSuccess         = "governance.endpoint.success"
	EndpointErrors          = "governance.endpoint.errors"
	EndpointLatency         = "governance.endpoint.latency"
	DecisionsCount          = "governance.decisions.count"
	DecisionsDenied         = "governance.decisions.denied"
	RevocationSLAMs         = "governance.revocations.sla_ms"
	RevocationSLACompliance = "governance.revocations.sla_compliance"
	RiskDistribution        = "governance.principals.risk_distribution"
	HighRiskRatio           = "governance.principals.high_risk_ratio"
	ConformanceScore        = "governance.conformance.score"
	ConformanceThresholdMet = "governance.conformance.threshold_compliance"
	IntegrityFailures       = "governance.integrity.failures"
)

// TrackEndpoint records one invocation of endpoint that started at start
// and finished with err.
func TrackEndpoint(s Sink, endpoint string, start time.Time, err error) {
	dims := map[string]string{"endpoint": endpoint}
	s.Emit(EndpointInvocations, 1, UnitCount, dims)
	if err != nil {
		s.Emit(EndpointErrors, 1, UnitCount, map[string]string{"endpoint": endpoint, "error_type": ErrorType(err)})
		return
	}
	s.Emit(EndpointSuccess, 1, UnitCount, dims)
	s.Emit(EndpointLatency, float64(time.Since(start).Microseconds())/1000, UnitMilliseconds, dims)
}

// ErrorType names the taxonomy class of err.
func ErrorType(err error) string {
	var (
		v  *model.ValidationError
		nf *model.NotFoundError
		st *model.StateError
		co *model.CollaboratorError
	)
	switch {
	case errors.As(err, &v):
		return "ValidationError"
	case errors.As(err, &nf):
		return "NotFoundError"
	case errors.As(err, &st):
		return "StateError"
	case errors.As(err, &co):
		return "CollaboratorError"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// TrackDecision counts a policy decision by effect.
func TrackDecision(s Sink, effect model.Effect) {
	s.Emit(DecisionsCount, 1, UnitCount, map[string]string{"effect": string(effect)})
	if effect == model.Deny {
		s.Emit(DecisionsDenied, 1, UnitCount, nil)
	}
}

// TrackRevocationSLA records a completed propagation.
func TrackRevocationSLA(s Sink, latencyMs int64, met bool) {
	s.Emit(RevocationSLAMs, float64(latencyMs), UnitMilliseconds, nil)
	v := 0.0
	if met {
		v = 1
	}
	s.Emit(RevocationSLACompliance, v, UnitCount, nil)
}

// TrackRiskDistribution emits one point per rating plus the HIGH ratio.
func TrackRiskDistribution(s Sink, dist map[model.RiskRating]int, total int) {
	for _, r := range []model.RiskRating{model.RiskLow, model.RiskModerate, model.RiskHigh} {
		s.Emit(RiskDistribution, float64(dist[r]), UnitCount, map[string]string{"risk_rating": string(r)})
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(dist[model.RiskHigh]) / float64(total)
	}
	s.Emit(HighRiskRatio, ratio, UnitNone, nil)
}

// TrackConformance records the conformance score and whether it meets threshold.
func TrackConformance(s Sink, score, threshold float64) {
	s.Emit(ConformanceScore, score, UnitNone, nil)
	met := 0.0
	if score >= threshold {
		met = 1
	}
	s.Emit(ConformanceThresholdMet, met, UnitCount, nil)
}

// TrackIntegrity counts tampered events found during verification.
func TrackIntegrity(s Sink, tampered int) {
	s.Emit(IntegrityFailures, float64(tampered), UnitCount, nil)
}
