package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProbeTarget is the request-level surface a synthetic probe drives. The
// engine implements it so probes emit the same audit trail as real traffic.
type ProbeTarget interface {
	Create(ctx context.Context, req Request) (*Record, error)
	Propagate(ctx context.Context, id string) (*Record, error)
	IsRevoked(ctx context.Context, subjectType, subjectID, attemptedAction string) bool
}

// ProbeResult is the outcome of one synthetic run.
type ProbeResult struct {
	TestID          string    `json:"test_id"`
	RevocationID    string    `json:"revocation_id,omitempty"`
	SubjectType     string    `json:"subject_type"`
	SubjectID       string    `json:"subject_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	LatencyMs       int64     `json:"latency_ms"`
	SLAMet          bool      `json:"sla_met"`
	AccessBlocked   bool      `json:"access_blocked"`
	Passed          bool      `json:"test_passed"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
}

// ProbeSummary aggregates a batch of runs.
type ProbeSummary struct {
	TotalTests        int           `json:"total_tests"`
	Passed            int           `json:"passed"`
	Failed            int           `json:"failed"`
	SLAComplianceRate float64       `json:"sla_compliance_rate"`
	AvgLatencyMs      int64         `json:"avg_latency_ms"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	Results           []ProbeResult `json:"individual_results"`
}

// Prober runs synthetic create → propagate → check cycles.
type Prober struct {
	Target ProbeTarget
	// Delay simulates propagation work between create and propagate.
	Delay time.Duration
	// Pause separates consecutive runs.
	Pause time.Duration
}

// NewProber returns a prober with the default 100ms delay and 500ms pause.
func NewProber(target ProbeTarget) *Prober {
	return &Prober{Target: target, Delay: 100 * time.Millisecond, Pause: 500 * time.Millisecond}
}

// RunOnce executes a single synthetic revocation.
func (p *Prober) RunOnce(ctx context.Context) ProbeResult {
	testID := uuid.NewString()
	res := ProbeResult{
		TestID:      testID,
		SubjectType: "user",
		SubjectID:   "synthetic-test-user-" + testID[:8],
		StartTime:   time.Now().UTC(),
	}
	fail := func(err error) ProbeResult {
		res.Status = "error"
		res.Error = err.Error()
		res.EndTime = time.Now().UTC()
		res.TotalDurationMs = res.EndTime.Sub(res.StartTime).Milliseconds()
		return res
	}

	rec, err := p.Target.Create(ctx, Request{
		SubjectType: res.SubjectType,
		SubjectID:   res.SubjectID,
		Scope:       "user_access",
		Reason:      "Synthetic test " + testID,
		InitiatedBy: "synthetic-test-scheduler",
	})
	if err != nil {
		return fail(fmt.Errorf("create: %w", err))
	}
	res.RevocationID = rec.ID

	if err := sleep(ctx, p.Delay); err != nil {
		return fail(err)
	}

	done, err := p.Target.Propagate(ctx, rec.ID)
	if err != nil {
		return fail(fmt.Errorf("propagate: %w", err))
	}
	if done.PropagationLatencyMs != nil {
		res.LatencyMs = *done.PropagationLatencyMs
	}
	res.SLAMet = done.SLAMet != nil && *done.SLAMet

	res.AccessBlocked = p.Target.IsRevoked(ctx, res.SubjectType, res.SubjectID, "test_action")
	res.EndTime = time.Now().UTC()
	res.TotalDurationMs = res.EndTime.Sub(res.StartTime).Milliseconds()
	res.Passed = res.AccessBlocked && res.SLAMet
	res.Status = "failed"
	if res.AccessBlocked {
		res.Status = "success"
	}
	return res
}

// Run executes count runs. Cancelling ctx stops the batch early; the
// summary covers the runs that finished.
func (p *Prober) Run(ctx context.Context, count int) ProbeSummary {
	s := ProbeSummary{TotalTests: count, StartTime: time.Now().UTC(), Results: []ProbeResult{}}
	var latencySum int64
	slaMet := 0
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		r := p.RunOnce(ctx)
		s.Results = append(s.Results, r)
		if r.Status == "success" {
			s.Passed++
			latencySum += r.LatencyMs
			if r.SLAMet {
				slaMet++
			}
		} else {
			s.Failed++
		}
		if i < count-1 {
			if err := sleep(ctx, p.Pause); err != nil {
				break
			}
		}
	}
	if s.Passed > 0 {
		s.SLAComplianceRate = float64(slaMet) / float64(s.Passed) * 100
		s.AvgLatencyMs = latencySum / int64(s.Passed)
	}
	s.EndTime = time.Now().UTC()
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
