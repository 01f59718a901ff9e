package revocation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(sla int) (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(sla)
	r.Now = clock.Now
	return r, clock
}

func userReq(id string) Request {
	return Request{SubjectType: "user", SubjectID: id, Scope: "user_access", Reason: "offboarded", InitiatedBy: "sec"}
}

func TestCreateValidation(t *testing.T) {
	r, _ := newTestRegistry(300)
	tests := []struct {
		name string
		req  Request
	}{
		{"bad subject type", Request{SubjectType: "robot", SubjectID: "x", Scope: "user_access"}},
		{"bad scope", Request{SubjectType: "user", SubjectID: "x", Scope: "everything"}},
		{"empty subject", Request{SubjectType: "user", Scope: "user_access"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Create(tt.req); !model.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRevokedBeforePropagation(t *testing.T) {
	r, _ := newTestRegistry(300)
	rec, err := r.Create(userReq("bob"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusPending || rec.SLATargetSeconds != 300 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !r.IsRevoked("user", "bob") {
		t.Fatal("subject must be revoked as soon as the request exists")
	}
	if r.IsRevoked("agent", "bob") {
		t.Fatal("subject type must match")
	}
}

func TestMarkPropagatedSLA(t *testing.T) {
	tests := []struct {
		name    string
		sla     int
		elapsed time.Duration
		met     bool
	}{
		{"within target", 300, 90 * time.Second, true},
		{"exactly at target", 300, 300 * time.Second, true},
		{"breached", 300, 301 * time.Second, false},
		{"zero target breached by any latency", 0, time.Millisecond, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, clock := newTestRegistry(tt.sla)
			rec, _ := r.Create(userReq("bob"))
			clock.Advance(tt.elapsed)
			done, err := r.MarkPropagated(rec.ID)
			if err != nil {
				t.Fatal(err)
			}
			if done.Status != StatusComplete {
				t.Fatalf("expected complete, got %s", done.Status)
			}
			if *done.PropagationLatencyMs != tt.elapsed.Milliseconds() {
				t.Fatalf("latency = %d", *done.PropagationLatencyMs)
			}
			if *done.SLAMet != tt.met {
				t.Fatalf("sla_met = %v, want %v", *done.SLAMet, tt.met)
			}
			if !r.IsRevoked("user", "bob") {
				t.Fatal("complete revocation must hold")
			}
		})
	}
}

func TestDoublePropagateRejected(t *testing.T) {
	r, _ := newTestRegistry(300)
	rec, _ := r.Create(userReq("bob"))
	r.MarkPropagated(rec.ID)
	if _, err := r.MarkPropagated(rec.ID); !errors.Is(err, model.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if _, err := r.MarkFailed(rec.ID, "late"); !errors.Is(err, model.ErrIllegalTransition) {
		t.Fatalf("complete revocation must be immutable, got %v", err)
	}
	if _, err := r.MarkPropagated("rev-missing"); !model.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFailedDoesNotHold(t *testing.T) {
	r, _ := newTestRegistry(300)
	rec, _ := r.Create(userReq("bob"))
	failed, err := r.MarkFailed(rec.ID, "gateway unreachable")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Error != "gateway unreachable" {
		t.Fatalf("error not recorded: %+v", failed)
	}
	if r.IsRevoked("user", "bob") {
		t.Fatal("failed revocation must not hold the subject")
	}
	r.Create(userReq("bob"))
	if !r.IsRevoked("user", "bob") {
		t.Fatal("a later pending revocation must hold")
	}
}

func TestSLAMetrics(t *testing.T) {
	r, clock := newTestRegistry(10)
	a, _ := r.Create(userReq("a"))
	b, _ := r.Create(userReq("b"))
	c, _ := r.Create(userReq("c"))
	r.Create(userReq("pending"))
	clock.Advance(5 * time.Second)
	r.MarkPropagated(a.ID)
	clock.Advance(10 * time.Second)
	r.MarkPropagated(b.ID)
	r.MarkFailed(c.ID, "x")

	m := r.SLAMetrics()
	if m.Total != 2 || m.MetCount != 1 || m.BreachedCount != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.ComplianceRate != 50 || m.MinLatencyMs != 5000 || m.MaxLatencyMs != 15000 || m.AvgLatencyMs != 10000 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestSLAMetricsEmpty(t *testing.T) {
	r, _ := newTestRegistry(300)
	if m := r.SLAMetrics(); m.Total != 0 || m.ComplianceRate != 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestListFilters(t *testing.T) {
	r, _ := newTestRegistry(300)
	a, _ := r.Create(userReq("a"))
	r.Create(Request{SubjectType: "integration", SubjectID: "int-1", Scope: "integration_access"})
	r.MarkPropagated(a.ID)

	if got := r.List(StatusComplete, ""); len(got) != 1 {
		t.Fatalf("expected 1 complete, got %d", len(got))
	}
	if got := r.List("", "integration"); len(got) != 1 {
		t.Fatalf("expected 1 integration, got %d", len(got))
	}
	if got := r.List("", ""); len(got) != 2 {
		t.Fatalf("expected 2 total, got %d", len(got))
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revocations.json")
	r, err := Open(path, 300)
	if err != nil {
		t.Fatal(err)
	}
	r.Create(userReq("bob"))

	r2, err := Open(path, 300)
	if err != nil {
		t.Fatal(err)
	}
	if !r2.IsRevoked("user", "bob") {
		t.Fatal("reloaded registry should keep revocation")
	}
}

// registryTarget drives a Registry directly for probe tests.
type registryTarget struct{ r *Registry }

func (t registryTarget) Create(_ context.Context, req Request) (*Record, error) {
	return t.r.Create(req)
}
func (t registryTarget) Propagate(_ context.Context, id string) (*Record, error) {
	return t.r.MarkPropagated(id)
}
func (t registryTarget) IsRevoked(_ context.Context, st, sid, _ string) bool {
	return t.r.IsRevoked(st, sid)
}

func TestProberRun(t *testing.T) {
	p := &Prober{Target: registryTarget{NewRegistry(300)}}
	s := p.Run(context.Background(), 3)
	if s.TotalTests != 3 || s.Passed != 3 || s.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.SLAComplianceRate != 100 {
		t.Fatalf("expected full compliance, got %v", s.SLAComplianceRate)
	}
	for _, r := range s.Results {
		if !r.Passed || !r.AccessBlocked || len(r.SubjectID) != len("synthetic-test-user-")+8 {
			t.Fatalf("unexpected result: %+v", r)
		}
	}
}

func TestProberReportsBreach(t *testing.T) {
	p := &Prober{Target: registryTarget{NewRegistry(0)}, Delay: 5 * time.Millisecond}
	r := p.RunOnce(context.Background())
	if r.Status != "success" || r.SLAMet || r.Passed {
		t.Fatalf("expected blocked but SLA breached, got %+v", r)
	}
}

func TestProberCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Prober{Target: registryTarget{NewRegistry(300)}}
	s := p.Run(ctx, 5)
	if len(s.Results) != 0 {
		t.Fatalf("cancelled context should stop the batch, got %d results", len(s.Results))
	}
}

// raceTransitions runs every op concurrently against one pending revocation
// and returns how many succeeded.
func raceTransitions(t *testing.T, ops []func(r *Registry, id string) error) int {
	t.Helper()
	r := NewRegistry(300)
	rec, err := r.Create(userReq("bob"))
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(ops))
	for _, op := range ops {
		wg.Add(1)
		go func(op func(*Registry, string) error) {
			defer wg.Done()
			errs <- op(r, rec.ID)
		}(op)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, model.ErrIllegalTransition):
			t.Errorf("unexpected error: %v", err)
		}
	}
	return ok
}

func propagateOp(r *Registry, id string) error {
	_, err := r.MarkPropagated(id)
	return err
}

func failOp(r *Registry, id string) error {
	_, err := r.MarkFailed(id, "timeout")
	return err
}

func TestConcurrentMarkPropagatedSucceedsOnce(t *testing.T) {
	ops := make([]func(*Registry, string) error, 50)
	for i := range ops {
		ops[i] = propagateOp
	}
	if ok := raceTransitions(t, ops); ok != 1 {
		t.Fatalf("successful propagations = %d, want 1", ok)
	}
}

func TestConcurrentMarkFailedSucceedsOnce(t *testing.T) {
	ops := make([]func(*Registry, string) error, 50)
	for i := range ops {
		ops[i] = failOp
	}
	if ok := raceTransitions(t, ops); ok != 1 {
		t.Fatalf("successful failures = %d, want 1", ok)
	}
}

func TestConcurrentPropagateAndFailSucceedsOnce(t *testing.T) {
	ops := make([]func(*Registry, string) error, 50)
	for i := range ops {
		if i%2 == 0 {
			ops[i] = propagateOp
		} else {
			ops[i] = failOp
		}
	}
	if ok := raceTransitions(t, ops); ok != 1 {
		t.Fatalf("successful transitions = %d, want 1", ok)
	}
}
