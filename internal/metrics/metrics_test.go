package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/ppiankov/govtrail/internal/model"
)

func TestFormatLine(t *testing.T) {
	got := FormatLine("governance.endpoint.errors", 1, UnitCount, map[string]string{"error_type": "StateError", "endpoint": "approve"})
	want := "METRIC: governance.endpoint.errors=1 Count endpoint=approve error_type=StateError"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	if got := FormatLine("x", 0.25, UnitNone, nil); got != "METRIC: x=0.25 None" {
		t.Fatalf("got %q", got)
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf)
	s.Emit("a", 2, UnitCount, nil)
	s.Emit("b", 3, UnitMilliseconds, map[string]string{"k": "v"})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[1] != "METRIC: b=3 Milliseconds k=v" {
		t.Fatalf("lines = %q", lines)
	}
}

func TestMultiAndNop(t *testing.T) {
	var r1, r2 Recorder
	Multi{&r1, Nop{}, &r2}.Emit("x", 1, UnitCount, nil)
	if len(r1.Points()) != 1 || len(r2.Points()) != 1 {
		t.Fatal("multi did not fan out")
	}
}

func TestTrackEndpoint(t *testing.T) {
	var r Recorder
	TrackEndpoint(&r, "approve", time.Now(), nil)
	if len(r.Named(EndpointSuccess)) != 1 || len(r.Named(EndpointLatency)) != 1 {
		t.Fatalf("success path points = %+v", r.Points())
	}

	var r2 Recorder
	err := fmt.Errorf("wrap: %w", &model.StateError{Kind: "integration", ID: "int-1", From: "active", Op: "approve"})
	TrackEndpoint(&r2, "approve", time.Now(), err)
	errs := r2.Named(EndpointErrors)
	if len(errs) != 1 || errs[0].Dims["error_type"] != "StateError" {
		t.Fatalf("error points = %+v", errs)
	}
	if len(r2.Named(EndpointSuccess)) != 0 {
		t.Fatal("success emitted on error")
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{model.Invalid("x", "required"), "ValidationError"},
		{&model.NotFoundError{Kind: "revocation", ID: "r"}, "NotFoundError"},
		{&model.CollaboratorError{Collaborator: "catalog", Err: errors.New("down")}, "CollaboratorError"},
		{errors.New("plain"), "errors.errorString"},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestTrackHelpers(t *testing.T) {
	var r Recorder
	TrackDecision(&r, model.Deny)
	TrackDecision(&r, model.Allow)
	TrackRevocationSLA(&r, 1200, true)
	TrackRiskDistribution(&r, map[model.RiskRating]int{model.RiskHigh: 1, model.RiskLow: 3}, 4)
	TrackConformance(&r, 80, 95)

	if n := len(r.Named(DecisionsDenied)); n != 1 {
		t.Errorf("denied count = %d", n)
	}
	if p := r.Named(RevocationSLACompliance); len(p) != 1 || p[0].Value != 1 {
		t.Errorf("sla compliance = %+v", p)
	}
	if p := r.Named(RiskDistribution); len(p) != 3 {
		t.Errorf("risk distribution points = %d", len(p))
	}
	if p := r.Named(HighRiskRatio); len(p) != 1 || p[0].Value != 0.25 {
		t.Errorf("high risk ratio = %+v", p)
	}
	if p := r.Named(ConformanceThresholdMet); len(p) != 1 || p[0].Value != 0 {
		t.Errorf("threshold compliance = %+v", p)
	}
}

type fakeCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func (f *fakeCloudWatch) datums() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, in := range f.inputs {
		n += len(in.MetricData)
	}
	return n
}

func TestCloudWatchSinkBatchesAndFlushesOnClose(t *testing.T) {
	fake := &fakeCloudWatch{}
	s := NewCloudWatchSink(fake, "", time.Hour, nil)
	for i := 0; i < 25; i++ {
		s.Emit("governance.decisions.count", 1, UnitCount, map[string]string{"effect": "allow"})
	}
	s.Close()

	if got := fake.datums(); got != 25 {
		t.Fatalf("shipped %d datums, want 25", got)
	}
	if len(fake.inputs) != 2 {
		t.Fatalf("expected 2 batches (20 + 5), got %d", len(fake.inputs))
	}
	if aws.ToString(fake.inputs[0].Namespace) != DefaultNamespace {
		t.Fatalf("namespace = %s", aws.ToString(fake.inputs[0].Namespace))
	}
	d := fake.inputs[0].MetricData[0]
	if len(d.Dimensions) != 1 || aws.ToString(d.Dimensions[0].Name) != "effect" {
		t.Fatalf("dimensions = %+v", d.Dimensions)
	}

	// Emit after close is dropped, Close is idempotent.
	s.Emit("late", 1, UnitCount, nil)
	s.Close()
	if got := fake.datums(); got != 25 {
		t.Fatalf("late emit shipped: %d", got)
	}
}

func TestCloudWatchSinkSwallowsErrors(t *testing.T) {
	var logs bytes.Buffer
	fake := &fakeCloudWatch{err: errors.New("AccessDenied")}
	s := NewCloudWatchSink(fake, "ns", time.Hour, logLogger(&logs))
	s.Emit("x", 1, UnitCount, nil)
	s.Close()
	if !strings.Contains(logs.String(), "AccessDenied") {
		t.Fatalf("expected logged error, got %q", logs.String())
	}
}

func logLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(buf, "", 0)
}
