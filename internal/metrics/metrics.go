// Package metrics emits governance telemetry. Sinks are fire-and-forget:
// Emit never returns an error and never panics on delivery failure.
package metrics

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Units understood by every sink.
const (
	UnitCount        = "Count"
	UnitMilliseconds = "Milliseconds"
	UnitNone         = "None"
)

// Sink receives metric data points.
type Sink interface {
	Emit(name string, value float64, unit string, dims map[string]string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Emit(string, float64, string, map[string]string) {}

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) Emit(name string, value float64, unit string, dims map[string]string) {
	for _, s := range m {
		s.Emit(name, value, unit, dims)
	}
}

// WriterSink renders "METRIC: name=value unit k=v ..." lines.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStderr writes metric lines to stderr.
func NewStderr() *WriterSink {
	return NewWriter(os.Stderr)
}

// NewWriter writes metric lines to w.
func NewWriter(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Emit(name string, value float64, unit string, dims map[string]string) {
	line := FormatLine(name, value, unit, dims)
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

// FormatLine renders one data point. Dimensions are sorted by key.
func FormatLine(name string, value float64, unit string, dims map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "METRIC: %s=%g %s", name, value, unit)
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, dims[k])
	}
	return b.String()
}

// Point is one recorded data point.
type Point struct {
	Name  string
	Value float64
	Unit  string
	Dims  map[string]string
}

// Recorder keeps data points in memory.
type Recorder struct {
	mu     sync.Mutex
	points []Point
}

func (r *Recorder) Emit(name string, value float64, unit string, dims map[string]string) {
	cp := make(map[string]string, len(dims))
	for k, v := range dims {
		cp[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, Point{Name: name, Value: value, Unit: unit, Dims: cp})
}

// Points returns a copy of everything recorded.
func (r *Recorder) Points() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Point(nil), r.points...)
}

// Named returns the recorded points called name.
func (r *Recorder) Named(name string) []Point {
	var out []Point
	for _, p := range r.Points() {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}
