package chain

import (
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/integrity"
	"github.com/ppiankov/govtrail/internal/model"
)

// Reconstruction is the ordered, verified trail of one correlation id.
type Reconstruction struct {
	CorrelationID     string        `json:"correlation_id"`
	Events            []audit.Event `json:"events"`
	EventCount        int           `json:"event_count"`
	Workflow          string        `json:"workflow,omitempty"`
	LatencyMs         int64         `json:"latency_ms"`
	IntegrityFailures []string      `json:"integrity_failures"`
	MissingEvents     int           `json:"missing_events"`
	MissingSteps      []string      `json:"missing_steps"`
	Alerts            []string      `json:"alerts"`
	Complete          bool          `json:"complete"`
	SourceErrors      []string      `json:"source_errors,omitempty"`
}

// Reconstructor reads events from every registered source.
type Reconstructor struct {
	sources   []audit.Source
	workflows []Workflow
}

// New returns a Reconstructor over sources using DefaultWorkflows.
func New(sources ...audit.Source) *Reconstructor {
	return &Reconstructor{sources: sources, workflows: DefaultWorkflows()}
}

// AddSource registers another event store.
func (r *Reconstructor) AddSource(s audit.Source) {
	r.sources = append(r.sources, s)
}

// Reconstruct gathers, orders and verifies the chain for correlationID.
// Integrity failures and gaps are reported as data. A failing source is
// recorded in SourceErrors and the remaining sources are still read.
func (r *Reconstructor) Reconstruct(correlationID string) (*Reconstruction, error) {
	if correlationID == "" {
		return nil, model.Invalid("correlation_id", "required")
	}
	g := r.gather(func(s audit.Source) ([]audit.Event, error) {
		return s.ByCorrelation(correlationID)
	})
	rec := analyze(correlationID, g.events, g.tampered, r.workflows)
	rec.Alerts = append(g.alerts, rec.Alerts...)
	rec.SourceErrors = g.srcErrs
	return rec, nil
}

// gathered is the merged view of every source.
type gathered struct {
	events   []audit.Event
	tampered map[string]bool
	alerts   []string
	srcErrs  []string
}

// gather collects events from all sources. Every copy of an event is
// verified before repeated ids are merged, so a tampered copy in any source
// marks the id as failed. The intact copy is kept when one exists.
func (r *Reconstructor) gather(fetch func(audit.Source) ([]audit.Event, error)) gathered {
	g := gathered{tampered: map[string]bool{}}
	index := map[string]int{}
	digest := map[string]string{}
	for i, s := range r.sources {
		got, err := fetch(s)
		if err != nil {
			g.srcErrs = append(g.srcErrs, fmt.Sprintf("source %d: %v", i, err))
			continue
		}
		for j := 1; j < len(got); j++ {
			if got[j].Meta().Timestamp.Before(got[j-1].Meta().Timestamp) {
				g.alerts = append(g.alerts, fmt.Sprintf("out-of-order timestamps in source %d: event %s precedes %s",
					i, got[j-1].Meta().ID, got[j].Meta().ID))
			}
		}
		for _, e := range got {
			id := e.Meta().ID
			ok := audit.Verify(e)
			if !ok {
				g.tampered[id] = true
			}
			d := integrity.Hash(e.HashFields()...)
			k, seen := index[id]
			if !seen {
				index[id] = len(g.events)
				digest[id] = d
				g.events = append(g.events, e)
				continue
			}
			if d != digest[id] {
				g.alerts = append(g.alerts, fmt.Sprintf("copies of event %s differ between sources (source %d)", id, i))
			}
			if ok && !audit.Verify(g.events[k]) {
				g.events[k] = e
				digest[id] = d
			}
		}
	}
	return g
}

// SortEvents orders events by timestamp, ties broken by id.
func SortEvents(events []audit.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Meta(), events[j].Meta()
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
}

// analyze builds the report for one chain. tampered names ids with a
// failing copy in some source; events holds the copy kept for each id.
func analyze(correlationID string, events []audit.Event, tampered map[string]bool, workflows []Workflow) *Reconstruction {
	rec := &Reconstruction{
		CorrelationID:     correlationID,
		Events:            []audit.Event{},
		IntegrityFailures: []string{},
		MissingSteps:      []string{},
		Alerts:            []string{},
	}
	SortEvents(events)
	if events != nil {
		rec.Events = events
	}
	rec.EventCount = len(events)
	if len(events) == 0 {
		rec.Alerts = append(rec.Alerts, "no events recorded for correlation id")
		rec.Complete = true
		return rec
	}

	counts := map[string]int{}
	var order []string
	for _, e := range events {
		if tampered[e.Meta().ID] || !audit.Verify(e) {
			rec.IntegrityFailures = append(rec.IntegrityFailures, e.Meta().ID)
		}
		step := audit.Step(e)
		if counts[step] == 0 {
			order = append(order, step)
		}
		counts[step]++
	}
	for _, id := range rec.IntegrityFailures {
		rec.Alerts = append(rec.Alerts, fmt.Sprintf("integrity hash mismatch for event %s", id))
	}

	if w, ok := classify(workflows, audit.Step(events[0])); ok {
		rec.Workflow = w.Name
		for _, step := range w.Steps {
			if counts[step] == 0 {
				rec.MissingSteps = append(rec.MissingSteps, step)
				rec.Alerts = append(rec.Alerts, fmt.Sprintf("missing expected event %s in %s workflow", step, w.Name))
			}
		}
		rec.MissingEvents = len(rec.MissingSteps)
	}

	for _, step := range order {
		if counts[step] > 1 {
			rec.Alerts = append(rec.Alerts, fmt.Sprintf("duplicate event type %s appears %d times", step, counts[step]))
		}
	}

	first := events[0].Meta().Timestamp
	last := events[len(events)-1].Meta().Timestamp
	rec.LatencyMs = last.Sub(first).Milliseconds()
	rec.Complete = rec.MissingEvents == 0
	return rec
}

// MissingSummary counts gaps across every chain active in a window.
type MissingSummary struct {
	Chains           int      `json:"chains"`
	IncompleteChains int      `json:"incomplete_chains"`
	MissingEvents    int      `json:"missing_events"`
	SourceErrors     []string `json:"source_errors,omitempty"`
}

// MissingSince applies the gap detection of Reconstruct to every
// correlation id with events at or after since.
func (r *Reconstructor) MissingSince(since time.Time) MissingSummary {
	g := r.gather(func(s audit.Source) ([]audit.Event, error) {
		return s.Since(since)
	})
	byCorr := map[string][]audit.Event{}
	for _, e := range g.events {
		id := e.Meta().CorrelationID
		byCorr[id] = append(byCorr[id], e)
	}
	sum := MissingSummary{Chains: len(byCorr), SourceErrors: g.srcErrs}
	for id, evs := range byCorr {
		rec := analyze(id, evs, g.tampered, r.workflows)
		if rec.MissingEvents > 0 {
			sum.IncompleteChains++
			sum.MissingEvents += rec.MissingEvents
		}
	}
	return sum
}
