// Package decision keeps a bounded log of policy decisions and answers
// filtered, aggregated queries over it.
package decision

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/model"
)

// DefaultCapacity is the number of most recent decisions retained.
const DefaultCapacity = 10000

// AggregateKeys are the fields List can aggregate by.
var AggregateKeys = []string{"subject_id", "effect", "resource", "action"}

// Log is a capped, append-only decision log. It implements audit.Source.
type Log struct {
	mu       sync.Mutex
	entries  []*audit.PolicyDecision
	capacity int

	// Now is the clock used for time-window filtering.
	Now func() time.Time
}

// NewLog creates a log that retains at most capacity decisions
// (DefaultCapacity if capacity <= 0).
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, Now: time.Now}
}

// Input is one decision to record.
type Input struct {
	SubjectType     string
	SubjectID       string
	Action          string
	Resource        string
	Effect          string
	PolicyReference string
	CorrelationID   string
	Reason          string
}

// Record validates and appends a decision, evicting the oldest entries
// beyond capacity.
func (l *Log) Record(in Input) (*audit.PolicyDecision, error) {
	if strings.TrimSpace(in.SubjectID) == "" {
		return nil, model.Invalid("subject_id", "must not be empty")
	}
	effect, ok := model.ParseEffect(in.Effect)
	if !ok {
		return nil, model.Invalid("effect", "must be 'allow' or 'deny'")
	}
	d := audit.NewPolicyDecision(in.CorrelationID, in.SubjectType, in.SubjectID,
		in.Action, in.Resource, effect, in.PolicyReference, in.Reason)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, d)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append([]*audit.PolicyDecision(nil), l.entries[over:]...)
	}
	return d, nil
}

// Filter selects decisions for List. Zero values mean "no filter";
// HoursBack defaults to 24 and Limit to 100.
type Filter struct {
	SubjectID       string
	Effect          string
	HoursBack       int
	Limit           int
	ResourcePattern string
	ActionPattern   string
	AggregateBy     string
}

// Result is the response of List.
type Result struct {
	Decisions     []*audit.PolicyDecision   `json:"decisions"`
	Count         int                       `json:"count"`
	TotalMatching int                       `json:"total_matching"`
	Aggregations  map[string]map[string]int `json:"aggregations,omitempty"`
}

// List returns matching decisions newest first, truncated to the limit.
// TotalMatching and aggregations cover every match, not just the page.
func (l *Log) List(f Filter) (*Result, error) {
	var effect model.Effect
	if f.Effect != "" {
		e, ok := model.ParseEffect(f.Effect)
		if !ok {
			return nil, model.Invalid("effect", "must be 'allow' or 'deny'")
		}
		effect = e
	}
	if f.AggregateBy != "" && !validAggregate(f.AggregateBy) {
		return nil, model.Invalid("aggregate_by", "must be one of "+strings.Join(AggregateKeys, ", "))
	}
	if f.HoursBack < 0 {
		return nil, model.Invalid("hours_back", "must not be negative")
	}
	if f.HoursBack == 0 {
		f.HoursBack = 24
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	cutoff := l.Now().Add(-time.Duration(f.HoursBack) * time.Hour)
	resPat := strings.ToLower(f.ResourcePattern)
	actPat := strings.ToLower(f.ActionPattern)

	l.mu.Lock()
	var matches []*audit.PolicyDecision
	for _, d := range l.entries {
		if f.SubjectID != "" && d.SubjectID != f.SubjectID {
			continue
		}
		if effect != "" && d.Effect != effect {
			continue
		}
		if resPat != "" && !strings.Contains(strings.ToLower(d.Resource), resPat) {
			continue
		}
		if actPat != "" && !strings.Contains(strings.ToLower(d.Action), actPat) {
			continue
		}
		if d.Timestamp.Before(cutoff) {
			continue
		}
		matches = append(matches, d)
	}
	l.mu.Unlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})

	res := &Result{TotalMatching: len(matches)}
	if f.AggregateBy != "" {
		agg := map[string]int{}
		for _, d := range matches {
			agg[aggregateKey(d, f.AggregateBy)]++
		}
		res.Aggregations = map[string]map[string]int{"by_" + f.AggregateBy: agg}
	}
	if len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	res.Decisions = matches
	if res.Decisions == nil {
		res.Decisions = []*audit.PolicyDecision{}
	}
	res.Count = len(res.Decisions)
	return res, nil
}

// Summary counts decisions in the window and returns up to sampleSize of
// the most recent.
type Summary struct {
	Total  int                     `json:"total_decisions"`
	Allow  int                     `json:"allow_count"`
	Deny   int                     `json:"deny_count"`
	Sample []*audit.PolicyDecision `json:"sample"`
}

// Summarize reports allow/deny counts for decisions newer than since.
func (l *Log) Summarize(since time.Time, sampleSize int) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Summary{Sample: []*audit.PolicyDecision{}}
	for i := len(l.entries) - 1; i >= 0; i-- {
		d := l.entries[i]
		if d.Timestamp.Before(since) {
			continue
		}
		s.Total++
		if d.Effect == model.Allow {
			s.Allow++
		} else {
			s.Deny++
		}
		if len(s.Sample) < sampleSize {
			s.Sample = append(s.Sample, d)
		}
	}
	return s
}

// Len returns the number of retained decisions.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) ByCorrelation(correlationID string) ([]audit.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []audit.Event
	for _, d := range l.entries {
		if d.CorrelationID == correlationID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l *Log) Since(t time.Time) ([]audit.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []audit.Event
	for _, d := range l.entries {
		if !d.Timestamp.Before(t) {
			out = append(out, d)
		}
	}
	return out, nil
}

func validAggregate(key string) bool {
	for _, k := range AggregateKeys {
		if k == key {
			return true
		}
	}
	return false
}

func aggregateKey(d *audit.PolicyDecision, key string) string {
	switch key {
	case "subject_id":
		return d.SubjectID
	case "effect":
		return string(d.Effect)
	case "resource":
		return d.Resource
	case "action":
		return d.Action
	}
	return "unknown"
}
