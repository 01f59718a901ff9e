// Package authz maps agents to the set of tools they may invoke and keeps
// a differential history of every change.
package authz

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
	"github.com/ppiankov/govtrail/internal/statefile"
)

// ChangeRecord is one entry in an agent's history.
type ChangeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Added     []string  `json:"added"`
	Removed   []string  `json:"removed"`
	Unchanged []string  `json:"unchanged"`
	Reason    string    `json:"reason,omitempty"`
}

// Empty reports whether the change added and removed nothing.
func (c ChangeRecord) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Record is an agent's current tool set and change history.
type Record struct {
	AgentID string         `json:"agent_id"`
	Tools   []string       `json:"tools"`
	History []ChangeRecord `json:"history"`
}

// Report is the differential report for one agent.
type Report struct {
	AgentID      string         `json:"agent_id"`
	CurrentTools []string       `json:"current_tools"`
	TotalChanges int            `json:"total_changes"`
	History      []ChangeRecord `json:"history"`
}

// Store owns the authorization table. Mutations are serialized by a
// table-wide lock; reads return copies.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record
	path    string

	Now func() time.Time
}

// NewStore creates an in-memory store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record), Now: time.Now}
}

// Open creates a store persisted to path. Existing state is loaded.
func Open(path string) (*Store, error) {
	s := NewStore()
	s.path = path
	if err := statefile.Load(path, &s.records); err != nil {
		return nil, fmt.Errorf("authz: %w", err)
	}
	if s.records == nil {
		s.records = make(map[string]*Record)
	}
	return s, nil
}

// Tools returns the agent's current tool set, sorted. Unknown agents
// have an empty set.
func (s *Store) Tools(agentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[agentID]
	if !ok {
		return []string{}
	}
	return append([]string{}, r.Tools...)
}

// SetTools replaces the agent's tool set and records the difference.
// Setting an identical set records an empty change.
func (s *Store) SetTools(agentID string, tools []string, reason string) (ChangeRecord, error) {
	if strings.TrimSpace(agentID) == "" {
		return ChangeRecord{}, model.Invalid("agent_id", "must not be empty")
	}
	next := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		t = strings.TrimSpace(t)
		if t == "" {
			return ChangeRecord{}, model.Invalid("tools", "tool ids must not be empty")
		}
		next[t] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[agentID]
	if !ok {
		r = &Record{AgentID: agentID}
		s.records[agentID] = r
	}
	prev := make(map[string]struct{}, len(r.Tools))
	for _, t := range r.Tools {
		prev[t] = struct{}{}
	}

	change := ChangeRecord{
		Timestamp: s.Now().UTC(),
		Added:     diff(next, prev),
		Removed:   diff(prev, next),
		Unchanged: intersect(prev, next),
		Reason:    reason,
	}
	r.Tools = model.SortedKeys(next)
	r.History = append(r.History, change)

	if err := s.save(); err != nil {
		return change, err
	}
	return change, nil
}

// Authorized reports whether toolID is in the agent's current set.
func (s *Store) Authorized(agentID, toolID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[agentID]
	if !ok {
		return false
	}
	i := sort.SearchStrings(r.Tools, toolID)
	return i < len(r.Tools) && r.Tools[i] == toolID
}

// DifferentialReport returns the agent's current tools and full history.
func (s *Store) DifferentialReport(agentID string) Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep := Report{AgentID: agentID, CurrentTools: []string{}, History: []ChangeRecord{}}
	if r, ok := s.records[agentID]; ok {
		rep.CurrentTools = append(rep.CurrentTools, r.Tools...)
		rep.History = append(rep.History, r.History...)
	}
	rep.TotalChanges = len(rep.History)
	return rep
}

// Agents returns the ids of every agent with a record, sorted.
func (s *Store) Agents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// save must be called with s.mu held.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	if err := statefile.Save(s.path, s.records); err != nil {
		return fmt.Errorf("authz: persist: %w", err)
	}
	return nil
}

func diff(a, b map[string]struct{}) []string {
	out := map[string]struct{}{}
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return model.SortedKeys(out)
}

func intersect(a, b map[string]struct{}) []string {
	out := map[string]struct{}{}
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return model.SortedKeys(out)
}
