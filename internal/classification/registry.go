// Package classification loads the tool classification registry and
// enforces its approval rules.
package classification

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/govtrail/internal/model"
)

// Tool is one registry entry.
type Tool struct {
	ID                   string               `yaml:"id" json:"id"`
	Classification       model.Classification `yaml:"classification" json:"classification"`
	Owner                string               `yaml:"owner" json:"owner"`
	ExternalConnectivity string               `yaml:"external_connectivity,omitempty" json:"external_connectivity,omitempty"`
	Justification        string               `yaml:"justification,omitempty" json:"justification,omitempty"`
	ApprovalReference    string               `yaml:"approval_reference,omitempty" json:"approval_reference,omitempty"`
	ReviewIntervalDays   int                  `yaml:"review_interval_days,omitempty" json:"review_interval_days,omitempty"`
}

// ApprovalRecord accompanies a request to authorize a SENSITIVE tool.
type ApprovalRecord struct {
	ApprovedBy string `json:"approved_by"`
	Reference  string `json:"reference,omitempty"`
}

// Registry is an immutable lookup table of classified tools.
type Registry struct {
	tools map[string]Tool
}

// Empty returns a registry with no tools.
func Empty() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// NewRegistry builds a registry from validated entries.
func NewRegistry(tools []Tool) (*Registry, error) {
	r := Empty()
	for i, t := range tools {
		if err := validate(t); err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		r.tools[t.ID] = t
	}
	return r, nil
}

// Load reads a YAML registry of the form `tools: [{id, classification, owner, ...}]`.
// A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("classification: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes registry YAML.
func Parse(data []byte) (*Registry, error) {
	var doc struct {
		Tools yaml.Node `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("classification: parse: %w", err)
	}
	if doc.Tools.Kind == 0 {
		return Empty(), nil
	}
	if doc.Tools.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("classification: 'tools' must be a list")
	}
	var tools []Tool
	if err := doc.Tools.Decode(&tools); err != nil {
		return nil, fmt.Errorf("classification: decode tools: %w", err)
	}
	r, err := NewRegistry(tools)
	if err != nil {
		return nil, fmt.Errorf("classification: %w", err)
	}
	return r, nil
}

func validate(t Tool) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("missing required field 'id'")
	case t.Classification == "":
		return fmt.Errorf("tool %q missing required field 'classification'", t.ID)
	case t.Owner == "":
		return fmt.Errorf("tool %q missing required field 'owner'", t.ID)
	case !model.ValidClassification(t.Classification):
		return fmt.Errorf("tool %q: Invalid classification %q", t.ID, t.Classification)
	}
	return nil
}

// Get returns the entry for toolID.
func (r *Registry) Get(toolID string) (Tool, bool) {
	t, ok := r.tools[toolID]
	return t, ok
}

// Tools returns every entry sorted by id.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.tools) }

// RequiresApproval reports whether toolID is SENSITIVE. Unknown tools do
// not require approval.
func (r *Registry) RequiresApproval(toolID string) bool {
	t, ok := r.tools[toolID]
	return ok && t.Classification == model.ClassSensitive
}

// ValidateAuthorization decides whether toolID may be granted given an
// optional approval record.
func (r *Registry) ValidateAuthorization(toolID string, approval *ApprovalRecord) (bool, string) {
	t, ok := r.tools[toolID]
	if !ok {
		return true, "tool not in classification registry"
	}
	if t.Classification != model.ClassSensitive {
		return true, fmt.Sprintf("tool classified %s", t.Classification)
	}
	if approval != nil && approval.ApprovedBy != "" {
		return true, "approved by " + approval.ApprovedBy
	}
	if t.ApprovalReference != "" {
		return true, "approval reference " + t.ApprovalReference
	}
	return false, fmt.Sprintf("tool %q is SENSITIVE and requires approval", toolID)
}
