package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/govtrail/internal/policy"
)

type staticEntry struct {
	Principal `yaml:",inline"`
	Policies  []policy.Document `yaml:"policies"`
}

type staticFile struct {
	Principals []staticEntry `yaml:"principals"`
}

// StaticCatalog serves principals from a YAML (or JSON) file. The file is
// re-read on every Fetch so edits take effect without a restart.
type StaticCatalog struct {
	Path string
}

// NewStatic returns a catalog backed by path.
func NewStatic(path string) *StaticCatalog {
	return &StaticCatalog{Path: path}
}

// Fetch reads the file and returns principals in envs.
func (s *StaticCatalog) Fetch(_ context.Context, envs []string) ([]Principal, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.Path, err)
	}
	return ParseStatic(data, envs)
}

// ParseStatic decodes a static catalog document.
func ParseStatic(data []byte, envs []string) ([]Principal, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	out := []Principal{}
	for i, e := range f.Principals {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog: principal %d: missing id", i)
		}
		if !matchEnv(envs, e.Environment) {
			continue
		}
		p := e.Principal
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.Type == "" {
			p.Type = "role"
		}
		fp := SummarizeFootprint(e.Policies)
		p.PolicySummary = &fp
		out = append(out, p)
	}
	return out, nil
}

// Fixed is an in-memory catalog.
type Fixed []Principal

func (f Fixed) Fetch(_ context.Context, envs []string) ([]Principal, error) {
	out := []Principal{}
	for _, p := range f {
		if matchEnv(envs, p.Environment) {
			out = append(out, p)
		}
	}
	return out, nil
}
