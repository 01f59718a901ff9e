package policy

import (
	"sort"
	"strings"
)

// Scoring weights.
const (
	PerfectScore            = 100.0
	WildcardActionPenalty   = 5.0
	WildcardResourcePenalty = 10.0
	QualifiedResourceBonus  = 10.0
	ScopeBroad              = "BROAD"
	ScopeModerate           = "MODERATE"
	ScopeNarrow             = "NARROW"
)

// Score is the least-privilege score of a policy set in [0,100].
//
// Starting from 100, each Allow statement loses 5 per wildcard action and
// 10 if any resource is exactly "*". Up to 10 points are added back in
// proportion to Allow statements whose resources are all non-wildcard and
// colon-qualified (ARN-like). No Allow statements scores 100.
func Score(docs []Document) float64 {
	score := PerfectScore
	allow, qualified := 0, 0
	for _, d := range docs {
		for _, st := range d.Statement {
			if !st.Allows() {
				continue
			}
			allow++
			for _, a := range st.Action {
				if strings.Contains(a, "*") {
					score -= WildcardActionPenalty
				}
			}
			if hasExactWildcard(st.Resource) {
				score -= WildcardResourcePenalty
			}
			if qualifiedResources(st.Resource) {
				qualified++
			}
		}
	}
	if allow > 0 {
		score += QualifiedResourceBonus * float64(qualified) / float64(allow)
	}
	if score < 0 {
		return 0
	}
	if score > PerfectScore {
		return PerfectScore
	}
	return score
}

// Footprint summarizes the privilege surface of a policy set.
type Footprint struct {
	AttachedPolicies           []string `json:"attached_policies"`
	ActionCount                int      `json:"action_count"`
	WildcardActions            []string `json:"wildcard_actions"`
	WildcardResourceStatements int      `json:"wildcard_resource_statements"`
	TotalStatements            int      `json:"total_statements"`
	ResourceScopeWideness      string   `json:"resource_scope_wideness"`
	LeastPrivilegeScore        float64  `json:"least_privilege_score"`
}

// Summarize computes the footprint of docs, including its Score.
func Summarize(docs []Document) Footprint {
	f := Footprint{
		AttachedPolicies:      []string{},
		WildcardActions:       []string{},
		ResourceScopeWideness: ScopeNarrow,
	}
	actions := map[string]struct{}{}
	wild := map[string]struct{}{}
	partial := false
	for _, d := range docs {
		if d.Name != "" {
			f.AttachedPolicies = append(f.AttachedPolicies, d.Name)
		}
		for _, st := range d.Statement {
			f.TotalStatements++
			if !st.Allows() {
				continue
			}
			for _, a := range st.Action {
				actions[a] = struct{}{}
				if strings.Contains(a, "*") {
					wild[a] = struct{}{}
				}
			}
			if hasExactWildcard(st.Resource) {
				f.WildcardResourceStatements++
			}
			for _, r := range st.Resource {
				if r != "*" && strings.Contains(r, "*") {
					partial = true
				}
			}
		}
	}
	f.ActionCount = len(actions)
	for a := range wild {
		f.WildcardActions = append(f.WildcardActions, a)
	}
	sort.Strings(f.WildcardActions)
	switch {
	case f.WildcardResourceStatements > 0:
		f.ResourceScopeWideness = ScopeBroad
	case partial:
		f.ResourceScopeWideness = ScopeModerate
	}
	f.LeastPrivilegeScore = Score(docs)
	return f
}

func hasExactWildcard(resources []string) bool {
	for _, r := range resources {
		if r == "*" {
			return true
		}
	}
	return false
}

func qualifiedResources(resources []string) bool {
	if len(resources) == 0 {
		return false
	}
	for _, r := range resources {
		if strings.Contains(r, "*") || !strings.Contains(r, ":") {
			return false
		}
	}
	return true
}
