// Package analyzer scores principals for least-privilege conformance and
// risk, and finds orphaned identities.
package analyzer

import (
	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/model"
	"github.com/ppiankov/govtrail/internal/policy"
)

// ScoreLeastPrivilege is the canonical least-privilege scorer. Every score
// in the system, including footprint summaries, comes from here.
func ScoreLeastPrivilege(docs []policy.Document) float64 {
	return policy.Score(docs)
}

// Rating thresholds on the cumulative risk score.
const (
	highRiskAt     = 6
	moderateRiskAt = 3
)

// RiskRating computes a deterministic, explainable rating from footprint
// signals. Missing summaries count as an empty footprint.
func RiskRating(p catalog.Principal) model.RiskRating {
	var fp policy.Footprint
	if p.PolicySummary != nil {
		fp = *p.PolicySummary
	}
	risk := 0

	switch n := len(fp.WildcardActions); {
	case n > 5:
		risk += 3
	case n > 0:
		risk += 1
	}

	switch fp.ResourceScopeWideness {
	case policy.ScopeBroad:
		risk += 3
	case policy.ScopeModerate:
		risk += 1
	}

	switch {
	case fp.ActionCount > 100:
		risk += 2
	case fp.ActionCount > 50:
		risk += 1
	}

	if p.Inactive {
		risk += 2
	}

	switch score := principalScore(p); {
	case score < 50:
		risk += 2
	case score < 80:
		risk += 1
	}

	switch {
	case risk >= highRiskAt:
		return model.RiskHigh
	case risk >= moderateRiskAt:
		return model.RiskModerate
	}
	return model.RiskLow
}

// principalScore prefers an already enriched score, then the footprint's,
// then the score of an empty policy set.
func principalScore(p catalog.Principal) float64 {
	if p.LeastPrivilegeScore != nil {
		return *p.LeastPrivilegeScore
	}
	if p.PolicySummary != nil {
		return p.PolicySummary.LeastPrivilegeScore
	}
	return ScoreLeastPrivilege(nil)
}

// Enrich fills least_privilege_score (when absent) and risk_rating.
// Running it twice yields the same result.
func Enrich(principals []catalog.Principal) []catalog.Principal {
	for i := range principals {
		p := &principals[i]
		if p.LeastPrivilegeScore == nil {
			s := principalScore(*p)
			p.LeastPrivilegeScore = &s
		}
		p.RiskRating = RiskRating(*p)
	}
	return principals
}

// DetectOrphans returns principals lacking an owner or a purpose.
func DetectOrphans(principals []catalog.Principal) []catalog.Principal {
	out := []catalog.Principal{}
	for _, p := range principals {
		if IsOrphan(p) {
			out = append(out, p)
		}
	}
	return out
}

// IsOrphan reports whether p lacks ownership metadata.
func IsOrphan(p catalog.Principal) bool {
	return catalog.UnownedValue(p.Owner) || catalog.MissingPurpose(p.Purpose)
}
