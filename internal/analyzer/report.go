package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/model"
)

// Report limits and thresholds.
const (
	DefaultThreshold     = 95.0
	MaxFailingReported   = 50
	MaxOrphansReported   = 100
	CriticalScore        = 50.0
	HighRiskRatioAlert   = 0.10
	AverageScoreAlert    = 70.0
	manyFailingThreshold = 10
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// HighRiskEntry is one HIGH-rated principal in a RiskSummary.
type HighRiskEntry struct {
	ID       string  `json:"id"`
	Owner    string  `json:"owner"`
	Score    float64 `json:"least_privilege_score"`
	Inactive bool    `json:"inactive"`
}

// RiskSummary aggregates ratings across a principal set.
type RiskSummary struct {
	TotalPrincipals    int                      `json:"total_principals"`
	Distribution       map[model.RiskRating]int `json:"risk_distribution"`
	AverageScore       float64                  `json:"average_least_privilege_score"`
	HighRiskPrincipals []HighRiskEntry          `json:"high_risk_principals"`
	Recommendations    []string                 `json:"recommendations"`
}

// AggregateRiskScores summarizes enriched principals. Unenriched entries
// are rated on the fly without being modified.
func AggregateRiskScores(principals []catalog.Principal) RiskSummary {
	s := RiskSummary{
		TotalPrincipals:    len(principals),
		Distribution:       map[model.RiskRating]int{model.RiskLow: 0, model.RiskModerate: 0, model.RiskHigh: 0},
		HighRiskPrincipals: []HighRiskEntry{},
		Recommendations:    []string{},
	}
	if len(principals) == 0 {
		return s
	}
	total := 0.0
	inactiveHigh := 0
	for _, p := range principals {
		rating := p.RiskRating
		if rating == "" {
			rating = RiskRating(p)
		}
		s.Distribution[rating]++
		score := principalScore(p)
		total += score
		if rating == model.RiskHigh {
			s.HighRiskPrincipals = append(s.HighRiskPrincipals, HighRiskEntry{
				ID: p.ID, Owner: p.Owner, Score: score, Inactive: p.Inactive,
			})
			if p.Inactive {
				inactiveHigh++
			}
		}
	}
	sort.SliceStable(s.HighRiskPrincipals, func(i, j int) bool {
		return s.HighRiskPrincipals[i].Score < s.HighRiskPrincipals[j].Score
	})
	s.AverageScore = round2(total / float64(len(principals)))

	high := s.Distribution[model.RiskHigh]
	ratio := float64(high) / float64(len(principals))
	if ratio > HighRiskRatioAlert {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"HIGH risk principals exceed 10%% of the catalog (%d of %d, %.1f%%). Prioritize policy tightening for these roles.",
			high, len(principals), ratio*100))
	}
	if s.AverageScore < AverageScoreAlert {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"Average least-privilege score %.2f is below 70. Review wildcard actions and resource scoping across the catalog.",
			s.AverageScore))
	}
	if inactiveHigh > 0 {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"%d inactive HIGH risk principal(s) detected. Consider decommissioning unused high-risk roles.",
			inactiveHigh))
	}
	return s
}

// FailingPrincipal is a principal scoring below the conformance threshold.
type FailingPrincipal struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	Owner           string   `json:"owner"`
	Score           float64  `json:"score"`
	WildcardActions []string `json:"wildcard_actions"`
}

// Conformance is the least-privilege conformance report.
type Conformance struct {
	ConformanceScore  float64            `json:"conformance_score"`
	TotalPrincipals   int                `json:"total_principals"`
	PassingCount      int                `json:"passing_count"`
	FailingCount      int                `json:"failing_count"`
	Threshold         float64            `json:"threshold"`
	FailingPrincipals []FailingPrincipal `json:"failing_principals"`
	Recommendations   []string           `json:"recommendations"`
}

// ConformanceReport scores every principal against threshold (0 selects
// DefaultThreshold). The conformance score is the mean principal score.
func ConformanceReport(principals []catalog.Principal, threshold float64) (Conformance, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 100 || math.IsNaN(threshold) {
		return Conformance{}, model.Invalid("threshold", "must be between 0 and 100")
	}
	r := Conformance{
		TotalPrincipals:   len(principals),
		Threshold:         threshold,
		FailingPrincipals: []FailingPrincipal{},
		Recommendations:   []string{},
	}
	if len(principals) == 0 {
		return r, nil
	}
	total := 0.0
	var failing []FailingPrincipal
	for _, p := range principals {
		score := principalScore(p)
		total += score
		if score >= threshold {
			continue
		}
		wild := []string{}
		if p.PolicySummary != nil {
			wild = append(wild, p.PolicySummary.WildcardActions...)
		}
		failing = append(failing, FailingPrincipal{
			ID: p.ID, Type: p.Type, Owner: p.Owner, Score: score, WildcardActions: wild,
		})
	}
	r.ConformanceScore = round2(total / float64(len(principals)))
	r.FailingCount = len(failing)
	r.PassingCount = len(principals) - len(failing)
	r.Recommendations = conformanceRecommendations(failing)
	if len(failing) > MaxFailingReported {
		failing = failing[:MaxFailingReported]
	}
	if failing != nil {
		r.FailingPrincipals = failing
	}
	return r, nil
}

func conformanceRecommendations(failing []FailingPrincipal) []string {
	if len(failing) == 0 {
		return []string{"All principals meet least-privilege threshold. No action required."}
	}
	var wildcard, unowned, critical int
	for _, p := range failing {
		if len(p.WildcardActions) > 0 {
			wildcard++
		}
		if catalog.UnownedValue(p.Owner) {
			unowned++
		}
		if p.Score < CriticalScore {
			critical++
		}
	}
	recs := []string{}
	if wildcard > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d principal(s) use wildcard actions. Review and scope down to specific actions where possible.", wildcard))
	}
	if unowned > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d principal(s) lack ownership tags. Assign owners for accountability and lifecycle management.", unowned))
	}
	if critical > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d principal(s) have critically low scores (< 50). Prioritize immediate policy review and tightening.", critical))
	}
	if len(failing) > manyFailingThreshold {
		recs = append(recs, "Large number of non-conformant principals detected. "+
			"Consider implementing automated policy remediation workflows.")
	}
	return recs
}
