package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/model"
)

// Remediation recommendation texts.
const (
	RecAssignOwner      = "ASSIGN_OWNER: Add 'Owner' tag with team/individual identifier"
	RecAssignPurpose    = "ASSIGN_PURPOSE: Add 'Purpose' tag with resource description"
	RecConsiderDeletion = "CONSIDER_DELETION: Principal inactive >30 days and orphaned"
	RecUrgentReview     = "URGENT_REVIEW: High-risk orphan requires immediate attention"
)

// Plan action kinds.
const (
	ActionAutoTag      = "AUTO_TAG"
	ActionDelete       = "DELETE"
	ActionManualReview = "MANUAL_REVIEW"
)

var genericPurposes = map[string]bool{"test": true, "demo": true, "temp": true, "temporary": true}

// Orphan is an orphaned principal with its remediation recommendations.
type Orphan struct {
	catalog.Principal
	Recommendations []string `json:"remediation_recommendations"`
}

// IdentifyOrphans detects orphans and attaches recommendations. Strict
// mode also flags generic purposes such as "test" or "temp".
func IdentifyOrphans(principals []catalog.Principal, strict bool) []Orphan {
	var out []Orphan
	for _, p := range DetectOrphans(principals) {
		recs := []string{}
		if catalog.UnownedValue(p.Owner) {
			recs = append(recs, RecAssignOwner)
		}
		if catalog.MissingPurpose(p.Purpose) {
			recs = append(recs, RecAssignPurpose)
		}
		if p.Inactive {
			recs = append(recs, RecConsiderDeletion)
		}
		if p.RiskRating == model.RiskHigh {
			recs = append(recs, RecUrgentReview)
		}
		purpose := strings.TrimSpace(p.Purpose)
		if strict && genericPurposes[strings.ToLower(purpose)] {
			recs = append(recs, fmt.Sprintf("CLARIFY_PURPOSE: Purpose '%s' is too generic", purpose))
		}
		out = append(out, Orphan{Principal: p, Recommendations: recs})
	}
	return out
}

// RemediationOptions selects which automatic actions a plan may propose.
type RemediationOptions struct {
	AutoTag        bool `json:"auto_tag"`
	DeleteInactive bool `json:"delete_inactive"`
	Strict         bool `json:"strict"`
}

// RemediationAction is one proposed change.
type RemediationAction struct {
	PrincipalID     string            `json:"principal_id"`
	Action          string            `json:"action"`
	Tags            map[string]string `json:"tags,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// RemediationMetrics counts the plan's proposals.
type RemediationMetrics struct {
	TotalOrphans         int `json:"total_orphans"`
	AutoTagCandidates    int `json:"auto_tag_candidates"`
	DeletionCandidates   int `json:"deletion_candidates"`
	ManualReviewRequired int `json:"manual_review_required"`
}

// RemediationPlan is a proposal only; nothing in it has been applied.
type RemediationPlan struct {
	Actions     []RemediationAction `json:"actions"`
	Metrics     RemediationMetrics  `json:"metrics"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// DefaultRemediationTags are applied by AUTO_TAG actions.
func DefaultRemediationTags() map[string]string {
	return map[string]string{
		"Owner":     "governance-team",
		"Purpose":   "Pending classification",
		"ManagedBy": "orphan-remediation-script",
	}
}

// PlanRemediation turns orphans into proposed actions.
func PlanRemediation(orphans []Orphan, opts RemediationOptions, now time.Time) RemediationPlan {
	plan := RemediationPlan{
		Actions:     []RemediationAction{},
		Metrics:     RemediationMetrics{TotalOrphans: len(orphans)},
		GeneratedAt: now.UTC(),
	}
	for _, o := range orphans {
		if opts.AutoTag && hasPrefix(o.Recommendations, "ASSIGN_") {
			plan.Actions = append(plan.Actions, RemediationAction{
				PrincipalID: o.ID,
				Action:      ActionAutoTag,
				Tags:        DefaultRemediationTags(),
			})
			plan.Metrics.AutoTagCandidates++
		}
		if opts.DeleteInactive && o.Inactive && hasPrefix(o.Recommendations, "CONSIDER_DELETION") {
			plan.Actions = append(plan.Actions, RemediationAction{
				PrincipalID: o.ID,
				Action:      ActionDelete,
				Reason:      "Inactive orphan principal without ownership",
			})
			plan.Metrics.DeletionCandidates++
		}
		if o.RiskRating == model.RiskHigh {
			plan.Actions = append(plan.Actions, RemediationAction{
				PrincipalID:     o.ID,
				Action:          ActionManualReview,
				Reason:          "High-risk orphan requires security team review",
				Recommendations: o.Recommendations,
			})
			plan.Metrics.ManualReviewRequired++
		}
	}
	return plan
}

func hasPrefix(recs []string, prefix string) bool {
	for _, r := range recs {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}
