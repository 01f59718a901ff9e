// Package chain reconstructs the audit trail of one correlation id across
// every event store and checks it for tampering and gaps.
package chain

import "github.com/ppiankov/govtrail/internal/audit"

// Workflow is an expected sequence of steps, identified by its first step.
type Workflow struct {
	Name  string
	Steps []string
}

// DefaultWorkflows are the multi-step operations the engine records.
func DefaultWorkflows() []Workflow {
	return []Workflow{
		{Name: "integration_onboarding", Steps: []string{
			string(audit.TypeIntegrationRequest),
			string(audit.TypeIntegrationApproval),
		}},
		{Name: "revocation", Steps: []string{
			string(audit.TypeRevocationRequest),
			string(audit.TypeRevocationPropagated),
		}},
		{Name: "authorization_change", Steps: []string{
			"authorization_check",
			"authorization_update",
		}},
	}
}

func classify(workflows []Workflow, first string) (Workflow, bool) {
	for _, w := range workflows {
		if len(w.Steps) > 0 && w.Steps[0] == first {
			return w, true
		}
	}
	return Workflow{}, false
}
