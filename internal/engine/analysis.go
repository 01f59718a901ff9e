package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/govtrail/internal/analyzer"
	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/metrics"
	"github.com/ppiankov/govtrail/internal/model"
)

// PrincipalQuery selects a page of the principal catalog.
type PrincipalQuery struct {
	Environment string `json:"environment,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
}

// PrincipalPage is one page of enriched principals.
type PrincipalPage struct {
	Principals  []catalog.Principal `json:"principals"`
	Pagination  catalog.Pagination  `json:"pagination"`
	Environment any                 `json:"environment"`
	Owner       string              `json:"owner,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Degraded    string              `json:"degraded,omitempty"`
}

// Principals fetches, enriches, filters and paginates the catalog. A
// catalog failure yields an empty page with Degraded set.
func (e *Engine) Principals(ctx context.Context, q PrincipalQuery) (_ *PrincipalPage, err error) {
	defer e.track("get_principals", time.Now(), &err)
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return nil, model.Invalid("page", "must be >= 1")
	}
	envs, principals, degraded := e.fetch(ctx, q.Environment)
	principals = catalog.FilterOwner(analyzer.Enrich(principals), q.Owner)
	page, pg, err := catalog.Paginate(principals, q.Page, q.PageSize)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = []catalog.Principal{}
	}
	return &PrincipalPage{
		Principals:  page,
		Pagination:  pg,
		Environment: catalog.EnvironmentLabel(envs),
		Owner:       q.Owner,
		GeneratedAt: e.now().UTC(),
		Degraded:    degraded,
	}, nil
}

// LeastPrivilegeReport combines conformance and risk aggregation.
type LeastPrivilegeReport struct {
	analyzer.Conformance
	Risk        analyzer.RiskSummary `json:"risk"`
	Environment any                  `json:"environment"`
	Degraded    string               `json:"degraded,omitempty"`
}

// LeastPrivilegeReport scores every principal against threshold. Zero
// selects the configured threshold.
func (e *Engine) LeastPrivilegeReport(ctx context.Context, environment string, threshold float64) (_ *LeastPrivilegeReport, err error) {
	defer e.track("least_privilege_report", time.Now(), &err)
	if threshold == 0 {
		threshold = e.conformanceThreshold
	}
	envs, principals, degraded := e.fetch(ctx, environment)
	analyzer.Enrich(principals)
	conf, err := analyzer.ConformanceReport(principals, threshold)
	if err != nil {
		return nil, err
	}
	risk := analyzer.AggregateRiskScores(principals)
	metrics.TrackConformance(e.metrics, conf.ConformanceScore, conf.Threshold)
	metrics.TrackRiskDistribution(e.metrics, risk.Distribution, risk.TotalPrincipals)
	return &LeastPrivilegeReport{
		Conformance: conf,
		Risk:        risk,
		Environment: catalog.EnvironmentLabel(envs),
		Degraded:    degraded,
	}, nil
}

// OrphanReport lists principals lacking ownership metadata.
type OrphanReport struct {
	OrphanCount int               `json:"orphan_count"`
	Orphans     []analyzer.Orphan `json:"orphans"`
	Environment any               `json:"environment"`
	Degraded    string            `json:"degraded,omitempty"`
}

// Orphans detects orphaned principals, capped at analyzer.MaxOrphansReported.
func (e *Engine) Orphans(ctx context.Context, environment string, strict bool) (_ *OrphanReport, err error) {
	defer e.track("get_orphans", time.Now(), &err)
	envs, principals, degraded := e.fetch(ctx, environment)
	orphans := analyzer.IdentifyOrphans(analyzer.Enrich(principals), strict)
	if orphans == nil {
		orphans = []analyzer.Orphan{}
	}
	r := &OrphanReport{
		OrphanCount: len(orphans),
		Orphans:     orphans,
		Environment: catalog.EnvironmentLabel(envs),
		Degraded:    degraded,
	}
	if len(r.Orphans) > analyzer.MaxOrphansReported {
		r.Orphans = r.Orphans[:analyzer.MaxOrphansReported]
	}
	return r, nil
}

// RemediationReport is a remediation plan for the orphans of one catalog view.
type RemediationReport struct {
	analyzer.RemediationPlan
	Environment any    `json:"environment"`
	Degraded    string `json:"degraded,omitempty"`
}

// Remediate plans remediation for orphaned principals. Nothing is executed.
func (e *Engine) Remediate(ctx context.Context, environment string, opts analyzer.RemediationOptions) (_ *RemediationReport, err error) {
	defer e.track("plan_remediation", time.Now(), &err)
	envs, principals, degraded := e.fetch(ctx, environment)
	orphans := analyzer.IdentifyOrphans(analyzer.Enrich(principals), opts.Strict)
	return &RemediationReport{
		RemediationPlan: analyzer.PlanRemediation(orphans, opts, e.now()),
		Environment:     catalog.EnvironmentLabel(envs),
		Degraded:        degraded,
	}, nil
}

// ABAC renders the attribute matrix; nil attrs selects the defaults.
func (e *Engine) ABAC(attrs []analyzer.ABACAttribute) (analyzer.ABACExport, error) {
	if attrs == nil {
		return analyzer.DefaultABACMatrix()
	}
	return analyzer.ABACMatrix(attrs)
}

// fetch snapshots the catalog for environment (empty selects the configured
// environments). A failure is logged and returned as a degradation note.
func (e *Engine) fetch(ctx context.Context, environment string) ([]string, []catalog.Principal, string) {
	envs := e.environments
	if environment != "" {
		envs = catalog.NormalizeEnvironments(environment)
	}
	if e.catalog == nil {
		err := &model.CollaboratorError{Collaborator: "catalog", Err: errors.New("not configured")}
		return envs, []catalog.Principal{}, err.Error()
	}
	snap, err := catalog.Snapshot(ctx, e.catalog, envs, e.inactivityDays, e.now())
	if err != nil {
		e.logger.Printf("WARN catalog: %v", err)
		return envs, []catalog.Principal{}, err.Error()
	}
	return envs, snap.Principals, ""
}
