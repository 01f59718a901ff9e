// Package evidence assembles point-in-time evidence packs for auditors.
package evidence

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/govtrail/internal/analyzer"
	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/chain"
	"github.com/ppiankov/govtrail/internal/decision"
	"github.com/ppiankov/govtrail/internal/model"
)

// Defaults and limits.
const (
	DefaultHoursBack       = 24
	MaxHoursBack           = 24 * 90
	DecisionSampleSize     = 10
	HighRiskSampleSize     = 5
	ReconstructionEndpoint = "/evidence-pack/reconstruct"
)

// DecisionSummarizer is satisfied by *decision.Log.
type DecisionSummarizer interface {
	Summarize(since time.Time, sampleSize int) decision.Summary
}

// GapCounter is satisfied by *chain.Reconstructor.
type GapCounter interface {
	MissingSince(since time.Time) chain.MissingSummary
}

// Params selects the window and optional sections of a pack.
type Params struct {
	HoursBack        int  `json:"hours_back"`
	IncludeDecisions bool `json:"include_decisions"`
	IncludeCatalog   bool `json:"include_catalog"`
}

// CatalogSummary is the catalog section of a pack.
type CatalogSummary struct {
	TotalPrincipals int                 `json:"total_principals"`
	HighRiskCount   int                 `json:"high_risk_count"`
	HighRiskSample  []catalog.Principal `json:"high_risk_sample"`
}

// Pack is a stateless evidence artifact; it is never stored.
type Pack struct {
	ID                      string            `json:"id"`
	GeneratedAt             time.Time         `json:"generated_at"`
	PrincipalSnapshotCount  int               `json:"principal_snapshot_count"`
	AuditEventRangeHours    int               `json:"audit_event_range_hours"`
	ConformanceScore        float64           `json:"conformance_score"`
	MissingEvents           int               `json:"missing_events"`
	IncompleteChains        int               `json:"incomplete_chains"`
	Decisions               *decision.Summary `json:"decisions,omitempty"`
	CatalogSnapshot         *CatalogSummary   `json:"catalog_snapshot,omitempty"`
	Degradations            []string          `json:"degradations"`
	ReconstructionAvailable bool              `json:"reconstruction_available"`
	ReconstructionEndpoint  string            `json:"reconstruction_endpoint"`
}

// Builder gathers pack inputs from its collaborators. Any of them may be
// nil; the missing section is recorded as a degradation.
type Builder struct {
	Catalog      catalog.Catalog
	Environments []string
	Decisions    DecisionSummarizer
	Gaps         GapCounter
	InactiveDays int
	Now          func() time.Time
	Logger       *log.Logger
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

func (b *Builder) logf(format string, args ...any) {
	l := b.Logger
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	l.Printf(format, args...)
}

// Build assembles a pack. Only invalid parameters return an error;
// collaborator failures degrade the affected fields.
func (b *Builder) Build(ctx context.Context, p Params) (*Pack, error) {
	if p.HoursBack == 0 {
		p.HoursBack = DefaultHoursBack
	}
	if p.HoursBack < 0 || p.HoursBack > MaxHoursBack {
		return nil, model.Invalid("hours_back", fmt.Sprintf("must be between 1 and %d", MaxHoursBack))
	}
	now := b.now()
	since := now.Add(-time.Duration(p.HoursBack) * time.Hour)
	pack := &Pack{
		ID:                      "evidence-" + uuid.NewString(),
		GeneratedAt:             now.UTC(),
		AuditEventRangeHours:    p.HoursBack,
		Degradations:            []string{},
		ReconstructionAvailable: true,
		ReconstructionEndpoint:  ReconstructionEndpoint,
	}

	principals, err := b.principals(ctx, now)
	if err != nil {
		b.logf("WARN evidence: %v", err)
		pack.Degradations = append(pack.Degradations, err.Error())
	} else {
		analyzer.Enrich(principals)
		pack.PrincipalSnapshotCount = len(principals)
		pack.ConformanceScore = meanScore(principals)
		if p.IncludeCatalog {
			pack.CatalogSnapshot = summarizeCatalog(principals)
		}
	}

	if b.Gaps != nil {
		gaps := b.Gaps.MissingSince(since)
		pack.MissingEvents = gaps.MissingEvents
		pack.IncompleteChains = gaps.IncompleteChains
		for _, e := range gaps.SourceErrors {
			pack.Degradations = append(pack.Degradations, "audit source unavailable: "+e)
		}
	} else {
		pack.Degradations = append(pack.Degradations, "audit sources unavailable: missing-event detection skipped")
	}

	if p.IncludeDecisions {
		if b.Decisions != nil {
			s := b.Decisions.Summarize(since, DecisionSampleSize)
			pack.Decisions = &s
		} else {
			pack.Degradations = append(pack.Degradations, "decision log unavailable")
		}
	}
	return pack, nil
}

func (b *Builder) principals(ctx context.Context, now time.Time) ([]catalog.Principal, error) {
	if b.Catalog == nil {
		return nil, &model.CollaboratorError{Collaborator: "catalog", Err: fmt.Errorf("not configured")}
	}
	snap, err := catalog.Snapshot(ctx, b.Catalog, b.Environments, b.InactiveDays, now)
	if err != nil {
		return nil, err
	}
	return snap.Principals, nil
}

func meanScore(principals []catalog.Principal) float64 {
	if len(principals) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range principals {
		if p.LeastPrivilegeScore != nil {
			total += *p.LeastPrivilegeScore
		}
	}
	return math.Round(total/float64(len(principals))*100) / 100
}

func summarizeCatalog(principals []catalog.Principal) *CatalogSummary {
	s := &CatalogSummary{TotalPrincipals: len(principals), HighRiskSample: []catalog.Principal{}}
	for _, p := range principals {
		lowScore := p.LeastPrivilegeScore != nil && *p.LeastPrivilegeScore < analyzer.CriticalScore
		if p.RiskRating != model.RiskHigh && !lowScore {
			continue
		}
		s.HighRiskCount++
		if len(s.HighRiskSample) < HighRiskSampleSize {
			s.HighRiskSample = append(s.HighRiskSample, p)
		}
	}
	return s
}
