// Package catalog supplies principal records (IAM roles and similar
// identities) to the analyzer and the evidence builder.
package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
	"github.com/ppiankov/govtrail/internal/policy"
)

// Fallback values written by ApplyOwnershipValidation.
const (
	UnassignedOwner     = "UNASSIGNED"
	NoPurpose           = "No purpose documented"
	StatusAssigned      = "assigned"
	StatusDocumented    = "documented"
	StatusMissing       = "missing"
	DefaultInactiveDays = 30
)

// Principal is one identity in the catalog.
type Principal struct {
	ID                  string            `json:"id" yaml:"id"`
	Name                string            `json:"name" yaml:"name"`
	Type                string            `json:"type" yaml:"type"`
	Environment         string            `json:"environment" yaml:"environment"`
	Owner               string            `json:"owner" yaml:"owner"`
	Purpose             string            `json:"purpose" yaml:"purpose"`
	CreatedAt           time.Time         `json:"created_at" yaml:"created_at"`
	LastUsedAt          *time.Time        `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
	Tags                map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	PolicySummary       *policy.Footprint `json:"policy_summary,omitempty" yaml:"-"`
	Inactive            bool              `json:"inactive" yaml:"inactive,omitempty"`
	LeastPrivilegeScore *float64          `json:"least_privilege_score,omitempty" yaml:"-"`
	RiskRating          model.RiskRating  `json:"risk_rating,omitempty" yaml:"-"`
	OwnershipStatus     string            `json:"ownership_status,omitempty" yaml:"-"`
	PurposeStatus       string            `json:"purpose_status,omitempty" yaml:"-"`
}

// Catalog fetches principals, optionally restricted to environments.
// A nil or empty envs slice means every environment.
type Catalog interface {
	Fetch(ctx context.Context, envs []string) ([]Principal, error)
}

// SummarizeFootprint computes the policy footprint of a principal's documents.
func SummarizeFootprint(docs []policy.Document) policy.Footprint {
	return policy.Summarize(docs)
}

// NormalizeEnvironments parses a comma-separated environment filter.
// Empty input or "all" yields nil.
func NormalizeEnvironments(raw string) []string {
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		env := strings.ToLower(strings.TrimSpace(part))
		if env == "" {
			continue
		}
		if env == "all" {
			return nil
		}
		seen[env] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	return model.SortedKeys(seen)
}

// EnvironmentLabel renders a filter for display.
func EnvironmentLabel(envs []string) any {
	if len(envs) == 0 {
		return "all"
	}
	return envs
}

func matchEnv(envs []string, env string) bool {
	if len(envs) == 0 {
		return true
	}
	env = strings.ToLower(env)
	for _, e := range envs {
		if e == env {
			return true
		}
	}
	return false
}

// FlagInactive marks principals whose last use (or creation, when never
// used) is older than days. Principals with no timestamps are left active.
func FlagInactive(principals []Principal, days int, now time.Time) []Principal {
	if days <= 0 {
		days = DefaultInactiveDays
	}
	cutoff := now.AddDate(0, 0, -days)
	for i := range principals {
		ref := principals[i].CreatedAt
		if principals[i].LastUsedAt != nil {
			ref = *principals[i].LastUsedAt
		}
		principals[i].Inactive = !ref.IsZero() && ref.Before(cutoff)
	}
	return principals
}

// UnownedValue reports whether owner carries no real ownership.
func UnownedValue(owner string) bool {
	switch strings.ToLower(strings.TrimSpace(owner)) {
	case "", "unknown", "none", "n/a", "unassigned":
		return true
	}
	return false
}

// MissingPurpose reports whether purpose is empty or the fallback text.
func MissingPurpose(purpose string) bool {
	p := strings.TrimSpace(purpose)
	return p == "" || p == NoPurpose
}

// ApplyOwnershipValidation replaces absent owners and purposes with
// fallback markers and records their status.
func ApplyOwnershipValidation(principals []Principal) []Principal {
	for i := range principals {
		p := &principals[i]
		if UnownedValue(p.Owner) {
			p.Owner = UnassignedOwner
			p.OwnershipStatus = StatusMissing
		} else {
			p.OwnershipStatus = StatusAssigned
		}
		if MissingPurpose(p.Purpose) {
			p.Purpose = NoPurpose
			p.PurposeStatus = StatusMissing
		} else {
			p.PurposeStatus = StatusDocumented
		}
	}
	return principals
}

// FilterOwner keeps principals whose owner equals owner, ignoring case.
func FilterOwner(principals []Principal, owner string) []Principal {
	if owner == "" {
		return principals
	}
	var out []Principal
	for _, p := range principals {
		if strings.EqualFold(p.Owner, owner) {
			out = append(out, p)
		}
	}
	return out
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 100

// Paginate returns the 1-based page of principals.
func Paginate(principals []Principal, page, size int) ([]Principal, Pagination, error) {
	if page < 1 {
		return nil, Pagination{}, model.Invalid("page", "must be >= 1")
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(principals)
	pages := (total + size - 1) / size
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return principals[start:end], Pagination{
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}, nil
}

// CatalogSnapshot is a point-in-time view of the catalog.
type CatalogSnapshot struct {
	GeneratedAt  time.Time   `json:"generated_at"`
	Environments any         `json:"environments"`
	Total        int         `json:"total"`
	Principals   []Principal `json:"principals"`
}

// Snapshot fetches principals, flags inactivity and validates ownership.
func Snapshot(ctx context.Context, c Catalog, envs []string, inactiveDays int, now time.Time) (*CatalogSnapshot, error) {
	principals, err := c.Fetch(ctx, envs)
	if err != nil {
		return nil, &model.CollaboratorError{Collaborator: "catalog", Err: err}
	}
	FlagInactive(principals, inactiveDays, now)
	ApplyOwnershipValidation(principals)
	sort.SliceStable(principals, func(i, j int) bool { return principals[i].ID < principals[j].ID })
	return &CatalogSnapshot{
		GeneratedAt:  now.UTC(),
		Environments: EnvironmentLabel(envs),
		Total:        len(principals),
		Principals:   principals,
	}, nil
}
