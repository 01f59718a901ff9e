package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeEnvironments(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"all", nil},
		{"prod, ALL", nil},
		{"Prod, dev ,prod", []string{"dev", "prod"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		if got := NormalizeEnvironments(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NormalizeEnvironments(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFlagInactive(t *testing.T) {
	recent := now.AddDate(0, 0, -3)
	old := now.AddDate(0, 0, -45)
	ps := []Principal{
		{ID: "used-recently", CreatedAt: old, LastUsedAt: &recent},
		{ID: "used-long-ago", CreatedAt: old, LastUsedAt: &old},
		{ID: "never-used-old", CreatedAt: old},
		{ID: "never-used-new", CreatedAt: recent},
		{ID: "no-timestamps"},
	}
	FlagInactive(ps, 30, now)
	want := []bool{false, true, true, false, false}
	for i, p := range ps {
		if p.Inactive != want[i] {
			t.Errorf("%s: inactive = %v, want %v", p.ID, p.Inactive, want[i])
		}
	}
}

func TestApplyOwnershipValidation(t *testing.T) {
	ps := ApplyOwnershipValidation([]Principal{
		{ID: "a", Owner: "team-x", Purpose: "billing"},
		{ID: "b", Owner: "N/A", Purpose: ""},
		{ID: "c", Owner: " unknown "},
	})
	if ps[0].OwnershipStatus != StatusAssigned || ps[0].PurposeStatus != StatusDocumented {
		t.Errorf("unexpected status for a: %+v", ps[0])
	}
	if ps[1].Owner != UnassignedOwner || ps[1].OwnershipStatus != StatusMissing {
		t.Errorf("owner not defaulted for b: %+v", ps[1])
	}
	if ps[1].Purpose != NoPurpose || ps[1].PurposeStatus != StatusMissing {
		t.Errorf("purpose not defaulted for b: %+v", ps[1])
	}
	// Re-applying must be stable.
	again := ApplyOwnershipValidation(ps)
	if again[1].Owner != UnassignedOwner || again[1].OwnershipStatus != StatusMissing {
		t.Errorf("validation not idempotent: %+v", again[1])
	}
}

func TestFilterOwner(t *testing.T) {
	ps := []Principal{{ID: "a", Owner: "Team-X"}, {ID: "b", Owner: "team-y"}}
	got := FilterOwner(ps, "team-x")
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("FilterOwner = %+v", got)
	}
	if len(FilterOwner(ps, "")) != 2 {
		t.Fatal("empty owner should not filter")
	}
}

func TestPaginate(t *testing.T) {
	ps := make([]Principal, 5)
	items, pg, err := Paginate(ps, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || pg.TotalPages != 3 || !pg.HasNext || !pg.HasPrev {
		t.Fatalf("unexpected page: %d items %+v", len(items), pg)
	}
	items, pg, _ = Paginate(ps, 3, 2)
	if len(items) != 1 || pg.HasNext {
		t.Fatalf("unexpected last page: %d items %+v", len(items), pg)
	}
	items, _, _ = Paginate(ps, 9, 2)
	if len(items) != 0 {
		t.Fatalf("page past end should be empty, got %d", len(items))
	}
	if _, _, err := Paginate(ps, 0, 2); !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, pg, _ = Paginate(ps, 1, 0)
	if pg.PageSize != DefaultPageSize {
		t.Fatalf("page size = %d", pg.PageSize)
	}
}

const staticDoc = `
principals:
  - id: arn:aws:iam::1:role/reader
    environment: prod
    owner: data-team
    purpose: nightly export
    created_at: 2026-01-01T00:00:00Z
    policies:
      - name: ReadOnly
        Statement:
          - Effect: Allow
            Action: ["s3:GetObject"]
            Resource: ["arn:aws:s3:::exports/daily"]
  - id: arn:aws:iam::1:role/admin
    environment: dev
    policies:
      - name: Admin
        Statement:
          Effect: Allow
          Action: "*"
          Resource: "*"
`

func TestParseStatic(t *testing.T) {
	ps, err := ParseStatic([]byte(staticDoc), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 2 {
		t.Fatalf("expected 2 principals, got %d", len(ps))
	}
	if ps[0].Name != ps[0].ID || ps[0].Type != "role" {
		t.Errorf("defaults not applied: %+v", ps[0])
	}
	if ps[0].PolicySummary == nil || ps[0].PolicySummary.LeastPrivilegeScore != 100 {
		t.Errorf("reader summary = %+v", ps[0].PolicySummary)
	}
	if ps[1].PolicySummary.ResourceScopeWideness != "BROAD" {
		t.Errorf("admin wideness = %s", ps[1].PolicySummary.ResourceScopeWideness)
	}

	prod, err := ParseStatic([]byte(staticDoc), []string{"prod"})
	if err != nil {
		t.Fatal(err)
	}
	if len(prod) != 1 || prod[0].Environment != "prod" {
		t.Fatalf("env filter failed: %+v", prod)
	}
}

func TestParseStaticMissingID(t *testing.T) {
	if _, err := ParseStatic([]byte("principals:\n  - owner: x\n"), nil); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestStaticCatalogFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(staticDoc), 0600); err != nil {
		t.Fatal(err)
	}
	ps, err := NewStatic(path).Fetch(context.Background(), []string{"dev"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 1 {
		t.Fatalf("expected 1 dev principal, got %d", len(ps))
	}
	if _, err := NewStatic(filepath.Join(t.TempDir(), "missing.yaml")).Fetch(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

type failingCatalog struct{}

func (failingCatalog) Fetch(context.Context, []string) ([]Principal, error) {
	return nil, errors.New("connection refused")
}

func TestSnapshot(t *testing.T) {
	old := now.AddDate(0, 0, -90)
	cat := Fixed{
		{ID: "b", Environment: "prod", CreatedAt: old},
		{ID: "a", Environment: "prod", Owner: "ops", Purpose: "deploy", CreatedAt: now},
	}
	snap, err := Snapshot(context.Background(), cat, nil, 30, now)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Total != 2 || snap.Principals[0].ID != "a" || snap.Environments != "all" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.Principals[1].Inactive || snap.Principals[1].Owner != UnassignedOwner {
		t.Fatalf("b not flagged: %+v", snap.Principals[1])
	}

	_, err = Snapshot(context.Background(), failingCatalog{}, nil, 30, now)
	var ce *model.CollaboratorError
	if !errors.As(err, &ce) || ce.Collaborator != "catalog" {
		t.Fatalf("expected collaborator error, got %v", err)
	}
}
