package classification

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/govtrail/internal/model"
)

const sampleRegistry = `
tools:
  - id: web_search
    classification: LOW
    owner: platform-team
    external_connectivity: INTERNET
    justification: Public web search for general queries
    review_interval_days: 90

  - id: customer_data_tool
    classification: SENSITIVE
    owner: customer-success
    external_connectivity: LIMITED
    justification: Accesses customer PII
    approval_reference: CHG-12345
    review_interval_days: 30

  - id: sensitive-db-access
    classification: SENSITIVE
    owner: security-team
`

func TestParseValidRegistry(t *testing.T) {
	r, err := Parse([]byte(sampleRegistry))
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 tools, got %d", r.Len())
	}
	tool, ok := r.Get("customer_data_tool")
	if !ok || tool.Classification != model.ClassSensitive || tool.ReviewIntervalDays != 30 {
		t.Fatalf("unexpected entry: %+v", tool)
	}
	if r.Tools()[0].ID != "customer_data_tool" {
		t.Fatal("Tools() should be sorted by id")
	}
}

func TestLoadMissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 {
		t.Fatal("expected empty registry")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"malformed", "invalid: yaml: content: [unclosed", "parse"},
		{"tools not list", "tools: not_a_list", "'tools' must be a list"},
		{"missing owner", "tools:\n  - id: t\n    classification: LOW\n", "missing required field 'owner'"},
		{"missing id", "tools:\n  - classification: LOW\n    owner: x\n", "missing required field 'id'"},
		{"bad classification", "tools:\n  - id: t\n    classification: INVALID\n    owner: x\n", "Invalid classification"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRequiresApproval(t *testing.T) {
	r, _ := Parse([]byte(sampleRegistry))
	if !r.RequiresApproval("customer_data_tool") {
		t.Error("SENSITIVE tool should require approval")
	}
	if r.RequiresApproval("web_search") {
		t.Error("LOW tool should not require approval")
	}
	if r.RequiresApproval("nonexistent") {
		t.Error("unknown tool should not require approval")
	}
}

func TestValidateAuthorization(t *testing.T) {
	r, _ := Parse([]byte(sampleRegistry))

	if ok, reason := r.ValidateAuthorization("sensitive-db-access", nil); ok || !strings.Contains(reason, "requires approval") {
		t.Fatalf("expected denial requiring approval, got %v %q", ok, reason)
	}
	if ok, _ := r.ValidateAuthorization("sensitive-db-access", &ApprovalRecord{ApprovedBy: "ciso"}); !ok {
		t.Fatal("approval record should satisfy SENSITIVE requirement")
	}
	if ok, _ := r.ValidateAuthorization("sensitive-db-access", &ApprovalRecord{}); ok {
		t.Fatal("approval without approver must not pass")
	}
	if ok, _ := r.ValidateAuthorization("customer_data_tool", nil); !ok {
		t.Fatal("registry approval reference should satisfy requirement")
	}
	if ok, _ := r.ValidateAuthorization("web_search", nil); !ok {
		t.Fatal("LOW tool should pass")
	}
	if ok, _ := r.ValidateAuthorization("unknown", nil); !ok {
		t.Fatal("unknown tool should pass")
	}
}

func TestHolderReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	os.WriteFile(path, []byte(sampleRegistry), 0644)
	h, err := NewHolder(path)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(path, []byte("tools: nope"), 0644)
	if err := h.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if h.Registry().Len() != 3 {
		t.Fatal("previous registry should stay live after failed reload")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	os.WriteFile(path, []byte("tools: []\n"), 0644)
	h, err := NewHolder(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(h)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	os.WriteFile(path, []byte(sampleRegistry), 0644)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.Registry().Len() == 3 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("registry not reloaded, have %d tools", h.Registry().Len())
}
