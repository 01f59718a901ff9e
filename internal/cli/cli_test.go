package cli

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/classification"
	"github.com/ppiankov/govtrail/internal/config"
	"github.com/ppiankov/govtrail/internal/engine"
	"github.com/ppiankov/govtrail/internal/server"
)

func initTestDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	initDir = dir
	initForce = false
	t.Cleanup(func() { initDir, initForce = "", false })
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}
	return dir
}

func TestRunInit_WritesLoadableFiles(t *testing.T) {
	dir := initTestDir(t)

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.StateDir != filepath.Join(dir, "state") {
		t.Errorf("state_dir = %s", cfg.StateDir)
	}
	if _, err := os.Stat(cfg.StateDir); err != nil {
		t.Error("state directory not created")
	}

	reg, err := classification.Load(cfg.ClassificationPath)
	if err != nil {
		t.Fatalf("example classification does not parse: %v", err)
	}
	if !reg.RequiresApproval("payments_refund") || reg.RequiresApproval("search_docs") {
		t.Error("example classification has unexpected approval rules")
	}

	data, err := os.ReadFile(cfg.Catalog.StaticPath)
	if err != nil {
		t.Fatal(err)
	}
	principals, err := catalog.ParseStatic(data, nil)
	if err != nil {
		t.Fatalf("example catalog does not parse: %v", err)
	}
	if len(principals) != 2 {
		t.Fatalf("principals = %d, want 2", len(principals))
	}
	if len(principals[1].PolicySummary.WildcardActions) == 0 {
		t.Error("legacy-batch should carry a wildcard action")
	}
}

func TestRunInit_NoOverwriteWithoutForce(t *testing.T) {
	dir := initTestDir(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("# custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("second runInit failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# custom\n" {
		t.Error("config.yaml overwritten without --force")
	}

	initForce = true
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("forced runInit failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "sla_target_seconds") {
		t.Error("--force should rewrite config.yaml")
	}
}

func run(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("govtrail %s: %v", strings.Join(args, " "), err)
	}
}

func TestCommandsShareStateThroughConfig(t *testing.T) {
	dir := initTestDir(t)
	cfgPath := filepath.Join(dir, "config.yaml")
	t.Cleanup(func() { configPath, traceID = "", "" })

	run(t, "--config", cfgPath, "--no-color", "--trace", "cli-trace", "authz", "set", "agent-1", "--tool", "search_docs", "--reason", "onboarding")
	run(t, "--config", cfgPath, "--trace", "cli-trace", "authz", "check", "agent-1", "search_docs")

	configPath = cfgPath
	rt, err := openRuntime(context.Background())
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	defer rt.Close()

	tools, err := rt.engine.AgentTools("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tools.AuthorizedTools) != 1 || tools.AuthorizedTools[0] != "search_docs" {
		t.Errorf("tools = %v", tools.AuthorizedTools)
	}

	rec, err := rt.engine.Reconstruct("cli-trace")
	if err != nil {
		t.Fatal(err)
	}
	// One grant event and one access check, each present in both the
	// journal and the event database.
	if rec.EventCount != 2 || len(rec.IntegrityFailures) != 0 {
		t.Errorf("reconstruction = %d events, failures %v", rec.EventCount, rec.IntegrityFailures)
	}

	if res := audit.VerifyJournal(rt.cfg.JournalPath); !res.Valid || res.Lines != 2 {
		t.Errorf("journal verify = %+v", res)
	}
}

func TestConfigForRootsPaths(t *testing.T) {
	cfg := configFor("/srv/gov")
	for _, p := range []string{cfg.StateDir, cfg.JournalPath, cfg.EventDBPath, cfg.ClassificationPath, cfg.Catalog.StaticPath} {
		if !strings.HasPrefix(p, "/srv/gov/") {
			t.Errorf("%s not under /srv/gov", p)
		}
	}
}

func TestRemoteReconstruct(t *testing.T) {
	e, err := engine.New(engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.CheckToolAccess("remote-trace", "agent-1", "search_docs"); err != nil {
		t.Fatal(err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(e, server.Config{})
	go func() { _ = srv.ServeOn(lis) }()
	defer srv.GracefulStop()

	remoteAddr = lis.Addr().String()
	remoteFormat = "timeline"
	t.Cleanup(func() { remoteAddr, remoteFormat = "localhost:50071", "json" })

	if err := runRemoteReconstruct(nil, []string{"remote-trace"}); err != nil {
		t.Fatalf("remote reconstruct: %v", err)
	}
	remoteFormat = "yaml"
	if err := runRemoteReconstruct(nil, []string{"remote-trace"}); err == nil {
		t.Error("unknown format should fail")
	}
}
