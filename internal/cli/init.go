package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/govtrail/internal/config"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default ~/.govtrail)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap govtrail configuration",
	Long: `Creates the config directory with a default config.yaml, an example
tool classification registry and an example static principal catalog.

Every path in the generated config.yaml points inside the directory, so a
directory created with --dir is self-contained:
  govtrail --config <dir>/config.yaml authz list`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := initDir
	if dir == "" {
		dir = config.DefaultDir()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	dir = abs

	var created []string

	cfg := configFor(dir)
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	cfgContent, err := defaultConfigYAML(cfg)
	if err != nil {
		return fmt.Errorf("generate default config: %w", err)
	}
	files := []struct{ path, content string }{
		{filepath.Join(dir, "config.yaml"), cfgContent},
		{cfg.ClassificationPath, exampleClassificationYAML},
		{cfg.Catalog.StaticPath, examplePrincipalsYAML},
	}
	for _, f := range files {
		wrote, err := writeIfMissing(f.path, f.content)
		if err != nil {
			return err
		}
		if wrote {
			created = append(created, f.path)
		}
	}

	fmt.Println("govtrail init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	fmt.Println("Next:")
	fmt.Println("  govtrail authz set <agent> --tool <tool>")
	fmt.Println("  govtrail serve")
	return nil
}

// configFor returns the default config with every path rooted at dir.
func configFor(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.JournalPath = filepath.Join(dir, "audit.jsonl")
	cfg.EventDBPath = filepath.Join(dir, "events.db")
	cfg.ClassificationPath = filepath.Join(dir, "tool_classification.yaml")
	cfg.Catalog.StaticPath = filepath.Join(dir, "principals.yaml")
	return cfg
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func defaultConfigYAML(cfg *config.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	header := "# govtrail configuration.\n" +
		"# catalog.source: static (principals.yaml) or iam (AWS IAM roles).\n" +
		"# metrics.sink: stderr, cloudwatch or none.\n" +
		"# alerts: webhooks for sla_breach, integrity_failure, access_denied, revocation_failed or \"*\".\n\n"
	return header + string(data), nil
}

const exampleClassificationYAML = `# Tool classification registry. SENSITIVE tools need an approval record
# before they can be authorized for an agent. This file is hot-reloaded by
# govtrail serve.
tools:
  - id: search_docs
    classification: LOW
    owner: platform-team
  - id: send_email
    classification: HIGH
    owner: comms-team
    external_connectivity: smtp
  - id: payments_refund
    classification: SENSITIVE
    owner: finance-team
    justification: moves money
    review_interval_days: 90
`

const examplePrincipalsYAML = `# Static principal catalog used when catalog.source is static.
principals:
  - id: arn:aws:iam::123456789012:role/agent-runtime
    name: agent-runtime
    type: role
    environment: prod
    owner: platform-team
    purpose: agent execution role
    created_at: 2025-01-15T00:00:00Z
    tags:
      Owner: platform-team
      Purpose: agent execution role
    policies:
      - name: runtime-access
        Version: "2012-10-17"
        Statement:
          - Effect: Allow
            Action: [s3:GetObject, dynamodb:Query]
            Resource: [arn:aws:s3:::agent-artifacts/*]
  - id: arn:aws:iam::123456789012:role/legacy-batch
    name: legacy-batch
    type: role
    environment: prod
    created_at: 2023-06-01T00:00:00Z
    policies:
      - name: admin
        Statement:
          - Effect: Allow
            Action: ["*"]
            Resource: ["*"]
`
