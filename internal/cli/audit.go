package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/config"
)

var (
	tailLines       int
	tailCorrelation string
	tailSince       time.Duration
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().StringVar(&tailCorrelation, "correlation-id", "", "Only events with this correlation id")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only events newer than this (e.g. 1h)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit journal operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit journal.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain and event integrity of an audit journal",
	Long:  "Walks the JSONL journal and validates that every line's prev_hash\nmatches the SHA-256 of the previous line, and that each event's own\nintegrity hash still matches its content. Exits 0 if valid, 1 if tampered.\nDefaults to the configured journal_path.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit journal events",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

func journalPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.JournalPath == "" {
		return "", fmt.Errorf("no journal path given and journal_path is not configured")
	}
	return cfg.JournalPath, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := journalPath(args)
	if err != nil {
		return err
	}
	result := audit.VerifyJournal(path)
	if result.Valid {
		fmt.Printf("%s: %d entries verified\n", allowStyle.Sprint("OK"), result.Lines)
		return nil
	}
	if result.ErrorLine > 0 {
		fmt.Fprintf(os.Stderr, "%s at line %d: %s\n", denyStyle.Sprint("FAILED"), result.ErrorLine, result.Error)
	} else {
		fmt.Fprintf(os.Stderr, "%s: %s\n", denyStyle.Sprint("FAILED"), result.Error)
	}
	for _, id := range result.Tampered {
		fmt.Fprintf(os.Stderr, "  tampered event %s\n", id)
	}
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := journalPath(args)
	if err != nil {
		return err
	}
	filter := audit.JournalFilter{CorrelationID: tailCorrelation}
	if tailSince > 0 {
		filter.From = time.Now().Add(-tailSince)
	}
	events, err := audit.ReadJournal(path, filter)
	if err != nil {
		return err
	}
	if tailLines > 0 && len(events) > tailLines {
		events = events[len(events)-tailLines:]
	}
	out, err := audit.FormatJSON(events)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
