package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/analyzer"
	"github.com/ppiankov/govtrail/internal/engine"
)

var (
	analyzeEnv       string
	analyzeOwner     string
	analyzePage      int
	analyzePageSize  int
	analyzeThreshold float64
	analyzeStrict    bool
	analyzeCSV       bool
	analyzeAttrs     string
	remediateOpts    analyzer.RemediationOptions
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzePrincipalsCmd, analyzeLeastPrivilegeCmd, analyzeOrphansCmd, analyzeRemediateCmd, analyzeABACCmd)
	analyzeCmd.PersistentFlags().StringVar(&analyzeEnv, "environment", "", "Environment filter (default: configured environments)")

	analyzePrincipalsCmd.Flags().StringVar(&analyzeOwner, "owner", "", "Owner filter (case-insensitive)")
	analyzePrincipalsCmd.Flags().IntVar(&analyzePage, "page", 1, "Page number")
	analyzePrincipalsCmd.Flags().IntVar(&analyzePageSize, "page-size", 0, "Page size (default 50, max 100)")

	analyzeLeastPrivilegeCmd.Flags().Float64Var(&analyzeThreshold, "threshold", 0, "Conformance threshold 0-100 (default from config)")

	analyzeOrphansCmd.Flags().BoolVar(&analyzeStrict, "strict", false, "Also flag principals with an owner but no purpose")

	analyzeRemediateCmd.Flags().BoolVar(&remediateOpts.AutoTag, "auto-tag", false, "Propose AUTO_TAG actions for principals missing tags")
	analyzeRemediateCmd.Flags().BoolVar(&remediateOpts.DeleteInactive, "delete-inactive", false, "Propose DELETE for inactive orphans")
	analyzeRemediateCmd.Flags().BoolVar(&remediateOpts.Strict, "strict", false, "Strict orphan detection")

	analyzeABACCmd.Flags().BoolVar(&analyzeCSV, "csv", false, "Print only the CSV export")
	analyzeABACCmd.Flags().StringVar(&analyzeAttrs, "attributes", "", "JSON file with a custom attribute list")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Least-privilege and ownership analysis over the principal catalog",
}

var analyzePrincipalsCmd = &cobra.Command{
	Use:   "principals",
	Short: "List enriched principals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			page, err := e.Principals(cmd.Context(), engine.PrincipalQuery{
				Environment: analyzeEnv,
				Owner:       analyzeOwner,
				Page:        analyzePage,
				PageSize:    analyzePageSize,
			})
			if err != nil {
				return err
			}
			degraded(page.Degraded)
			return printJSON(page)
		})
	},
}

var analyzeLeastPrivilegeCmd = &cobra.Command{
	Use:   "least-privilege",
	Short: "Least-privilege conformance report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rep, err := e.LeastPrivilegeReport(cmd.Context(), analyzeEnv, analyzeThreshold)
			if err != nil {
				return err
			}
			degraded(rep.Degraded)
			pass := rep.FailingCount == 0
			fmt.Fprintf(os.Stderr, "%s conformance %.2f%% (%d/%d passing)\n",
				verdict(pass, "PASS", "FAIL"), rep.ConformanceScore, rep.PassingCount, rep.TotalPrincipals)
			return printJSON(rep)
		})
	},
}

var analyzeOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Principals without an owner or purpose",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rep, err := e.Orphans(cmd.Context(), analyzeEnv, analyzeStrict)
			if err != nil {
				return err
			}
			degraded(rep.Degraded)
			return printJSON(rep)
		})
	},
}

var analyzeRemediateCmd = &cobra.Command{
	Use:   "remediate",
	Short: "Plan remediation for orphaned principals (nothing is executed)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rep, err := e.Remediate(cmd.Context(), analyzeEnv, remediateOpts)
			if err != nil {
				return err
			}
			degraded(rep.Degraded)
			return printJSON(rep)
		})
	},
}

var analyzeABACCmd = &cobra.Command{
	Use:   "abac",
	Short: "Attribute-based access control feasibility matrix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var attrs []analyzer.ABACAttribute
		if analyzeAttrs != "" {
			data, err := os.ReadFile(analyzeAttrs)
			if err != nil {
				return fmt.Errorf("failed to read attributes: %w", err)
			}
			if err := json.Unmarshal(data, &attrs); err != nil {
				return fmt.Errorf("failed to parse attributes: %w", err)
			}
		}
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			exp, err := e.ABAC(attrs)
			if err != nil {
				return err
			}
			if analyzeCSV {
				fmt.Print(exp.CSV)
				return nil
			}
			return printJSON(exp)
		})
	},
}

func degraded(reason string) {
	if reason != "" {
		fmt.Fprintln(os.Stderr, warnStyle.Sprintf("degraded: %s", reason))
	}
}
