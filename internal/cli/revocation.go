package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/engine"
	"github.com/ppiankov/govtrail/internal/revocation"
)

var (
	revSubjectType string
	revSubjectID   string
	revScope       string
	revReason      string
	revInitiatedBy string
	revError       string
	revStatus      string
	revAction      string
	probeCount     int
	probeDelay     time.Duration
	probePause     time.Duration
	probeTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(revocationCmd)
	revocationCmd.AddCommand(revCreateCmd, revPropagateCmd, revFailCmd, revStatusCmd, revListCmd, revCheckCmd, revSLACmd, revProbeCmd)

	revCreateCmd.Flags().StringVar(&revSubjectType, "subject-type", "", "user, integration, tool, agent or principal")
	revCreateCmd.Flags().StringVar(&revSubjectID, "subject-id", "", "Subject to revoke")
	revCreateCmd.Flags().StringVar(&revScope, "scope", "", "user_access, tool_access, integration_access or principal_assume")
	revCreateCmd.Flags().StringVar(&revReason, "reason", "", "Revocation reason")
	revCreateCmd.Flags().StringVar(&revInitiatedBy, "initiated-by", "", "Who initiated the revocation")

	revFailCmd.Flags().StringVar(&revError, "error", "", "Propagation failure message")

	revListCmd.Flags().StringVar(&revStatus, "status", "", "Filter by status (pending, complete, failed)")
	revListCmd.Flags().StringVar(&revSubjectType, "subject-type", "", "Filter by subject type")

	revCheckCmd.Flags().StringVar(&revAction, "action", "", "Attempted action, recorded when the subject is revoked")

	revProbeCmd.Flags().IntVar(&probeCount, "count", 5, "Number of synthetic revocations")
	revProbeCmd.Flags().DurationVar(&probeDelay, "delay", 100*time.Millisecond, "Simulated propagation delay")
	revProbeCmd.Flags().DurationVar(&probePause, "pause", time.Second, "Pause between runs")
	revProbeCmd.Flags().DurationVar(&probeTimeout, "timeout", 5*time.Minute, "Overall probe timeout")
}

var revocationCmd = &cobra.Command{
	Use:     "revocation",
	Aliases: []string{"rev"},
	Short:   "Emergency revocations and SLA tracking",
}

var revCreateCmd = &cobra.Command{
	Use:   "create --subject-type <type> --subject-id <id> --scope <scope>",
	Short: "Create a revocation; the subject is blocked immediately",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.CreateRevocation(traceID, revocation.Request{
				SubjectType: revSubjectType,
				SubjectID:   revSubjectID,
				Scope:       revScope,
				Reason:      revReason,
				InitiatedBy: revInitiatedBy,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %s %s blocked\n", denyStyle.Sprint("REVOKED"), revSubjectType, revSubjectID)
			printTrace(res.CorrelationID)
			return printJSON(res)
		})
	},
}

var revPropagateCmd = &cobra.Command{
	Use:   "propagate <revocation-id>",
	Short: "Mark a revocation as propagated and compute SLA compliance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.PropagateRevocation(traceID, args[0])
			if err != nil {
				return err
			}
			rec := res.Revocation
			met := rec.SLAMet != nil && *rec.SLAMet
			fmt.Fprintf(os.Stderr, "%s latency %dms (target %ds)\n",
				verdict(met, "SLA MET", "SLA BREACHED"), derefInt64(rec.PropagationLatencyMs), rec.SLATargetSeconds)
			return printJSON(res)
		})
	},
}

var revFailCmd = &cobra.Command{
	Use:   "fail <revocation-id>",
	Short: "Mark a revocation as failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.FailRevocation(traceID, args[0], revError)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var revStatusCmd = &cobra.Command{
	Use:   "status <revocation-id>",
	Short: "Show one revocation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rec, err := e.Revocation(args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		})
	},
}

var revListCmd = &cobra.Command{
	Use:   "list",
	Short: "List revocations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			recs, err := e.Revocations(revStatus, revSubjectType)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"revocations": recs, "count": len(recs)})
		})
	},
}

var revCheckCmd = &cobra.Command{
	Use:   "check <subject-type> <subject-id>",
	Short: "Check whether a subject is revoked",
	Long:  "Exits 1 when the subject is revoked.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var revoked bool
		err := withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.CheckSubjectRevoked(traceID, args[0], args[1], revAction)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, verdict(!res.Revoked, "ACTIVE", "REVOKED"))
			revoked = res.Revoked
			return printJSON(res)
		})
		if err == nil && revoked {
			os.Exit(1)
		}
		return err
	},
}

var revSLACmd = &cobra.Command{
	Use:   "sla",
	Short: "Show revocation SLA metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			return printJSON(e.SLAMetrics())
		})
	},
}

var revProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run synthetic revocations to measure propagation SLA",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()
		return withRuntime(ctx, func(e *engine.Engine) error {
			sum, err := e.Probe(ctx, probeCount, probeDelay, probePause)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%d/%d passed, SLA compliance %.1f%%\n", sum.Passed, sum.TotalTests, sum.SLAComplianceRate)
			if sum.Failed > 0 {
				fmt.Fprintln(os.Stderr, warnStyle.Sprintf("%d probe(s) failed", sum.Failed))
			}
			return printJSON(sum)
		})
	},
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
