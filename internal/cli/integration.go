package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/engine"
)

var (
	intgName          string
	intgJustification string
	intgTargets       []string
	intgApprovedBy    string
	intgExpiryDays    int
	intgReason        string
	intgStatus        string
)

func init() {
	rootCmd.AddCommand(integrationCmd)
	integrationCmd.AddCommand(intgRequestCmd, intgApproveCmd, intgCheckCmd, intgRevokeCmd, intgListCmd, intgGetCmd, intgExpireCmd)

	intgRequestCmd.Flags().StringVar(&intgName, "name", "", "Integration name")
	intgRequestCmd.Flags().StringVar(&intgJustification, "justification", "", "Business justification")
	intgRequestCmd.Flags().StringSliceVar(&intgTargets, "target", nil, "Requested target endpoint (repeatable)")

	intgApproveCmd.Flags().StringSliceVar(&intgTargets, "target", nil, "Approved target (repeatable; must be a subset of the requested targets)")
	intgApproveCmd.Flags().StringVar(&intgApprovedBy, "approved-by", "", "Approver identity")
	intgApproveCmd.Flags().IntVar(&intgExpiryDays, "expiry-days", 0, "Days until the approval expires (default from config)")

	intgRevokeCmd.Flags().StringVar(&intgReason, "reason", "", "Revocation reason")
	intgListCmd.Flags().StringVar(&intgStatus, "status", "", "Filter by status (pending, active, expired, revoked)")
}

var integrationCmd = &cobra.Command{
	Use:     "integration",
	Aliases: []string{"int"},
	Short:   "Third-party integration allowlist",
}

var intgRequestCmd = &cobra.Command{
	Use:   "request --name <name> --target <t> [--target <t>...]",
	Short: "Request a new integration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.RequestIntegration(traceID, engine.IntegrationRequest{
				Name:             intgName,
				Justification:    intgJustification,
				RequestedTargets: intgTargets,
			})
			if err != nil {
				return err
			}
			printTrace(res.CorrelationID)
			return printJSON(res)
		})
	},
}

var intgApproveCmd = &cobra.Command{
	Use:   "approve <integration-id> --approved-by <who> --target <t>...",
	Short: "Approve a pending integration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := engine.IntegrationApproval{ApprovedTargets: intgTargets, ApprovedBy: intgApprovedBy}
		if req.ApprovedTargets == nil {
			req.ApprovedTargets = []string{}
		}
		if cmd.Flags().Changed("expiry-days") {
			days := intgExpiryDays
			req.ExpiryDays = &days
		}
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.ApproveIntegration(traceID, args[0], req)
			if err != nil {
				return err
			}
			printTrace(res.CorrelationID)
			return printJSON(res)
		})
	},
}

var intgCheckCmd = &cobra.Command{
	Use:   "check <integration-id> <target>",
	Short: "Check whether an integration may reach a target",
	Long:  "Expired integrations are marked expired as a side effect. Exits 1 when denied.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var denied bool
		err := withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.CheckIntegrationAccess(traceID, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %s\n", verdict(res.Authorized, "ALLOW", "DENY"), res.Reason)
			denied = !res.Authorized
			return printJSON(res)
		})
		if err == nil && denied {
			os.Exit(1)
		}
		return err
	},
}

var intgRevokeCmd = &cobra.Command{
	Use:   "revoke <integration-id>",
	Short: "Revoke an integration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.RevokeIntegration(traceID, args[0], intgReason)
			if err != nil {
				return err
			}
			printTrace(res.CorrelationID)
			return printJSON(res)
		})
	},
}

var intgListCmd = &cobra.Command{
	Use:   "list",
	Short: "List integrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			recs, err := e.Integrations(intgStatus)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"integrations": recs, "count": len(recs)})
		})
	},
}

var intgGetCmd = &cobra.Command{
	Use:   "get <integration-id>",
	Short: "Show one integration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rec, err := e.Integration(args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		})
	},
}

var intgExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire every active integration past its expiry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.ExpireIntegrations(traceID)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "expired %d integration(s)\n", res.Expired)
			return printJSON(res)
		})
	},
}
