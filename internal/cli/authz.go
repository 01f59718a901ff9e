package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/classification"
	"github.com/ppiankov/govtrail/internal/engine"
)

var (
	authzTools     []string
	authzReason    string
	authzApprovals map[string]string
	authzSkipClass bool
)

func init() {
	rootCmd.AddCommand(authzCmd)
	authzCmd.AddCommand(authzGetCmd, authzSetCmd, authzCheckCmd, authzHistoryCmd, authzListCmd)

	authzSetCmd.Flags().StringSliceVar(&authzTools, "tool", nil, "Tool id to authorize (repeatable; the full set replaces the current one)")
	authzSetCmd.Flags().StringVar(&authzReason, "reason", "", "Reason recorded with the change")
	authzSetCmd.Flags().StringToStringVar(&authzApprovals, "approval", nil, "Approval for a SENSITIVE tool as tool=approver (repeatable)")
	authzSetCmd.Flags().BoolVar(&authzSkipClass, "skip-classification", false, "Do not enforce tool classification")
}

var authzCmd = &cobra.Command{
	Use:   "authz",
	Short: "Agent tool authorization",
}

var authzGetCmd = &cobra.Command{
	Use:   "get <agent-id>",
	Short: "Show the tools an agent may invoke",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.AgentTools(args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var authzSetCmd = &cobra.Command{
	Use:   "set <agent-id> --tool <id> [--tool <id>...]",
	Short: "Replace an agent's authorized tool set",
	Long:  "Replaces the agent's tool set and records one allow event per added tool\nand one deny event per removed tool. SENSITIVE tools need --approval.\nPass --tool '' to clear every tool.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthzSet,
}

func runAuthzSet(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("tool") {
		return fmt.Errorf("--tool is required")
	}
	tools := make([]string, 0, len(authzTools))
	for _, t := range authzTools {
		if t != "" {
			tools = append(tools, t)
		}
	}
	approvals := make(map[string]*classification.ApprovalRecord, len(authzApprovals))
	for tool, by := range authzApprovals {
		approvals[tool] = &classification.ApprovalRecord{ApprovedBy: by}
	}
	return withRuntime(cmd.Context(), func(e *engine.Engine) error {
		res, err := e.UpdateAgentTools(traceID, engine.UpdateToolsRequest{
			AgentID:            args[0],
			Tools:              tools,
			Reason:             authzReason,
			Approvals:          approvals,
			SkipClassification: authzSkipClass,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, res.Message)
		printTrace(res.CorrelationID)
		return printJSON(res)
	})
}

var authzCheckCmd = &cobra.Command{
	Use:   "check <agent-id> <tool-id>",
	Short: "Check whether an agent may invoke a tool",
	Long:  "Records the decision as an audit event. Exits 1 when denied.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var denied bool
		err := withRuntime(cmd.Context(), func(e *engine.Engine) error {
			res, err := e.CheckToolAccess(traceID, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %s\n", verdict(res.Authorized, "ALLOW", "DENY"), res.Reason)
			printTrace(res.CorrelationID)
			denied = !res.Authorized
			return printJSON(res)
		})
		if err == nil && denied {
			os.Exit(1)
		}
		return err
	},
}

var authzHistoryCmd = &cobra.Command{
	Use:   "history <agent-id>",
	Short: "Show an agent's authorization change history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rep, err := e.AuthorizationHistory(args[0])
			if err != nil {
				return err
			}
			return printJSON(rep)
		})
	},
}

var authzListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents with an authorization record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			return printJSON(map[string]any{"agents": e.Agents()})
		})
	},
}
