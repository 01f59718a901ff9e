package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/client"
)

var (
	remoteAddr   string
	remoteAction string
	remoteFormat string
)

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.AddCommand(remoteCheckToolCmd, remoteCheckIntegrationCmd, remoteCheckRevokedCmd, remoteReconstructCmd)
	remoteCmd.PersistentFlags().StringVar(&remoteAddr, "addr", "localhost:50071", "govtrail gRPC server address")
	remoteCheckRevokedCmd.Flags().StringVar(&remoteAction, "action", "", "Attempted action (recorded as a denial when revoked)")
	remoteReconstructCmd.Flags().StringVar(&remoteFormat, "format", "json", "Output format: json or timeline")
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Run governance checks against a remote govtrail server",
	Long:  "Calls a running govtrail serve over gRPC. Checks fail closed: an\nunreachable server denies tool and integration access and reports\nsubjects as revoked.",
}

var remoteCheckToolCmd = &cobra.Command{
	Use:   "check-tool <agent-id> <tool-id>",
	Short: "Check tool authorization remotely (exits 1 when denied)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(remoteAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		resp := c.CheckTool(args[0], args[1], traceID)
		fmt.Fprintf(os.Stderr, "%s %s\n", verdict(resp.Authorized, "ALLOW", "DENY"), resp.Reason)
		printTrace(resp.TraceID)
		if err := printJSON(resp); err != nil {
			return err
		}
		if !resp.Authorized {
			os.Exit(1)
		}
		return nil
	},
}

var remoteCheckIntegrationCmd = &cobra.Command{
	Use:   "check-integration <integration-id> <target>",
	Short: "Check integration access remotely (exits 1 when unauthorized)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(remoteAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		resp := c.CheckIntegration(args[0], args[1], traceID)
		fmt.Fprintf(os.Stderr, "%s %s\n", verdict(resp.Authorized, "ALLOW", "DENY"), resp.Reason)
		printTrace(resp.TraceID)
		if err := printJSON(resp); err != nil {
			return err
		}
		if !resp.Authorized {
			os.Exit(1)
		}
		return nil
	},
}

var remoteCheckRevokedCmd = &cobra.Command{
	Use:   "check-revoked <subject-type> <subject-id>",
	Short: "Check revocation status remotely (exits 1 when revoked)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(remoteAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		resp := c.CheckRevoked(args[0], args[1], remoteAction, traceID)
		fmt.Fprintln(os.Stderr, verdict(!resp.Revoked, "ACTIVE", "REVOKED"))
		printTrace(resp.TraceID)
		if err := printJSON(resp); err != nil {
			return err
		}
		if resp.Revoked {
			os.Exit(1)
		}
		return nil
	},
}

var remoteReconstructCmd = &cobra.Command{
	Use:   "reconstruct <correlation-id>",
	Short: "Reconstruct a decision chain from a remote server",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteReconstruct,
}

func runRemoteReconstruct(cmd *cobra.Command, args []string) error {
	if remoteFormat != "json" && remoteFormat != "timeline" {
		return fmt.Errorf("unknown format %q (want json or timeline)", remoteFormat)
	}
	c, err := client.New(remoteAddr)
	if err != nil {
		return err
	}
	defer c.Close()
	resp, events, err := c.Reconstruct(args[0])
	if err != nil {
		return fmt.Errorf("reconstruct: %w", err)
	}
	if remoteFormat == "timeline" {
		fmt.Print(audit.FormatTimeline(resp.CorrelationID, events))
		for _, a := range resp.Alerts {
			fmt.Fprintln(os.Stderr, warnStyle.Sprint(a))
		}
		return nil
	}
	return printJSON(resp)
}
