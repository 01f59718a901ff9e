package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	govmcp "github.com/ppiankov/govtrail/internal/mcp"
)

var mcpAgent string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAgent, "agent", "", "Agent id used when a tool call names none")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs govtrail as an MCP (Model Context Protocol) server over stdio.\nExposes governance checks: tool authorization, integration access,\nrevocation status and decision chain reconstruction.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := govmcp.New(rt.engine, govmcp.Config{AgentID: mcpAgent, Version: version})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(os.Stderr, "govtrail MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Session trace: %s\n", srv.TraceID())
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
