package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/httpapi"
	"github.com/ppiankov/govtrail/internal/server"
)

var (
	serveHTTPAddr string
	serveGRPCPort int
	serveNoGRPC   bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http-addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().IntVar(&serveGRPCPort, "grpc-port", 0, "gRPC listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoGRPC, "no-grpc", false, "Serve the HTTP API only")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the governance HTTP API and gRPC service",
	Long:  "Runs govtrail as a long-lived service. The HTTP API exposes every\ngovernance operation; the gRPC service exposes the hot-path checks used\nby remote agents. The tool classification file is hot-reloaded.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.cfg.HTTP.Addr
	if serveHTTPAddr != "" {
		addr = serveHTTPAddr
	}
	port := rt.cfg.GRPC.Port
	if serveGRPCPort != 0 {
		port = serveGRPCPort
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)

	var grpcSrv *server.Server
	if !serveNoGRPC {
		grpcSrv = server.New(rt.engine, server.Config{Port: port})
		go func() {
			if err := grpcSrv.WatchClassification(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "warning: classification hot-reload disabled: %v\n", err)
			}
		}()
		go func() { errCh <- grpcSrv.Serve() }()
		fmt.Fprintf(os.Stderr, "govtrail gRPC service listening on :%d\n", port)
	}

	api := httpapi.New(rt.engine, nil)
	go func() { errCh <- api.ListenAndServe(ctx, addr) }()
	fmt.Fprintf(os.Stderr, "govtrail HTTP API listening on %s\n", addr)
	fmt.Fprintf(os.Stderr, "State: %s\n", rt.cfg.StateDir)
	fmt.Fprintln(os.Stderr)

	var serveErr error
	select {
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "\nShutting down governance server...")
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return serveErr
}
