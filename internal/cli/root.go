package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configPath string
	traceID    string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "govtrail",
	Short: "Governance and audit engine for AI agent platforms",
	Long:  "Tracks agent tool authorization, third-party integration allowlists and emergency revocations.\nEvery decision is recorded as an integrity-hashed audit event that can be reconstructed by correlation id.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.govtrail/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&traceID, "trace", "", "Correlation id to record events under (generated when empty)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
