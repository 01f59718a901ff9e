package cli

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(versionInfo())
	},
}

func versionInfo() map[string]string {
	info := map[string]string{
		"name":    "govtrail",
		"version": version,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info["go"] = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info["commit"] = s.Value
		case "vcs.time":
			info["built"] = s.Value
		}
	}
	return info
}
