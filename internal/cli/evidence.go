package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/engine"
	"github.com/ppiankov/govtrail/internal/evidence"
)

var (
	packParams        evidence.Params
	reconstructFormat string
)

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidencePackCmd, evidenceReconstructCmd, evidenceValidateCmd)

	evidencePackCmd.Flags().IntVar(&packParams.HoursBack, "hours-back", 0, "Window in hours, 1-720 (default 24)")
	evidencePackCmd.Flags().BoolVar(&packParams.IncludeDecisions, "include-decisions", true, "Include the policy decision section")
	evidencePackCmd.Flags().BoolVar(&packParams.IncludeCatalog, "include-catalog", true, "Include the principal catalog section")

	evidenceReconstructCmd.Flags().StringVar(&reconstructFormat, "format", "json", "Output format: json or timeline")
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Evidence packs and decision chain reconstruction",
}

var evidencePackCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build a point-in-time evidence pack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			pack, err := e.EvidencePack(cmd.Context(), packParams)
			if err != nil {
				return err
			}
			return printJSON(pack)
		})
	},
}

var evidenceReconstructCmd = &cobra.Command{
	Use:   "reconstruct <correlation-id>",
	Short: "Reconstruct the decision chain for one correlation id",
	Long:  "Collects every event sharing the correlation id from the journal and\nevent database, verifies each event hash and checks the chain for\nmissing workflow steps. Exits 1 when the chain is incomplete.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reconstructFormat != "json" && reconstructFormat != "timeline" {
			return fmt.Errorf("unknown format %q (want json or timeline)", reconstructFormat)
		}
		var complete bool
		err := withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rec, err := e.Reconstruct(args[0])
			if err != nil {
				return err
			}
			complete = rec.Complete
			if reconstructFormat == "timeline" {
				fmt.Print(audit.FormatTimeline(rec.CorrelationID, rec.Events))
				for _, a := range rec.Alerts {
					fmt.Fprintln(os.Stderr, warnStyle.Sprint(a))
				}
				return nil
			}
			return printJSON(rec)
		})
		if err != nil {
			return err
		}
		if !complete {
			os.Exit(1)
		}
		return nil
	},
}

var evidenceValidateCmd = &cobra.Command{
	Use:   "validate <events.json>",
	Short: "Verify the integrity hash of each event in a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}
		events, err := audit.DecodeAll(data)
		if err != nil {
			return err
		}
		var allValid bool
		err = withRuntime(cmd.Context(), func(e *engine.Engine) error {
			rep := e.ValidateIntegrity(events)
			allValid = rep.AllValid
			fmt.Fprintf(os.Stderr, "%s %d/%d valid, %d tampered, %d missing hash\n",
				verdict(rep.AllValid, "OK", "TAMPERED"), rep.Valid, rep.Total, rep.Tampered, rep.MissingHash)
			return printJSON(rep)
		})
		if err != nil {
			return err
		}
		if !allValid {
			os.Exit(1)
		}
		return nil
	},
}
