package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/decision"
	"github.com/ppiankov/govtrail/internal/engine"
)

var (
	decisionIn    decision.Input
	eventParams   audit.GenericParams
	eventMetadata map[string]string
)

func init() {
	rootCmd.AddCommand(decisionCmd, eventCmd)

	f := decisionCmd.Flags()
	f.StringVar(&decisionIn.SubjectType, "subject-type", "", "Subject type (required)")
	f.StringVar(&decisionIn.SubjectID, "subject-id", "", "Subject id (required)")
	f.StringVar(&decisionIn.Action, "action", "", "Action evaluated (required)")
	f.StringVar(&decisionIn.Resource, "resource", "", "Resource evaluated (required)")
	f.StringVar(&decisionIn.Effect, "effect", "", "ALLOW or DENY (required)")
	f.StringVar(&decisionIn.PolicyReference, "policy", "", "Policy reference")
	f.StringVar(&decisionIn.Reason, "reason", "", "Decision reason")

	g := eventCmd.Flags()
	g.StringVar(&eventParams.Name, "name", "", "Event name (required)")
	g.StringVar(&eventParams.PrincipalID, "principal", "", "Acting principal")
	g.StringSliceVar(&eventParams.PrincipalChain, "chain", nil, "Principal delegation chain")
	g.StringVar(&eventParams.Action, "action", "", "Action performed")
	g.StringVar(&eventParams.Outcome, "outcome", "", "Outcome (e.g. SUCCESS, FAILURE)")
	g.Int64Var(&eventParams.LatencyMs, "latency-ms", 0, "Latency in milliseconds")
	g.StringToStringVar(&eventMetadata, "meta", nil, "Metadata key=value pairs")
	_ = eventCmd.MarkFlagRequired("name")
}

var decisionCmd = &cobra.Command{
	Use:   "decision",
	Short: "Record an externally made policy decision in the audit trail",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			d, err := e.RecordDecision(traceID, decisionIn)
			if err != nil {
				return err
			}
			printTrace(d.CorrelationID)
			return printJSON(d)
		})
	},
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Record a generic governance event in the audit trail",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(eventMetadata) > 0 {
			eventParams.Metadata = make(map[string]any, len(eventMetadata))
			for k, v := range eventMetadata {
				eventParams.Metadata[k] = v
			}
		}
		return withRuntime(cmd.Context(), func(e *engine.Engine) error {
			ev := e.RecordEvent(traceID, eventParams)
			printTrace(ev.CorrelationID)
			return printJSON(ev)
		})
	},
}
