package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/types"
	"github.com/vigilops/vigil/internal/ui"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Run orchestrator routing on demand",
	Long: `Routing picks the best handler for an entity by claimed type,
priority, and learned success rate, then records the handler's decision
in its memory. Activities route automatically on creation; this command
re-routes explicitly.`,
}

var routeActivityCmd = &cobra.Command{
	Use:   "activity <id>",
	Short: "Route an activity through the orchestrator",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		dec, err := svc.RouteActivity(rootCtx, args[0], actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		printDecision(dec)
	},
}

var routeIncidentCmd = &cobra.Command{
	Use:   "incident <id>",
	Short: "Route an incident through the orchestrator",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		dec, err := svc.RouteIncident(rootCtx, args[0], actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		printDecision(dec)
	},
}

func printDecision(dec *types.Decision) {
	if jsonOutput {
		outputJSON(dec)
		return
	}
	fmt.Printf("Handler:    %s\n", ui.RenderAccent(dec.HandlerKey))
	fmt.Printf("Action:     %s\n", dec.Action)
	confidence := fmt.Sprintf("%.2f", dec.Confidence)
	if dec.Confidence > types.ResolutionConfidenceThreshold {
		confidence = ui.RenderPass(confidence)
	} else {
		confidence = ui.RenderWarn(confidence)
	}
	fmt.Printf("Confidence: %s\n", confidence)
	if dec.EscalationRequired {
		fmt.Printf("Escalation: %s\n", ui.RenderWarn("required"))
	}
	if len(dec.SOPSteps) > 0 {
		fmt.Printf("SOP steps:  %s\n", strings.Join(dec.SOPSteps, ", "))
	}
	for _, k := range slices.Sorted(maps.Keys(dec.Metadata)) {
		fmt.Printf("  %s: %s\n", k, dec.Metadata[k])
	}
}

func init() {
	routeActivityCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	routeIncidentCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	routeCmd.AddCommand(routeActivityCmd)
	routeCmd.AddCommand(routeIncidentCmd)
	rootCmd.AddCommand(routeCmd)
}
