package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/ui"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and reset handler learning memory",
	Long: `Each handler accumulates decision history, success metrics, and
observed patterns that feed back into routing. Reset clears one
handler's memory; the reset itself lands in the audit trail.`,
}

var memoryShowCmd = &cobra.Command{
	Use:   "show <handler-key>",
	Short: "Show a handler's memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mem := svc.GetMemory(args[0])
		if mem == nil {
			FatalErrorWithHint(fmt.Sprintf("unknown handler %q", args[0]), "run 'vg metrics' to list registered handlers")
		}

		metrics := mem.Metrics()
		patterns := mem.Patterns()
		conversations := mem.Conversations()

		if jsonOutput {
			outputJSON(map[string]any{
				"handler":       mem.Key(),
				"metrics":       metrics,
				"patterns":      patterns,
				"conversations": conversations,
			})
			return
		}

		fmt.Printf("%s\n", ui.RenderAccent(mem.Key()))
		fmt.Printf("  Handled:        %d\n", metrics.TotalHandled)
		fmt.Printf("  Avg response:   %.0fms\n", metrics.AvgResponseMillis)
		fmt.Printf("  Resolution:     %s\n", renderRate(metrics.ResolutionRate))
		fmt.Printf("  Escalation:     %.0f%%\n", metrics.EscalationRate*100)
		fmt.Printf("  SOP compliance: %.0f%%\n", metrics.SOPComplianceRate*100)

		if len(patterns) > 0 {
			fmt.Println("\nPatterns:")
			for _, k := range slices.Sorted(maps.Keys(patterns)) {
				fmt.Printf("  %-30s %d\n", k, patterns[k])
			}
		}

		limit, _ := cmd.Flags().GetInt("limit")
		if len(conversations) > 0 && limit != 0 {
			fmt.Println("\nRecent decisions:")
			start := 0
			if limit > 0 && len(conversations) > limit {
				start = len(conversations) - limit
			}
			now := time.Now()
			for _, entry := range conversations[start:] {
				outcome := ui.RenderPass(string(entry.Outcome))
				if entry.Outcome != "success" {
					outcome = ui.RenderWarn(string(entry.Outcome))
				}
				fmt.Printf("  %s %-18s %-16s %s (%.2f, %s ago)\n",
					ui.TreeLast, entry.EntityID, entry.Action, outcome, entry.Confidence, formatAge(entry.Timestamp, now))
			}
		}
	},
}

var memoryResetCmd = &cobra.Command{
	Use:   "reset <handler-key>",
	Short: "Reset a handler's memory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		if err := svc.ResetMemory(args[0], actorContext(reason)); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]any{"handler": args[0], "reset": true})
			return
		}
		fmt.Printf("Reset memory for handler %s\n", args[0])
	},
}

func init() {
	memoryShowCmd.Flags().Int("limit", 10, "Recent decisions to show (0 = none, -1 = all)")
	memoryResetCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	memoryCmd.AddCommand(memoryShowCmd)
	memoryCmd.AddCommand(memoryResetCmd)
	rootCmd.AddCommand(memoryCmd)
}
