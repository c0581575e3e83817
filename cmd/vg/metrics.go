package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/types"
	"github.com/vigilops/vigil/internal/ui"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show orchestrator metrics",
	Long: `Show the orchestrator counter snapshot and each handler's running
aggregates: volume handled, response time, resolution and escalation
rates, SOP compliance.`,
	Run: func(cmd *cobra.Command, args []string) {
		system := svc.SystemMetrics()
		capabilities := svc.Handlers()

		if jsonOutput {
			handlers := make(map[string]types.SuccessMetrics, len(capabilities))
			for _, capability := range capabilities {
				if mem := svc.GetMemory(capability.Key); mem != nil {
					handlers[capability.Key] = mem.Metrics()
				}
			}
			outputJSON(map[string]any{
				"system":   system,
				"handlers": handlers,
			})
			return
		}

		fmt.Printf("Handlers registered: %d\n", system.AgentCount)
		fmt.Printf("Last processed:      %s\n", formatTime(system.LastProcessed))
		fmt.Println()

		for _, capability := range capabilities {
			mem := svc.GetMemory(capability.Key)
			if mem == nil {
				continue
			}
			m := mem.Metrics()
			claims := "all types"
			if len(capability.Claims) > 0 {
				parts := make([]string, len(capability.Claims))
				for i, t := range capability.Claims {
					parts[i] = string(t)
				}
				claims = strings.Join(parts, ", ")
			}
			fmt.Printf("%s (priority %d, claims %s)\n", ui.RenderAccent(capability.Key), capability.Priority, claims)
			if m.TotalHandled == 0 {
				fmt.Printf("  %s\n", ui.RenderMuted("no decisions yet"))
				continue
			}
			fmt.Printf("  Handled:       %d\n", m.TotalHandled)
			fmt.Printf("  Avg response:  %.0fms\n", m.AvgResponseMillis)
			fmt.Printf("  Resolution:    %s\n", renderRate(m.ResolutionRate))
			fmt.Printf("  Escalation:    %.0f%%\n", m.EscalationRate*100)
			fmt.Printf("  SOP compliance: %.0f%%\n", m.SOPComplianceRate*100)
			fmt.Printf("  Last processed: %s\n", formatAge(m.LastProcessed, time.Now()))
		}
	},
}

// renderRate colors a 0..1 rate: green above the resolution threshold,
// yellow otherwise.
func renderRate(rate float64) string {
	s := fmt.Sprintf("%.0f%%", rate*100)
	if rate > types.ResolutionConfidenceThreshold {
		return ui.RenderPass(s)
	}
	return ui.RenderWarn(s)
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
