package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/ui"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail",
	Long: `Read the append-only audit trail. Every mutation records who,
what, when, the acting role, and why. Corrupt lines are skipped with a
warning, never silently dropped.

Action filters match exactly, or a namespace with a trailing dot:
  vg audit --action case.close
  vg audit --action evidence.`,
	Run: func(cmd *cobra.Command, args []string) {
		var filter audit.Filter
		filter.Entity, _ = cmd.Flags().GetString("entity")
		filter.EntityID, _ = cmd.Flags().GetString("id")
		filter.ActorID, _ = cmd.Flags().GetString("actor-id")
		filter.Action, _ = cmd.Flags().GetString("action")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		if since, _ := cmd.Flags().GetString("since"); since != "" {
			t, err := parseTimeFlag(since)
			if err != nil {
				FatalError("invalid --since value: %v", err)
			}
			filter.Since = t
		}

		log := audit.New(audit.DefaultPath(vigilDir))
		entries, skipped, err := log.List(filter)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries match.")
			return
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  %-24s %s/%s  %s (%s)",
				formatTime(e.Timestamp), ui.RenderAccent(e.Action), e.Entity, e.EntityID, e.ActorName, e.Role)
			if e.Reason != "" {
				line += "  " + ui.RenderMuted(e.Reason)
			}
			fmt.Println(line)
			if verboseFlag && len(e.Detail) > 0 {
				parts := make([]string, 0, len(e.Detail))
				for _, k := range slices.Sorted(maps.Keys(e.Detail)) {
					parts = append(parts, k+"="+e.Detail[k])
				}
				fmt.Printf("    %s\n", ui.RenderMuted(strings.Join(parts, " ")))
			}
		}
		if !quietFlag {
			fmt.Printf("\n%d entr(ies)", len(entries))
			if skipped > 0 {
				fmt.Printf(", %d corrupt line(s) skipped", skipped)
			}
			fmt.Println()
		}
	},
}

func init() {
	auditCmd.Flags().String("entity", "", "Filter by entity kind: activity, incident, case, evidence, handler")
	auditCmd.Flags().String("id", "", "Filter by entity ID")
	auditCmd.Flags().String("actor-id", "", "Filter by acting actor")
	auditCmd.Flags().String("action", "", "Filter by action, exact or namespace ('case.')")
	auditCmd.Flags().String("since", "", "Entries after (e.g. -1d, yesterday, 2026-08-01)")
	auditCmd.Flags().Int("limit", 50, "Keep the most recent N entries (0 = all)")

	rootCmd.AddCommand(auditCmd)
}
