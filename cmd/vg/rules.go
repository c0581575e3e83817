package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/types"
	"github.com/vigilops/vigil/internal/ui"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate escalation rules",
	Long: `Rules drive status transitions, auto-escalation, default
priorities, system tagging, and retention periods. A YAML rules file
overrides the compiled-in defaults section by section.`,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate a rules file",
	Long: `Validate a rules file without loading it into an engine. With no
argument, checks the configured rules file. Every validation error is
reported, not just the first.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loadProjectConfig()
		path := effectiveRulesPath()
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			fmt.Printf("%s no rules file configured; compiled-in defaults apply\n", ui.RenderInfoIcon())
			return
		}
		rs, err := rules.LoadFile(path)
		if err != nil {
			if jsonOutput {
				outputJSON(map[string]any{"path": path, "valid": false, "error": err.Error()})
				os.Exit(1)
			}
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]any{"path": path, "valid": true})
			return
		}
		fmt.Printf("%s %s: %d transition(s), %d escalation(s)\n",
			ui.RenderPassIcon(), path, len(rs.Transitions), len(rs.Escalations))
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective rule set",
	Run: func(cmd *cobra.Command, args []string) {
		loadProjectConfig()
		rs := loadRuleSet()
		if jsonOutput {
			outputJSON(rs)
			return
		}

		source := effectiveRulesPath()
		if source == "" {
			source = "compiled-in defaults"
		}
		fmt.Printf("Rules from %s\n\n", ui.RenderAccent(source))

		fmt.Println("Transitions:")
		for _, t := range rs.Transitions {
			roles := make([]string, len(t.Roles))
			for i, r := range t.Roles {
				roles[i] = string(r)
			}
			line := fmt.Sprintf("  %-8s %s -> %s  [%s]", t.Entity, t.From, t.To, strings.Join(roles, ", "))
			if t.RequiresApproval {
				line += " " + ui.RenderWarn("(approval)")
			}
			fmt.Println(line)
		}

		fmt.Println("\nEscalations:")
		for _, e := range rs.Escalations {
			switch e.Condition {
			case rules.CondConditional:
				preds := make([]string, len(e.Predicates))
				for i, p := range e.Predicates {
					preds[i] = fmt.Sprintf("%s %s %s", p.Field, p.Op, p.Value)
				}
				fmt.Printf("  %-18s when %s\n", e.ActivityType, strings.Join(preds, " and "))
			default:
				fmt.Printf("  %-18s %s\n", e.ActivityType, e.Condition)
			}
		}

		fmt.Println("\nDefault priorities:")
		for _, t := range []types.ActivityType{
			types.ActivityMedical, types.ActivitySecurityBreach, types.ActivityPatrol,
			types.ActivityEvidence, types.ActivityBOLEvent, types.ActivityAlert,
			types.ActivityPropertyDamage,
		} {
			fmt.Printf("  %-18s %s\n", t, ui.RenderPriority(string(rs.DefaultPriority(t))))
		}

		fmt.Printf("\nBusiness hours: %02d:00-%02d:00\n", rs.Tags.BusinessHoursStart, rs.Tags.BusinessHoursEnd)
		fmt.Printf("Activity retention: %d day(s)\n", rs.Retention.ActivityDays)
		if len(rs.Retention.CaseYears) > 0 {
			fmt.Println("Case retention:")
			for _, ct := range []types.CaseType{
				types.CaseInvestigation, types.CaseSecurityReview, types.CaseComplianceAudit,
				types.CasePersonnelMatter, types.CasePropertyLoss,
			} {
				if years, ok := rs.Retention.CaseYears[ct]; ok {
					fmt.Printf("  %-18s %d year(s)\n", ct, years)
				}
			}
		}
	},
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rootCmd.AddCommand(rulesCmd)
}
