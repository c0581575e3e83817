package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vigilops/vigil/internal/types"
)

var incidentCmd = &cobra.Command{
	Use:     "incident",
	Aliases: []string{"inc"},
	Short:   "Review and manage escalated incidents",
	Long: `Incidents are activities the escalation rules flagged for human
attention. They start pending; confirming makes them active, dismissing
needs a reason, and resolution closes them out.`,
}

var incidentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List incidents",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.IncidentFilter

		if cmd.Flags().Changed("type") {
			typeStr, _ := cmd.Flags().GetString("type")
			t, err := activityTypeFromFlag(typeStr)
			if err != nil {
				FatalError("%v", err)
			}
			filter.Type = &t
		}
		if cmd.Flags().Changed("status") {
			statusStr, _ := cmd.Flags().GetString("status")
			s := types.IncidentStatus(statusStr)
			if !s.IsValid() {
				FatalError("invalid status %q (valid: pending, active, dismissed, resolved)", statusStr)
			}
			filter.Status = &s
		}
		if cmd.Flags().Changed("priority") {
			priorityStr, _ := cmd.Flags().GetString("priority")
			p, err := priorityFromFlag(priorityStr)
			if err != nil {
				FatalError("%v", err)
			}
			filter.Priority = &p
		}
		if since, _ := cmd.Flags().GetString("since"); since != "" {
			t, err := parseTimeFlag(since)
			if err != nil {
				FatalError("invalid --since value: %v", err)
			}
			filter.CreatedAfter = &t
		}

		sortFlag, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		incs, err := svc.ListIncidents(rootCtx, filter, listOptionsFromFlags(sortFlag, limit, offset))
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(incs)
			return
		}
		if len(incs) == 0 {
			fmt.Println("No incidents found.")
			return
		}
		now := time.Now()
		for _, i := range incs {
			fmt.Println(formatIncidentLine(i, now))
		}
		if !quietFlag {
			fmt.Printf("\n%d incident(s)\n", len(incs))
		}
	},
}

var incidentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show incident details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		inc, err := svc.GetIncident(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(inc)
			return
		}
		var buf strings.Builder
		formatIncidentLong(&buf, inc)
		fmt.Print(buf.String())
	},
}

var incidentConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a pending incident as a real event",
	Long: `Confirm a pending incident, making it active. On a terminal this
walks through an interactive confirmation form; otherwise --yes is
required so scripts cannot confirm by accident.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		yes, _ := cmd.Flags().GetBool("yes")
		reason, _ := cmd.Flags().GetString("reason")

		if !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				FatalErrorWithHint("confirmation requires a terminal", "pass --yes to confirm non-interactively")
			}
			inc, err := svc.GetIncident(rootCtx, id)
			if err != nil {
				FatalError("%v", err)
			}
			confirmed := false
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Confirm incident %s?", inc.ID)).
						Description(fmt.Sprintf("[%s/%s] %s", inc.Type, inc.Priority, inc.Title)).
						Affirmative("Confirm").
						Negative("Cancel").
						Value(&confirmed),
					huh.NewInput().
						Title("Note").
						Description("Recorded in the audit trail (optional)").
						Value(&reason),
				),
			)
			if err := form.Run(); err != nil {
				if err == huh.ErrUserAborted {
					fmt.Fprintln(os.Stderr, "Confirmation cancelled.")
					os.Exit(0)
				}
				FatalError("form error: %v", err)
			}
			if !confirmed {
				fmt.Fprintln(os.Stderr, "Confirmation cancelled.")
				os.Exit(0)
			}
		}

		inc, err := svc.ConfirmIncident(rootCtx, id, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(inc)
			return
		}
		fmt.Printf("Incident %s confirmed by %s\n", inc.ID, inc.ConfirmedBy)
	},
}

var incidentDismissCmd = &cobra.Command{
	Use:   "dismiss <id>",
	Short: "Dismiss a pending incident as a false positive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		if strings.TrimSpace(reason) == "" {
			FatalErrorWithHint("dismissal requires a reason", "pass --reason \"why this is a false positive\"")
		}
		inc, err := svc.DismissIncident(rootCtx, args[0], reason, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(inc)
			return
		}
		fmt.Printf("Incident %s dismissed: %s\n", inc.ID, inc.DismissReason)
	},
}

var incidentResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve an active incident",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		inc, err := svc.ResolveIncident(rootCtx, args[0], actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(inc)
			return
		}
		fmt.Printf("Incident %s resolved\n", inc.ID)
	},
}

func init() {
	incidentListCmd.Flags().StringP("type", "t", "", "Filter by incident type")
	incidentListCmd.Flags().StringP("status", "s", "", "Filter by status")
	incidentListCmd.Flags().StringP("priority", "p", "", "Filter by priority")
	incidentListCmd.Flags().String("since", "", "Created after (e.g. -1d, yesterday, 2026-08-01)")
	incidentListCmd.Flags().String("sort", "", "Sort order: created|updated|priority|status[-desc]")
	incidentListCmd.Flags().Int("limit", 0, "Maximum results (0 = all)")
	incidentListCmd.Flags().Int("offset", 0, "Skip this many results")

	incidentConfirmCmd.Flags().BoolP("yes", "y", false, "Confirm without the interactive prompt")
	incidentConfirmCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	incidentDismissCmd.Flags().String("reason", "", "Why this incident is a false positive (required)")
	incidentResolveCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	incidentCmd.AddCommand(incidentListCmd)
	incidentCmd.AddCommand(incidentShowCmd)
	incidentCmd.AddCommand(incidentConfirmCmd)
	incidentCmd.AddCommand(incidentDismissCmd)
	incidentCmd.AddCommand(incidentResolveCmd)
	rootCmd.AddCommand(incidentCmd)
}
