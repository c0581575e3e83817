package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/service"
	"github.com/vigilops/vigil/internal/types"
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Open and manage formal investigation cases",
	Long: `Cases are formal investigations with sequential case numbers,
evidence custody, and gated closure: a case cannot close until it has a
conclusion, recommendations, and every evidence item processed.`,
}

var caseCreateCmd = &cobra.Command{
	Use:     "create [title]",
	Aliases: []string{"open"},
	Short:   "Open a new case",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		titleFlag, _ := cmd.Flags().GetString("title")
		var title string
		switch {
		case len(args) > 0 && titleFlag != "" && args[0] != titleFlag:
			FatalError("cannot specify different titles as both positional argument and --title flag")
		case len(args) > 0:
			title = args[0]
		case titleFlag != "":
			title = titleFlag
		default:
			FatalError("title required")
		}

		input := service.CreateCaseInput{Title: title}
		if cmd.Flags().Changed("type") {
			typeStr, _ := cmd.Flags().GetString("type")
			t, err := caseTypeFromFlag(typeStr)
			if err != nil {
				FatalError("%v", err)
			}
			input.Type = t
		}
		if cmd.Flags().Changed("priority") {
			priorityStr, _ := cmd.Flags().GetString("priority")
			p, err := priorityFromFlag(priorityStr)
			if err != nil {
				FatalError("%v", err)
			}
			input.Priority = p
		}
		input.Lead, _ = cmd.Flags().GetString("lead")
		input.IncidentIDs, _ = cmd.Flags().GetStringSlice("incidents")

		reason, _ := cmd.Flags().GetString("reason")
		c, err := svc.CreateCase(rootCtx, input, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(c)
			return
		}
		fmt.Printf("Opened case %s (%s)\n", c.CaseNumber, c.ID)
		if len(c.IncidentIDs) > 0 {
			fmt.Printf("Linked incidents: %s\n", strings.Join(c.IncidentIDs, ", "))
		}
	},
}

var caseListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List cases",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.CaseFilter

		if cmd.Flags().Changed("type") {
			typeStr, _ := cmd.Flags().GetString("type")
			t, err := caseTypeFromFlag(typeStr)
			if err != nil {
				FatalError("%v", err)
			}
			filter.Type = &t
		}
		if cmd.Flags().Changed("status") {
			statusStr, _ := cmd.Flags().GetString("status")
			s := types.CaseStatus(statusStr)
			if !s.IsValid() {
				FatalError("invalid status %q (valid: open, investigating, evidence_collection, analysis, closed)", statusStr)
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
		if cmd.Flags().Changed("lead") {
			lead, _ := cmd.Flags().GetString("lead")
			filter.LeadInvestigator = &lead
		}
		if cmd.Flags().Changed("incident") {
			incID, _ := cmd.Flags().GetString("incident")
			filter.IncidentID = &incID
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

		cases, err := svc.ListCases(rootCtx, filter, listOptionsFromFlags(sortFlag, limit, offset))
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(cases)
			return
		}
		if len(cases) == 0 {
			fmt.Println("No cases found.")
			return
		}
		now := time.Now()
		for _, c := range cases {
			fmt.Println(formatCaseLine(c, now))
		}
		if !quietFlag {
			fmt.Printf("\n%d case(s)\n", len(cases))
		}
	},
}

var caseShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show case details including status history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := svc.GetCase(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(c)
			return
		}
		var buf strings.Builder
		formatCaseLong(&buf, c)
		fmt.Print(buf.String())
	},
}

var caseStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move a case to a new investigation stage",
	Long: `Move a case through open, investigating, evidence_collection and
analysis. Closing goes through 'vg case close', which enforces the
closure gate; this command refuses the closed status.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		to := types.CaseStatus(args[1])
		if !to.IsValid() {
			FatalError("invalid status %q (valid: open, investigating, evidence_collection, analysis)", args[1])
		}
		if to == types.CaseClosed {
			FatalErrorWithHint("cases close through the closure gate", "use 'vg case close' with --conclusion, --recommendations and --outcome")
		}
		reason, _ := cmd.Flags().GetString("reason")
		c, err := svc.UpdateCaseStatus(rootCtx, args[0], to, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(c)
			return
		}
		fmt.Printf("Case %s is now %s\n", c.CaseNumber, c.Status)
	},
}

var caseCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a case through the closure gate",
	Long: `Close a case. The gate requires a conclusion, recommendations, and
every evidence item processed or archived; a blocked closure reports
what is missing and changes nothing.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var input service.CloseCaseInput
		input.Conclusion, _ = cmd.Flags().GetString("conclusion")
		input.Recommendations, _ = cmd.Flags().GetString("recommendations")

		outcomeStr, _ := cmd.Flags().GetString("outcome")
		if outcomeStr != "" {
			outcome := types.CaseOutcome(outcomeStr)
			if !outcome.IsValid() {
				FatalError("invalid outcome %q (valid: resolved, unfounded, referred, inconclusive)", outcomeStr)
			}
			input.Outcome = outcome
		}

		reason, _ := cmd.Flags().GetString("reason")
		c, err := svc.CloseCase(rootCtx, args[0], input, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(c)
			return
		}
		fmt.Printf("Closed case %s (%s)\n", c.CaseNumber, c.Outcome)
	},
}

func init() {
	caseCreateCmd.Flags().String("title", "", "Case title")
	caseCreateCmd.Flags().StringP("type", "t", "", "Case type: investigation, security-review, compliance-audit, personnel-matter, property-loss")
	caseCreateCmd.Flags().StringP("priority", "p", "", "Priority: low, medium, high, critical")
	caseCreateCmd.Flags().String("lead", "", "Lead investigator (default: acting actor)")
	caseCreateCmd.Flags().StringSlice("incidents", nil, "Incident IDs to link")
	caseCreateCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	caseListCmd.Flags().StringP("type", "t", "", "Filter by case type")
	caseListCmd.Flags().StringP("status", "s", "", "Filter by status")
	caseListCmd.Flags().StringP("priority", "p", "", "Filter by priority")
	caseListCmd.Flags().String("lead", "", "Filter by lead investigator")
	caseListCmd.Flags().String("incident", "", "Filter by linked incident ID")
	caseListCmd.Flags().String("since", "", "Created after (e.g. -1d, yesterday, 2026-08-01)")
	caseListCmd.Flags().String("sort", "", "Sort order: created|updated|priority|status[-desc]")
	caseListCmd.Flags().Int("limit", 0, "Maximum results (0 = all)")
	caseListCmd.Flags().Int("offset", 0, "Skip this many results")

	caseStatusCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	caseCloseCmd.Flags().String("conclusion", "", "What the investigation found")
	caseCloseCmd.Flags().String("recommendations", "", "What should happen next")
	caseCloseCmd.Flags().String("outcome", "", "Outcome: resolved, unfounded, referred, inconclusive")
	caseCloseCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	caseCmd.AddCommand(caseCreateCmd)
	caseCmd.AddCommand(caseListCmd)
	caseCmd.AddCommand(caseShowCmd)
	caseCmd.AddCommand(caseStatusCmd)
	caseCmd.AddCommand(caseCloseCmd)
	rootCmd.AddCommand(caseCmd)
}
