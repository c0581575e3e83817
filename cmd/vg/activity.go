package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/service"
	"github.com/vigilops/vigil/internal/types"
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	Aliases: []string{"act"},
	Short:   "Create and manage field activities",
	Long: `Activities are the unit of initial observation: a patrol note, an
alarm, a medical call. Creating one runs the escalation rules, so a
critical security breach surfaces as a pending incident immediately.`,
}

var activityCreateCmd = &cobra.Command{
	Use:     "create [title]",
	Aliases: []string{"new"},
	Short:   "Report a new activity",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		titleFlag, _ := cmd.Flags().GetString("title")
		var title string
		switch {
		case len(args) > 0 && titleFlag != "" && args[0] != titleFlag:
			FatalError("cannot specify different titles as both positional argument and --title flag\n  Positional: %q\n  --title:    %q", args[0], titleFlag)
		case len(args) > 0:
			title = args[0]
		case titleFlag != "":
			title = titleFlag
		default:
			FatalError("title required")
		}

		typeStr, _ := cmd.Flags().GetString("type")
		actType, err := activityTypeFromFlag(typeStr)
		if err != nil {
			FatalError("%v", err)
		}

		input := service.CreateActivityInput{
			Type:  actType,
			Title: title,
		}
		input.Description, _ = cmd.Flags().GetString("description")
		input.Location, _ = cmd.Flags().GetString("location")
		input.SiteID, _ = cmd.Flags().GetString("site")
		input.UserTags, _ = cmd.Flags().GetStringSlice("tags")

		if cmd.Flags().Changed("priority") {
			priorityStr, _ := cmd.Flags().GetString("priority")
			input.Priority, err = priorityFromFlag(priorityStr)
			if err != nil {
				FatalError("%v", err)
			}
		}
		if cmd.Flags().Changed("confidence") {
			input.Confidence, _ = cmd.Flags().GetFloat64("confidence")
		}

		reason, _ := cmd.Flags().GetString("reason")
		act, err := svc.CreateActivity(rootCtx, input, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(act)
			return
		}
		fmt.Printf("Created activity %s (%s, %s)\n", act.ID, act.Type, act.Priority)
		if len(act.IncidentIDs) > 0 {
			fmt.Printf("Escalated to incident %s (pending confirmation)\n", strings.Join(act.IncidentIDs, ", "))
		}
	},
}

var activityListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List activities",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.ActivityFilter

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
			s := types.ActivityStatus(statusStr)
			if !s.IsValid() {
				FatalError("invalid status %q (valid: detecting, assigned, responding, resolved)", statusStr)
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
		if cmd.Flags().Changed("site") {
			site, _ := cmd.Flags().GetString("site")
			filter.SiteID = &site
		}
		if cmd.Flags().Changed("reporter") {
			reporter, _ := cmd.Flags().GetString("reporter")
			filter.Reporter = &reporter
		}
		filter.Tags, _ = cmd.Flags().GetStringSlice("tags")
		filter.TitleContains, _ = cmd.Flags().GetString("search")

		if since, _ := cmd.Flags().GetString("since"); since != "" {
			t, err := parseTimeFlag(since)
			if err != nil {
				FatalError("invalid --since value: %v", err)
			}
			filter.CreatedAfter = &t
		}
		if cmd.Flags().Changed("archived") {
			archived, _ := cmd.Flags().GetBool("archived")
			filter.Archived = &archived
		}

		sortFlag, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		acts, err := svc.ListActivities(rootCtx, filter, listOptionsFromFlags(sortFlag, limit, offset))
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(acts)
			return
		}
		if len(acts) == 0 {
			fmt.Println("No activities found.")
			return
		}
		now := time.Now()
		for _, a := range acts {
			fmt.Println(formatActivityLine(a, now))
		}
		if !quietFlag {
			fmt.Printf("\n%d activit(ies)\n", len(acts))
		}
	},
}

var activityShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show activity details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		act, err := svc.GetActivity(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(act)
			return
		}
		var buf strings.Builder
		formatActivityLong(&buf, act)
		fmt.Print(buf.String())
	},
}

var activityStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move an activity to a new response status",
	Long: `Move an activity through detecting, assigned, responding, resolved.
Officers move strictly forward; backward moves need a supervisor or admin
role and are recorded in the audit trail with the acting role.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		to := types.ActivityStatus(args[1])
		if !to.IsValid() {
			FatalError("invalid status %q (valid: detecting, assigned, responding, resolved)", args[1])
		}
		reason, _ := cmd.Flags().GetString("reason")
		act, err := svc.UpdateActivityStatus(rootCtx, args[0], to, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(act)
			return
		}
		fmt.Printf("Activity %s is now %s\n", act.ID, act.Status)
	},
}

var activityTagCmd = &cobra.Command{
	Use:   "tag <id> <tag>...",
	Short: "Add user tags to an activity",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		act, err := svc.TagActivity(rootCtx, args[0], args[1:], actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(act)
			return
		}
		fmt.Printf("Activity %s tags: %s\n", act.ID, strings.Join(act.UserTags, ", "))
	},
}

var activityArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive an expired activity",
	Long: `Archive a resolved activity past its retention deadline, replacing
its body with a summary. Archival is the normal end of an activity's
lifecycle; nothing is ever hard-deleted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		summary, _ := cmd.Flags().GetString("summary")
		reason, _ := cmd.Flags().GetString("reason")
		act, err := svc.ArchiveActivity(rootCtx, args[0], summary, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(act)
			return
		}
		fmt.Printf("Archived activity %s\n", act.ID)
	},
}

func init() {
	activityCreateCmd.Flags().String("title", "", "Activity title")
	activityCreateCmd.Flags().StringP("type", "t", "", "Activity type: medical, security-breach, patrol, evidence, bol-event, alert, property-damage")
	activityCreateCmd.Flags().StringP("description", "d", "", "Longer description")
	activityCreateCmd.Flags().StringP("priority", "p", "", "Priority: low, medium, high, critical (default from rules)")
	activityCreateCmd.Flags().StringP("location", "l", "", "Where this happened")
	activityCreateCmd.Flags().String("site", "", "Site identifier")
	activityCreateCmd.Flags().Float64("confidence", 0, "Detection confidence 0..1 (sensor reports)")
	activityCreateCmd.Flags().StringSlice("tags", nil, "User tags (comma-separated)")
	activityCreateCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	_ = activityCreateCmd.MarkFlagRequired("type")
	_ = activityCreateCmd.MarkFlagRequired("location")

	activityListCmd.Flags().StringP("type", "t", "", "Filter by activity type")
	activityListCmd.Flags().StringP("status", "s", "", "Filter by status")
	activityListCmd.Flags().StringP("priority", "p", "", "Filter by priority")
	activityListCmd.Flags().String("site", "", "Filter by site")
	activityListCmd.Flags().String("reporter", "", "Filter by reporter")
	activityListCmd.Flags().StringSlice("tags", nil, "Require all of these tags")
	activityListCmd.Flags().String("search", "", "Filter by title substring")
	activityListCmd.Flags().String("since", "", "Created after (e.g. -1d, yesterday, 2026-08-01)")
	activityListCmd.Flags().Bool("archived", false, "Filter by archived state")
	activityListCmd.Flags().String("sort", "", "Sort order: created|updated|priority|status[-desc]")
	activityListCmd.Flags().Int("limit", 0, "Maximum results (0 = all)")
	activityListCmd.Flags().Int("offset", 0, "Skip this many results")

	activityStatusCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	activityTagCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	activityArchiveCmd.Flags().String("summary", "", "Archive summary replacing the body")
	activityArchiveCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	activityCmd.AddCommand(activityCreateCmd)
	activityCmd.AddCommand(activityListCmd)
	activityCmd.AddCommand(activityShowCmd)
	activityCmd.AddCommand(activityStatusCmd)
	activityCmd.AddCommand(activityTagCmd)
	activityCmd.AddCommand(activityArchiveCmd)
	rootCmd.AddCommand(activityCmd)
}
