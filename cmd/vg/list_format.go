package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/vigilops/vigil/internal/timeparsing"
	"github.com/vigilops/vigil/internal/types"
	"github.com/vigilops/vigil/internal/ui"
)

// parseTimeFlag parses time strings using the layered time parsing
// architecture. Supports compact durations (-1d, +2w), natural language
// ("yesterday", "next monday"), and absolute formats (2006-01-02, RFC3339).
func parseTimeFlag(s string) (time.Time, error) {
	return timeparsing.ParseRelativeTime(s, time.Now())
}

// listOptionsFromFlags builds ListOptions from the shared --sort/--limit/
// --offset flag values. Sort tokens look like "created-desc" or
// "priority:asc"; unknown fields fall back to created ascending.
func listOptionsFromFlags(sortFlag string, limit, offset int) types.ListOptions {
	field, desc := types.ParseSortOrder(sortFlag)
	return types.ListOptions{
		SortBy:   field,
		SortDesc: desc,
		Limit:    limit,
		Offset:   offset,
	}
}

func activityTypeFromFlag(s string) (types.ActivityType, error) {
	t := types.ActivityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid activity type %q (valid: medical, security-breach, patrol, evidence, bol-event, alert, property-damage)", s)
	}
	return t, nil
}

func priorityFromFlag(s string) (types.Priority, error) {
	p := types.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid priority %q (valid: low, medium, high, critical)", s)
	}
	return p, nil
}

func caseTypeFromFlag(s string) (types.CaseType, error) {
	t := types.CaseType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid case type %q (valid: investigation, security-review, compliance-audit, personnel-matter, property-loss)", s)
	}
	return t, nil
}

// formatActivityLine formats one activity for list output.
// Format: ID [priority] [type] [status] Title (location, age)
func formatActivityLine(a *types.Activity, now time.Time) string {
	var b strings.Builder
	b.WriteString(ui.RenderAccent(a.ID))
	b.WriteString(" [")
	b.WriteString(ui.RenderPriority(string(a.Priority)))
	b.WriteString("] [")
	b.WriteString(string(a.Type))
	b.WriteString("] [")
	b.WriteString(ui.RenderStatus(string(a.Status)))
	b.WriteString("] ")
	if a.Archived {
		b.WriteString(ui.RenderMuted(a.Title + " (archived)"))
	} else {
		b.WriteString(a.Title)
	}
	fmt.Fprintf(&b, "  %s", ui.RenderMuted(fmt.Sprintf("(%s, %s)", a.Location, formatAge(a.CreatedAt, now))))
	return b.String()
}

// formatActivityLong formats one activity with full detail for show output.
func formatActivityLong(buf *strings.Builder, a *types.Activity) {
	fmt.Fprintf(buf, "%s: %s\n", ui.RenderAccent(a.ID), a.Title)
	fmt.Fprintf(buf, "  Type:      %s\n", a.Type)
	fmt.Fprintf(buf, "  Status:    %s\n", ui.RenderStatus(string(a.Status)))
	fmt.Fprintf(buf, "  Priority:  %s\n", ui.RenderPriority(string(a.Priority)))
	fmt.Fprintf(buf, "  Location:  %s\n", a.Location)
	if a.SiteID != "" {
		fmt.Fprintf(buf, "  Site:      %s\n", a.SiteID)
	}
	if a.Reporter != "" {
		fmt.Fprintf(buf, "  Reporter:  %s (%s)\n", a.Reporter, a.ReporterClass)
	}
	if a.Confidence > 0 {
		fmt.Fprintf(buf, "  Confidence: %.2f\n", a.Confidence)
	}
	if a.Description != "" {
		fmt.Fprintf(buf, "  Description: %s\n", a.Description)
	}
	if len(a.SystemTags) > 0 {
		fmt.Fprintf(buf, "  System tags: %s\n", strings.Join(a.SystemTags, ", "))
	}
	if len(a.UserTags) > 0 {
		fmt.Fprintf(buf, "  Tags:      %s\n", strings.Join(a.UserTags, ", "))
	}
	if len(a.IncidentIDs) > 0 {
		fmt.Fprintf(buf, "  Incidents: %s\n", strings.Join(a.IncidentIDs, ", "))
	}
	fmt.Fprintf(buf, "  Created:   %s\n", formatTime(a.CreatedAt))
	fmt.Fprintf(buf, "  Updated:   %s\n", formatTime(a.UpdatedAt))
	fmt.Fprintf(buf, "  Retention: %s\n", formatTime(a.RetentionUntil))
	if a.Archived {
		fmt.Fprintf(buf, "  Archived:  %s\n", formatTime(derefTime(a.ArchivedAt)))
		if a.ArchiveSummary != "" {
			fmt.Fprintf(buf, "  Summary:   %s\n", a.ArchiveSummary)
		}
	}
}

// formatIncidentLine formats one incident for list output.
func formatIncidentLine(i *types.Incident, now time.Time) string {
	var b strings.Builder
	b.WriteString(ui.RenderAccent(i.ID))
	b.WriteString(" [")
	b.WriteString(ui.RenderPriority(string(i.Priority)))
	b.WriteString("] [")
	b.WriteString(string(i.Type))
	b.WriteString("] [")
	b.WriteString(ui.RenderStatus(string(i.Status)))
	b.WriteString("] ")
	b.WriteString(i.Title)
	extra := formatAge(i.CreatedAt, now)
	if i.Status == types.IncidentPending && i.RequiresValidation {
		extra += ", needs review"
	}
	fmt.Fprintf(&b, "  %s", ui.RenderMuted("("+extra+")"))
	return b.String()
}

func formatIncidentLong(buf *strings.Builder, i *types.Incident) {
	fmt.Fprintf(buf, "%s: %s\n", ui.RenderAccent(i.ID), i.Title)
	fmt.Fprintf(buf, "  Type:      %s\n", i.Type)
	fmt.Fprintf(buf, "  Status:    %s\n", ui.RenderStatus(string(i.Status)))
	fmt.Fprintf(buf, "  Priority:  %s\n", ui.RenderPriority(string(i.Priority)))
	fmt.Fprintf(buf, "  Trigger:   %s\n", i.TriggerActivityID)
	fmt.Fprintf(buf, "  Requires validation: %v\n", i.RequiresValidation)
	fmt.Fprintf(buf, "  Dismissible:         %v\n", i.Dismissible)
	if len(i.SystemTags) > 0 {
		fmt.Fprintf(buf, "  System tags: %s\n", strings.Join(i.SystemTags, ", "))
	}
	if i.ConfirmedBy != "" {
		fmt.Fprintf(buf, "  Confirmed: %s by %s\n", formatTime(derefTime(i.ConfirmedAt)), i.ConfirmedBy)
	}
	if i.DismissedBy != "" {
		fmt.Fprintf(buf, "  Dismissed: %s by %s (%s)\n", formatTime(derefTime(i.DismissedAt)), i.DismissedBy, i.DismissReason)
	}
	if len(i.CaseIDs) > 0 {
		fmt.Fprintf(buf, "  Cases:     %s\n", strings.Join(i.CaseIDs, ", "))
	}
	fmt.Fprintf(buf, "  Created:   %s\n", formatTime(i.CreatedAt))
	fmt.Fprintf(buf, "  Updated:   %s\n", formatTime(i.UpdatedAt))
}

// formatCaseLine formats one case for list output.
func formatCaseLine(c *types.Case, now time.Time) string {
	var b strings.Builder
	b.WriteString(ui.RenderAccent(c.CaseNumber))
	b.WriteString(" [")
	b.WriteString(ui.RenderPriority(string(c.Priority)))
	b.WriteString("] [")
	b.WriteString(string(c.Type))
	b.WriteString("] [")
	b.WriteString(ui.RenderStatus(string(c.Status)))
	b.WriteString("] ")
	if c.Status == types.CaseClosed {
		b.WriteString(ui.RenderMuted(c.Title))
	} else {
		b.WriteString(c.Title)
	}
	fmt.Fprintf(&b, "  %s", ui.RenderMuted(fmt.Sprintf("(lead %s, %s)", c.LeadInvestigator, formatAge(c.CreatedAt, now))))
	return b.String()
}

func formatCaseLong(buf *strings.Builder, c *types.Case) {
	fmt.Fprintf(buf, "%s: %s\n", ui.RenderAccent(c.CaseNumber), c.Title)
	fmt.Fprintf(buf, "  ID:        %s\n", c.ID)
	fmt.Fprintf(buf, "  Type:      %s\n", c.Type)
	fmt.Fprintf(buf, "  Status:    %s\n", ui.RenderStatus(string(c.Status)))
	fmt.Fprintf(buf, "  Priority:  %s\n", ui.RenderPriority(string(c.Priority)))
	fmt.Fprintf(buf, "  Lead:      %s\n", c.LeadInvestigator)
	if len(c.IncidentIDs) > 0 {
		fmt.Fprintf(buf, "  Incidents: %s\n", strings.Join(c.IncidentIDs, ", "))
	}
	if len(c.EvidenceIDs) > 0 {
		fmt.Fprintf(buf, "  Evidence:  %d item(s)\n", len(c.EvidenceIDs))
	}
	fmt.Fprintf(buf, "  Created:   %s\n", formatTime(c.CreatedAt))
	fmt.Fprintf(buf, "  Updated:   %s\n", formatTime(c.UpdatedAt))
	fmt.Fprintf(buf, "  Retention: %s\n", formatTime(c.RetentionUntil))
	if c.Status == types.CaseClosed {
		fmt.Fprintf(buf, "  Closed:    %s by %s\n", formatTime(derefTime(c.ClosedAt)), c.ClosedBy)
		fmt.Fprintf(buf, "  Outcome:   %s\n", c.Outcome)
		fmt.Fprintf(buf, "  Conclusion: %s\n", c.Conclusion)
		fmt.Fprintf(buf, "  Recommendations: %s\n", c.Recommendations)
	}
	if len(c.StatusHistory) > 0 {
		buf.WriteString("  History:\n")
		for _, ch := range c.StatusHistory {
			fmt.Fprintf(buf, "    %s %s %s -> %s by %s (%s)\n",
				ui.TreeLast, formatTime(ch.Timestamp), ch.From, ch.To, ch.ChangedBy, ch.Role)
		}
	}
}

// formatEvidenceLine formats one evidence item for list output.
func formatEvidenceLine(e *types.EvidenceItem) string {
	var b strings.Builder
	b.WriteString(ui.RenderAccent(e.ID))
	b.WriteString(" [")
	b.WriteString(string(e.Type))
	b.WriteString("] [")
	b.WriteString(string(e.Classification))
	b.WriteString("] [")
	b.WriteString(ui.RenderStatus(string(e.ProcessingStatus)))
	b.WriteString("] ")
	desc := e.Description
	if desc == "" {
		desc = e.StoragePath
	}
	b.WriteString(ui.TruncateSimple(desc, 60))
	fmt.Fprintf(&b, "  %s", ui.RenderMuted(fmt.Sprintf("(chain %d)", e.ChainLength())))
	return b.String()
}

func formatEvidenceLong(buf *strings.Builder, e *types.EvidenceItem) {
	fmt.Fprintf(buf, "%s\n", ui.RenderAccent(e.ID))
	fmt.Fprintf(buf, "  Case:           %s\n", e.CaseID)
	fmt.Fprintf(buf, "  Type:           %s\n", e.Type)
	fmt.Fprintf(buf, "  Classification: %s\n", e.Classification)
	fmt.Fprintf(buf, "  Processing:     %s\n", ui.RenderStatus(string(e.ProcessingStatus)))
	if e.Description != "" {
		fmt.Fprintf(buf, "  Description:    %s\n", e.Description)
	}
	if e.StoragePath != "" {
		fmt.Fprintf(buf, "  Storage:        %s\n", e.StoragePath)
	}
	if e.ContentHash != "" {
		fmt.Fprintf(buf, "  Hash:           %s\n", ui.TruncateSimple(e.ContentHash, 19))
	}
	verified := ui.RenderFail("no")
	if e.IntegrityVerified {
		verified = ui.RenderPass("yes")
	}
	fmt.Fprintf(buf, "  Verified:       %s\n", verified)
	fmt.Fprintf(buf, "  Collected by:   %s at %s\n", e.CollectedBy, formatTime(e.CreatedAt))
	buf.WriteString("  Chain of custody:\n")
	for _, entry := range e.Chain {
		line := fmt.Sprintf("%s %s %s by %s", ui.TreeLast, formatTime(entry.Timestamp), entry.Action, entry.Actor)
		if entry.Location != "" {
			line += " @ " + entry.Location
		}
		if entry.Condition != "" {
			line += fmt.Sprintf(" [%s]", entry.Condition)
		}
		if entry.Notes != "" {
			line += " - " + entry.Notes
		}
		fmt.Fprintf(buf, "    %s\n", line)
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
