package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/sop"
	"github.com/vigilops/vigil/internal/types"
	"github.com/vigilops/vigil/internal/ui"
)

var sopCmd = &cobra.Command{
	Use:   "sop",
	Short: "Browse standard operating procedures",
	Long: `The SOP library holds step-by-step procedures keyed by incident
type. Built-ins ship with the binary; .vigil/sops/*.toml files extend or
override them.`,
}

var sopListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List available procedures",
	Run: func(cmd *cobra.Command, args []string) {
		lib := sop.NewLibrary(filepath.Join(vigilDir, "sops"))
		sops, err := lib.List()
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(sops)
			return
		}
		if len(sops) == 0 {
			fmt.Println("No procedures on file.")
			return
		}
		for _, s := range sops {
			kinds := make([]string, len(s.IncidentTypes))
			for i, t := range s.IncidentTypes {
				kinds[i] = string(t)
			}
			source := "built-in"
			if s.Source != "" {
				source = s.Source
			}
			fmt.Printf("%s  %d step(s), ~%dmin  [%s]  %s\n",
				ui.RenderAccent(s.Key), len(s.Steps), s.EstimatedMinutes(),
				strings.Join(kinds, ", "), ui.RenderMuted(source))
		}
	},
}

var sopShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show a procedure as a rendered checklist",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lib := sop.NewLibrary(filepath.Join(vigilDir, "sops"))
		s, err := lib.Load(args[0])
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(s)
			return
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		content := ui.RenderMarkdown(sopMarkdown(s))
		if err := ui.ToPager(content, ui.PagerOptions{NoPager: noPager}); err != nil {
			fmt.Print(content)
		}
	},
}

// sopMarkdown renders a procedure as a markdown checklist document.
func sopMarkdown(s *sop.SOP) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Key)
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Description)
	}
	if len(s.IncidentTypes) > 0 {
		kinds := make([]string, len(s.IncidentTypes))
		for i, t := range s.IncidentTypes {
			kinds[i] = "`" + string(t) + "`"
		}
		fmt.Fprintf(&b, "Applies to: %s\n\n", strings.Join(kinds, ", "))
	}
	b.WriteString("## Steps\n\n")
	for i, step := range s.Steps {
		marker := ""
		if step.Required {
			marker = " **(required)**"
		}
		fmt.Fprintf(&b, "%d. **%s**: %s%s", i+1, step.ID, step.Title, marker)
		var notes []string
		if step.EstimatedMinutes > 0 {
			notes = append(notes, fmt.Sprintf("~%dmin", step.EstimatedMinutes))
		}
		if step.Role != "" {
			notes = append(notes, string(step.Role))
		}
		if len(step.DependsOn) > 0 {
			notes = append(notes, "after "+strings.Join(step.DependsOn, ", "))
		}
		if len(notes) > 0 {
			fmt.Fprintf(&b, " _(%s)_", strings.Join(notes, ", "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nEstimated total: %d minutes\n", s.EstimatedMinutes())
	return b.String()
}

var sopEffectivenessCmd = &cobra.Command{
	Use:   "effectiveness",
	Short: "Report per-incident-type procedure effectiveness",
	Long: `Aggregate SOP effectiveness across every handler's memory:
applications, compliance, resolution latency, and observed deviations.`,
	Run: func(cmd *cobra.Command, args []string) {
		var all []types.SOPEffectiveness
		for _, capability := range svc.Handlers() {
			mem := svc.GetMemory(capability.Key)
			if mem == nil {
				continue
			}
			all = append(all, mem.SOPStats()...)
		}
		if jsonOutput {
			outputJSON(all)
			return
		}
		if len(all) == 0 {
			fmt.Println("No SOP applications recorded yet.")
			return
		}
		for _, eff := range all {
			fmt.Printf("%s (%s)\n", ui.RenderAccent(string(eff.IncidentType)), eff.SOPKey)
			fmt.Printf("  Applications: %d\n", eff.Applications)
			fmt.Printf("  Compliance:   %.0f%%\n", eff.ComplianceRate*100)
			fmt.Printf("  Success rate: %.0f%%\n", eff.SuccessRate*100)
			fmt.Printf("  Avg resolution: %.0fms\n", eff.AvgResolutionMillis)
			if len(eff.Deviations) > 0 {
				fmt.Printf("  Deviations:   %s\n", strings.Join(eff.Deviations, "; "))
			}
		}
	},
}

func init() {
	sopShowCmd.Flags().Bool("no-pager", false, "Do not pipe output through a pager")

	sopCmd.AddCommand(sopListCmd)
	sopCmd.AddCommand(sopShowCmd)
	sopCmd.AddCommand(sopEffectivenessCmd)
	rootCmd.AddCommand(sopCmd)
}
