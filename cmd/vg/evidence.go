package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/custody"
	"github.com/vigilops/vigil/internal/types"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Track evidence and its chain of custody",
	Long: `Every evidence item carries an append-only chain of custody that is
born with the collection record and grows with each transfer, processing
step, and verification. The chain is never edited.`,
}

var evidenceAddCmd = &cobra.Command{
	Use:     "add <case-id>",
	Aliases: []string{"collect"},
	Short:   "Collect a new evidence item for a case",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typeStr, _ := cmd.Flags().GetString("type")
		evType := types.EvidenceType(typeStr)
		if !evType.IsValid() {
			FatalError("invalid evidence type %q (valid: photo, video, document, physical, digital, witness-statement, expert-analysis)", typeStr)
		}
		classStr, _ := cmd.Flags().GetString("classification")
		class := types.Classification(classStr)
		if !class.IsValid() {
			FatalError("invalid classification %q (valid: public, internal, confidential, restricted)", classStr)
		}

		input := custody.CollectInput{
			Type:           evType,
			Classification: class,
		}
		input.Description, _ = cmd.Flags().GetString("description")
		input.StoragePath, _ = cmd.Flags().GetString("path")
		input.Location, _ = cmd.Flags().GetString("location")
		input.Notes, _ = cmd.Flags().GetString("notes")

		reason, _ := cmd.Flags().GetString("reason")
		item, err := svc.AddEvidence(rootCtx, args[0], input, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(item)
			return
		}
		fmt.Printf("Collected evidence %s for case %s\n", item.ID, item.CaseID)
	},
}

var evidenceTransferCmd = &cobra.Command{
	Use:   "transfer <evidence-id>",
	Short: "Transfer custody of an evidence item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		to, _ := cmd.Flags().GetString("to")
		if to == "" {
			FatalError("--to is required")
		}
		reason, _ := cmd.Flags().GetString("reason")
		if strings.TrimSpace(reason) == "" {
			FatalErrorWithHint("transfers require a reason", "pass --reason \"why custody is changing hands\"")
		}

		condition := types.ConditionGood
		if cmd.Flags().Changed("condition") {
			condStr, _ := cmd.Flags().GetString("condition")
			condition = types.EvidenceCondition(condStr)
			switch condition {
			case types.ConditionGood, types.ConditionDamaged, types.ConditionCompromised:
			default:
				FatalError("invalid condition %q (valid: good, damaged, compromised)", condStr)
			}
		}
		reverified, _ := cmd.Flags().GetBool("reverified")

		item, err := svc.TransferEvidence(rootCtx, args[0], to, reason, condition, reverified, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(item)
			return
		}
		fmt.Printf("Evidence %s transferred to %s (chain length %d)\n", item.ID, to, item.ChainLength())
	},
}

var evidenceProcessCmd = &cobra.Command{
	Use:   "process <evidence-id>",
	Short: "Record a processing result for an evidence item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		statusStr, _ := cmd.Flags().GetString("status")
		status := types.ProcessingStatus(statusStr)
		if !status.IsValid() {
			FatalError("invalid processing status %q (valid: pending, in_progress, processed, rejected, requires_analysis, archived)", statusStr)
		}
		notes, _ := cmd.Flags().GetString("notes")
		reason, _ := cmd.Flags().GetString("reason")

		item, err := svc.ProcessEvidence(rootCtx, args[0], custody.ProcessResult{Status: status, Notes: notes}, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(item)
			return
		}
		fmt.Printf("Evidence %s processing: %s\n", item.ID, item.ProcessingStatus)
	},
}

var evidenceVerifyCmd = &cobra.Command{
	Use:   "verify <evidence-id>",
	Short: "Record an integrity verification",
	Long: `Record an integrity check against the stored reference. A failed
verification clears the integrity flag and is just as much part of the
custody chain as a pass.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed, _ := cmd.Flags().GetBool("failed")
		notes, _ := cmd.Flags().GetString("notes")
		reason, _ := cmd.Flags().GetString("reason")

		item, err := svc.VerifyEvidence(rootCtx, args[0], !failed, notes, actorContext(reason))
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(item)
			return
		}
		if item.IntegrityVerified {
			fmt.Printf("Evidence %s integrity verified\n", item.ID)
		} else {
			fmt.Printf("Evidence %s failed verification\n", item.ID)
		}
	},
}

var evidenceShowCmd = &cobra.Command{
	Use:   "show <evidence-id>",
	Short: "Show an evidence item and its custody chain",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		item, err := svc.GetEvidence(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(item)
			return
		}
		var buf strings.Builder
		formatEvidenceLong(&buf, item)
		fmt.Print(buf.String())
	},
}

var evidenceListCmd = &cobra.Command{
	Use:     "list <case-id>",
	Aliases: []string{"ls"},
	Short:   "List a case's evidence items",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		items, err := svc.ListCaseEvidence(rootCtx, args[0])
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(items)
			return
		}
		if len(items) == 0 {
			fmt.Println("No evidence on file.")
			return
		}
		for _, item := range items {
			fmt.Println(formatEvidenceLine(item))
		}
		if !quietFlag {
			fmt.Printf("\n%d item(s)\n", len(items))
		}
	},
}

func init() {
	evidenceAddCmd.Flags().StringP("type", "t", "", "Evidence type: photo, video, document, physical, digital, witness-statement, expert-analysis")
	evidenceAddCmd.Flags().StringP("classification", "c", "internal", "Sensitivity: public, internal, confidential, restricted")
	evidenceAddCmd.Flags().StringP("description", "d", "", "What this item is")
	evidenceAddCmd.Flags().String("path", "", "Storage path or locker reference")
	evidenceAddCmd.Flags().StringP("location", "l", "", "Where it was collected")
	evidenceAddCmd.Flags().String("notes", "", "Collection notes")
	evidenceAddCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	_ = evidenceAddCmd.MarkFlagRequired("type")

	evidenceTransferCmd.Flags().String("to", "", "Actor receiving custody (required)")
	evidenceTransferCmd.Flags().String("condition", "good", "Observed condition: good, damaged, compromised")
	evidenceTransferCmd.Flags().Bool("reverified", false, "Integrity was re-checked at handoff")
	evidenceTransferCmd.Flags().String("reason", "", "Why custody is changing hands (required)")

	evidenceProcessCmd.Flags().StringP("status", "s", "", "Resulting status: pending, in_progress, processed, rejected, requires_analysis, archived")
	evidenceProcessCmd.Flags().String("notes", "", "Processing notes")
	evidenceProcessCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	_ = evidenceProcessCmd.MarkFlagRequired("status")

	evidenceVerifyCmd.Flags().Bool("failed", false, "Record a failed verification")
	evidenceVerifyCmd.Flags().String("notes", "", "Verification notes")
	evidenceVerifyCmd.Flags().String("reason", "", "Reason recorded in the audit trail")

	evidenceCmd.AddCommand(evidenceAddCmd)
	evidenceCmd.AddCommand(evidenceTransferCmd)
	evidenceCmd.AddCommand(evidenceProcessCmd)
	evidenceCmd.AddCommand(evidenceVerifyCmd)
	evidenceCmd.AddCommand(evidenceShowCmd)
	evidenceCmd.AddCommand(evidenceListCmd)
	caseCmd.AddCommand(evidenceCmd)
}
