package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/config"
	"github.com/vigilops/vigil/internal/lockfile"
	"github.com/vigilops/vigil/internal/retention"
	"github.com/vigilops/vigil/internal/ui"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Archive expired activities and flag expired cases",
}

var retentionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a retention sweep",
	Long: `Scan for activities past their retention deadline and archive them,
summarizing the ones that fed a resolved incident when an API key is
available. Expired cases are flagged for review, never auto-archived.
Sweeps take a lock file, so overlapping runs are refused.

--watch repeats the sweep on the configured interval until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		watch, _ := cmd.Flags().GetBool("watch")

		opts := retention.Options{
			Engine:   svc,
			LockPath: filepath.Join(vigilDir, retention.LockFileName),
			DryRun:   dryRun,
			Logger:   logger,
		}
		summarizer, err := retention.NewSummarizer("")
		switch {
		case err == nil:
			opts.Summarizer = summarizer
		case errors.Is(err, retention.ErrNoAPIKey):
			logger.Debug("sweeping without summaries", zap.Error(err))
		default:
			WarnError("summarizer unavailable: %v", err)
		}

		sweeper, err := retention.NewSweeper(opts)
		if err != nil {
			FatalError("%v", err)
		}

		runSweep(sweeper)
		if !watch {
			return
		}

		interval := config.GetDuration("sweep-interval")
		if interval <= 0 {
			interval = time.Hour
		}
		if !quietFlag {
			fmt.Printf("Sweeping every %s (Ctrl-C to stop)\n", interval)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				runSweep(sweeper)
			}
		}
	},
}

func runSweep(sweeper *retention.Sweeper) {
	report, err := sweeper.Run(rootCtx)
	if err != nil {
		if errors.Is(err, lockfile.ErrLockBusy) {
			WarnError("another sweep is already running")
			return
		}
		FatalError("sweep failed: %v", err)
	}

	if jsonOutput {
		outputJSON(report)
		return
	}
	label := "Sweep"
	if report.DryRun {
		label = "Dry run"
	}
	fmt.Printf("%s: %d scanned, %d archived, %d summarized, %d failed\n",
		label, report.Scanned, report.Archived, report.Summarized, report.Failed)
	if len(report.ExpiredCases) > 0 {
		fmt.Printf("\n%s %d case(s) past retention (review required):\n", ui.RenderWarnIcon(), len(report.ExpiredCases))
		for _, c := range report.ExpiredCases {
			fmt.Printf("  %s [%s] %s, due %s\n", ui.RenderAccent(c.CaseNumber), c.Type, c.Status, formatTime(c.RetentionUntil))
		}
	}
}

func init() {
	retentionSweepCmd.Flags().Bool("dry-run", false, "Report without archiving")
	retentionSweepCmd.Flags().Bool("watch", false, "Repeat on the configured sweep-interval")

	retentionCmd.AddCommand(retentionSweepCmd)
	rootCmd.AddCommand(retentionCmd)
}
