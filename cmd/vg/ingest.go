package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/config"
	"github.com/vigilops/vigil/internal/ingest"
	"github.com/vigilops/vigil/internal/rules"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the sensor intake server",
}

var ingestServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP intake endpoint for ambient sensor reports",
	Long: `Serve POST /api/ingest/ambient for sensor adapters. Requests are
HMAC-validated when a secret is configured, malformed payloads land in
the dead letter file, and the rules file is hot-reloaded on change.
Runs until SIGINT or SIGTERM, then drains in-flight requests.`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if !cmd.Flags().Changed("addr") {
			addr = config.GetString("ingest.addr")
		}

		var secret []byte
		if cmd.Flags().Changed("secret") {
			s, _ := cmd.Flags().GetString("secret")
			secret = []byte(s)
		} else {
			resolved, err := cfg.ResolveIngestSecret(vigilDir)
			if err != nil {
				FatalError("%v", err)
			}
			secret = resolved
		}
		if len(secret) == 0 {
			WarnError("no ingest secret configured; accepting unsigned payloads")
		}

		server := ingest.NewServer(ingest.ServerConfig{
			Activities: svc,
			Secret:     secret,
			DeadLetter: ingest.NewDeadLetter(ingest.DeadLetterPath(vigilDir)),
			Logger:     logger,
		})

		// Hot-reload the rules file so escalation changes do not need a
		// restart. Validation failures keep the old set.
		if path := effectiveRulesPath(); path != "" {
			go func() {
				err := rules.Watch(rootCtx, path, logger, func(rs *rules.RuleSet) {
					if err := svc.SetRules(rs); err != nil {
						logger.Warn("rules reload rejected", zap.Error(err))
					}
				})
				if err != nil {
					logger.Warn("rules watch stopped", zap.Error(err))
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(addr)
		}()
		logger.Info("ingest server listening", zap.String("addr", addr))
		if !quietFlag {
			fmt.Printf("Ingest server listening on %s (Ctrl-C to stop)\n", addr)
		}

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				FatalError("ingest server: %v", err)
			}
		case <-rootCtx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				WarnError("shutdown: %v", err)
			}
			logger.Info("ingest server stopped")
		}
	},
}

func init() {
	ingestServeCmd.Flags().String("addr", ":8640", "Listen address (default from VIGIL_INGEST_ADDR / config.yaml)")
	ingestServeCmd.Flags().String("secret", "", "HMAC secret (default from ingest_secret_ref in config.json)")

	ingestCmd.AddCommand(ingestServeCmd)
	rootCmd.AddCommand(ingestCmd)
}
