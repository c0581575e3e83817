package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/config"
	"github.com/vigilops/vigil/internal/configfile"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a .vigil data directory",
	Long: `Create the .vigil directory with a config.json, a commented
config.yaml sample, and an empty sops/ directory for local procedure
overrides. Running init in an initialized directory is safe: existing
files are left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Init always targets the working directory (or $VIGIL_DIR), never
		// a data dir discovered in a parent.
		if os.Getenv("VIGIL_DIR") == "" {
			cwd, err := os.Getwd()
			if err != nil {
				FatalError("%v", err)
			}
			vigilDir = filepath.Join(cwd, ".vigil")
		}

		existing, err := configfile.Load(vigilDir)
		if err != nil {
			FatalError("%v", err)
		}

		backend, _ := cmd.Flags().GetString("backend")
		switch backend {
		case configfile.BackendMemory, configfile.BackendMySQL:
		default:
			FatalError("invalid backend %q (valid: memory, mysql)", backend)
		}

		projectCfg := existing
		if projectCfg == nil {
			projectCfg = configfile.DefaultConfig()
		}
		if cmd.Flags().Changed("backend") || projectCfg.Backend == "" {
			projectCfg.Backend = backend
		}
		if cmd.Flags().Changed("dsn") {
			projectCfg.DSN, _ = cmd.Flags().GetString("dsn")
		}
		if cmd.Flags().Changed("project") {
			projectCfg.ProjectID, _ = cmd.Flags().GetString("project")
		}
		if cmd.Flags().Changed("rules-file") {
			projectCfg.RulesFile, _ = cmd.Flags().GetString("rules-file")
		}
		if cmd.Flags().Changed("secret-ref") {
			projectCfg.IngestSecretRef, _ = cmd.Flags().GetString("secret-ref")
		}

		if err := projectCfg.Save(vigilDir); err != nil {
			FatalError("%v", err)
		}
		if err := config.WriteSample(vigilDir); err != nil {
			WarnError("writing config.yaml sample: %v", err)
		}
		sopsDir := filepath.Join(vigilDir, "sops")
		if err := os.MkdirAll(sopsDir, 0750); err != nil {
			WarnError("creating sops dir: %v", err)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"dir":     vigilDir,
				"backend": projectCfg.GetBackend(),
				"created": existing == nil,
			})
			return
		}
		if existing != nil {
			fmt.Printf("Updated %s\n", configfile.ConfigPath(vigilDir))
		} else {
			fmt.Printf("Initialized %s (backend: %s)\n", vigilDir, projectCfg.GetBackend())
			fmt.Printf("  %s      project identity\n", configfile.ConfigFileName)
			fmt.Printf("  %s      operator preferences (commented sample)\n", config.FileName)
			fmt.Printf("  sops/            local procedure overrides\n")
		}
	},
}

func init() {
	initCmd.Flags().String("backend", configfile.BackendMemory, "Storage backend: memory, mysql")
	initCmd.Flags().String("dsn", "", "MySQL DSN (mysql backend)")
	initCmd.Flags().String("project", "", "Project identifier for audit and telemetry")
	initCmd.Flags().String("rules-file", "", "Rules file path, relative to the data dir")
	initCmd.Flags().String("secret-ref", "", "Ingest secret reference (env:NAME or file:PATH)")

	rootCmd.AddCommand(initCmd)
}
