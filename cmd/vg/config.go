package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vigilops/vigil/internal/config"
	"github.com/vigilops/vigil/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage operator preferences",
	Long: `Operator preferences live in .vigil/config.yaml and can be
overridden per-invocation by VIGIL_* environment variables and flags.
Project identity (backend, DSN, rules file) lives in config.json and is
edited directly, not through this command.`,
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List every config key with its current value",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(config.AllSettings())
			return
		}
		for _, key := range config.Keys {
			value := config.Get(key.Name)
			if value == nil {
				value = key.Default
			}
			rendered := fmt.Sprintf("%v", value)
			if rendered == "" {
				rendered = ui.RenderMuted("(unset)")
			}
			fmt.Printf("%-18s %-12s %s\n", ui.RenderAccent(key.Name), rendered, ui.RenderMuted(key.Description))
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key, ok := config.LookupKey(args[0])
		if !ok {
			FatalErrorWithHint(fmt.Sprintf("unknown config key %q", args[0]), "run 'vg config list' to see available keys")
		}
		value := config.Get(key.Name)
		if value == nil {
			value = key.Default
		}
		if jsonOutput {
			outputJSON(map[string]any{key.Name: value})
			return
		}
		fmt.Printf("%v\n", value)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a config value to .vigil/config.yaml",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.SetValue(vigilDir, args[0], args[1]); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]any{args[0]: args[1]})
			return
		}
		fmt.Printf("Set %s = %s\n", args[0], args[1])
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
