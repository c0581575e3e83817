// Package config is the CLI-side settings layer: a process-wide viper
// instance backed by .vigil/config.yaml with VIGIL_* environment
// overrides. Durable project identity (backend, DSN, secret refs) lives
// in .vigil/config.json and belongs to the configfile package;
// everything here is a per-machine operator preference.
//
// Precedence, highest first: explicit Set (the CLI pushes flag values
// down with it), environment, config.yaml, registry default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the settings file name inside the .vigil directory.
const FileName = "config.yaml"

// v is the process-wide viper instance. Nil until Initialize runs;
// every getter tolerates nil so early callers see zero values instead
// of a panic.
var v *viper.Viper

// Initialize rebuilds the settings instance: registry defaults, then
// config.yaml if one is found, then VIGIL_* environment variables on
// top. Calling it again rereads everything.
func Initialize() error {
	nv := viper.New()

	for _, k := range Keys {
		nv.SetDefault(k.Name, k.Default)
	}

	nv.SetEnvPrefix("VIGIL")
	nv.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	nv.AutomaticEnv()

	if path := findConfigYAML(); path != "" {
		nv.SetConfigFile(path)
		if err := nv.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}

	v = nv
	return nil
}

// findConfigYAML locates the settings file: $VIGIL_DIR when set,
// otherwise the nearest .vigil directory walking up from the working
// directory. Returns "" when no file exists; running without one is
// normal.
func findConfigYAML() string {
	if dir := os.Getenv("VIGIL_DIR"); dir != "" {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		path := filepath.Join(dir, ".vigil", FileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// GetString returns the string value for key, or "" before Initialize.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns the boolean value for key, or false before Initialize.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration returns the duration value for key, or zero before
// Initialize.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Get returns the raw value for key, or nil before Initialize.
func Get(key string) any {
	if v == nil {
		return nil
	}
	return v.Get(key)
}

// Set fixes key to value for the rest of the process, overriding
// environment and file values. The CLI uses it to push explicit flag
// values down so every later reader sees one effective value.
func Set(key string, value any) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// AllSettings returns the effective settings map, empty before
// Initialize.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// GetLogLevel returns the configured log level normalized to lower
// case. Unset or unrecognized values fall back to info, with a warning
// on stderr for the unrecognized case.
func GetLogLevel() string {
	value := GetString("log-level")
	if value == "" {
		return "info"
	}
	level := strings.ToLower(strings.TrimSpace(value))
	if err := validateLogLevel(level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid log-level %q in config (valid: debug, info, warn, error), using info\n", value)
		return "info"
	}
	return level
}

// ResetForTesting drops the settings instance so a test can exercise
// pre-Initialize behavior.
func ResetForTesting() {
	v = nil
}
