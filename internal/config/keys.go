package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key describes one recognized setting: its config.yaml name, the
// VIGIL_* variable that overrides it, the default, and an optional
// validator applied by vg config set.
type Key struct {
	Name        string
	Description string
	EnvVar      string
	Default     any
	Validate    func(string) error
}

// Keys lists every setting the CLI recognizes. vg config list prints
// this registry, vg config set validates against it, and Initialize
// seeds defaults from it.
var Keys = []Key{
	{
		Name:        "actor",
		Description: "Actor recorded on write operations when --actor is absent",
		EnvVar:      "VIGIL_ACTOR",
		Default:     "",
	},
	{
		Name:        "role",
		Description: "Actor role: officer, supervisor, admin, or system",
		EnvVar:      "VIGIL_ROLE",
		Default:     "officer",
		Validate:    validateRole,
	},
	{
		Name:        "backend",
		Description: "Storage backend override: memory or mysql",
		EnvVar:      "VIGIL_BACKEND",
		Default:     "",
		Validate:    validateBackend,
	},
	{
		Name:        "dsn",
		Description: "MySQL DSN used when the backend is mysql",
		EnvVar:      "VIGIL_DSN",
		Default:     "",
	},
	{
		Name:        "rules-file",
		Description: "Rules YAML overriding the compiled-in tables",
		EnvVar:      "VIGIL_RULES_FILE",
		Default:     "",
	},
	{
		Name:        "decision-timeout",
		Description: "Upper bound on a single handler decision",
		EnvVar:      "VIGIL_DECISION_TIMEOUT",
		Default:     "30s",
		Validate:    validatePositiveDuration,
	},
	{
		Name:        "sweep-interval",
		Description: "Delay between retention sweeps in watch mode",
		EnvVar:      "VIGIL_SWEEP_INTERVAL",
		Default:     "1h",
		Validate:    validatePositiveDuration,
	},
	{
		Name:        "log-level",
		Description: "Log verbosity: debug, info, warn, or error",
		EnvVar:      "VIGIL_LOG_LEVEL",
		Default:     "info",
		Validate:    validateLogLevel,
	},
	{
		Name:        "log-file",
		Description: "Log file path, size-rotated; empty logs to stderr only",
		EnvVar:      "VIGIL_LOG_FILE",
		Default:     "",
	},
	{
		Name:        "ingest.addr",
		Description: "Listen address for vg ingest serve",
		EnvVar:      "VIGIL_INGEST_ADDR",
		Default:     ":8640",
	},
	{
		Name:        "json",
		Description: "Emit machine-readable JSON instead of styled output",
		EnvVar:      "VIGIL_JSON",
		Default:     false,
		Validate:    validateBool,
	},
	{
		Name:        "quiet",
		Description: "Suppress informational output",
		EnvVar:      "VIGIL_QUIET",
		Default:     false,
		Validate:    validateBool,
	},
}

// LookupKey returns the registry entry for name.
func LookupKey(name string) (Key, bool) {
	for _, k := range Keys {
		if k.Name == name {
			return k, true
		}
	}
	return Key{}, false
}

func validateBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("%q is not a boolean", value)
	}
	return nil
}

func validatePositiveDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%q is not a duration (try 30s, 5m, 1h)", value)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateLogLevel(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("%q is not a log level (valid: debug, info, warn, error)", value)
}

func validateBackend(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "memory", "mysql":
		return nil
	}
	return fmt.Errorf("%q is not a backend (valid: memory, mysql)", value)
}

func validateRole(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "officer", "supervisor", "admin", "system":
		return nil
	}
	return fmt.Errorf("%q is not a role (valid: officer, supervisor, admin, system)", value)
}
