// Package configfile reads and writes the project metadata file at
// .vigil/config.json. Only durable project identity lives here: backend
// selection, the DSN, the rules file, and a reference to the ingest secret.
// Per-invocation settings come from flags and VIGIL_* env vars in the CLI
// layer, which always win over file values.
package configfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const ConfigFileName = "config.json"

// Backend names accepted in the config file.
const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
)

type Config struct {
	// ProjectID identifies the deployment in audit trails and telemetry.
	ProjectID string `json:"project_id,omitempty"`

	Backend string `json:"backend"`
	DSN     string `json:"dsn,omitempty"`

	// RulesFile points at a YAML rules override, relative to the data dir
	// unless absolute. Empty means the compiled-in defaults.
	RulesFile string `json:"rules_file,omitempty"`

	// IngestSecretRef names where the webhook HMAC secret lives, either
	// "env:NAME" or "file:PATH". The secret itself never goes in this file.
	IngestSecretRef string `json:"ingest_secret_ref,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendMemory,
	}
}

func ConfigPath(vigilDir string) string {
	return filepath.Join(vigilDir, ConfigFileName)
}

// Load reads the config from the data dir. A missing file is not an error;
// it returns (nil, nil) and callers fall back to DefaultConfig.
func Load(vigilDir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(vigilDir)) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config atomically: temp file in the same directory, then
// rename, so a crash never leaves a torn config behind.
func (c *Config) Save(vigilDir string) error {
	if err := os.MkdirAll(vigilDir, 0750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(vigilDir, ConfigFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting config mode: %w", err)
	}
	if err := os.Rename(tmpPath, ConfigPath(vigilDir)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// GetBackend returns the configured backend, defaulting to memory.
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendMemory
	}
	return c.Backend
}

// RulesPath resolves the configured rules file against the data dir.
// Empty means the compiled-in defaults.
func (c *Config) RulesPath(vigilDir string) string {
	if c.RulesFile == "" {
		return ""
	}
	if filepath.IsAbs(c.RulesFile) {
		return c.RulesFile
	}
	return filepath.Join(vigilDir, c.RulesFile)
}

// ResolveIngestSecret dereferences IngestSecretRef. "env:NAME" reads the
// named environment variable, "file:PATH" reads the file (relative paths
// resolve against the data dir). An empty ref yields nil; a literal value
// in the ref is refused so secrets cannot end up committed in the config.
func (c *Config) ResolveIngestSecret(vigilDir string) ([]byte, error) {
	ref := c.IngestSecretRef
	if ref == "" {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v := os.Getenv(name)
		if v == "" {
			return nil, fmt.Errorf("ingest secret env %s is not set", name)
		}
		return []byte(v), nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		if !filepath.IsAbs(path) {
			path = filepath.Join(vigilDir, path)
		}
		data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
		if err != nil {
			return nil, fmt.Errorf("reading ingest secret file: %w", err)
		}
		return bytes.TrimSpace(data), nil
	default:
		return nil, fmt.Errorf("ingest secret ref %q must use env: or file:", ref)
	}
}
