package configfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendMemory {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendMemory)
	}
	if cfg.ProjectID != "" {
		t.Errorf("ProjectID = %q, want empty", cfg.ProjectID)
	}
	if cfg.DSN != "" {
		t.Errorf("DSN = %q, want empty", cfg.DSN)
	}
}

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/tmp/.vigil")
	want := filepath.Join("/tmp/.vigil", "config.json")
	if got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Errorf("Load on missing file = %+v, want nil", cfg)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	in := &Config{
		ProjectID:       "hq-campus",
		Backend:         BackendMySQL,
		DSN:             "vigil:pw@tcp(127.0.0.1:3306)/vigil",
		RulesFile:       "rules.yaml",
		IngestSecretRef: "env:VIGIL_INGEST_SECRET",
	}
	if err := in.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out == nil {
		t.Fatal("Load returned nil after Save")
	}
	if *out != *in {
		t.Errorf("roundtrip = %+v, want %+v", out, in)
	}
}

func TestSaveAtomicOverwrite(t *testing.T) {
	dir := t.TempDir()
	first := &Config{ProjectID: "first", Backend: BackendMemory}
	if err := first.Save(dir); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	second := &Config{ProjectID: "second", Backend: BackendMemory}
	if err := second.Save(dir); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	out, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.ProjectID != "second" {
		t.Errorf("ProjectID = %q, want %q", out.ProjectID, "second")
	}

	// No temp files may survive a successful save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestSaveCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".vigil")
	cfg := DefaultConfig()
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(ConfigPath(dir)); err != nil {
		t.Errorf("config file missing after Save: %v", err)
	}
}

func TestGetBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		want    string
	}{
		{"empty defaults to memory", "", BackendMemory},
		{"memory", BackendMemory, BackendMemory},
		{"mysql", BackendMySQL, BackendMySQL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Backend: tt.backend}
			if got := cfg.GetBackend(); got != tt.want {
				t.Errorf("GetBackend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRulesPath(t *testing.T) {
	dir := "/data/.vigil"
	tests := []struct {
		name  string
		rules string
		want  string
	}{
		{"empty means defaults", "", ""},
		{"relative joins data dir", "rules.yaml", filepath.Join(dir, "rules.yaml")},
		{"absolute kept as is", "/etc/vigil/rules.yaml", "/etc/vigil/rules.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{RulesFile: tt.rules}
			if got := cfg.RulesPath(dir); got != tt.want {
				t.Errorf("RulesPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveIngestSecretEnv(t *testing.T) {
	t.Setenv("VIGIL_TEST_SECRET", "hunter2")
	cfg := &Config{IngestSecretRef: "env:VIGIL_TEST_SECRET"}
	got, err := cfg.ResolveIngestSecret(t.TempDir())
	if err != nil {
		t.Fatalf("ResolveIngestSecret: %v", err)
	}
	if string(got) != "hunter2" {
		t.Errorf("secret = %q, want %q", got, "hunter2")
	}
}

func TestResolveIngestSecretEnvUnset(t *testing.T) {
	t.Setenv("VIGIL_TEST_SECRET_UNSET", "")
	cfg := &Config{IngestSecretRef: "env:VIGIL_TEST_SECRET_UNSET"}
	if _, err := cfg.ResolveIngestSecret(t.TempDir()); err == nil {
		t.Error("expected error for unset env var")
	}
}

func TestResolveIngestSecretFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "secret"), []byte("s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}

	// Relative path resolves against the data dir; trailing whitespace is
	// trimmed so an editor-added newline does not change the key.
	cfg := &Config{IngestSecretRef: "file:secret"}
	got, err := cfg.ResolveIngestSecret(dir)
	if err != nil {
		t.Fatalf("ResolveIngestSecret: %v", err)
	}
	if string(got) != "s3cret" {
		t.Errorf("secret = %q, want %q", got, "s3cret")
	}

	abs := &Config{IngestSecretRef: "file:" + filepath.Join(dir, "secret")}
	got, err = abs.ResolveIngestSecret(t.TempDir())
	if err != nil {
		t.Fatalf("ResolveIngestSecret abs: %v", err)
	}
	if string(got) != "s3cret" {
		t.Errorf("abs secret = %q, want %q", got, "s3cret")
	}
}

func TestResolveIngestSecretFileMissing(t *testing.T) {
	cfg := &Config{IngestSecretRef: "file:nope"}
	if _, err := cfg.ResolveIngestSecret(t.TempDir()); err == nil {
		t.Error("expected error for missing secret file")
	}
}

func TestResolveIngestSecretLiteralRefused(t *testing.T) {
	cfg := &Config{IngestSecretRef: "hunter2"}
	_, err := cfg.ResolveIngestSecret(t.TempDir())
	if err == nil {
		t.Fatal("expected error for literal secret")
	}
	if !strings.Contains(err.Error(), "env: or file:") {
		t.Errorf("error %q does not name the accepted schemes", err)
	}
}

func TestResolveIngestSecretEmpty(t *testing.T) {
	cfg := &Config{}
	got, err := cfg.ResolveIngestSecret(t.TempDir())
	if err != nil {
		t.Fatalf("ResolveIngestSecret: %v", err)
	}
	if got != nil {
		t.Errorf("secret = %q, want nil", got)
	}
}
