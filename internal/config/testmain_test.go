package config

import (
	"fmt"
	"os"
	"testing"
)

// TestMain isolates tests from any real .vigil directory. Initialize
// walks up from the working directory, so a test process started inside
// a checkout carrying its own .vigil/config.yaml would load that file
// and break the default expectations.
func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "vigil-config-tests-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	oldWD, _ := os.Getwd()
	_ = os.Chdir(tmp)
	_ = os.Unsetenv("VIGIL_DIR")
	for _, k := range Keys {
		_ = os.Unsetenv(k.EnvVar)
	}

	code := m.Run()

	_ = os.Chdir(oldWD)
	_ = os.RemoveAll(tmp)
	os.Exit(code)
}
