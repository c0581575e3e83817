package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SetValue writes one setting into vigilDir's config.yaml, creating the
// file when absent. An existing key is updated in place, a commented-out
// key is uncommented, and every other line is preserved byte for byte.
// The key must be registered and the value must pass its validator.
func SetValue(vigilDir, key, value string) error {
	k, ok := LookupKey(key)
	if !ok {
		return fmt.Errorf("unknown config key %q (see 'vg config list')", key)
	}
	if k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}

	path := filepath.Join(vigilDir, FileName)
	content := ""
	data, err := os.ReadFile(path) // #nosec G304 - config file path from vigilDir
	switch {
	case err == nil:
		content = string(data)
	case !os.IsNotExist(err):
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := os.MkdirAll(vigilDir, 0750); err != nil {
		return fmt.Errorf("creating %s: %w", vigilDir, err)
	}
	if err := os.WriteFile(path, []byte(updateYAMLKey(content, key, value)), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteSample writes a fully commented config.yaml documenting every
// registered key, its default, and its environment override. An
// existing file is left untouched.
func WriteSample(vigilDir string) error {
	path := filepath.Join(vigilDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", path, err)
	}

	var b strings.Builder
	b.WriteString("# Vigil local settings. Uncomment a line to override the default.\n")
	b.WriteString("# VIGIL_* environment variables take precedence over this file.\n")
	for _, k := range Keys {
		fmt.Fprintf(&b, "\n# %s (%s)\n", k.Description, k.EnvVar)
		fmt.Fprintf(&b, "# %s: %s\n", k.Name, sampleValue(k.Default))
	}

	if err := os.MkdirAll(vigilDir, 0750); err != nil {
		return fmt.Errorf("creating %s: %w", vigilDir, err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func sampleValue(def any) string {
	switch d := def.(type) {
	case string:
		if d == "" {
			return `""`
		}
		return formatYAMLValue(d)
	default:
		return fmt.Sprint(def)
	}
}

// updateYAMLKey updates key in yaml content, handling commented-out
// keys. Every line carrying the key (commented or not) is replaced in
// place with indentation preserved; a key found nowhere is appended.
func updateYAMLKey(content, key, value string) string {
	newLine := fmt.Sprintf("%s: %s", key, formatYAMLValue(value))

	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if keyPattern.MatchString(line) {
			matches := keyPattern.FindStringSubmatch(line)
			indent := ""
			if len(matches) > 1 {
				indent = matches[1]
			}
			result = append(result, indent+newLine)
			found = true
		} else {
			result = append(result, line)
		}
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}

	return strings.Join(result, "\n")
}

// formatYAMLValue renders value for a yaml line. Booleans, numbers, and
// durations are written bare; everything else is quoted.
func formatYAMLValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) || isDuration(value) {
		return value
	}
	return fmt.Sprintf("%q", value)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	suffix := s[len(s)-1]
	if suffix != 's' && suffix != 'm' && suffix != 'h' {
		return false
	}
	return isNumeric(s[:len(s)-1])
}
