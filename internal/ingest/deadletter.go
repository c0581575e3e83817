package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DeadLetterFileName is the dead-letter file name inside the data directory.
const DeadLetterFileName = "deadletter.jsonl"

// DeadLetterRecord wraps one refused payload with why and when it was refused.
type DeadLetterRecord struct {
	Timestamp time.Time       `json:"ts"`
	Error     string          `json:"error"`
	Payload   json.RawMessage `json:"payload"`
}

// DeadLetter is an append-only JSONL file of refused webhook payloads.
type DeadLetter struct {
	mu   sync.Mutex
	path string
}

// NewDeadLetter returns a dead-letter queue writing to path. The file and its
// parent directory are created on first append.
func NewDeadLetter(path string) *DeadLetter {
	return &DeadLetter{path: path}
}

// Path returns the file this queue appends to.
func (d *DeadLetter) Path() string {
	return d.path
}

// DeadLetterPath returns the dead-letter file path under the data directory,
// typically .vigil/.
func DeadLetterPath(vigilDir string) string {
	return filepath.Join(vigilDir, DeadLetterFileName)
}

// Append records one refused payload. Payloads that are not valid JSON are
// preserved as a quoted string.
func (d *DeadLetter) Append(payload []byte, cause string) error {
	raw := json.RawMessage(payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return fmt.Errorf("failed to quote dead-letter payload: %w", err)
		}
		raw = quoted
	}
	rec := DeadLetterRecord{
		Timestamp: time.Now().UTC(),
		Error:     cause,
		Payload:   raw,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter record: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0750); err != nil {
		return fmt.Errorf("failed to create dead-letter directory: %w", err)
	}
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec G304 - controlled path
	if err != nil {
		return fmt.Errorf("failed to open dead-letter file for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write dead-letter record: %w", err)
	}
	return nil
}

// List reads every record in file order, oldest first. Corrupt lines are
// skipped; the skip count is returned so callers can surface it.
func (d *DeadLetter) List() ([]DeadLetterRecord, int, error) {
	f, err := os.Open(d.path) // #nosec G304 - controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open dead-letter file: %w", err)
	}
	defer f.Close()

	var records []DeadLetterRecord
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec DeadLetterRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("error reading dead-letter file: %w", err)
	}
	return records, skipped, nil
}
