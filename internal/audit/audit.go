// Package audit maintains the append-only audit trail for engine mutations.
// The audit.jsonl file records who changed what and why; entries are never
// rewritten or deleted.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigilops/vigil/internal/types"
)

// FileName is the audit log file name inside the data directory.
const FileName = "audit.jsonl"

// Entity kind labels used in audit entries.
const (
	EntityActivity = "activity"
	EntityIncident = "incident"
	EntityCase     = "case"
	EntityEvidence = "evidence"
	EntityHandler  = "handler"
)

// Entry represents a single audit record.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"ts"`
	ActorID   string            `json:"actor_id"`
	ActorName string            `json:"actor_name"`
	Role      types.Role        `json:"role"`
	Action    string            `json:"action"`
	Entity    string            `json:"entity"`
	EntityID  string            `json:"entity_id"`
	Reason    string            `json:"reason,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Filter selects entries on read. Zero fields match everything.
type Filter struct {
	Entity   string
	EntityID string
	ActorID  string
	Action   string // exact action or "prefix." namespace match
	Since    time.Time
	Limit    int // keep the most recent N after filtering; 0 = all
}

func (f Filter) matches(e Entry) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		if !strings.HasSuffix(f.Action, ".") || !strings.HasPrefix(e.Action, f.Action) {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Log is an append-only JSONL audit trail bound to one file.
type Log struct {
	mu   sync.Mutex
	path string
}

// New returns a log writing to path. The file and its parent directory are
// created on first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the file this log appends to.
func (l *Log) Path() string {
	return l.path
}

// DefaultPath returns the audit log path under the data directory,
// typically .vigil/.
func DefaultPath(vigilDir string) string {
	return filepath.Join(vigilDir, FileName)
}

// Record appends one entry, filling ID and Timestamp when unset, and returns
// the entry id.
func (l *Log) Record(e Entry) (string, error) {
	if e.ActorID == "" {
		return "", fmt.Errorf("audit entry requires an actor id")
	}
	if e.Action == "" {
		return "", fmt.Errorf("audit entry requires an action")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
		return "", fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec G304 - controlled path
	if err != nil {
		return "", fmt.Errorf("failed to open audit log for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("failed to write audit entry: %w", err)
	}
	return e.ID, nil
}

// List reads matching entries in file order, oldest first. Corrupt JSON
// lines are skipped with a warning rather than failing the read; the skip
// count is returned so callers can surface it.
func (l *Log) List(filter Filter) ([]Entry, int, error) {
	f, err := os.Open(l.path) // #nosec G304 - controlled path
	if err != nil {
		if os.IsNotExist(err) {
			// No audit file yet - nothing recorded
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	skipped := 0
	lineNo := 0

	scanner := bufio.NewScanner(f)
	// Allow large lines (up to 1MB) in case of very long detail payloads
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping corrupt line %d in audit log: %v\n", lineNo, err)
			skipped++
			continue
		}
		if e.ID == "" {
			fmt.Fprintf(os.Stderr, "Warning: skipping line %d in audit log: missing id\n", lineNo)
			skipped++
			continue
		}

		if filter.matches(e) {
			entries = append(entries, e)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("error reading audit log: %w", err)
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}
	return entries, skipped, nil
}
