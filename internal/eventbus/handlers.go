package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// LogHandler mirrors every event into the engine log.
// Priority 10 (runs before persistence taps).
type LogHandler struct {
	log *zap.Logger
}

// NewLogHandler returns a handler logging events at debug level.
func NewLogHandler(log *zap.Logger) *LogHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogHandler{log: log}
}

func (h *LogHandler) ID() string           { return "log" }
func (h *LogHandler) Handles() []EventType { return AllEvents() }
func (h *LogHandler) Priority() int        { return 10 }

func (h *LogHandler) Handle(ctx context.Context, event *Event, result *Result) error {
	h.log.Debug("event",
		zap.String("type", string(event.Type)),
		zap.String("entity", event.Entity),
		zap.String("entity_id", event.EntityID),
		zap.String("actor", event.Actor))
	return nil
}

// FileHandler appends events as JSONL to events.log for offline inspection.
// Priority 20 (runs after logging).
type FileHandler struct {
	mu   sync.Mutex
	path string
}

// EventsFileName is the events tap file name inside the data directory.
const EventsFileName = "events.log"

// NewFileHandler returns a handler appending to path. The file and its
// parent directory are created on first event.
func NewFileHandler(path string) *FileHandler {
	return &FileHandler{path: path}
}

func (h *FileHandler) ID() string           { return "events-file" }
func (h *FileHandler) Handles() []EventType { return AllEvents() }
func (h *FileHandler) Priority() int        { return 20 }

func (h *FileHandler) Handle(ctx context.Context, event *Event, result *Result) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events-file: marshal: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0750); err != nil {
		return fmt.Errorf("events-file: create directory: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec G304 - controlled path
	if err != nil {
		return fmt.Errorf("events-file: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("events-file: write: %w", err)
	}
	return nil
}
