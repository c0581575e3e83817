// Package vigil provides a minimal public API for extending vg with custom
// tooling.
//
// Most extensions should drive the vg CLI or the ingest HTTP endpoint. This
// package exports only the essential types and functions needed for Go-based
// extensions that want to use vg's storage layer programmatically.
package vigil

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vigilops/vigil/internal/configfile"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/storage/factory"
	"github.com/vigilops/vigil/internal/types"
)

// Core types for working with activities, incidents, cases, and evidence
type (
	Activity     = types.Activity
	Incident     = types.Incident
	Case         = types.Case
	EvidenceItem = types.EvidenceItem
	ActorContext = types.ActorContext

	ActivityType   = types.ActivityType
	ActivityStatus = types.ActivityStatus
	IncidentStatus = types.IncidentStatus
	CaseStatus     = types.CaseStatus
	Priority       = types.Priority
	Role           = types.Role

	ActivityFilter = types.ActivityFilter
	IncidentFilter = types.IncidentFilter
	CaseFilter     = types.CaseFilter
	ListOptions    = types.ListOptions
)

// Priority constants
const (
	PriorityLow      = types.PriorityLow
	PriorityMedium   = types.PriorityMedium
	PriorityHigh     = types.PriorityHigh
	PriorityCritical = types.PriorityCritical
)

// ActivityType constants
const (
	ActivityMedical        = types.ActivityMedical
	ActivitySecurityBreach = types.ActivitySecurityBreach
	ActivityPatrol         = types.ActivityPatrol
	ActivityEvidence       = types.ActivityEvidence
	ActivityBOLEvent       = types.ActivityBOLEvent
	ActivityAlert          = types.ActivityAlert
	ActivityPropertyDamage = types.ActivityPropertyDamage
)

// Storage backend names accepted by Open.
const (
	BackendMemory = storage.BackendMemory
	BackendMySQL  = storage.BackendMySQL
)

// Storage provides the minimal interface for extension tooling
type Storage = storage.Storage

// Open opens a vg storage backend for programmatic access. An empty backend
// selects the in-memory store; mysql requires a DSN.
func Open(ctx context.Context, backend, dsn string) (Storage, error) {
	return factory.Open(ctx, backend, dsn)
}

// OpenFromConfig opens the backend configured in vigilDir's config.json.
// A missing config file opens the in-memory store.
func OpenFromConfig(ctx context.Context, vigilDir string) (Storage, error) {
	cfg, err := configfile.Load(vigilDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return factory.Open(ctx, BackendMemory, "")
	}
	return factory.Open(ctx, cfg.GetBackend(), cfg.DSN)
}

// FindVigilDir locates the .vigil directory for the current working
// directory: VIGIL_DIR wins, then the nearest .vigil walking toward the
// filesystem root. Returns "" when neither exists.
func FindVigilDir() string {
	if dir := os.Getenv("VIGIL_DIR"); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ".vigil")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}
