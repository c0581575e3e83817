// Package storage provides shared types for engine persistence.
//
// The concrete backends live in the memory and mysql sub-packages. This
// package holds the interface and sentinel errors referenced by both the
// backends and their consumers (internal/service, cmd/vg).
package storage

import (
	"context"
	"errors"

	"github.com/vigilops/vigil/internal/types"
)

// Backend names accepted by the factory.
const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating an entity whose id is already taken.
var ErrAlreadyExists = errors.New("already exists")

// ErrClosed is returned by every operation after Close has been called.
var ErrClosed = errors.New("storage is closed")

// Storage is the interface satisfied by the memory and mysql backends.
// Consumers depend on this interface rather than on a concrete type so that
// alternative implementations (mocks, proxies, etc.) can be substituted.
//
// Updates are last-write-wins: the stored entity is replaced wholesale with
// the given value. There is no optimistic locking; the service layer
// serializes writes per entity id.
type Storage interface {
	// Activities
	CreateActivity(ctx context.Context, act *types.Activity) error
	GetActivity(ctx context.Context, id string) (*types.Activity, error)
	UpdateActivity(ctx context.Context, act *types.Activity) error
	ListActivities(ctx context.Context, filter types.ActivityFilter, opts types.ListOptions) ([]*types.Activity, error)

	// Incidents
	CreateIncident(ctx context.Context, inc *types.Incident) error
	GetIncident(ctx context.Context, id string) (*types.Incident, error)
	UpdateIncident(ctx context.Context, inc *types.Incident) error
	ListIncidents(ctx context.Context, filter types.IncidentFilter, opts types.ListOptions) ([]*types.Incident, error)

	// Cases
	CreateCase(ctx context.Context, c *types.Case) error
	GetCase(ctx context.Context, id string) (*types.Case, error)
	UpdateCase(ctx context.Context, c *types.Case) error
	ListCases(ctx context.Context, filter types.CaseFilter, opts types.ListOptions) ([]*types.Case, error)

	// NextCaseNumber issues the next sequence number for the given year.
	// Numbers are never reused; a failed create burns its number.
	NextCaseNumber(ctx context.Context, year int) (int, error)

	// Evidence
	CreateEvidence(ctx context.Context, item *types.EvidenceItem) error
	GetEvidence(ctx context.Context, id string) (*types.EvidenceItem, error)
	UpdateEvidence(ctx context.Context, item *types.EvidenceItem) error
	ListEvidence(ctx context.Context, filter types.EvidenceFilter, opts types.ListOptions) ([]*types.EvidenceItem, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Tx exposes the subset of storage operations that execute atomically within
// RunInTransaction. If the callback returns an error the transaction is
// rolled back; on nil return it is committed.
//
// The subset covers the engine's multi-write flows: escalation (create
// incident + link it back to the trigger activity), case opening (sequence
// number + create + incident link), and evidence intake (create item + append
// to the case's evidence list).
type Tx interface {
	GetActivity(ctx context.Context, id string) (*types.Activity, error)
	UpdateActivity(ctx context.Context, act *types.Activity) error

	CreateIncident(ctx context.Context, inc *types.Incident) error
	GetIncident(ctx context.Context, id string) (*types.Incident, error)
	UpdateIncident(ctx context.Context, inc *types.Incident) error

	CreateCase(ctx context.Context, c *types.Case) error
	GetCase(ctx context.Context, id string) (*types.Case, error)
	UpdateCase(ctx context.Context, c *types.Case) error
	NextCaseNumber(ctx context.Context, year int) (int, error)

	CreateEvidence(ctx context.Context, item *types.EvidenceItem) error
	GetEvidence(ctx context.Context, id string) (*types.EvidenceItem, error)
	UpdateEvidence(ctx context.Context, item *types.EvidenceItem) error
}
