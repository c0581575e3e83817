// Package service owns every mutation of engine state. Each command
// validates the acting context, serializes on the entity id, runs the pure
// rule checks, writes through storage, and then fans out audit entries and
// events. The primary write is the commitment point: audit or publish
// failures after it are logged and never propagated, and nothing is rolled
// back on their account.
package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/orchestrator"
	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/sop"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// ErrTransitionDenied marks a status change or lifecycle action rejected by
// policy. Denials are surfaced to the actor, never retried automatically.
var ErrTransitionDenied = errors.New("transition denied")

// maxIDAttempts bounds nonce retries when a generated id collides.
const maxIDAttempts = 5

// Options configures a Service. Storage is required; everything else has a
// usable zero value.
type Options struct {
	Storage storage.Storage

	// Rules defaults to the compiled-in rule set.
	Rules *rules.RuleSet

	// Audit is the append-only audit trail. Nil disables audit writes.
	Audit *audit.Log

	// Bus receives lifecycle events. Nil disables publishing.
	Bus *eventbus.Bus

	// SOPs backs the built-in handlers. Nil uses the default search path.
	SOPs *sop.Library

	// DecisionTimeout bounds handler decisions. Zero means the default.
	DecisionTimeout time.Duration

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Service is the single logical owner of activities, incidents, cases, and
// evidence. All writes flow through it.
type Service struct {
	store  storage.Storage
	auditl *audit.Log
	bus    *eventbus.Bus
	sops   *sop.Library
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
	clock  func() time.Time

	rulesMu sync.RWMutex
	rules   *rules.RuleSet

	locks lockSet
}

// New builds a Service and its orchestrator. The orchestrator starts empty;
// callers register handlers explicitly (RegisterHandler, RegisterBuiltins).
func New(opts Options) (*Service, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("service: storage is required")
	}
	rs := opts.Rules
	if rs == nil {
		rs = rules.Default()
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("service: invalid rule set: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sops := opts.SOPs
	if sops == nil {
		sops = sop.NewLibrary()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	s := &Service{
		store:  opts.Storage,
		auditl: opts.Audit,
		bus:    opts.Bus,
		sops:   sops,
		logger: logger,
		clock:  clock,
		rules:  rs,
	}
	s.orch = orchestrator.New(orchestrator.Options{
		DecisionTimeout: opts.DecisionTimeout,
		CaseOpener:      &escalationOpener{svc: s},
		Logger:          logger.Named("orchestrator"),
	})
	return s, nil
}

// Rules returns the rule set currently in effect.
func (s *Service) Rules() *rules.RuleSet {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	return s.rules
}

// SetRules swaps in a new rule set after validating it. Invalid rule sets
// are rejected and the previous set stays in effect, so a broken rules file
// can never take the engine down mid-flight.
func (s *Service) SetRules(rs *rules.RuleSet) error {
	if rs == nil {
		return fmt.Errorf("rule set is required")
	}
	if err := rs.Validate(); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}
	s.rulesMu.Lock()
	s.rules = rs
	s.rulesMu.Unlock()
	s.logger.Info("rule set replaced",
		zap.Int("transitions", len(rs.Transitions)),
		zap.Int("escalations", len(rs.Escalations)))
	return nil
}

// Orchestrator exposes the routing layer for registration and inspection.
func (s *Service) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// Storage exposes the underlying store for read-side collaborators such as
// the retention sweeper.
func (s *Service) Storage() storage.Storage {
	return s.store
}

func (s *Service) now() time.Time {
	return s.clock()
}

// record writes an audit entry. A failed audit write downgrades to a
// warning: the primary mutation already happened and stands.
func (s *Service) record(actor types.ActorContext, action, entity, entityID string, detail map[string]string) {
	if s.auditl == nil {
		return
	}
	_, err := s.auditl.Record(audit.Entry{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Role:      actor.Role,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Reason:    actor.Reason,
		Detail:    detail,
	})
	if err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// publish dispatches an event. Like record, failures are warnings.
func (s *Service) publish(ctx context.Context, event *eventbus.Event) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Dispatch(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("type", string(event.Type)),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

// lockShards sizes the keyed mutex set that serializes per-entity writes.
const lockShards = 64

// lockSet hands out a mutex per entity id, sharded so the set stays small.
// Ids that hash to the same shard serialize against each other; that is
// harmless for correctness and keeps the structure allocation-free.
type lockSet [lockShards]sync.Mutex

func shardIndex(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % lockShards)
}

// lock acquires the shard for one entity id and returns the release func.
func (ls *lockSet) lock(id string) func() {
	m := &ls[shardIndex(id)]
	m.Lock()
	return m.Unlock
}

// lockAll acquires the shards for a set of ids in ascending shard order,
// so overlapping multi-entity operations cannot deadlock each other.
func (ls *lockSet) lockAll(ids []string) func() {
	var seen [lockShards]bool
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		i := shardIndex(id)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	for _, i := range idx {
		ls[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			ls[idx[j]].Unlock()
		}
	}
}
