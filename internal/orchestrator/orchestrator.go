// Package orchestrator routes activities and incidents to capability-scoped
// handlers and aggregates their decisions. The orchestrator is an explicit
// value owning a keyed handler collection; there is no ambient registry.
//
// Routing is deterministic: handlers are tried in priority order (highest
// first, registration order breaking ties) and the first whose predicate
// accepts the entity wins. Registration refuses same-priority handlers with
// overlapping claims, so ties never decide silently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/types"
)

// Sentinel errors for registration and routing.
var (
	// ErrNoHandler means routing found no handler for a committed incident.
	ErrNoHandler = errors.New("no handler for incident")

	// ErrDuplicateHandler means a capability key is already registered.
	ErrDuplicateHandler = errors.New("handler key already registered")

	// ErrAmbiguousClaim means two same-priority handlers claim overlapping
	// activity types and routing between them would be order-dependent.
	ErrAmbiguousClaim = errors.New("ambiguous handler claims at equal priority")

	// ErrDecisionTimeout means a handler did not decide within the deadline.
	ErrDecisionTimeout = errors.New("handler decision timed out")
)

// DefaultDecisionTimeout bounds how long a handler may take to decide.
const DefaultDecisionTimeout = 30 * time.Second

// Options configures an Orchestrator.
type Options struct {
	// DecisionTimeout bounds each handler decision. Zero means the default.
	DecisionTimeout time.Duration

	// CaseOpener receives fire-and-forget hand-offs for decisions that
	// require escalation. Nil disables hand-offs.
	CaseOpener CaseOpener

	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

type registration struct {
	handler Handler
	cap     Capability
	memory  *Memory
}

// Orchestrator owns the handler registry and the per-handler memories.
type Orchestrator struct {
	mu       sync.RWMutex
	ordered  []*registration // priority desc, then registration order
	byKey    map[string]*registration
	lastSeen time.Time

	timeout    time.Duration
	caseOpener CaseOpener
	logger     *zap.Logger
}

// New builds an empty orchestrator.
func New(opts Options) *Orchestrator {
	if opts.DecisionTimeout <= 0 {
		opts.DecisionTimeout = DefaultDecisionTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		byKey:      make(map[string]*registration),
		timeout:    opts.DecisionTimeout,
		caseOpener: opts.CaseOpener,
		logger:     opts.Logger,
	}
}

// Register adds a handler under its capability key. Registration fails on a
// duplicate key, and on any already-registered handler at the same priority
// whose claims overlap this one's.
func (o *Orchestrator) Register(h Handler) error {
	capability := h.Capability()
	if capability.Key == "" {
		return fmt.Errorf("handler capability key is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.byKey[capability.Key]; exists {
		return fmt.Errorf("%q: %w", capability.Key, ErrDuplicateHandler)
	}
	for _, reg := range o.ordered {
		if reg.cap.Priority == capability.Priority && reg.cap.Overlaps(capability) {
			return fmt.Errorf("%q vs %q at priority %d: %w", capability.Key, reg.cap.Key, capability.Priority, ErrAmbiguousClaim)
		}
	}

	reg := &registration{
		handler: h,
		cap:     capability,
		memory:  newMemory(capability.Key),
	}
	o.byKey[capability.Key] = reg

	// Insert keeping priority-descending order; equal priorities keep
	// registration order.
	pos := len(o.ordered)
	for i, existing := range o.ordered {
		if existing.cap.Priority < capability.Priority {
			pos = i
			break
		}
	}
	o.ordered = append(o.ordered, nil)
	copy(o.ordered[pos+1:], o.ordered[pos:])
	o.ordered[pos] = reg

	o.logger.Info("handler registered",
		zap.String("key", capability.Key),
		zap.Int("priority", capability.Priority),
		zap.Int("claims", len(capability.Claims)))
	return nil
}

// RouteActivity selects a handler for the activity and returns its decision,
// with the handler's memory already updated. No capable handler is not an
// error: the decision is simply nil, and no incident is ever created from
// this path. Escalation and routing are independent subsystems.
func (o *Orchestrator) RouteActivity(ctx context.Context, act *types.Activity) (*types.Decision, error) {
	reg := o.selectHandler(func(r *registration) bool {
		return r.cap.ClaimsType(act.Type) && r.handler.CanHandleActivity(act)
	})
	if reg == nil {
		o.logger.Debug("no handler for activity",
			zap.String("activity", act.ID),
			zap.String("type", string(act.Type)))
		return nil, nil
	}

	dec, latency, err := o.decide(ctx, reg, func(ctx context.Context) (*types.Decision, error) {
		return reg.handler.ProcessActivity(ctx, act)
	})
	if err != nil {
		return nil, err
	}
	o.afterDecision(reg, act.ID, act.Type, dec, latency)
	return dec, nil
}

// RouteIncident selects a handler for the incident and returns its decision.
// The incident was already committed, so no capable handler is a hard error.
// When the decision requires escalation, the case layer is signalled after
// the memory update; that hand-off is fire-and-forget.
func (o *Orchestrator) RouteIncident(ctx context.Context, inc *types.Incident) (*types.Decision, error) {
	reg := o.selectHandler(func(r *registration) bool {
		return r.cap.ClaimsType(inc.Type) && r.handler.CanHandleIncident(inc)
	})
	if reg == nil {
		return nil, fmt.Errorf("incident %s (type %s): %w", inc.ID, inc.Type, ErrNoHandler)
	}

	dec, latency, err := o.decide(ctx, reg, func(ctx context.Context) (*types.Decision, error) {
		return reg.handler.ProcessIncident(ctx, inc)
	})
	if err != nil {
		return nil, err
	}
	o.afterDecision(reg, inc.ID, inc.Type, dec, latency)

	if dec.EscalationRequired && o.caseOpener != nil {
		if err := o.caseOpener.OpenForIncident(ctx, inc, dec); err != nil {
			o.logger.Warn("case hand-off failed",
				zap.String("incident", inc.ID),
				zap.String("handler", reg.cap.Key),
				zap.Error(err))
		}
	}
	return dec, nil
}

// selectHandler returns the first handler in priority order accepted by the
// predicate, or nil.
func (o *Orchestrator) selectHandler(accept func(*registration) bool) *registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, reg := range o.ordered {
		if accept(reg) {
			return reg
		}
	}
	return nil
}

// decide runs one handler decision under the orchestrator's deadline and
// measures its latency.
func (o *Orchestrator) decide(ctx context.Context, reg *registration, fn func(context.Context) (*types.Decision, error)) (*types.Decision, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		dec *types.Decision
		err error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		dec, err := fn(ctx)
		ch <- result{dec, err}
	}()

	select {
	case <-ctx.Done():
		latency := time.Since(start)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, latency, fmt.Errorf("handler %s: %w", reg.cap.Key, ErrDecisionTimeout)
		}
		return nil, latency, ctx.Err()
	case res := <-ch:
		latency := time.Since(start)
		if res.err != nil {
			return nil, latency, fmt.Errorf("handler %s: %w", reg.cap.Key, res.err)
		}
		if res.dec == nil {
			return nil, latency, fmt.Errorf("handler %s returned no decision", reg.cap.Key)
		}
		if res.dec.HandlerKey == "" {
			res.dec.HandlerKey = reg.cap.Key
		}
		if res.dec.Timestamp.IsZero() {
			res.dec.Timestamp = start
		}
		return res.dec, latency, nil
	}
}

// afterDecision updates the chosen handler's memory and the orchestrator's
// last-processed clock. Memory is updated before any case hand-off.
func (o *Orchestrator) afterDecision(reg *registration, entityID string, entityType types.ActivityType, dec *types.Decision, latency time.Duration) {
	now := time.Now()
	reg.memory.RecordDecision(entityID, entityType, dec, latency, now)

	o.mu.Lock()
	o.lastSeen = now
	o.mu.Unlock()

	o.logger.Debug("decision recorded",
		zap.String("handler", reg.cap.Key),
		zap.String("entity", entityID),
		zap.String("action", string(dec.Action)),
		zap.Float64("confidence", dec.Confidence),
		zap.Duration("latency", latency))
}

// GetMemory returns the memory for a capability key, or nil when the key is
// not registered. Absence is expected, not an error.
func (o *Orchestrator) GetMemory(key string) *Memory {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.byKey[key]
	if !ok {
		return nil
	}
	return reg.memory
}

// Handlers returns the registered capability descriptors in routing order.
func (o *Orchestrator) Handlers() []Capability {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Capability, len(o.ordered))
	for i, reg := range o.ordered {
		out[i] = reg.cap
	}
	return out
}

// SystemMetrics reports the registered handler count and the time of the
// most recent decision anywhere in the system.
func (o *Orchestrator) SystemMetrics() types.SystemMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return types.SystemMetrics{
		AgentCount:    len(o.ordered),
		LastProcessed: o.lastSeen,
	}
}
