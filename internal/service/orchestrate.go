package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/orchestrator"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// RegisterHandler adds a handler to the orchestrator. Registration fails on
// duplicate keys and on ambiguous same-priority claims.
func (s *Service) RegisterHandler(h orchestrator.Handler) error {
	return s.orch.Register(h)
}

// RegisterBuiltins registers the stock medical, breach, and general
// handlers backed by the SOP library.
func (s *Service) RegisterBuiltins() error {
	return orchestrator.RegisterBuiltins(s.orch, s.sops)
}

// RouteActivity runs the orchestrator over a stored activity on demand and
// returns the decision. A nil decision means no handler claimed it; that is
// not an error.
func (s *Service) RouteActivity(ctx context.Context, id string, actor types.ActorContext) (*types.Decision, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	act, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	dec, err := s.orch.RouteActivity(ctx, act)
	if err != nil {
		return nil, err
	}
	if dec == nil {
		return nil, nil
	}
	s.record(actor, "activity.route", audit.EntityActivity, id, map[string]string{
		"handler": dec.HandlerKey,
		"action":  string(dec.Action),
	})
	s.publishDecision(ctx, audit.EntityActivity, id, dec)
	return dec, nil
}

// RouteIncident runs the orchestrator over a stored incident. The incident
// is already committed, so no capable handler is a hard error. A decision
// requiring escalation hands off to the case layer before this returns.
func (s *Service) RouteIncident(ctx context.Context, id string, actor types.ActorContext) (*types.Decision, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	dec, err := s.orch.RouteIncident(ctx, inc)
	if err != nil {
		return nil, err
	}
	s.record(actor, "incident.route", audit.EntityIncident, id, map[string]string{
		"handler": dec.HandlerKey,
		"action":  string(dec.Action),
	})
	s.publishDecision(ctx, audit.EntityIncident, id, dec)
	return dec, nil
}

func (s *Service) publishDecision(ctx context.Context, entity, entityID string, dec *types.Decision) {
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventRoutingDecision,
		Entity:   entity,
		EntityID: entityID,
		Actor:    dec.HandlerKey,
		Detail: map[string]string{
			"handler":    dec.HandlerKey,
			"action":     string(dec.Action),
			"confidence": fmt.Sprintf("%.2f", dec.Confidence),
		},
	})
}

// GetMemory returns a handler's learning memory, or nil for an unknown key.
func (s *Service) GetMemory(key string) *orchestrator.Memory {
	return s.orch.GetMemory(key)
}

// ResetMemory clears a handler's accumulated memory. The reset is an
// operator action and lands in the audit trail.
func (s *Service) ResetMemory(key string, actor types.ActorContext) error {
	if err := actor.Validate(); err != nil {
		return fmt.Errorf("invalid actor context: %w", err)
	}
	mem := s.orch.GetMemory(key)
	if mem == nil {
		return fmt.Errorf("handler %s: %w", key, storage.ErrNotFound)
	}
	mem.Reset()
	s.record(actor, "memory.reset", audit.EntityHandler, key, nil)
	return nil
}

// SystemMetrics returns the orchestrator's aggregate state.
func (s *Service) SystemMetrics() types.SystemMetrics {
	return s.orch.SystemMetrics()
}

// Handlers lists the registered handler capabilities in routing order.
func (s *Service) Handlers() []orchestrator.Capability {
	return s.orch.Handlers()
}

// escalationOpener satisfies orchestrator.CaseOpener with the service's own
// case pipeline, so handler-driven escalations produce the same audited,
// numbered cases as operator-created ones.
type escalationOpener struct {
	svc *Service
}

func (o *escalationOpener) OpenForIncident(ctx context.Context, inc *types.Incident, dec *types.Decision) error {
	return o.svc.openCaseForIncident(ctx, inc, dec)
}

// openCaseForIncident opens a case for an incident whose routing decision
// required escalation. An incident already attached to an open case is left
// alone; the hand-off is satisfied by the existing case.
func (s *Service) openCaseForIncident(ctx context.Context, inc *types.Incident, dec *types.Decision) error {
	for _, caseID := range inc.CaseIDs {
		kase, err := s.store.GetCase(ctx, caseID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}
		if kase.Status != types.CaseClosed {
			s.logger.Debug("escalation already cased",
				zap.String("incident", inc.ID),
				zap.String("case", kase.ID))
			return nil
		}
	}

	actor := types.SystemActor("orchestrator", fmt.Sprintf("handler %s required escalation for incident %s", dec.HandlerKey, inc.ID))
	_, err := s.CreateCase(ctx, CreateCaseInput{
		Type:        caseTypeFor(inc.Type),
		Title:       "Escalated: " + inc.Title,
		Priority:    inc.Priority,
		IncidentIDs: []string{inc.ID},
	}, actor)
	return err
}

// caseTypeFor maps an incident type to the case type its escalation opens.
func caseTypeFor(t types.ActivityType) types.CaseType {
	switch t {
	case types.ActivitySecurityBreach, types.ActivityBOLEvent:
		return types.CaseSecurityReview
	case types.ActivityPropertyDamage:
		return types.CasePropertyLoss
	default:
		return types.CaseInvestigation
	}
}
