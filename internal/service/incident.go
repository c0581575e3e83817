package service

import (
	"context"
	"fmt"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/types"
)

// ConfirmIncident moves a pending incident to active, recording who
// validated it. Only pending incidents can be confirmed.
func (s *Service) ConfirmIncident(ctx context.Context, id string, actor types.ActorContext) (*types.Incident, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inc.IsPending() {
		return nil, fmt.Errorf("%w: incident %s is %s, only pending incidents can be confirmed", ErrTransitionDenied, id, inc.Status)
	}

	now := s.now()
	inc.Status = types.IncidentActive
	inc.ConfirmedBy = actor.ID
	inc.ConfirmedAt = &now
	inc.UpdatedAt = now
	if err := s.store.UpdateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("update incident %s: %w", id, err)
	}

	s.record(actor, "incident.confirm", audit.EntityIncident, id, nil)
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventIncidentConfirmed,
		Entity:   audit.EntityIncident,
		EntityID: id,
		Actor:    actor.ID,
	})
	return inc, nil
}

// DismissIncident rejects a pending incident as a false positive. The
// incident must be dismissible and a reason is mandatory; the dismissal is
// part of the permanent record.
func (s *Service) DismissIncident(ctx context.Context, id, reason string, actor types.ActorContext) (*types.Incident, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	if reason == "" {
		return nil, fmt.Errorf("dismiss reason is required")
	}
	unlock := s.locks.lock(id)
	defer unlock()

	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inc.IsPending() {
		return nil, fmt.Errorf("%w: incident %s is %s, only pending incidents can be dismissed", ErrTransitionDenied, id, inc.Status)
	}
	if !inc.Dismissible {
		return nil, fmt.Errorf("%w: incident %s is not dismissible", ErrTransitionDenied, id)
	}

	now := s.now()
	inc.Status = types.IncidentDismissed
	inc.DismissedBy = actor.ID
	inc.DismissedAt = &now
	inc.DismissReason = reason
	inc.UpdatedAt = now
	if err := s.store.UpdateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("update incident %s: %w", id, err)
	}

	s.record(actor, "incident.dismiss", audit.EntityIncident, id, map[string]string{"reason": reason})
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventIncidentDismissed,
		Entity:   audit.EntityIncident,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   map[string]string{"reason": reason},
	})
	return inc, nil
}

// ResolveIncident closes out an active incident. Pending incidents are
// confirmed or dismissed, never resolved directly.
func (s *Service) ResolveIncident(ctx context.Context, id string, actor types.ActorContext) (*types.Incident, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status != types.IncidentActive {
		return nil, fmt.Errorf("%w: incident %s is %s, only active incidents can be resolved", ErrTransitionDenied, id, inc.Status)
	}

	inc.Status = types.IncidentResolved
	inc.UpdatedAt = s.now()
	if err := s.store.UpdateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("update incident %s: %w", id, err)
	}

	s.record(actor, "incident.resolve", audit.EntityIncident, id, nil)
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventIncidentResolved,
		Entity:   audit.EntityIncident,
		EntityID: id,
		Actor:    actor.ID,
	})
	return inc, nil
}

// GetIncident returns one incident by id.
func (s *Service) GetIncident(ctx context.Context, id string) (*types.Incident, error) {
	return s.store.GetIncident(ctx, id)
}

// ListIncidents returns incidents matching the filter.
func (s *Service) ListIncidents(ctx context.Context, filter types.IncidentFilter, opts types.ListOptions) ([]*types.Incident, error) {
	return s.store.ListIncidents(ctx, filter, opts)
}
