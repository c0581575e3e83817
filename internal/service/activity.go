package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/escalate"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/idgen"
	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/statemachine"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// CreateActivityInput describes a new field activity.
type CreateActivityInput struct {
	Type        types.ActivityType `json:"type"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Priority    types.Priority     `json:"priority,omitempty"`
	Location    string             `json:"location,omitempty"`
	SiteID      string             `json:"site_id,omitempty"`
	Confidence  float64            `json:"confidence,omitempty"`
	UserTags    []string           `json:"user_tags,omitempty"`

	// Reporter defaults to the acting actor's id. Sensor adapters set it to
	// the originating device or integration identifier.
	Reporter      string           `json:"reporter,omitempty"`
	ReporterClass types.ActorClass `json:"reporter_class,omitempty"`
}

// CreateActivity validates and persists a new activity, applies the
// deterministic auto-tags, and then runs escalation and routing in that
// order: the pending incident, if any, is fully committed before routing
// begins. Escalation and routing are independent; either may act without
// the other. Routing failures after the activity is committed are logged,
// not returned.
func (s *Service) CreateActivity(ctx context.Context, input CreateActivityInput, actor types.ActorContext) (*types.Activity, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	rs := s.Rules()
	now := s.now()

	act := &types.Activity{
		Type:          input.Type,
		Title:         input.Title,
		Description:   input.Description,
		Priority:      input.Priority,
		Status:        types.ActivityDetecting,
		Location:      input.Location,
		SiteID:        input.SiteID,
		Reporter:      input.Reporter,
		ReporterClass: input.ReporterClass,
		Confidence:    input.Confidence,
		UserTags:      dedupTags(input.UserTags),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if act.Reporter == "" {
		act.Reporter = actor.ID
	}
	// The type-specific priority map outranks the generic medium fallback.
	if act.Priority == "" {
		act.Priority = rs.DefaultPriority(act.Type)
	}
	if act.RetentionUntil.IsZero() {
		act.RetentionUntil = now.Add(rs.Retention.ActivityRetention())
	}
	act.SetDefaults()
	escalate.ApplyAutoTags(rs.Tags, act)
	if err := act.Validate(); err != nil {
		return nil, err
	}

	for nonce := 0; ; nonce++ {
		act.ID = idgen.ActivityID(act.Title, act.Location, act.Reporter, now, nonce)
		err := s.store.CreateActivity(ctx, act)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrAlreadyExists) && nonce < maxIDAttempts-1 {
			continue
		}
		return nil, fmt.Errorf("create activity: %w", err)
	}

	s.record(actor, "activity.create", audit.EntityActivity, act.ID, map[string]string{
		"type":     string(act.Type),
		"priority": string(act.Priority),
	})
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventActivityCreated,
		Entity:   audit.EntityActivity,
		EntityID: act.ID,
		Actor:    actor.ID,
		Detail:   map[string]string{"type": string(act.Type)},
	})

	if inc := escalate.Evaluate(rs, act, now); inc != nil {
		committed, err := s.commitEscalation(ctx, rs, act, inc)
		if err != nil {
			return nil, err
		}
		act.IncidentIDs = append(act.IncidentIDs, committed.ID)
		act.UpdatedAt = now
		s.record(actor, "incident.auto_create", audit.EntityIncident, committed.ID, map[string]string{
			"trigger":  act.ID,
			"priority": string(committed.Priority),
		})
		s.publish(ctx, &eventbus.Event{
			Type:     eventbus.EventIncidentAutoCreated,
			Entity:   audit.EntityIncident,
			EntityID: committed.ID,
			Actor:    actor.ID,
			Detail:   map[string]string{"trigger": act.ID},
		})
	}

	s.routeActivity(ctx, act)
	return act, nil
}

// commitEscalation writes the auto-created incident and the back-link on
// its trigger activity in one transaction. Once escalation triggers it runs
// to completion; an id collision regenerates the incident with a new nonce
// rather than abandoning the escalation.
func (s *Service) commitEscalation(ctx context.Context, rs *rules.RuleSet, act *types.Activity, inc *types.Incident) (*types.Incident, error) {
	now := inc.CreatedAt
	for nonce := 0; ; nonce++ {
		if nonce > 0 {
			inc = escalate.BuildIncident(rs, act, now, nonce)
		}
		err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
			if err := tx.CreateIncident(ctx, inc); err != nil {
				return err
			}
			cur, err := tx.GetActivity(ctx, act.ID)
			if err != nil {
				return err
			}
			cur.IncidentIDs = appendUnique(cur.IncidentIDs, inc.ID)
			cur.UpdatedAt = now
			return tx.UpdateActivity(ctx, cur)
		})
		if err == nil {
			return inc, nil
		}
		if errors.Is(err, storage.ErrAlreadyExists) && nonce < maxIDAttempts-1 {
			continue
		}
		return nil, fmt.Errorf("commit escalation for activity %s: %w", act.ID, err)
	}
}

// routeActivity runs the orchestrator over a committed activity. No handler
// claiming the activity is a non-event; handler errors and timeouts are
// logged because the activity itself is already committed.
func (s *Service) routeActivity(ctx context.Context, act *types.Activity) {
	dec, err := s.orch.RouteActivity(ctx, act)
	if err != nil {
		s.logger.Warn("activity routing failed",
			zap.String("activity", act.ID),
			zap.Error(err))
		return
	}
	if dec == nil {
		return
	}
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventRoutingDecision,
		Entity:   audit.EntityActivity,
		EntityID: act.ID,
		Actor:    dec.HandlerKey,
		Detail: map[string]string{
			"handler":    dec.HandlerKey,
			"action":     string(dec.Action),
			"confidence": fmt.Sprintf("%.2f", dec.Confidence),
		},
	})
}

// UpdateActivityStatus moves an activity through its state machine. A
// missing transition rule is a denial, not a default-allow.
func (s *Service) UpdateActivityStatus(ctx context.Context, id string, to types.ActivityStatus, actor types.ActorContext) (*types.Activity, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	if !to.IsValid() {
		return nil, fmt.Errorf("invalid activity status: %s", to)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	act, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	check := statemachine.CheckActivity(s.Rules(), act.Status, to, actor.Role)
	if !check.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrTransitionDenied, check.Reason)
	}

	from := act.Status
	act.Status = to
	act.UpdatedAt = s.now()
	if err := s.store.UpdateActivity(ctx, act); err != nil {
		return nil, fmt.Errorf("update activity %s: %w", id, err)
	}

	detail := map[string]string{"from": string(from), "to": string(to)}
	if check.RequiresApproval {
		detail["requires_approval"] = "true"
	}
	s.record(actor, "activity.status", audit.EntityActivity, id, detail)
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventActivityStatusChanged,
		Entity:   audit.EntityActivity,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   detail,
	})
	return act, nil
}

// TagActivity appends user tags to an activity. Tags already present are
// skipped; a call that adds nothing writes nothing.
func (s *Service) TagActivity(ctx context.Context, id string, tags []string, actor types.ActorContext) (*types.Activity, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	act, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, t := range tags {
		if t == "" {
			continue
		}
		before := len(act.UserTags)
		act.UserTags = appendUnique(act.UserTags, t)
		if len(act.UserTags) > before {
			added = append(added, t)
		}
	}
	if len(added) == 0 {
		return act, nil
	}
	act.UpdatedAt = s.now()
	if err := s.store.UpdateActivity(ctx, act); err != nil {
		return nil, fmt.Errorf("update activity %s: %w", id, err)
	}
	s.record(actor, "activity.tag", audit.EntityActivity, id, map[string]string{
		"tags": strings.Join(added, ","),
	})
	return act, nil
}

// ArchiveActivity flags an activity as archived, optionally attaching a
// closing summary. Archival is soft: the record stays queryable through the
// Archived filter and nothing is deleted. Eligibility (the retention
// deadline) is the caller's business; archiving an archived activity writes
// nothing and keeps the existing summary.
func (s *Service) ArchiveActivity(ctx context.Context, id, summary string, actor types.ActorContext) (*types.Activity, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	act, err := s.store.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if act.Archived {
		return act, nil
	}
	now := s.now()
	act.Archived = true
	act.ArchivedAt = &now
	act.ArchiveSummary = summary
	act.UpdatedAt = now
	if err := s.store.UpdateActivity(ctx, act); err != nil {
		return nil, fmt.Errorf("update activity %s: %w", id, err)
	}

	detail := map[string]string{"summarized": fmt.Sprintf("%t", summary != "")}
	s.record(actor, "activity.archive", audit.EntityActivity, id, detail)
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventActivityArchived,
		Entity:   audit.EntityActivity,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   detail,
	})
	return act, nil
}

// GetActivity returns one activity by id.
func (s *Service) GetActivity(ctx context.Context, id string) (*types.Activity, error) {
	return s.store.GetActivity(ctx, id)
}

// ListActivities returns activities matching the filter.
func (s *Service) ListActivities(ctx context.Context, filter types.ActivityFilter, opts types.ListOptions) ([]*types.Activity, error) {
	return s.store.ListActivities(ctx, filter, opts)
}

func dedupTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if t == "" {
			continue
		}
		out = appendUnique(out, t)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
