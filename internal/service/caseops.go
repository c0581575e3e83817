package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/custody"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/idgen"
	"github.com/vigilops/vigil/internal/statemachine"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// CreateCaseInput describes a new investigation case.
type CreateCaseInput struct {
	Type     types.CaseType `json:"type,omitempty"`
	Title    string         `json:"title"`
	Priority types.Priority `json:"priority,omitempty"`

	// Lead defaults to the acting actor's id.
	Lead string `json:"lead,omitempty"`

	// IncidentIDs are linked bidirectionally: the case lists the incidents
	// and each incident lists the case.
	IncidentIDs []string `json:"incident_ids,omitempty"`
}

// CreateCase opens a case, assigns the next sequential case number for the
// year, and links any referenced incidents in the same transaction. A case
// number clash from a concurrent writer retries with a fresh sequence.
func (s *Service) CreateCase(ctx context.Context, input CreateCaseInput, actor types.ActorContext) (*types.Case, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	rs := s.Rules()
	now := s.now()

	kase := &types.Case{
		Type:             input.Type,
		Status:           types.CaseOpen,
		Priority:         input.Priority,
		Title:            input.Title,
		LeadInvestigator: input.Lead,
		IncidentIDs:      dedupTags(input.IncidentIDs),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if kase.Type == "" {
		kase.Type = types.CaseInvestigation
	}
	if kase.Priority == "" {
		kase.Priority = types.PriorityMedium
	}
	if kase.LeadInvestigator == "" {
		kase.LeadInvestigator = actor.ID
	}
	kase.RetentionUntil = now.Add(rs.Retention.CaseRetention(kase.Type))
	if err := kase.Validate(); err != nil {
		return nil, err
	}

	// Hold the incident locks so a concurrent confirm or dismiss cannot
	// clobber the case link between our read and write.
	unlock := s.locks.lockAll(kase.IncidentIDs)
	defer unlock()

	for nonce := 0; ; nonce++ {
		kase.ID = idgen.CaseID(kase.Title, kase.LeadInvestigator, now, nonce)
		err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
			seq, err := tx.NextCaseNumber(ctx, now.Year())
			if err != nil {
				return fmt.Errorf("next case number: %w", err)
			}
			kase.CaseNumber = idgen.CaseNumber(now.Year(), seq)
			for _, incID := range kase.IncidentIDs {
				inc, err := tx.GetIncident(ctx, incID)
				if err != nil {
					return err
				}
				inc.CaseIDs = appendUnique(inc.CaseIDs, kase.ID)
				inc.UpdatedAt = now
				if err := tx.UpdateIncident(ctx, inc); err != nil {
					return err
				}
			}
			return tx.CreateCase(ctx, kase)
		})
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrAlreadyExists) && nonce < maxIDAttempts-1 {
			continue
		}
		return nil, fmt.Errorf("create case: %w", err)
	}

	detail := map[string]string{"case_number": kase.CaseNumber, "type": string(kase.Type)}
	if len(kase.IncidentIDs) > 0 {
		detail["incidents"] = strings.Join(kase.IncidentIDs, ",")
	}
	s.record(actor, "case.create", audit.EntityCase, kase.ID, detail)
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventCaseOpened,
		Entity:   audit.EntityCase,
		EntityID: kase.ID,
		Actor:    actor.ID,
		Detail:   detail,
	})
	return kase, nil
}

// UpdateCaseStatus moves a case through the investigation stages and
// appends the transition to the case's history. Closing is not reachable
// from here: the closure gate runs only in CloseCase.
func (s *Service) UpdateCaseStatus(ctx context.Context, id string, to types.CaseStatus, actor types.ActorContext) (*types.Case, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	if !to.IsValid() {
		return nil, fmt.Errorf("invalid case status: %s", to)
	}
	if to == types.CaseClosed {
		return nil, fmt.Errorf("cases close through the closure gate, not a bare status change")
	}
	unlock := s.locks.lock(id)
	defer unlock()

	kase, err := s.store.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	check := statemachine.CheckCase(s.Rules(), kase.Status, to, actor.Role)
	if !check.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrTransitionDenied, check.Reason)
	}

	now := s.now()
	from := kase.Status
	kase.Status = to
	kase.UpdatedAt = now
	if from == types.CaseClosed {
		// Reopening clears the closure record; the history entry keeps it.
		kase.ClosedAt = nil
		kase.ClosedBy = ""
	}
	kase.AppendStatusChange(types.StatusChange{
		From:             from,
		To:               to,
		ChangedBy:        actor.ID,
		Role:             actor.Role,
		RequiresApproval: check.RequiresApproval,
		Reason:           actor.Reason,
		Timestamp:        now,
	})
	if err := s.store.UpdateCase(ctx, kase); err != nil {
		return nil, fmt.Errorf("update case %s: %w", id, err)
	}

	detail := map[string]string{"from": string(from), "to": string(to)}
	if check.RequiresApproval {
		detail["requires_approval"] = "true"
	}
	s.record(actor, "case.status", audit.EntityCase, id, detail)
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventCaseStatusChanged,
		Entity:   audit.EntityCase,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   detail,
	})
	return kase, nil
}

// CloseCaseInput carries the closure documentation. Empty fields fall back
// to whatever is already recorded on the case.
type CloseCaseInput struct {
	Conclusion      string            `json:"conclusion,omitempty"`
	Recommendations string            `json:"recommendations,omitempty"`
	Outcome         types.CaseOutcome `json:"outcome,omitempty"`
}

// CloseCase closes a case if and only if the closure gate allows it: a
// non-empty conclusion and recommendations, and every evidence item
// processed or archived. The gate runs synchronously before the status
// write; a blocked closure changes nothing.
func (s *Service) CloseCase(ctx context.Context, id string, input CloseCaseInput, actor types.ActorContext) (*types.Case, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	kase, err := s.store.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	check := statemachine.CheckCase(s.Rules(), kase.Status, types.CaseClosed, actor.Role)
	if !check.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrTransitionDenied, check.Reason)
	}

	if input.Conclusion != "" {
		kase.Conclusion = input.Conclusion
	}
	if input.Recommendations != "" {
		kase.Recommendations = input.Recommendations
	}
	if input.Outcome != "" {
		if !input.Outcome.IsValid() {
			return nil, fmt.Errorf("invalid case outcome: %s", input.Outcome)
		}
		kase.Outcome = input.Outcome
	}
	if kase.Outcome == "" {
		kase.Outcome = types.OutcomeResolved
	}

	evidence, err := s.store.ListEvidence(ctx, types.EvidenceFilter{CaseID: &id}, types.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list evidence for case %s: %w", id, err)
	}
	if err := custody.CheckClose(kase, evidence).Err(); err != nil {
		return nil, err
	}

	now := s.now()
	from := kase.Status
	kase.Status = types.CaseClosed
	kase.ClosedAt = &now
	kase.ClosedBy = actor.ID
	kase.UpdatedAt = now
	kase.AppendStatusChange(types.StatusChange{
		From:             from,
		To:               types.CaseClosed,
		ChangedBy:        actor.ID,
		Role:             actor.Role,
		RequiresApproval: check.RequiresApproval,
		Reason:           actor.Reason,
		Timestamp:        now,
	})
	if err := s.store.UpdateCase(ctx, kase); err != nil {
		return nil, fmt.Errorf("update case %s: %w", id, err)
	}

	s.record(actor, "case.close", audit.EntityCase, id, map[string]string{
		"outcome":     string(kase.Outcome),
		"case_number": kase.CaseNumber,
	})
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventCaseClosed,
		Entity:   audit.EntityCase,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   map[string]string{"outcome": string(kase.Outcome)},
	})
	return kase, nil
}

// GetCase returns one case by id.
func (s *Service) GetCase(ctx context.Context, id string) (*types.Case, error) {
	return s.store.GetCase(ctx, id)
}

// ListCases returns cases matching the filter.
func (s *Service) ListCases(ctx context.Context, filter types.CaseFilter, opts types.ListOptions) ([]*types.Case, error) {
	return s.store.ListCases(ctx, filter, opts)
}
