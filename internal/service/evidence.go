package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/custody"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// AddEvidence collects a new evidence item into a case. The item and the
// case's evidence link are committed in one transaction; the custody chain
// starts with the collection entry. Closed cases do not take evidence.
func (s *Service) AddEvidence(ctx context.Context, caseID string, input custody.CollectInput, actor types.ActorContext) (*types.EvidenceItem, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(caseID)
	defer unlock()

	kase, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if kase.Status == types.CaseClosed {
		return nil, fmt.Errorf("case %s is closed and cannot take evidence", caseID)
	}

	now := s.now()
	var item *types.EvidenceItem
	for nonce := 0; ; nonce++ {
		item, err = custody.Collect(caseID, input, actor, now, nonce)
		if err != nil {
			return nil, err
		}
		err = s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
			if err := tx.CreateEvidence(ctx, item); err != nil {
				return err
			}
			cur, err := tx.GetCase(ctx, caseID)
			if err != nil {
				return err
			}
			cur.EvidenceIDs = appendUnique(cur.EvidenceIDs, item.ID)
			cur.UpdatedAt = now
			return tx.UpdateCase(ctx, cur)
		})
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrAlreadyExists) && nonce < maxIDAttempts-1 {
			continue
		}
		return nil, fmt.Errorf("add evidence to case %s: %w", caseID, err)
	}

	s.record(actor, "evidence.add", audit.EntityEvidence, item.ID, map[string]string{
		"case":           caseID,
		"type":           string(item.Type),
		"classification": string(item.Classification),
	})
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventEvidenceAdded,
		Entity:   audit.EntityEvidence,
		EntityID: item.ID,
		Actor:    actor.ID,
		Detail:   map[string]string{"case": caseID},
	})
	return item, nil
}

// TransferEvidence appends a hand-off entry to the custody chain. An empty
// condition defaults to good; anything else must be a valid condition.
func (s *Service) TransferEvidence(ctx context.Context, id, toActor, reason string, condition types.EvidenceCondition, reverified bool, actor types.ActorContext) (*types.EvidenceItem, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	if condition == "" {
		condition = types.ConditionGood
	}
	unlock := s.locks.lock(id)
	defer unlock()

	item, err := s.store.GetEvidence(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := custody.Transfer(item, toActor, reason, condition, reverified, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateEvidence(ctx, item); err != nil {
		return nil, fmt.Errorf("update evidence %s: %w", id, err)
	}

	s.record(actor, "evidence.transfer", audit.EntityEvidence, id, map[string]string{
		"to":        toActor,
		"condition": string(condition),
	})
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventEvidenceCustody,
		Entity:   audit.EntityEvidence,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   map[string]string{"to": toActor},
	})
	return item, nil
}

// ProcessEvidence records a processing outcome. The status change is itself
// a custody event, so the chain grows by one entry.
func (s *Service) ProcessEvidence(ctx context.Context, id string, result custody.ProcessResult, actor types.ActorContext) (*types.EvidenceItem, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	item, err := s.store.GetEvidence(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := custody.Process(item, result, actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateEvidence(ctx, item); err != nil {
		return nil, fmt.Errorf("update evidence %s: %w", id, err)
	}

	s.record(actor, "evidence.process", audit.EntityEvidence, id, map[string]string{
		"status": string(result.Status),
	})
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventEvidenceCustody,
		Entity:   audit.EntityEvidence,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   map[string]string{"status": string(result.Status)},
	})
	return item, nil
}

// VerifyEvidence records an integrity check. A failed check marks the item
// compromised in the chain and clears the integrity flag.
func (s *Service) VerifyEvidence(ctx context.Context, id string, passed bool, notes string, actor types.ActorContext) (*types.EvidenceItem, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	item, err := s.store.GetEvidence(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := custody.Verify(item, passed, notes, actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateEvidence(ctx, item); err != nil {
		return nil, fmt.Errorf("update evidence %s: %w", id, err)
	}

	s.record(actor, "evidence.verify", audit.EntityEvidence, id, map[string]string{
		"passed": fmt.Sprintf("%t", passed),
	})
	s.publish(ctx, &eventbus.Event{
		Type:     eventbus.EventEvidenceVerified,
		Entity:   audit.EntityEvidence,
		EntityID: id,
		Actor:    actor.ID,
		Detail:   map[string]string{"passed": fmt.Sprintf("%t", passed)},
	})
	return item, nil
}

// GetEvidence returns one evidence item by id.
func (s *Service) GetEvidence(ctx context.Context, id string) (*types.EvidenceItem, error) {
	return s.store.GetEvidence(ctx, id)
}

// ListCaseEvidence returns every evidence item collected into a case.
func (s *Service) ListCaseEvidence(ctx context.Context, caseID string) ([]*types.EvidenceItem, error) {
	return s.store.ListEvidence(ctx, types.EvidenceFilter{CaseID: &caseID}, types.ListOptions{})
}
