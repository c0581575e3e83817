// Package custody maintains the evidentiary chain of custody. The chain is
// append-only: collection writes the first entry and every later transfer,
// processing action, or verification appends another. Entries are never
// edited or removed; there is no overwrite path, so appends cannot conflict.
//
// The functions here are pure mutations of an in-memory item. Persistence,
// auditing, and case linkage are the case service's job.
package custody

import (
	"fmt"
	"time"

	"github.com/vigilops/vigil/internal/idgen"
	"github.com/vigilops/vigil/internal/types"
)

// CollectInput describes a new piece of evidence at collection time.
type CollectInput struct {
	Type           types.EvidenceType   `json:"type"`
	Classification types.Classification `json:"classification"`
	Description    string               `json:"description,omitempty"`
	StoragePath    string               `json:"storage_path,omitempty"`
	Location       string               `json:"location,omitempty"`
	Notes          string               `json:"notes,omitempty"`
}

// ProcessResult is the outcome of a processing step on an evidence item.
type ProcessResult struct {
	Status types.ProcessingStatus `json:"status"`
	Notes  string                 `json:"notes,omitempty"`
}

// Collect creates an evidence item for a case and writes its first custody
// entry. An item with an empty chain never exists: the chain is born with
// the collection record. The nonce alters the generated identifier on
// storage collisions.
func Collect(caseID string, input CollectInput, actor types.ActorContext, now time.Time, nonce int) (*types.EvidenceItem, error) {
	if caseID == "" {
		return nil, fmt.Errorf("case id is required")
	}
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor context: %w", err)
	}
	item := &types.EvidenceItem{
		ID:               idgen.EvidenceID(caseID, input.StoragePath, actor.ID, now, nonce),
		CaseID:           caseID,
		Type:             input.Type,
		Classification:   input.Classification,
		Description:      input.Description,
		StoragePath:      input.StoragePath,
		ProcessingStatus: types.ProcessingPending,
		CollectedBy:      actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if item.Classification == "" {
		item.Classification = types.ClassInternal
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	item.ContentHash = item.ComputeContentHash()
	appendEntry(item, types.CustodyEntry{
		Action:    types.CustodyCollected,
		Timestamp: now,
		Actor:     actor.ID,
		Location:  input.Location,
		Notes:     input.Notes,
		Condition: types.ConditionGood,
	})
	return item, nil
}

// Transfer appends a custody entry recording a hand-off to another holder,
// the observed condition of the evidence, and whether integrity was
// re-verified at hand-off. Prior entries are untouched.
func Transfer(item *types.EvidenceItem, toActor, reason string, condition types.EvidenceCondition, reverified bool, now time.Time) (*types.CustodyEntry, error) {
	if toActor == "" {
		return nil, fmt.Errorf("transfer target is required")
	}
	if !condition.IsValid() {
		return nil, fmt.Errorf("invalid evidence condition: %s", condition)
	}
	entry := appendEntry(item, types.CustodyEntry{
		Action:     types.CustodyTransferred,
		Timestamp:  now,
		Actor:      toActor,
		Notes:      reason,
		Condition:  condition,
		Reverified: reverified,
	})
	item.UpdatedAt = now
	return entry, nil
}

// Process records a processing step: it sets the item's processing status
// and appends a processed custody entry. Processing is itself a custody
// event, so the chain always shows who processed what and when.
func Process(item *types.EvidenceItem, result ProcessResult, actor types.ActorContext, now time.Time) error {
	if err := actor.Validate(); err != nil {
		return fmt.Errorf("invalid actor context: %w", err)
	}
	if !result.Status.IsValid() {
		return fmt.Errorf("invalid processing status: %s", result.Status)
	}
	if result.Status == types.ProcessingPending {
		return fmt.Errorf("processing cannot return an item to pending")
	}
	item.ProcessingStatus = result.Status
	item.UpdatedAt = now
	appendEntry(item, types.CustodyEntry{
		Action:    types.CustodyProcessed,
		Timestamp: now,
		Actor:     actor.ID,
		Notes:     result.Notes,
		Condition: types.ConditionGood,
	})
	return nil
}

// Verify appends a verification entry and records the integrity outcome on
// the item. A failed verification marks the evidence compromised in the
// chain; the item keeps its processing status either way.
func Verify(item *types.EvidenceItem, passed bool, notes string, actor types.ActorContext, now time.Time) error {
	if err := actor.Validate(); err != nil {
		return fmt.Errorf("invalid actor context: %w", err)
	}
	condition := types.ConditionGood
	if !passed {
		condition = types.ConditionCompromised
	}
	item.IntegrityVerified = passed
	item.UpdatedAt = now
	appendEntry(item, types.CustodyEntry{
		Action:     types.CustodyVerified,
		Timestamp:  now,
		Actor:      actor.ID,
		Notes:      notes,
		Condition:  condition,
		Reverified: true,
	})
	return nil
}

// Snapshot returns a copy of the custody chain. Callers get their own
// slice; the ledger never exposes the backing array for index mutation.
func Snapshot(item *types.EvidenceItem) []types.CustodyEntry {
	out := make([]types.CustodyEntry, len(item.Chain))
	copy(out, item.Chain)
	return out
}

// appendEntry assigns the next sequential entry ID and grows the chain.
func appendEntry(item *types.EvidenceItem, entry types.CustodyEntry) *types.CustodyEntry {
	entry.ID = fmt.Sprintf("%s-c%d", item.ID, len(item.Chain)+1)
	item.Chain = append(item.Chain, entry)
	return &item.Chain[len(item.Chain)-1]
}
