package memory

import (
	"context"
	"fmt"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// RunInTransaction executes fn against a staged view of the store. Writes land
// in the staging maps and merge into the store only when fn returns nil, so a
// failed callback leaves the store untouched. The store's write lock is held
// for the whole callback.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	tx := &memTx{
		base:       s,
		activities: make(map[string]*types.Activity),
		incidents:  make(map[string]*types.Incident),
		cases:      make(map[string]*types.Case),
		evidence:   make(map[string]*types.EvidenceItem),
		caseSeq:    make(map[int]int),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, act := range tx.activities {
		s.activities[id] = act
	}
	for id, inc := range tx.incidents {
		s.incidents[id] = inc
	}
	for id, c := range tx.cases {
		s.cases[id] = c
	}
	for id, item := range tx.evidence {
		s.evidence[id] = item
	}
	for year, seq := range tx.caseSeq {
		if seq > s.caseSeq[year] {
			s.caseSeq[year] = seq
		}
	}
	return nil
}

// memTx stages writes over the locked store. Reads see staged writes first
// (read-your-writes), then fall through to the base maps.
type memTx struct {
	base       *Store
	activities map[string]*types.Activity
	incidents  map[string]*types.Incident
	cases      map[string]*types.Case
	evidence   map[string]*types.EvidenceItem
	caseSeq    map[int]int
}

func (tx *memTx) GetActivity(_ context.Context, id string) (*types.Activity, error) {
	if act, ok := tx.activities[id]; ok {
		return cloneActivity(act), nil
	}
	if act, ok := tx.base.activities[id]; ok {
		return cloneActivity(act), nil
	}
	return nil, fmt.Errorf("activity %s: %w", id, storage.ErrNotFound)
}

func (tx *memTx) UpdateActivity(_ context.Context, act *types.Activity) error {
	if err := act.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !tx.activityExists(act.ID) {
		return fmt.Errorf("activity %s: %w", act.ID, storage.ErrNotFound)
	}
	tx.activities[act.ID] = cloneActivity(act)
	return nil
}

func (tx *memTx) activityExists(id string) bool {
	if _, ok := tx.activities[id]; ok {
		return true
	}
	_, ok := tx.base.activities[id]
	return ok
}

func (tx *memTx) CreateIncident(_ context.Context, inc *types.Incident) error {
	if inc.ID == "" {
		return fmt.Errorf("incident id is required")
	}
	if err := inc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if tx.incidentExists(inc.ID) {
		return fmt.Errorf("incident %s: %w", inc.ID, storage.ErrAlreadyExists)
	}
	tx.incidents[inc.ID] = cloneIncident(inc)
	return nil
}

func (tx *memTx) GetIncident(_ context.Context, id string) (*types.Incident, error) {
	if inc, ok := tx.incidents[id]; ok {
		return cloneIncident(inc), nil
	}
	if inc, ok := tx.base.incidents[id]; ok {
		return cloneIncident(inc), nil
	}
	return nil, fmt.Errorf("incident %s: %w", id, storage.ErrNotFound)
}

func (tx *memTx) UpdateIncident(_ context.Context, inc *types.Incident) error {
	if err := inc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !tx.incidentExists(inc.ID) {
		return fmt.Errorf("incident %s: %w", inc.ID, storage.ErrNotFound)
	}
	tx.incidents[inc.ID] = cloneIncident(inc)
	return nil
}

func (tx *memTx) incidentExists(id string) bool {
	if _, ok := tx.incidents[id]; ok {
		return true
	}
	_, ok := tx.base.incidents[id]
	return ok
}

func (tx *memTx) CreateCase(_ context.Context, c *types.Case) error {
	if c.ID == "" {
		return fmt.Errorf("case id is required")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if tx.caseExists(c.ID) {
		return fmt.Errorf("case %s: %w", c.ID, storage.ErrAlreadyExists)
	}
	tx.cases[c.ID] = cloneCase(c)
	return nil
}

func (tx *memTx) GetCase(_ context.Context, id string) (*types.Case, error) {
	if c, ok := tx.cases[id]; ok {
		return cloneCase(c), nil
	}
	if c, ok := tx.base.cases[id]; ok {
		return cloneCase(c), nil
	}
	return nil, fmt.Errorf("case %s: %w", id, storage.ErrNotFound)
}

func (tx *memTx) UpdateCase(_ context.Context, c *types.Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !tx.caseExists(c.ID) {
		return fmt.Errorf("case %s: %w", c.ID, storage.ErrNotFound)
	}
	tx.cases[c.ID] = cloneCase(c)
	return nil
}

func (tx *memTx) caseExists(id string) bool {
	if _, ok := tx.cases[id]; ok {
		return true
	}
	_, ok := tx.base.cases[id]
	return ok
}

func (tx *memTx) NextCaseNumber(_ context.Context, year int) (int, error) {
	next := tx.base.caseSeq[year]
	if staged, ok := tx.caseSeq[year]; ok {
		next = staged
	}
	next++
	tx.caseSeq[year] = next
	return next, nil
}

func (tx *memTx) CreateEvidence(_ context.Context, item *types.EvidenceItem) error {
	if item.ID == "" {
		return fmt.Errorf("evidence id is required")
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if tx.evidenceExists(item.ID) {
		return fmt.Errorf("evidence %s: %w", item.ID, storage.ErrAlreadyExists)
	}
	tx.evidence[item.ID] = cloneEvidence(item)
	return nil
}

func (tx *memTx) GetEvidence(_ context.Context, id string) (*types.EvidenceItem, error) {
	if item, ok := tx.evidence[id]; ok {
		return cloneEvidence(item), nil
	}
	if item, ok := tx.base.evidence[id]; ok {
		return cloneEvidence(item), nil
	}
	return nil, fmt.Errorf("evidence %s: %w", id, storage.ErrNotFound)
}

func (tx *memTx) UpdateEvidence(_ context.Context, item *types.EvidenceItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !tx.evidenceExists(item.ID) {
		return fmt.Errorf("evidence %s: %w", item.ID, storage.ErrNotFound)
	}
	tx.evidence[item.ID] = cloneEvidence(item)
	return nil
}

func (tx *memTx) evidenceExists(id string) bool {
	if _, ok := tx.evidence[id]; ok {
		return true
	}
	_, ok := tx.base.evidence[id]
	return ok
}
