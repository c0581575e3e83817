// Package memory implements the storage interface with in-process maps.
//
// Every read and write deep-copies entities so callers never alias stored
// state. List ordering is deterministic: the requested sort field, then id.
// Suitable for tests and single-process CLI use; the mysql backend covers
// shared deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// Store is an in-memory storage backend guarded by a single RWMutex.
type Store struct {
	mu         sync.RWMutex
	closed     bool
	activities map[string]*types.Activity
	incidents  map[string]*types.Incident
	cases      map[string]*types.Case
	evidence   map[string]*types.EvidenceItem
	caseSeq    map[int]int // year -> last issued case sequence
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		activities: make(map[string]*types.Activity),
		incidents:  make(map[string]*types.Incident),
		cases:      make(map[string]*types.Case),
		evidence:   make(map[string]*types.EvidenceItem),
		caseSeq:    make(map[int]int),
	}
}

// CreateActivity stores a new activity.
func (s *Store) CreateActivity(_ context.Context, act *types.Activity) error {
	if act.ID == "" {
		return fmt.Errorf("activity id is required")
	}
	if err := act.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.activities[act.ID]; ok {
		return fmt.Errorf("activity %s: %w", act.ID, storage.ErrAlreadyExists)
	}
	s.activities[act.ID] = cloneActivity(act)
	return nil
}

// GetActivity returns a copy of the stored activity.
func (s *Store) GetActivity(_ context.Context, id string) (*types.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	act, ok := s.activities[id]
	if !ok {
		return nil, fmt.Errorf("activity %s: %w", id, storage.ErrNotFound)
	}
	return cloneActivity(act), nil
}

// UpdateActivity replaces the stored activity wholesale.
func (s *Store) UpdateActivity(_ context.Context, act *types.Activity) error {
	if err := act.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.activities[act.ID]; !ok {
		return fmt.Errorf("activity %s: %w", act.ID, storage.ErrNotFound)
	}
	s.activities[act.ID] = cloneActivity(act)
	return nil
}

// ListActivities returns copies of matching activities, sorted and paginated.
func (s *Store) ListActivities(_ context.Context, filter types.ActivityFilter, opts types.ListOptions) ([]*types.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	var out []*types.Activity
	for _, act := range s.activities {
		if filter.Matches(act) {
			out = append(out, cloneActivity(act))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activityKey(out[i]).less(activityKey(out[j]), opts)
	})
	return pageActivities(out, opts), nil
}

// CreateIncident stores a new incident.
func (s *Store) CreateIncident(_ context.Context, inc *types.Incident) error {
	if inc.ID == "" {
		return fmt.Errorf("incident id is required")
	}
	if err := inc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.incidents[inc.ID]; ok {
		return fmt.Errorf("incident %s: %w", inc.ID, storage.ErrAlreadyExists)
	}
	s.incidents[inc.ID] = cloneIncident(inc)
	return nil
}

// GetIncident returns a copy of the stored incident.
func (s *Store) GetIncident(_ context.Context, id string) (*types.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	inc, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, storage.ErrNotFound)
	}
	return cloneIncident(inc), nil
}

// UpdateIncident replaces the stored incident wholesale.
func (s *Store) UpdateIncident(_ context.Context, inc *types.Incident) error {
	if err := inc.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.incidents[inc.ID]; !ok {
		return fmt.Errorf("incident %s: %w", inc.ID, storage.ErrNotFound)
	}
	s.incidents[inc.ID] = cloneIncident(inc)
	return nil
}

// ListIncidents returns copies of matching incidents, sorted and paginated.
func (s *Store) ListIncidents(_ context.Context, filter types.IncidentFilter, opts types.ListOptions) ([]*types.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	var out []*types.Incident
	for _, inc := range s.incidents {
		if filter.Matches(inc) {
			out = append(out, cloneIncident(inc))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return incidentKey(out[i]).less(incidentKey(out[j]), opts)
	})
	return pageIncidents(out, opts), nil
}

// CreateCase stores a new case.
func (s *Store) CreateCase(_ context.Context, c *types.Case) error {
	if c.ID == "" {
		return fmt.Errorf("case id is required")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.cases[c.ID]; ok {
		return fmt.Errorf("case %s: %w", c.ID, storage.ErrAlreadyExists)
	}
	s.cases[c.ID] = cloneCase(c)
	return nil
}

// GetCase returns a copy of the stored case.
func (s *Store) GetCase(_ context.Context, id string) (*types.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, storage.ErrNotFound)
	}
	return cloneCase(c), nil
}

// UpdateCase replaces the stored case wholesale.
func (s *Store) UpdateCase(_ context.Context, c *types.Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.cases[c.ID]; !ok {
		return fmt.Errorf("case %s: %w", c.ID, storage.ErrNotFound)
	}
	s.cases[c.ID] = cloneCase(c)
	return nil
}

// ListCases returns copies of matching cases, sorted and paginated.
func (s *Store) ListCases(_ context.Context, filter types.CaseFilter, opts types.ListOptions) ([]*types.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	var out []*types.Case
	for _, c := range s.cases {
		if filter.Matches(c) {
			out = append(out, cloneCase(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return caseKey(out[i]).less(caseKey(out[j]), opts)
	})
	return pageCases(out, opts), nil
}

// NextCaseNumber issues the next case sequence for the year.
func (s *Store) NextCaseNumber(_ context.Context, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrClosed
	}
	s.caseSeq[year]++
	return s.caseSeq[year], nil
}

// CreateEvidence stores a new evidence item.
func (s *Store) CreateEvidence(_ context.Context, item *types.EvidenceItem) error {
	if item.ID == "" {
		return fmt.Errorf("evidence id is required")
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.evidence[item.ID]; ok {
		return fmt.Errorf("evidence %s: %w", item.ID, storage.ErrAlreadyExists)
	}
	s.evidence[item.ID] = cloneEvidence(item)
	return nil
}

// GetEvidence returns a copy of the stored evidence item.
func (s *Store) GetEvidence(_ context.Context, id string) (*types.EvidenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	item, ok := s.evidence[id]
	if !ok {
		return nil, fmt.Errorf("evidence %s: %w", id, storage.ErrNotFound)
	}
	return cloneEvidence(item), nil
}

// UpdateEvidence replaces the stored evidence item wholesale.
func (s *Store) UpdateEvidence(_ context.Context, item *types.EvidenceItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.evidence[item.ID]; !ok {
		return fmt.Errorf("evidence %s: %w", item.ID, storage.ErrNotFound)
	}
	s.evidence[item.ID] = cloneEvidence(item)
	return nil
}

// ListEvidence returns copies of matching evidence, sorted and paginated.
func (s *Store) ListEvidence(_ context.Context, filter types.EvidenceFilter, opts types.ListOptions) ([]*types.EvidenceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	var out []*types.EvidenceItem
	for _, item := range s.evidence {
		if filter.Matches(item) {
			out = append(out, cloneEvidence(item))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return evidenceKey(out[i]).less(evidenceKey(out[j]), opts)
	})
	return pageEvidence(out, opts), nil
}

// Ping reports whether the store is usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// Close marks the store closed. Further operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// sortKey carries the sortable fields of any entity.
type sortKey struct {
	created time.Time
	updated time.Time
	prio    int
	status  string
	id      string
}

func (k sortKey) less(o sortKey, opts types.ListOptions) bool {
	var cmp int
	switch opts.SortBy {
	case types.SortByUpdatedAt:
		cmp = compareTime(k.updated, o.updated)
	case types.SortByPriority:
		cmp = compareInt(k.prio, o.prio)
	case types.SortByStatus:
		cmp = strings.Compare(k.status, o.status)
	default:
		cmp = compareTime(k.created, o.created)
	}
	if cmp == 0 {
		cmp = strings.Compare(k.id, o.id)
	}
	if opts.SortDesc {
		return cmp > 0
	}
	return cmp < 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func activityKey(a *types.Activity) sortKey {
	return sortKey{created: a.CreatedAt, updated: a.UpdatedAt, prio: a.Priority.Rank(), status: string(a.Status), id: a.ID}
}

func incidentKey(i *types.Incident) sortKey {
	return sortKey{created: i.CreatedAt, updated: i.UpdatedAt, prio: i.Priority.Rank(), status: string(i.Status), id: i.ID}
}

func caseKey(c *types.Case) sortKey {
	return sortKey{created: c.CreatedAt, updated: c.UpdatedAt, prio: c.Priority.Rank(), status: string(c.Status), id: c.ID}
}

func evidenceKey(e *types.EvidenceItem) sortKey {
	return sortKey{created: e.CreatedAt, updated: e.UpdatedAt, status: string(e.ProcessingStatus), id: e.ID}
}

func pageBounds(n int, opts types.ListOptions) (int, int) {
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return start, end
}

func pageActivities(list []*types.Activity, opts types.ListOptions) []*types.Activity {
	start, end := pageBounds(len(list), opts)
	return list[start:end]
}

func pageIncidents(list []*types.Incident, opts types.ListOptions) []*types.Incident {
	start, end := pageBounds(len(list), opts)
	return list[start:end]
}

func pageCases(list []*types.Case, opts types.ListOptions) []*types.Case {
	start, end := pageBounds(len(list), opts)
	return list[start:end]
}

func pageEvidence(list []*types.EvidenceItem, opts types.ListOptions) []*types.EvidenceItem {
	start, end := pageBounds(len(list), opts)
	return list[start:end]
}

func cloneActivity(a *types.Activity) *types.Activity {
	if a == nil {
		return nil
	}
	out := *a
	out.SystemTags = cloneStrings(a.SystemTags)
	out.UserTags = cloneStrings(a.UserTags)
	out.IncidentIDs = cloneStrings(a.IncidentIDs)
	out.ArchivedAt = cloneTime(a.ArchivedAt)
	return &out
}

func cloneIncident(i *types.Incident) *types.Incident {
	if i == nil {
		return nil
	}
	out := *i
	out.SystemTags = cloneStrings(i.SystemTags)
	out.CaseIDs = cloneStrings(i.CaseIDs)
	out.ConfirmedAt = cloneTime(i.ConfirmedAt)
	out.DismissedAt = cloneTime(i.DismissedAt)
	return &out
}

func cloneCase(c *types.Case) *types.Case {
	if c == nil {
		return nil
	}
	out := *c
	out.IncidentIDs = cloneStrings(c.IncidentIDs)
	out.EvidenceIDs = cloneStrings(c.EvidenceIDs)
	if c.StatusHistory != nil {
		out.StatusHistory = append([]types.StatusChange(nil), c.StatusHistory...)
	}
	out.ClosedAt = cloneTime(c.ClosedAt)
	return &out
}

func cloneEvidence(e *types.EvidenceItem) *types.EvidenceItem {
	if e == nil {
		return nil
	}
	out := *e
	if e.Chain != nil {
		out.Chain = append([]types.CustodyEntry(nil), e.Chain...)
	}
	return &out
}

func cloneStrings(list []string) []string {
	if list == nil {
		return nil
	}
	return append([]string(nil), list...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
