package types

import (
	"strings"
	"time"
)

// ListOptions controls sorting and pagination on list queries.
// A zero Limit means no cap.
type ListOptions struct {
	SortBy   SortField
	SortDesc bool
	Limit    int
	Offset   int
}

// SortField names a sortable column on list queries.
type SortField string

// Sort field constants
const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
	SortByPriority  SortField = "priority"
	SortByStatus    SortField = "status"
)

// IsValid checks if the sort field value is valid
func (f SortField) IsValid() bool {
	switch f {
	case SortByCreatedAt, SortByUpdatedAt, SortByPriority, SortByStatus, "":
		return true
	}
	return false
}

// ActivityFilter selects activities on list queries. Nil pointer fields
// mean "any".
type ActivityFilter struct {
	Type          *ActivityType
	Status        *ActivityStatus
	Priority      *Priority
	SiteID        *string
	Reporter      *string
	Tags          []string // activity must carry ALL of these (system or user)
	TitleContains string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	ExpiredAsOf   *time.Time // retention deadline passed as of this instant
	Archived      *bool
}

// IncidentFilter selects incidents on list queries.
type IncidentFilter struct {
	Type              *ActivityType
	Status            *IncidentStatus
	Priority          *Priority
	TriggerActivityID *string
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
}

// CaseFilter selects cases on list queries.
type CaseFilter struct {
	Type             *CaseType
	Status           *CaseStatus
	Priority         *Priority
	LeadInvestigator *string
	IncidentID       *string // case must link this incident
	CreatedAfter     *time.Time
	CreatedBefore    *time.Time
}

// EvidenceFilter selects evidence items on list queries.
type EvidenceFilter struct {
	CaseID           *string
	Type             *EvidenceType
	ProcessingStatus *ProcessingStatus
	Classification   *Classification
}

// Matches reports whether the activity satisfies every set filter field.
// Backends apply this as the authoritative filter; SQL WHERE clauses only
// narrow the candidate set.
func (f ActivityFilter) Matches(a *Activity) bool {
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.Priority != nil && a.Priority != *f.Priority {
		return false
	}
	if f.SiteID != nil && a.SiteID != *f.SiteID {
		return false
	}
	if f.Reporter != nil && a.Reporter != *f.Reporter {
		return false
	}
	for _, want := range f.Tags {
		if !a.HasSystemTag(want) && !containsString(a.UserTags, want) {
			return false
		}
	}
	if f.TitleContains != "" && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(f.TitleContains)) {
		return false
	}
	if f.CreatedAfter != nil && !a.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !a.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.ExpiredAsOf != nil && !a.IsExpired(*f.ExpiredAsOf) {
		return false
	}
	if f.Archived != nil && a.Archived != *f.Archived {
		return false
	}
	return true
}

// Matches reports whether the incident satisfies every set filter field.
func (f IncidentFilter) Matches(i *Incident) bool {
	if f.Type != nil && i.Type != *f.Type {
		return false
	}
	if f.Status != nil && i.Status != *f.Status {
		return false
	}
	if f.Priority != nil && i.Priority != *f.Priority {
		return false
	}
	if f.TriggerActivityID != nil && i.TriggerActivityID != *f.TriggerActivityID {
		return false
	}
	if f.CreatedAfter != nil && !i.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !i.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// Matches reports whether the case satisfies every set filter field.
func (f CaseFilter) Matches(c *Case) bool {
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.Priority != nil && c.Priority != *f.Priority {
		return false
	}
	if f.LeadInvestigator != nil && c.LeadInvestigator != *f.LeadInvestigator {
		return false
	}
	if f.IncidentID != nil && !containsString(c.IncidentIDs, *f.IncidentID) {
		return false
	}
	if f.CreatedAfter != nil && !c.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !c.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// Matches reports whether the evidence item satisfies every set filter field.
func (f EvidenceFilter) Matches(e *EvidenceItem) bool {
	if f.CaseID != nil && e.CaseID != *f.CaseID {
		return false
	}
	if f.Type != nil && e.Type != *f.Type {
		return false
	}
	if f.ProcessingStatus != nil && e.ProcessingStatus != *f.ProcessingStatus {
		return false
	}
	if f.Classification != nil && e.Classification != *f.Classification {
		return false
	}
	return true
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
