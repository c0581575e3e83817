package types

import (
	"errors"
	"fmt"
	"time"
)

// Incident is an escalated activity awaiting (or past) human confirmation.
// Auto-created incidents always start pending: the escalation evaluator is
// forbidden from handing back an incident in an active or confirmed state.
type Incident struct {
	ID                 string         `json:"id"`
	Type               ActivityType   `json:"type"`
	Status             IncidentStatus `json:"status"`
	Priority           Priority       `json:"priority"`
	Title              string         `json:"title"`
	TriggerActivityID  string         `json:"trigger_activity_id"`
	RequiresValidation bool           `json:"requires_validation"`
	Dismissible        bool           `json:"dismissible"`
	SystemTags         []string       `json:"system_tags,omitempty"`
	ConfirmedBy        string         `json:"confirmed_by,omitempty"`
	ConfirmedAt        *time.Time     `json:"confirmed_at,omitempty"`
	DismissedBy        string         `json:"dismissed_by,omitempty"`
	DismissedAt        *time.Time     `json:"dismissed_at,omitempty"`
	DismissReason      string         `json:"dismiss_reason,omitempty"`
	CaseIDs            []string       `json:"case_ids,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Validate checks the incident's field values.
func (i *Incident) Validate() error {
	var errs []error
	if i.Title == "" {
		errs = append(errs, fmt.Errorf("title is required"))
	}
	if !i.Type.IsValid() {
		errs = append(errs, fmt.Errorf("invalid incident type: %s", i.Type))
	}
	if !i.Status.IsValid() {
		errs = append(errs, fmt.Errorf("invalid status: %s", i.Status))
	}
	if !i.Priority.IsValid() {
		errs = append(errs, fmt.Errorf("invalid priority: %s", i.Priority))
	}
	if i.TriggerActivityID == "" {
		errs = append(errs, fmt.Errorf("trigger activity id is required"))
	}
	// Confirmation invariants: confirmed_at tracks active status exactly.
	if i.Status == IncidentActive && i.ConfirmedAt == nil {
		errs = append(errs, fmt.Errorf("active incidents must have confirmed_at timestamp"))
	}
	if i.Status == IncidentPending && i.ConfirmedAt != nil {
		errs = append(errs, fmt.Errorf("pending incidents cannot have confirmed_at timestamp"))
	}
	if i.Status == IncidentDismissed && i.DismissedAt == nil {
		errs = append(errs, fmt.Errorf("dismissed incidents must have dismissed_at timestamp"))
	}
	return errors.Join(errs...)
}

// IsPending reports whether the incident still awaits human confirmation.
func (i *Incident) IsPending() bool {
	return i.Status == IncidentPending
}

// HasSystemTag reports whether the incident carries the given system tag.
func (i *Incident) HasSystemTag(tag string) bool {
	for _, t := range i.SystemTags {
		if t == tag {
			return true
		}
	}
	return false
}

// IncidentStatus represents the confirmation state of an incident
type IncidentStatus string

// Incident status constants
const (
	IncidentPending   IncidentStatus = "pending"
	IncidentActive    IncidentStatus = "active"
	IncidentDismissed IncidentStatus = "dismissed"
	IncidentResolved  IncidentStatus = "resolved"
)

// IsValid checks if the incident status value is valid
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentPending, IncidentActive, IncidentDismissed, IncidentResolved:
		return true
	}
	return false
}
