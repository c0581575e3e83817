// Package types defines core data structures for the vigil escalation engine.
package types

import (
	"errors"
	"fmt"
	"time"
)

// Activity represents a field-reported event, the unit of initial observation.
type Activity struct {
	ID             string       `json:"id"`
	Type           ActivityType `json:"type"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Priority       Priority     `json:"priority,omitempty"`
	Status         ActivityStatus `json:"status,omitempty"`
	Location       string       `json:"location"`
	SiteID         string       `json:"site_id,omitempty"`
	Reporter       string       `json:"reporter,omitempty"`
	ReporterClass  ActorClass   `json:"reporter_class,omitempty"`
	Confidence     float64      `json:"confidence,omitempty"` // 0..1, from sensor adapters; 0 for manual reports
	SystemTags     []string     `json:"system_tags,omitempty"`
	UserTags       []string     `json:"user_tags,omitempty"`
	IncidentIDs    []string     `json:"incident_ids,omitempty"`
	RetentionUntil time.Time    `json:"retention_until"`
	Archived       bool         `json:"archived,omitempty"`
	ArchivedAt     *time.Time   `json:"archived_at,omitempty"`
	ArchiveSummary string       `json:"archive_summary,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// DefaultActivityRetention is how long an activity is held before it becomes
// eligible for archival. Activities are never hard-deleted.
const DefaultActivityRetention = 30 * 24 * time.Hour

// IsExpired returns true if the activity has passed its retention deadline.
// Archived activities never re-expire.
func (a *Activity) IsExpired(now time.Time) bool {
	if a.Archived {
		return false
	}
	if a.RetentionUntil.IsZero() {
		return false
	}
	return now.After(a.RetentionUntil)
}

// HasSystemTag reports whether the activity already carries the given system tag.
func (a *Activity) HasSystemTag(tag string) bool {
	for _, t := range a.SystemTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the activity's field values. All field errors are reported,
// not just the first.
func (a *Activity) Validate() error {
	var errs []error
	if a.Title == "" {
		errs = append(errs, fmt.Errorf("title is required"))
	}
	if len(a.Title) > 500 {
		errs = append(errs, fmt.Errorf("title must be 500 characters or less (got %d)", len(a.Title)))
	}
	if len(a.Description) > 5000 {
		errs = append(errs, fmt.Errorf("description must be 5000 characters or less (got %d)", len(a.Description)))
	}
	if !a.Type.IsValid() {
		errs = append(errs, fmt.Errorf("invalid activity type: %s", a.Type))
	}
	if a.Location == "" {
		errs = append(errs, fmt.Errorf("location is required"))
	}
	if len(a.Location) > 200 {
		errs = append(errs, fmt.Errorf("location must be 200 characters or less (got %d)", len(a.Location)))
	}
	if !a.Priority.IsValid() {
		errs = append(errs, fmt.Errorf("invalid priority: %s", a.Priority))
	}
	if !a.Status.IsValid() {
		errs = append(errs, fmt.Errorf("invalid status: %s", a.Status))
	}
	if a.ReporterClass != "" && !a.ReporterClass.IsValid() {
		errs = append(errs, fmt.Errorf("invalid reporter class: %s", a.ReporterClass))
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence must be between 0 and 1 (got %g)", a.Confidence))
	}
	return errors.Join(errs...)
}

// SetDefaults applies default values for fields omitted on creation:
// status starts at detecting, priority falls back to medium, and the
// retention deadline is derived from the creation timestamp.
func (a *Activity) SetDefaults() {
	if a.Status == "" {
		a.Status = ActivityDetecting
	}
	if a.Priority == "" {
		a.Priority = PriorityMedium
	}
	if a.ReporterClass == "" {
		a.ReporterClass = ActorHuman
	}
	if a.RetentionUntil.IsZero() && !a.CreatedAt.IsZero() {
		a.RetentionUntil = a.CreatedAt.Add(DefaultActivityRetention)
	}
}

// ActivityType is the closed enumeration of field event kinds.
type ActivityType string

// Activity type constants
const (
	ActivityMedical        ActivityType = "medical"
	ActivitySecurityBreach ActivityType = "security-breach"
	ActivityPatrol         ActivityType = "patrol"
	ActivityEvidence       ActivityType = "evidence"
	ActivityBOLEvent       ActivityType = "bol-event"
	ActivityAlert          ActivityType = "alert"
	ActivityPropertyDamage ActivityType = "property-damage"
)

// IsValid checks if the activity type value is valid
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityMedical, ActivitySecurityBreach, ActivityPatrol, ActivityEvidence,
		ActivityBOLEvent, ActivityAlert, ActivityPropertyDamage:
		return true
	}
	return false
}

// ActivityStatus represents the response state of an activity
type ActivityStatus string

// Activity status constants. Normal roles move strictly forward through these;
// backward moves are supervisor/admin territory.
const (
	ActivityDetecting  ActivityStatus = "detecting"
	ActivityAssigned   ActivityStatus = "assigned"
	ActivityResponding ActivityStatus = "responding"
	ActivityResolved   ActivityStatus = "resolved"
)

// IsValid checks if the activity status value is valid
func (s ActivityStatus) IsValid() bool {
	switch s {
	case ActivityDetecting, ActivityAssigned, ActivityResponding, ActivityResolved:
		return true
	}
	return false
}

// Priority represents urgency for activities, incidents, and cases
type Priority string

// Priority constants
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns a sortable weight, critical highest.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 0
	}
	return -1
}

// ActorClass identifies what kind of source created an activity.
type ActorClass string

// Actor class constants
const (
	ActorHuman       ActorClass = "human"
	ActorIntegration ActorClass = "integration"
	ActorAmbient     ActorClass = "ambient"
)

// IsValid checks if the actor class value is valid
func (c ActorClass) IsValid() bool {
	switch c {
	case ActorHuman, ActorIntegration, ActorAmbient:
		return true
	}
	return false
}

// Role is an actor's authorization level. Transition rules name roles by
// explicit membership, never by hierarchy inference.
type Role string

// Role constants
const (
	RoleOfficer    Role = "officer"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system" // internal actors: sweeper, ingest adapter
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleOfficer, RoleSupervisor, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// ActorContext identifies who is performing a mutation and why. Every mutating
// call requires one; a missing or incomplete context is rejected before any
// write is attempted.
type ActorContext struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Reason string `json:"reason,omitempty"`
}

// Validate checks that the context is complete enough to audit against.
func (c ActorContext) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, fmt.Errorf("actor id is required"))
	}
	if c.Name == "" {
		errs = append(errs, fmt.Errorf("actor name is required"))
	}
	if !c.Role.IsValid() {
		errs = append(errs, fmt.Errorf("invalid actor role: %s", c.Role))
	}
	return errors.Join(errs...)
}

// SystemActor returns the actor context used by internal workers.
func SystemActor(name, reason string) ActorContext {
	return ActorContext{ID: "system", Name: name, Role: RoleSystem, Reason: reason}
}

// EntityKind selects which transition table applies to a status change.
type EntityKind string

// Entity kind constants
const (
	KindActivity EntityKind = "activity"
	KindCase     EntityKind = "case"
)

// IsValid checks if the entity kind value is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case KindActivity, KindCase:
		return true
	}
	return false
}
