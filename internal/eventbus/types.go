package eventbus

import (
	"time"
)

// EventType identifies an event flowing through the bus. Types are dotted
// entity.action names so subscribers can match on category prefixes.
type EventType string

const (
	// Activity lifecycle events.
	EventActivityCreated       EventType = "activity.created"
	EventActivityStatusChanged EventType = "activity.status_changed"
	EventActivityArchived      EventType = "activity.archived"

	// Incident lifecycle events. incident.auto_created fires when the
	// escalation evaluator promotes an activity without a human in the loop.
	EventIncidentAutoCreated EventType = "incident.auto_created"
	EventIncidentConfirmed   EventType = "incident.confirmed"
	EventIncidentDismissed   EventType = "incident.dismissed"
	EventIncidentResolved    EventType = "incident.resolved"

	// Case lifecycle events.
	EventCaseOpened        EventType = "case.opened"
	EventCaseStatusChanged EventType = "case.status_changed"
	EventCaseClosed        EventType = "case.closed"

	// Evidence custody events.
	EventEvidenceAdded    EventType = "evidence.added"
	EventEvidenceCustody  EventType = "evidence.custody_appended"
	EventEvidenceVerified EventType = "evidence.verified"

	// Routing events.
	EventRoutingDecision EventType = "routing.decision"
)

// AllEvents returns every event type, for handlers that tap the whole stream.
func AllEvents() []EventType {
	return []EventType{
		EventActivityCreated, EventActivityStatusChanged, EventActivityArchived,
		EventIncidentAutoCreated, EventIncidentConfirmed, EventIncidentDismissed, EventIncidentResolved,
		EventCaseOpened, EventCaseStatusChanged, EventCaseClosed,
		EventEvidenceAdded, EventEvidenceCustody, EventEvidenceVerified,
		EventRoutingDecision,
	}
}

// IsActivityEvent returns true if the event type belongs to the activity
// lifecycle category.
func (t EventType) IsActivityEvent() bool {
	switch t {
	case EventActivityCreated, EventActivityStatusChanged, EventActivityArchived:
		return true
	}
	return false
}

// IsIncidentEvent returns true if the event type belongs to the incident
// lifecycle category.
func (t EventType) IsIncidentEvent() bool {
	switch t {
	case EventIncidentAutoCreated, EventIncidentConfirmed,
		EventIncidentDismissed, EventIncidentResolved:
		return true
	}
	return false
}

// IsCaseEvent returns true if the event type belongs to the case
// lifecycle category.
func (t EventType) IsCaseEvent() bool {
	switch t {
	case EventCaseOpened, EventCaseStatusChanged, EventCaseClosed:
		return true
	}
	return false
}

// IsEvidenceEvent returns true if the event type belongs to the evidence
// custody category.
func (t EventType) IsEvidenceEvent() bool {
	switch t {
	case EventEvidenceAdded, EventEvidenceCustody, EventEvidenceVerified:
		return true
	}
	return false
}

// Event represents a single engine event flowing through the bus.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"ts"`
	Entity    string            `json:"entity"`
	EntityID  string            `json:"entity_id"`
	Actor     string            `json:"actor,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Result aggregates handler responses for an event. Emission is
// fire-and-forget for the caller; warnings are surfaced in logs only.
type Result struct {
	Warnings []string `json:"warnings,omitempty"`
}
