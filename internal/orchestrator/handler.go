package orchestrator

import (
	"context"

	"github.com/vigilops/vigil/internal/types"
)

// Capability declares what a handler claims: its unique registry key, the
// activity types it serves, and its routing priority. An empty Claims list
// means the handler claims everything; catch-alls should register at a low
// priority so specific handlers win.
type Capability struct {
	Key      string               `json:"key"`
	Claims   []types.ActivityType `json:"claims,omitempty"`
	Priority int                  `json:"priority"`
}

// ClaimsType reports whether the capability covers the given activity type.
// Empty claims cover every type.
func (c Capability) ClaimsType(t types.ActivityType) bool {
	if len(c.Claims) == 0 {
		return true
	}
	for _, claim := range c.Claims {
		if claim == t {
			return true
		}
	}
	return false
}

// Overlaps reports whether two capabilities could both claim some activity
// type. Used at registration time to refuse ambiguous same-priority pairs.
func (c Capability) Overlaps(other Capability) bool {
	if len(c.Claims) == 0 || len(other.Claims) == 0 {
		return true
	}
	for _, claim := range c.Claims {
		if other.ClaimsType(claim) {
			return true
		}
	}
	return false
}

// Handler is a capability-scoped decision-maker for a class of activities
// and incidents. A handler owns its memory exclusively; the orchestrator
// holds handlers by reference and is the only writer of their memory,
// immediately after each decision.
type Handler interface {
	// Capability returns the handler's registry key, claims, and priority.
	Capability() Capability

	// CanHandleActivity reports whether this handler will take the activity.
	CanHandleActivity(act *types.Activity) bool

	// CanHandleIncident reports whether this handler will take the incident.
	CanHandleIncident(inc *types.Incident) bool

	// ProcessActivity produces a decision for an activity. The context
	// carries the orchestrator's decision deadline.
	ProcessActivity(ctx context.Context, act *types.Activity) (*types.Decision, error)

	// ProcessIncident produces a decision for an incident.
	ProcessIncident(ctx context.Context, inc *types.Incident) (*types.Decision, error)
}

// CaseOpener receives the hand-off when a decision demands escalation to a
// formal case. Fire-and-forget from the orchestrator's perspective: the
// case layer's own state machine governs what happens next, and a hand-off
// failure never fails the route.
type CaseOpener interface {
	OpenForIncident(ctx context.Context, inc *types.Incident, dec *types.Decision) error
}
