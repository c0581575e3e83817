package types

import (
	"errors"
	"fmt"
	"time"
)

// Decision is a handler's verdict on one activity or incident.
// Produced once per processed entity; immutable after that.
type Decision struct {
	ID                 string            `json:"id"`
	HandlerKey         string            `json:"handler_key"`
	Timestamp          time.Time         `json:"timestamp"`
	Confidence         float64           `json:"confidence"` // 0..1
	Action             DecisionAction    `json:"action"`
	SOPSteps           []string          `json:"sop_steps,omitempty"` // step ids applied, in order
	EscalationRequired bool              `json:"escalation_required,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Validate checks the decision's field values.
func (d *Decision) Validate() error {
	var errs []error
	if d.HandlerKey == "" {
		errs = append(errs, fmt.Errorf("handler key is required"))
	}
	if !d.Action.IsValid() {
		errs = append(errs, fmt.Errorf("invalid decision action: %s", d.Action))
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence must be between 0 and 1 (got %g)", d.Confidence))
	}
	return errors.Join(errs...)
}

// Outcome classifies the decision by its confidence: success above the
// resolution threshold, failure otherwise.
func (d *Decision) Outcome() Outcome {
	if d.Confidence > ResolutionConfidenceThreshold {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// ResolutionConfidenceThreshold separates success from failure outcomes.
// A decision counts as resolved only when confidence strictly exceeds it.
const ResolutionConfidenceThreshold = 0.8

// DecisionAction is what a handler recommends doing.
type DecisionAction string

// Decision action constants
const (
	ActionCreateIncident  DecisionAction = "create-incident"
	ActionEscalate        DecisionAction = "escalate"
	ActionMonitor         DecisionAction = "monitor"
	ActionResolve         DecisionAction = "resolve"
	ActionCreateWorkOrder DecisionAction = "create-work-order"
)

// IsValid checks if the decision action value is valid
func (a DecisionAction) IsValid() bool {
	switch a {
	case ActionCreateIncident, ActionEscalate, ActionMonitor, ActionResolve, ActionCreateWorkOrder:
		return true
	}
	return false
}

// Outcome classifies a completed decision.
type Outcome string

// Outcome constants
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ConversationEntry is one record in a handler's append-only decision history.
type ConversationEntry struct {
	DecisionID string         `json:"decision_id"`
	EntityID   string         `json:"entity_id"` // activity or incident id
	Action     DecisionAction `json:"action"`
	Outcome    Outcome        `json:"outcome"`
	Confidence float64        `json:"confidence"`
	Latency    time.Duration  `json:"latency_ns"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SuccessMetrics are a handler's running aggregates. Maintained incrementally
// after every decision; never recomputed by rescanning history.
type SuccessMetrics struct {
	TotalHandled      int       `json:"total_handled"`
	AvgResponseMillis float64   `json:"avg_response_ms"`
	ResolutionRate    float64   `json:"resolution_rate"`
	EscalationRate    float64   `json:"escalation_rate"`
	SOPComplianceRate float64   `json:"sop_compliance_rate"`
	LastProcessed     time.Time `json:"last_processed,omitempty"`
}

// SOPEffectiveness accumulates per-incident-type procedure metrics.
// Reporting data only: it never feeds back into routing.
type SOPEffectiveness struct {
	IncidentType        ActivityType `json:"incident_type"`
	SOPKey              string       `json:"sop_key,omitempty"`
	Applications        int          `json:"applications"`
	ComplianceRate      float64      `json:"compliance_rate"`
	AvgResolutionMillis float64      `json:"avg_resolution_ms"`
	SuccessRate         float64      `json:"success_rate"`
	Deviations          []string     `json:"deviations,omitempty"` // deduplicated
}

// SystemMetrics is the orchestrator-level counter snapshot.
type SystemMetrics struct {
	AgentCount    int       `json:"agent_count"`
	LastProcessed time.Time `json:"last_processed,omitempty"`
}
