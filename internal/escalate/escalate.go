// Package escalate decides whether a validated activity becomes an incident.
// Evaluation is pure: rule lookup plus predicate matching, no I/O. The
// evaluator never hands back an incident in an active or confirmed state;
// every auto-created incident starts pending and awaits human validation.
package escalate

import (
	"strconv"
	"strings"
	"time"

	"github.com/vigilops/vigil/internal/idgen"
	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/types"
)

// ShouldEscalate reports whether the escalation rules trigger for the
// activity. An activity type with no rule never escalates.
func ShouldEscalate(rs *rules.RuleSet, act *types.Activity) bool {
	rule := rs.EscalationFor(act.Type)
	if rule == nil {
		return false
	}
	switch rule.Condition {
	case rules.CondAlways:
		return true
	case rules.CondNever:
		return false
	case rules.CondConditional:
		for _, p := range rule.Predicates {
			if !matchPredicate(p, act) {
				return false
			}
		}
		return true
	}
	return false
}

// Evaluate applies the escalation rules to the activity and, when they
// trigger, constructs the pending incident. Returns nil when no rule
// triggers. The caller owns all side effects (audit, event publish).
func Evaluate(rs *rules.RuleSet, act *types.Activity, now time.Time) *types.Incident {
	if !ShouldEscalate(rs, act) {
		return nil
	}
	return BuildIncident(rs, act, now, 0)
}

// BuildIncident constructs the pending incident for a triggered activity.
// The nonce alters the generated identifier on storage collisions.
func BuildIncident(rs *rules.RuleSet, act *types.Activity, now time.Time, nonce int) *types.Incident {
	priority := act.Priority
	if !priority.IsValid() {
		priority = rs.DefaultPriority(act.Type)
	}
	return &types.Incident{
		ID:                 idgen.IncidentID(act.Title, act.ID, now, nonce),
		Type:               act.Type,
		Status:             types.IncidentPending,
		Priority:           priority,
		Title:              act.Title,
		TriggerActivityID:  act.ID,
		RequiresValidation: true,
		Dismissible:        true,
		SystemTags:         []string{TagAutoGenerated},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// matchPredicate evaluates one predicate against the activity. Conditional
// rules are conjunctions: the caller requires every predicate to hold.
func matchPredicate(p rules.Predicate, act *types.Activity) bool {
	if p.Field == rules.FieldConfidence {
		return matchConfidence(p, act.Confidence)
	}
	if p.Field == rules.FieldTag {
		return matchTag(p, act)
	}

	var field string
	switch p.Field {
	case rules.FieldType:
		field = string(act.Type)
	case rules.FieldPriority:
		field = string(act.Priority)
	case rules.FieldLocation:
		field = act.Location
	case rules.FieldSiteID:
		field = act.SiteID
	default:
		return false
	}

	switch p.Op {
	case rules.OpEq:
		return field == p.Value
	case rules.OpNe:
		return field != p.Value
	case rules.OpContains:
		return strings.Contains(strings.ToLower(field), strings.ToLower(p.Value))
	}
	return false
}

func matchConfidence(p rules.Predicate, confidence float64) bool {
	threshold, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return false
	}
	switch p.Op {
	case rules.OpEq:
		return confidence == threshold
	case rules.OpNe:
		return confidence != threshold
	case rules.OpGt:
		return confidence > threshold
	case rules.OpGte:
		return confidence >= threshold
	case rules.OpLt:
		return confidence < threshold
	case rules.OpLte:
		return confidence <= threshold
	}
	return false
}

func matchTag(p rules.Predicate, act *types.Activity) bool {
	tags := make([]string, 0, len(act.SystemTags)+len(act.UserTags))
	tags = append(tags, act.SystemTags...)
	tags = append(tags, act.UserTags...)
	switch p.Op {
	case rules.OpEq:
		for _, t := range tags {
			if t == p.Value {
				return true
			}
		}
		return false
	case rules.OpNe:
		for _, t := range tags {
			if t == p.Value {
				return false
			}
		}
		return true
	case rules.OpContains:
		for _, t := range tags {
			if strings.Contains(t, p.Value) {
				return true
			}
		}
		return false
	}
	return false
}
