// Package rules holds the declarative tables that drive the engine: status
// transition rules, auto-escalation rules, tag generation settings, and
// retention periods. Tables are pure data; evaluation lives with the
// state machine and the escalation evaluator.
//
// Compiled-in defaults cover the standard policy. A YAML rules file can
// replace any table wholesale; replacement is validate-before-swap.
package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/vigilops/vigil/internal/types"
)

// TransitionRule permits a status change for an explicit set of roles.
// A role must be enumerated to match: membership, never hierarchy inference.
type TransitionRule struct {
	Entity           types.EntityKind `yaml:"entity" json:"entity"`
	From             string           `yaml:"from" json:"from"`
	To               string           `yaml:"to" json:"to"`
	Roles            []types.Role     `yaml:"roles" json:"roles"`
	RequiresApproval bool             `yaml:"requires_approval,omitempty" json:"requires_approval,omitempty"`
}

// AllowsRole reports whether the rule enumerates the given role.
func (r TransitionRule) AllowsRole(role types.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// ConditionKind is the closed set of escalation rule condition variants.
type ConditionKind string

// Condition kind constants
const (
	CondAlways      ConditionKind = "always"
	CondNever       ConditionKind = "never"
	CondConditional ConditionKind = "conditional"
)

// IsValid checks if the condition kind value is valid
func (k ConditionKind) IsValid() bool {
	switch k {
	case CondAlways, CondNever, CondConditional:
		return true
	}
	return false
}

// PredicateField names an activity field a conditional predicate can test.
type PredicateField string

// Predicate field constants
const (
	FieldType       PredicateField = "type"
	FieldPriority   PredicateField = "priority"
	FieldLocation   PredicateField = "location"
	FieldSiteID     PredicateField = "site_id"
	FieldTag        PredicateField = "tag"
	FieldConfidence PredicateField = "confidence"
)

// IsValid checks if the predicate field value is valid
func (f PredicateField) IsValid() bool {
	switch f {
	case FieldType, FieldPriority, FieldLocation, FieldSiteID, FieldTag, FieldConfidence:
		return true
	}
	return false
}

// PredicateOp is a comparison operator for conditional predicates.
type PredicateOp string

// Predicate operator constants
const (
	OpEq       PredicateOp = "eq"
	OpNe       PredicateOp = "ne"
	OpContains PredicateOp = "contains"
	OpGt       PredicateOp = "gt"
	OpGte      PredicateOp = "gte"
	OpLt       PredicateOp = "lt"
	OpLte      PredicateOp = "lte"
)

// IsValid checks if the predicate operator value is valid
func (o PredicateOp) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpContains, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Predicate is one field test inside a conditional escalation rule.
// Numeric operators apply only to the confidence field.
type Predicate struct {
	Field PredicateField `yaml:"field" json:"field"`
	Op    PredicateOp    `yaml:"op" json:"op"`
	Value string         `yaml:"value" json:"value"`
}

// EscalationRule decides whether an activity of a given type becomes an
// incident. Conditional rules carry a conjunction of predicates: all must
// hold for the rule to trigger.
type EscalationRule struct {
	ActivityType types.ActivityType `yaml:"activity_type" json:"activity_type"`
	Condition    ConditionKind      `yaml:"condition" json:"condition"`
	Predicates   []Predicate        `yaml:"predicates,omitempty" json:"predicates,omitempty"`
}

// TagConfig controls deterministic system tag generation.
// The business-hours window is inclusive on both ends.
type TagConfig struct {
	BusinessHoursStart int `yaml:"business_hours_start" json:"business_hours_start"` // hour of day, 0-23
	BusinessHoursEnd   int `yaml:"business_hours_end" json:"business_hours_end"`     // hour of day, 0-23
}

// RetentionConfig holds retention periods. Activities are archival-eligible
// after ActivityDays; cases are held for a type-dependent number of years.
type RetentionConfig struct {
	ActivityDays int                    `yaml:"activity_days" json:"activity_days"`
	CaseYears    map[types.CaseType]int `yaml:"case_years" json:"case_years"`
}

// ActivityRetention returns the activity retention window as a duration.
func (r RetentionConfig) ActivityRetention() time.Duration {
	days := r.ActivityDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// CaseRetention returns the retention window for a case type. Unknown types
// get the longest configured period.
func (r RetentionConfig) CaseRetention(t types.CaseType) time.Duration {
	years, ok := r.CaseYears[t]
	if !ok {
		years = 0
		for _, y := range r.CaseYears {
			if y > years {
				years = y
			}
		}
		if years == 0 {
			years = 10
		}
	}
	return time.Duration(years) * 365 * 24 * time.Hour
}

// RuleSet bundles every rule table the engine consults.
type RuleSet struct {
	Transitions []TransitionRule                      `yaml:"transitions" json:"transitions"`
	Escalations []EscalationRule                      `yaml:"escalations" json:"escalations"`
	PriorityMap map[types.ActivityType]types.Priority `yaml:"priority_map" json:"priority_map"`
	Tags        TagConfig                             `yaml:"tags" json:"tags"`
	Retention   RetentionConfig                       `yaml:"retention" json:"retention"`
}

// Validate checks every table for dangling enum references. A rule set that
// fails validation must never be swapped in.
func (rs *RuleSet) Validate() error {
	var errs []error
	for i, tr := range rs.Transitions {
		if !tr.Entity.IsValid() {
			errs = append(errs, fmt.Errorf("transition %d: invalid entity kind %q", i, tr.Entity))
			continue
		}
		if !validStatusForKind(tr.Entity, tr.From) {
			errs = append(errs, fmt.Errorf("transition %d: invalid from status %q for %s", i, tr.From, tr.Entity))
		}
		if !validStatusForKind(tr.Entity, tr.To) {
			errs = append(errs, fmt.Errorf("transition %d: invalid to status %q for %s", i, tr.To, tr.Entity))
		}
		if tr.From == tr.To {
			errs = append(errs, fmt.Errorf("transition %d: from and to are both %q", i, tr.From))
		}
		if len(tr.Roles) == 0 {
			errs = append(errs, fmt.Errorf("transition %d: no roles enumerated", i))
		}
		for _, role := range tr.Roles {
			if !role.IsValid() {
				errs = append(errs, fmt.Errorf("transition %d: invalid role %q", i, role))
			}
		}
	}
	for i, er := range rs.Escalations {
		if !er.ActivityType.IsValid() {
			errs = append(errs, fmt.Errorf("escalation %d: invalid activity type %q", i, er.ActivityType))
		}
		if !er.Condition.IsValid() {
			errs = append(errs, fmt.Errorf("escalation %d: invalid condition kind %q", i, er.Condition))
		}
		if er.Condition == CondConditional && len(er.Predicates) == 0 {
			errs = append(errs, fmt.Errorf("escalation %d: conditional rule has no predicates", i))
		}
		if er.Condition != CondConditional && len(er.Predicates) > 0 {
			errs = append(errs, fmt.Errorf("escalation %d: %s rule cannot carry predicates", i, er.Condition))
		}
		for j, p := range er.Predicates {
			if !p.Field.IsValid() {
				errs = append(errs, fmt.Errorf("escalation %d predicate %d: invalid field %q", i, j, p.Field))
			}
			if !p.Op.IsValid() {
				errs = append(errs, fmt.Errorf("escalation %d predicate %d: invalid op %q", i, j, p.Op))
			}
			if numericOp(p.Op) && p.Field != FieldConfidence {
				errs = append(errs, fmt.Errorf("escalation %d predicate %d: op %s requires the confidence field", i, j, p.Op))
			}
		}
	}
	for at, p := range rs.PriorityMap {
		if !at.IsValid() {
			errs = append(errs, fmt.Errorf("priority map: invalid activity type %q", at))
		}
		if !p.IsValid() {
			errs = append(errs, fmt.Errorf("priority map: invalid priority %q for %s", p, at))
		}
	}
	if rs.Tags.BusinessHoursStart < 0 || rs.Tags.BusinessHoursStart > 23 {
		errs = append(errs, fmt.Errorf("tags: business_hours_start %d out of range", rs.Tags.BusinessHoursStart))
	}
	if rs.Tags.BusinessHoursEnd < 0 || rs.Tags.BusinessHoursEnd > 23 {
		errs = append(errs, fmt.Errorf("tags: business_hours_end %d out of range", rs.Tags.BusinessHoursEnd))
	}
	if rs.Tags.BusinessHoursStart > rs.Tags.BusinessHoursEnd {
		errs = append(errs, fmt.Errorf("tags: business hours start %d after end %d", rs.Tags.BusinessHoursStart, rs.Tags.BusinessHoursEnd))
	}
	if rs.Retention.ActivityDays < 0 {
		errs = append(errs, fmt.Errorf("retention: activity_days cannot be negative"))
	}
	for ct, years := range rs.Retention.CaseYears {
		if !ct.IsValid() {
			errs = append(errs, fmt.Errorf("retention: invalid case type %q", ct))
		}
		if years < 3 || years > 10 {
			errs = append(errs, fmt.Errorf("retention: case years for %s must be between 3 and 10 (got %d)", ct, years))
		}
	}
	return errors.Join(errs...)
}

// DefaultPriority returns the mapped priority for an activity type, falling
// back to medium for unmapped types.
func (rs *RuleSet) DefaultPriority(t types.ActivityType) types.Priority {
	if p, ok := rs.PriorityMap[t]; ok {
		return p
	}
	return types.PriorityMedium
}

// EscalationFor returns the escalation rule for an activity type, or nil when
// no rule is defined for it.
func (rs *RuleSet) EscalationFor(t types.ActivityType) *EscalationRule {
	for i := range rs.Escalations {
		if rs.Escalations[i].ActivityType == t {
			return &rs.Escalations[i]
		}
	}
	return nil
}

func validStatusForKind(kind types.EntityKind, status string) bool {
	switch kind {
	case types.KindActivity:
		return types.ActivityStatus(status).IsValid()
	case types.KindCase:
		return types.CaseStatus(status).IsValid()
	}
	return false
}

func numericOp(op PredicateOp) bool {
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// Default returns the compiled-in rule set: the standard transition tables,
// the universal escalation policy, the type-priority map, business hours
// tagging, and retention periods.
func Default() *RuleSet {
	return &RuleSet{
		Transitions: defaultTransitions(),
		Escalations: defaultEscalations(),
		PriorityMap: map[types.ActivityType]types.Priority{
			types.ActivityMedical:        types.PriorityCritical,
			types.ActivitySecurityBreach: types.PriorityHigh,
			types.ActivityBOLEvent:       types.PriorityHigh,
			types.ActivityAlert:          types.PriorityMedium,
			types.ActivityPropertyDamage: types.PriorityMedium,
			types.ActivityPatrol:         types.PriorityLow,
			types.ActivityEvidence:       types.PriorityLow,
		},
		Tags: TagConfig{
			BusinessHoursStart: 9,
			BusinessHoursEnd:   17,
		},
		Retention: RetentionConfig{
			ActivityDays: 30,
			CaseYears: map[types.CaseType]int{
				types.CaseInvestigation:   10,
				types.CaseComplianceAudit: 7,
				types.CasePersonnelMatter: 5,
				types.CaseSecurityReview:  3,
				types.CasePropertyLoss:    3,
			},
		},
	}
}

func defaultTransitions() []TransitionRule {
	allRoles := []types.Role{types.RoleOfficer, types.RoleSupervisor, types.RoleAdmin}
	elevated := []types.Role{types.RoleSupervisor, types.RoleAdmin}

	activity := func(from, to types.ActivityStatus, roles []types.Role, approval bool) TransitionRule {
		return TransitionRule{
			Entity: types.KindActivity, From: string(from), To: string(to),
			Roles: roles, RequiresApproval: approval,
		}
	}
	kase := func(from, to types.CaseStatus, roles []types.Role, approval bool) TransitionRule {
		return TransitionRule{
			Entity: types.KindCase, From: string(from), To: string(to),
			Roles: roles, RequiresApproval: approval,
		}
	}

	return []TransitionRule{
		// Activity: forward path, any role.
		activity(types.ActivityDetecting, types.ActivityAssigned, allRoles, false),
		activity(types.ActivityAssigned, types.ActivityResponding, allRoles, false),
		activity(types.ActivityResponding, types.ActivityResolved, allRoles, false),

		// Activity: backward moves for supervisors/admins.
		// Reverting out of resolved always needs approval.
		activity(types.ActivityAssigned, types.ActivityDetecting, elevated, false),
		activity(types.ActivityResponding, types.ActivityAssigned, elevated, false),
		activity(types.ActivityResponding, types.ActivityDetecting, elevated, false),
		activity(types.ActivityResolved, types.ActivityResponding, elevated, true),
		activity(types.ActivityResolved, types.ActivityAssigned, elevated, true),
		activity(types.ActivityResolved, types.ActivityDetecting, elevated, true),

		// Case: forward path. Officers need approval to enter analysis;
		// supervisors/admins do not.
		kase(types.CaseOpen, types.CaseInvestigating, allRoles, false),
		kase(types.CaseInvestigating, types.CaseEvidenceCollection, allRoles, false),
		kase(types.CaseEvidenceCollection, types.CaseAnalysis, []types.Role{types.RoleOfficer}, true),
		kase(types.CaseEvidenceCollection, types.CaseAnalysis, elevated, false),
		kase(types.CaseAnalysis, types.CaseClosed, allRoles, false),

		// Case: reopen paths for supervisors/admins.
		kase(types.CaseClosed, types.CaseAnalysis, elevated, true),
		kase(types.CaseAnalysis, types.CaseInvestigating, elevated, true),
		kase(types.CaseInvestigating, types.CaseOpen, elevated, false),
	}
}

func defaultEscalations() []EscalationRule {
	// Universal policy: everything escalates except patrol and evidence.
	return []EscalationRule{
		{ActivityType: types.ActivityMedical, Condition: CondAlways},
		{ActivityType: types.ActivitySecurityBreach, Condition: CondAlways},
		{ActivityType: types.ActivityBOLEvent, Condition: CondAlways},
		{ActivityType: types.ActivityAlert, Condition: CondAlways},
		{ActivityType: types.ActivityPropertyDamage, Condition: CondAlways},
		{ActivityType: types.ActivityPatrol, Condition: CondNever},
		{ActivityType: types.ActivityEvidence, Condition: CondNever},
	}
}
