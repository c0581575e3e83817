package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vigilops/vigil/internal/types"
)

func TestDefaultRuleSetIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestDefaultPriorityMap(t *testing.T) {
	rs := Default()
	tests := []struct {
		activityType types.ActivityType
		want         types.Priority
	}{
		{types.ActivityMedical, types.PriorityCritical},
		{types.ActivitySecurityBreach, types.PriorityHigh},
		{types.ActivityBOLEvent, types.PriorityHigh},
		{types.ActivityAlert, types.PriorityMedium},
		{types.ActivityPropertyDamage, types.PriorityMedium},
		{types.ActivityPatrol, types.PriorityLow},
		{types.ActivityEvidence, types.PriorityLow},
		{types.ActivityType("unmapped"), types.PriorityMedium},
	}
	for _, tt := range tests {
		if got := rs.DefaultPriority(tt.activityType); got != tt.want {
			t.Errorf("DefaultPriority(%s) = %s, want %s", tt.activityType, got, tt.want)
		}
	}
}

func TestDefaultEscalationPolicy(t *testing.T) {
	rs := Default()
	never := map[types.ActivityType]bool{
		types.ActivityPatrol:   true,
		types.ActivityEvidence: true,
	}
	for _, at := range []types.ActivityType{
		types.ActivityMedical, types.ActivitySecurityBreach, types.ActivityPatrol,
		types.ActivityEvidence, types.ActivityBOLEvent, types.ActivityAlert,
		types.ActivityPropertyDamage,
	} {
		rule := rs.EscalationFor(at)
		if rule == nil {
			t.Fatalf("EscalationFor(%s) = nil, want a rule", at)
		}
		wantCond := CondAlways
		if never[at] {
			wantCond = CondNever
		}
		if rule.Condition != wantCond {
			t.Errorf("EscalationFor(%s).Condition = %s, want %s", at, rule.Condition, wantCond)
		}
	}
	if rs.EscalationFor(types.ActivityType("unknown")) != nil {
		t.Error("EscalationFor(unknown) should be nil")
	}
}

func TestRuleSetValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RuleSet)
		errMsg string
	}{
		{
			name: "invalid role",
			mutate: func(rs *RuleSet) {
				rs.Transitions[0].Roles = []types.Role{"janitor"}
			},
			errMsg: "invalid role",
		},
		{
			name: "invalid from status",
			mutate: func(rs *RuleSet) {
				rs.Transitions[0].From = "limbo"
			},
			errMsg: "invalid from status",
		},
		{
			name: "self transition",
			mutate: func(rs *RuleSet) {
				rs.Transitions[0].To = rs.Transitions[0].From
			},
			errMsg: "from and to are both",
		},
		{
			name: "no roles",
			mutate: func(rs *RuleSet) {
				rs.Transitions[0].Roles = nil
			},
			errMsg: "no roles enumerated",
		},
		{
			name: "conditional without predicates",
			mutate: func(rs *RuleSet) {
				rs.Escalations[0].Condition = CondConditional
			},
			errMsg: "conditional rule has no predicates",
		},
		{
			name: "always with predicates",
			mutate: func(rs *RuleSet) {
				rs.Escalations[0].Predicates = []Predicate{{Field: FieldType, Op: OpEq, Value: "medical"}}
			},
			errMsg: "rule cannot carry predicates",
		},
		{
			name: "numeric op on string field",
			mutate: func(rs *RuleSet) {
				rs.Escalations[0].Condition = CondConditional
				rs.Escalations[0].Predicates = []Predicate{{Field: FieldLocation, Op: OpGt, Value: "5"}}
			},
			errMsg: "requires the confidence field",
		},
		{
			name: "case retention too short",
			mutate: func(rs *RuleSet) {
				rs.Retention.CaseYears[types.CaseSecurityReview] = 1
			},
			errMsg: "must be between 3 and 10",
		},
		{
			name: "case retention too long",
			mutate: func(rs *RuleSet) {
				rs.Retention.CaseYears[types.CaseInvestigation] = 25
			},
			errMsg: "must be between 3 and 10",
		},
		{
			name: "business hours inverted",
			mutate: func(rs *RuleSet) {
				rs.Tags.BusinessHoursStart = 18
				rs.Tags.BusinessHoursEnd = 9
			},
			errMsg: "business hours start",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := Default()
			tt.mutate(rs)
			err := rs.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestParseMergesOverDefaults(t *testing.T) {
	yamlSrc := `
priority_map:
  medical: critical
  security-breach: critical
  patrol: low
tags:
  business_hours_start: 8
  business_hours_end: 18
`
	rs, err := Parse([]byte(yamlSrc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Replaced tables take the file's values.
	if got := rs.DefaultPriority(types.ActivitySecurityBreach); got != types.PriorityCritical {
		t.Errorf("security-breach priority = %s, want critical", got)
	}
	wantTags := TagConfig{BusinessHoursStart: 8, BusinessHoursEnd: 18}
	if diff := cmp.Diff(wantTags, rs.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}

	// Untouched tables keep the defaults.
	if diff := cmp.Diff(Default().Transitions, rs.Transitions); diff != "" {
		t.Errorf("Transitions should be default (-want +got):\n%s", diff)
	}
	if rs.Retention.ActivityDays != 30 {
		t.Errorf("ActivityDays = %d, want 30", rs.Retention.ActivityDays)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse([]byte("priority_map:\n  medical: urgent\n")); err == nil {
		t.Error("Parse() accepted invalid priority")
	}
	if _, err := Parse([]byte(":::not yaml")); err == nil {
		t.Error("Parse() accepted malformed YAML")
	}
	bad := `
transitions:
  - entity: activity
    from: detecting
    to: detecting
    roles: [officer]
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Error("Parse() accepted self transition")
	}
}

func TestRetentionDurations(t *testing.T) {
	rs := Default()
	if got := rs.Retention.ActivityRetention(); got != 30*24*time.Hour {
		t.Errorf("ActivityRetention() = %v, want 720h", got)
	}
	if got := rs.Retention.CaseRetention(types.CaseInvestigation); got != 10*365*24*time.Hour {
		t.Errorf("CaseRetention(investigation) = %v, want 10y", got)
	}
	if got := rs.Retention.CaseRetention(types.CaseSecurityReview); got != 3*365*24*time.Hour {
		t.Errorf("CaseRetention(security-review) = %v, want 3y", got)
	}
	// Unknown case types get the longest configured period.
	if got := rs.Retention.CaseRetention(types.CaseType("unknown")); got != 10*365*24*time.Hour {
		t.Errorf("CaseRetention(unknown) = %v, want 10y", got)
	}
}

func TestTransitionRuleAllowsRole(t *testing.T) {
	rule := TransitionRule{Roles: []types.Role{types.RoleSupervisor, types.RoleAdmin}}
	if rule.AllowsRole(types.RoleOfficer) {
		t.Error("officer should not match a supervisor/admin rule")
	}
	if !rule.AllowsRole(types.RoleAdmin) {
		t.Error("admin should match")
	}
}
