package escalate

import (
	"testing"
	"time"

	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/types"
)

func testActivity(t types.ActivityType) *types.Activity {
	return &types.Activity{
		ID:       "act-abc123",
		Type:     t,
		Title:    "Test activity",
		Location: "Building A",
		Status:   types.ActivityDetecting,
		Priority: types.PriorityMedium,
	}
}

func TestEvaluateEscalatingTypes(t *testing.T) {
	rs := rules.Default()
	now := time.Now()
	escalating := []types.ActivityType{
		types.ActivityMedical,
		types.ActivitySecurityBreach,
		types.ActivityBOLEvent,
		types.ActivityAlert,
		types.ActivityPropertyDamage,
	}
	for _, at := range escalating {
		act := testActivity(at)
		inc := Evaluate(rs, act, now)
		if inc == nil {
			t.Fatalf("Evaluate(%s) = nil, want incident", at)
		}
		if inc.Status != types.IncidentPending {
			t.Errorf("Evaluate(%s).Status = %s, want pending", at, inc.Status)
		}
		if !inc.RequiresValidation {
			t.Errorf("Evaluate(%s) incident must require validation", at)
		}
		if !inc.Dismissible {
			t.Errorf("Evaluate(%s) incident must be dismissible", at)
		}
		if !inc.HasSystemTag(TagAutoGenerated) {
			t.Errorf("Evaluate(%s) incident missing %s tag", at, TagAutoGenerated)
		}
		if inc.TriggerActivityID != act.ID {
			t.Errorf("TriggerActivityID = %s, want %s", inc.TriggerActivityID, act.ID)
		}
		if err := inc.Validate(); err != nil {
			t.Errorf("built incident fails validation: %v", err)
		}
	}
}

func TestEvaluateNeverEscalates(t *testing.T) {
	rs := rules.Default()
	now := time.Now()
	for _, at := range []types.ActivityType{types.ActivityPatrol, types.ActivityEvidence} {
		for _, p := range []types.Priority{types.PriorityLow, types.PriorityCritical} {
			act := testActivity(at)
			act.Priority = p
			if inc := Evaluate(rs, act, now); inc != nil {
				t.Errorf("Evaluate(%s, priority=%s) = %+v, want nil", at, p, inc)
			}
		}
	}
}

func TestEvaluateUnknownTypeDoesNotEscalate(t *testing.T) {
	rs := rules.Default()
	act := testActivity(types.ActivityType("drone-sighting"))
	if inc := Evaluate(rs, act, time.Now()); inc != nil {
		t.Errorf("Evaluate(unknown type) = %+v, want nil", inc)
	}
}

func TestEvaluateAssignsPriorityFromTypeMap(t *testing.T) {
	rs := rules.Default()
	tests := []struct {
		activityType types.ActivityType
		want         types.Priority
	}{
		{types.ActivityMedical, types.PriorityCritical},
		{types.ActivitySecurityBreach, types.PriorityHigh},
		{types.ActivityBOLEvent, types.PriorityHigh},
		{types.ActivityAlert, types.PriorityMedium},
		{types.ActivityPropertyDamage, types.PriorityMedium},
	}
	for _, tt := range tests {
		act := testActivity(tt.activityType)
		act.Priority = "" // unset: the evaluator derives it
		inc := Evaluate(rs, act, time.Now())
		if inc == nil {
			t.Fatalf("Evaluate(%s) = nil", tt.activityType)
		}
		if inc.Priority != tt.want {
			t.Errorf("Evaluate(%s).Priority = %s, want %s", tt.activityType, inc.Priority, tt.want)
		}
	}
}

func TestEvaluateInheritsExplicitPriority(t *testing.T) {
	rs := rules.Default()
	act := testActivity(types.ActivityAlert)
	act.Priority = types.PriorityCritical
	inc := Evaluate(rs, act, time.Now())
	if inc == nil {
		t.Fatal("Evaluate() = nil")
	}
	if inc.Priority != types.PriorityCritical {
		t.Errorf("Priority = %s, want explicit critical kept", inc.Priority)
	}
}

func TestConditionalPredicates(t *testing.T) {
	base := rules.Default()
	tests := []struct {
		name       string
		predicates []rules.Predicate
		mutate     func(*types.Activity)
		want       bool
	}{
		{
			name:       "confidence above threshold",
			predicates: []rules.Predicate{{Field: rules.FieldConfidence, Op: rules.OpGt, Value: "0.7"}},
			mutate:     func(a *types.Activity) { a.Confidence = 0.9 },
			want:       true,
		},
		{
			name:       "confidence below threshold",
			predicates: []rules.Predicate{{Field: rules.FieldConfidence, Op: rules.OpGt, Value: "0.7"}},
			mutate:     func(a *types.Activity) { a.Confidence = 0.5 },
			want:       false,
		},
		{
			name:       "confidence at threshold is not above",
			predicates: []rules.Predicate{{Field: rules.FieldConfidence, Op: rules.OpGt, Value: "0.7"}},
			mutate:     func(a *types.Activity) { a.Confidence = 0.7 },
			want:       false,
		},
		{
			name:       "location contains is case-insensitive",
			predicates: []rules.Predicate{{Field: rules.FieldLocation, Op: rules.OpContains, Value: "vault"}},
			mutate:     func(a *types.Activity) { a.Location = "East Vault Corridor" },
			want:       true,
		},
		{
			name: "conjunction requires every predicate",
			predicates: []rules.Predicate{
				{Field: rules.FieldSiteID, Op: rules.OpEq, Value: "hq"},
				{Field: rules.FieldConfidence, Op: rules.OpGte, Value: "0.5"},
			},
			mutate: func(a *types.Activity) { a.SiteID = "hq"; a.Confidence = 0.4 },
			want:   false,
		},
		{
			name:       "tag membership",
			predicates: []rules.Predicate{{Field: rules.FieldTag, Op: rules.OpEq, Value: "after-hours"}},
			mutate:     func(a *types.Activity) { a.SystemTags = []string{"after-hours"} },
			want:       true,
		},
		{
			name:       "unparseable confidence value never matches",
			predicates: []rules.Predicate{{Field: rules.FieldConfidence, Op: rules.OpGt, Value: "high"}},
			mutate:     func(a *types.Activity) { a.Confidence = 1.0 },
			want:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := *base
			rs.Escalations = []rules.EscalationRule{{
				ActivityType: types.ActivityAlert,
				Condition:    rules.CondConditional,
				Predicates:   tt.predicates,
			}}
			act := testActivity(types.ActivityAlert)
			tt.mutate(act)
			if got := ShouldEscalate(&rs, act); got != tt.want {
				t.Errorf("ShouldEscalate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildIncidentNonceChangesID(t *testing.T) {
	rs := rules.Default()
	act := testActivity(types.ActivityMedical)
	now := time.Now()
	first := BuildIncident(rs, act, now, 0)
	second := BuildIncident(rs, act, now, 1)
	if first.ID == second.ID {
		t.Errorf("nonce did not change the incident ID: %s", first.ID)
	}
}

func TestAutoTags(t *testing.T) {
	cfg := rules.TagConfig{BusinessHoursStart: 9, BusinessHoursEnd: 17}
	tests := []struct {
		name   string
		mutate func(*types.Activity)
		want   []string
	}{
		{
			name: "human reporter at business hours with site",
			mutate: func(a *types.Activity) {
				a.ReporterClass = types.ActorHuman
				a.SiteID = "hq-01"
				a.CreatedAt = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
			},
			want: []string{"source:human", "site:hq-01", "business-hours"},
		},
		{
			name: "ambient sensor after hours with confidence",
			mutate: func(a *types.Activity) {
				a.ReporterClass = types.ActorAmbient
				a.SiteID = "hq-01"
				a.Confidence = 0.92
				a.CreatedAt = time.Date(2026, 3, 10, 22, 5, 0, 0, time.UTC)
			},
			want: []string{"source:ambient", "site:hq-01", "after-hours", "confidence:high"},
		},
		{
			name: "window start is inclusive",
			mutate: func(a *types.Activity) {
				a.CreatedAt = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
			},
			want: []string{"source:human", "location:building-a", "business-hours"},
		},
		{
			name: "window end is inclusive",
			mutate: func(a *types.Activity) {
				a.CreatedAt = time.Date(2026, 3, 10, 17, 59, 0, 0, time.UTC)
			},
			want: []string{"source:human", "location:building-a", "business-hours"},
		},
		{
			name: "before window is after hours",
			mutate: func(a *types.Activity) {
				a.CreatedAt = time.Date(2026, 3, 10, 8, 59, 0, 0, time.UTC)
			},
			want: []string{"source:human", "location:building-a", "after-hours"},
		},
		{
			name: "location slug when no site",
			mutate: func(a *types.Activity) {
				a.Location = "Main St. Lobby"
				a.CreatedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			},
			want: []string{"source:human", "location:main-st-lobby", "business-hours"},
		},
		{
			name: "mid confidence bucket",
			mutate: func(a *types.Activity) {
				a.ReporterClass = types.ActorIntegration
				a.Confidence = 0.6
				a.CreatedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			},
			want: []string{"source:integration", "location:building-a", "business-hours", "confidence:medium"},
		},
		{
			name: "zero confidence emits no confidence tag",
			mutate: func(a *types.Activity) {
				a.Confidence = 0
				a.CreatedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			},
			want: []string{"source:human", "location:building-a", "business-hours"},
		},
		{
			name:   "zero creation time emits no time bucket",
			mutate: func(a *types.Activity) {},
			want:   []string{"source:human", "location:building-a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := testActivity(types.ActivityAlert)
			act.ReporterClass = types.ActorHuman
			tt.mutate(act)
			got := AutoTags(cfg, act)
			if len(got) != len(tt.want) {
				t.Fatalf("AutoTags() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("AutoTags()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestApplyAutoTagsIdempotent(t *testing.T) {
	cfg := rules.TagConfig{BusinessHoursStart: 9, BusinessHoursEnd: 17}
	act := testActivity(types.ActivityAlert)
	act.ReporterClass = types.ActorAmbient
	act.SiteID = "hq-01"
	act.Confidence = 0.95
	act.CreatedAt = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	added := ApplyAutoTags(cfg, act)
	if len(added) == 0 {
		t.Fatal("first application should add tags")
	}
	count := len(act.SystemTags)

	again := ApplyAutoTags(cfg, act)
	if len(again) != 0 {
		t.Errorf("second application added %v, want nothing", again)
	}
	if len(act.SystemTags) != count {
		t.Errorf("system tags grew from %d to %d on re-application", count, len(act.SystemTags))
	}
}

func TestLocationSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Building A", "building-a"},
		{"Main St. Lobby", "main-st-lobby"},
		{"  Dock 7 / North  ", "dock-7-north"},
		{"???", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := locationSlug(tt.in); got != tt.want {
			t.Errorf("locationSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
