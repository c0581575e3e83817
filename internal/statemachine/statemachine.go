// Package statemachine answers one question: may this actor move this
// entity from one status to another. The answer is a pure lookup over the
// transition rule table. No rule means no: absence of a match is a denial,
// never a default-allow.
package statemachine

import (
	"fmt"

	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/types"
)

// Check is the outcome of a transition lookup.
type Check struct {
	Allowed          bool   `json:"allowed"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
	Reason           string `json:"reason,omitempty"`

	// Rule is the matched rule when Allowed, nil otherwise.
	Rule *rules.TransitionRule `json:"-"`
}

// CheckTransition looks up whether a rule permits the given status change
// for the actor's role. The first matching rule wins; rules for the same
// edge with disjoint role sets can disagree on approval.
func CheckTransition(rs *rules.RuleSet, kind types.EntityKind, from, to string, role types.Role) Check {
	if from == to {
		return Check{Reason: fmt.Sprintf("%s is already %s", kind, from)}
	}
	edgeExists := false
	for i := range rs.Transitions {
		tr := &rs.Transitions[i]
		if tr.Entity != kind || tr.From != from || tr.To != to {
			continue
		}
		edgeExists = true
		if !tr.AllowsRole(role) {
			continue
		}
		return Check{
			Allowed:          true,
			RequiresApproval: tr.RequiresApproval,
			Rule:             tr,
		}
	}
	if edgeExists {
		return Check{Reason: fmt.Sprintf("role %s may not move %s from %s to %s", role, kind, from, to)}
	}
	return Check{Reason: fmt.Sprintf("no transition from %s to %s for %s", from, to, kind)}
}

// CheckActivity is CheckTransition for activity statuses.
func CheckActivity(rs *rules.RuleSet, from, to types.ActivityStatus, role types.Role) Check {
	return CheckTransition(rs, types.KindActivity, string(from), string(to), role)
}

// CheckCase is CheckTransition for case statuses.
func CheckCase(rs *rules.RuleSet, from, to types.CaseStatus, role types.Role) Check {
	return CheckTransition(rs, types.KindCase, string(from), string(to), role)
}

// NextStatuses returns the statuses the actor's role may move the entity to
// from its current status, in rule-table order without duplicates.
func NextStatuses(rs *rules.RuleSet, kind types.EntityKind, from string, role types.Role) []string {
	var out []string
	seen := make(map[string]bool)
	for i := range rs.Transitions {
		tr := &rs.Transitions[i]
		if tr.Entity != kind || tr.From != from || !tr.AllowsRole(role) {
			continue
		}
		if seen[tr.To] {
			continue
		}
		seen[tr.To] = true
		out = append(out, tr.To)
	}
	return out
}
