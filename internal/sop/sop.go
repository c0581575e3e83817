// Package sop loads and validates standard operating procedures: the
// ordered checklists handlers apply to incident types. SOPs are TOML files
// resolved from search paths, with library-shipped defaults compiled in.
package sop

import (
	"fmt"
	"strings"

	"github.com/vigilops/vigil/internal/types"
)

// SOPExt is the file extension for SOP definitions.
const SOPExt = ".sop.toml"

// SOP is an ordered procedure for one or more incident types.
type SOP struct {
	Key           string               `toml:"sop" json:"sop"`
	Description   string               `toml:"description,omitempty" json:"description,omitempty"`
	IncidentTypes []types.ActivityType `toml:"incident_types" json:"incident_types"`
	Extends       []string             `toml:"extends,omitempty" json:"extends,omitempty"`
	Steps         []*Step              `toml:"steps" json:"steps"`

	// Source is the file this SOP was loaded from; empty for built-ins.
	Source string `toml:"-" json:"source,omitempty"`
}

// Step is one checklist item in a procedure.
type Step struct {
	ID               string     `toml:"id" json:"id"`
	Title            string     `toml:"title" json:"title"`
	EstimatedMinutes int        `toml:"estimated_minutes,omitempty" json:"estimated_minutes,omitempty"`
	Required         bool       `toml:"required,omitempty" json:"required,omitempty"`
	DependsOn        []string   `toml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Role             types.Role `toml:"role,omitempty" json:"role,omitempty"`
}

// StepIDs returns the step identifiers in definition order.
func (s *SOP) StepIDs() []string {
	ids := make([]string, len(s.Steps))
	for i, step := range s.Steps {
		ids[i] = step.ID
	}
	return ids
}

// AppliesTo reports whether the SOP covers the given incident type.
func (s *SOP) AppliesTo(t types.ActivityType) bool {
	for _, it := range s.IncidentTypes {
		if it == t {
			return true
		}
	}
	return false
}

// RequiredSteps returns only the steps marked required, in order.
func (s *SOP) RequiredSteps() []*Step {
	var out []*Step
	for _, step := range s.Steps {
		if step.Required {
			out = append(out, step)
		}
	}
	return out
}

// EstimatedMinutes sums the step duration estimates.
func (s *SOP) EstimatedMinutes() int {
	total := 0
	for _, step := range s.Steps {
		total += step.EstimatedMinutes
	}
	return total
}

// Validate checks the SOP definition: key and steps present, step ids
// unique, every dependency resolvable, and the dependency graph acyclic.
func (s *SOP) Validate() error {
	if s.Key == "" {
		return fmt.Errorf("sop key is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("sop %s: at least one step is required", s.Key)
	}
	for _, it := range s.IncidentTypes {
		if !it.IsValid() {
			return fmt.Errorf("sop %s: invalid incident type %q", s.Key, it)
		}
	}

	byID := make(map[string]*Step, len(s.Steps))
	for i, step := range s.Steps {
		if step.ID == "" {
			return fmt.Errorf("sop %s: step %d has no id", s.Key, i)
		}
		if step.Title == "" {
			return fmt.Errorf("sop %s: step %s has no title", s.Key, step.ID)
		}
		if _, dup := byID[step.ID]; dup {
			return fmt.Errorf("sop %s: duplicate step id %q", s.Key, step.ID)
		}
		if step.Role != "" && !step.Role.IsValid() {
			return fmt.Errorf("sop %s: step %s has invalid role %q", s.Key, step.ID, step.Role)
		}
		if step.EstimatedMinutes < 0 {
			return fmt.Errorf("sop %s: step %s has negative duration", s.Key, step.ID)
		}
		byID[step.ID] = step
	}

	for _, step := range s.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("sop %s: step %s depends on unknown step %q", s.Key, step.ID, dep)
			}
		}
	}

	if cycle := findStepCycle(s.Steps, byID); cycle != nil {
		return fmt.Errorf("sop %s: dependency cycle: %s", s.Key, strings.Join(cycle, " -> "))
	}
	return nil
}

// findStepCycle runs a depth-first walk over step dependencies and returns
// the first cycle found as a readable chain, or nil.
func findStepCycle(steps []*Step, byID map[string]*Step) []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))
	var chain []string

	var visit func(id string) []string
	visit = func(id string) []string {
		switch state[id] {
		case visiting:
			return append(chain, id)
		case done:
			return nil
		}
		state[id] = visiting
		chain = append(chain, id)
		for _, dep := range byID[id].DependsOn {
			if cycle := visit(dep); cycle != nil {
				return cycle
			}
		}
		chain = chain[:len(chain)-1]
		state[id] = done
		return nil
	}

	for _, step := range steps {
		if state[step.ID] == unvisited {
			chain = chain[:0]
			if cycle := visit(step.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
