package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vigilops/vigil/internal/types"
)

// fileRuleSet is the YAML shape of a rules file. Omitted sections fall back
// to the compiled-in defaults; a present section replaces its default table
// wholesale.
type fileRuleSet struct {
	Transitions []TransitionRule  `yaml:"transitions"`
	Escalations []EscalationRule  `yaml:"escalations"`
	PriorityMap map[string]string `yaml:"priority_map"`
	Tags        *TagConfig        `yaml:"tags"`
	Retention   *RetentionConfig  `yaml:"retention"`
}

// LoadFile reads a YAML rules file and merges it over the defaults.
// The merged set is validated before being returned; an invalid file
// never produces a usable RuleSet.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML rule tables and merges them over the defaults.
func Parse(data []byte) (*RuleSet, error) {
	var file fileRuleSet
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rs := Default()
	if file.Transitions != nil {
		rs.Transitions = file.Transitions
	}
	if file.Escalations != nil {
		rs.Escalations = file.Escalations
	}
	if file.PriorityMap != nil {
		rs.PriorityMap = make(map[types.ActivityType]types.Priority, len(file.PriorityMap))
		for at, p := range file.PriorityMap {
			rs.PriorityMap[types.ActivityType(at)] = types.Priority(p)
		}
	}
	if file.Tags != nil {
		rs.Tags = *file.Tags
	}
	if file.Retention != nil {
		rs.Retention = *file.Retention
	}

	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules file: %w", err)
	}
	return rs, nil
}
