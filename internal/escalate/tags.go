package escalate

import (
	"fmt"
	"strings"

	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/types"
)

// System tag constants
const (
	TagAutoGenerated = "auto-generated"
	TagBusinessHours = "business-hours"
	TagAfterHours    = "after-hours"
)

// AutoTags derives the deterministic system tags for an activity from four
// sources: reporter actor class, site or location, time-of-day bucket, and
// a confidence bucket emitted only when confidence is above zero.
func AutoTags(cfg rules.TagConfig, act *types.Activity) []string {
	var tags []string

	if act.ReporterClass.IsValid() {
		tags = append(tags, "source:"+string(act.ReporterClass))
	}

	if act.SiteID != "" {
		tags = append(tags, "site:"+act.SiteID)
	} else if slug := locationSlug(act.Location); slug != "" {
		tags = append(tags, "location:"+slug)
	}

	if !act.CreatedAt.IsZero() {
		hour := act.CreatedAt.Hour()
		if hour >= cfg.BusinessHoursStart && hour <= cfg.BusinessHoursEnd {
			tags = append(tags, TagBusinessHours)
		} else {
			tags = append(tags, TagAfterHours)
		}
	}

	if tag := confidenceTag(act.Confidence); tag != "" {
		tags = append(tags, tag)
	}

	return tags
}

// ApplyAutoTags appends any missing auto tags to the activity's system tags
// and returns the ones added. Idempotent: re-application adds nothing.
func ApplyAutoTags(cfg rules.TagConfig, act *types.Activity) []string {
	var added []string
	for _, tag := range AutoTags(cfg, act) {
		if act.HasSystemTag(tag) {
			continue
		}
		act.SystemTags = append(act.SystemTags, tag)
		added = append(added, tag)
	}
	return added
}

// confidenceTag buckets a sensor confidence score. Zero confidence means a
// manual report and gets no tag.
func confidenceTag(confidence float64) string {
	switch {
	case confidence > 0.8:
		return "confidence:high"
	case confidence > 0.5:
		return "confidence:medium"
	case confidence > 0:
		return "confidence:low"
	}
	return ""
}

// locationSlug normalizes a free-text location into a tag-safe token.
// Long or fully non-alphanumeric locations produce no tag.
func locationSlug(location string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(location)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" || len(slug) > 40 {
		return ""
	}
	return slug
}

// Describe returns a short human summary of why the rules did or did not
// escalate the activity.
func Describe(rs *rules.RuleSet, act *types.Activity) string {
	rule := rs.EscalationFor(act.Type)
	if rule == nil {
		return fmt.Sprintf("no escalation rule for type %s", act.Type)
	}
	switch rule.Condition {
	case rules.CondAlways:
		return fmt.Sprintf("type %s always escalates", act.Type)
	case rules.CondNever:
		return fmt.Sprintf("type %s never escalates", act.Type)
	case rules.CondConditional:
		if ShouldEscalate(rs, act) {
			return fmt.Sprintf("all %d predicates matched for type %s", len(rule.Predicates), act.Type)
		}
		return fmt.Sprintf("predicates did not match for type %s", act.Type)
	}
	return "unknown escalation condition"
}
