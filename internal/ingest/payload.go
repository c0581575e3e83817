package ingest

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/vigilops/vigil/internal/service"
	"github.com/vigilops/vigil/internal/types"
)

// AmbientPayload is the wire format posted by AI-camera class integrations.
type AmbientPayload struct {
	AlertID    string         `json:"alert_id"`
	Type       string         `json:"type"`
	Location   string         `json:"location"`
	Timestamp  string         `json:"timestamp"` // RFC 3339
	Severity   string         `json:"severity"`  // low|medium|high|critical
	Confidence *float64       `json:"confidence,omitempty"`
	SiteID     string         `json:"site_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate returns one message per bad field, empty when the payload is
// acceptable.
func (p *AmbientPayload) Validate() []string {
	var errs []string
	required := []struct{ field, value string }{
		{"alert_id", p.AlertID},
		{"type", p.Type},
		{"location", p.Location},
		{"timestamp", p.Timestamp},
		{"severity", p.Severity},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Sprintf("missing required field: %s", r.field))
		}
	}
	if p.Severity != "" && !types.Priority(p.Severity).IsValid() {
		errs = append(errs, fmt.Sprintf("invalid severity: %s", p.Severity))
	}
	if p.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
			errs = append(errs, "invalid timestamp format, use RFC 3339")
		}
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		errs = append(errs, "confidence must be between 0.0 and 1.0")
	}
	return errs
}

// ActivityInput maps a validated payload onto the engine's intake input.
// The external alert id rides along as a user tag so operators can trace an
// activity back to the sensor platform.
func (p *AmbientPayload) ActivityInput() service.CreateActivityInput {
	input := service.CreateActivityInput{
		Type:          mapActivityType(p.Type),
		Title:         fmt.Sprintf("%s - %s", titleCase(p.Type), p.Location),
		Description:   fmt.Sprintf("Sensor detected %s at %s", p.Type, p.Location),
		Priority:      types.Priority(p.Severity),
		Location:      p.Location,
		SiteID:        p.SiteID,
		UserTags:      []string{"alert:" + p.AlertID},
		Reporter:      "ambient",
		ReporterClass: types.ActorAmbient,
	}
	if p.Confidence != nil {
		input.Confidence = *p.Confidence
	}
	if cam, ok := p.Metadata["camera_id"].(string); ok && cam != "" {
		input.Reporter = cam
		input.UserTags = append(input.UserTags, "camera:"+cam)
	}
	if zone, ok := p.Metadata["zone"].(string); ok && zone != "" {
		input.UserTags = append(input.UserTags, "zone:"+zone)
	}
	return input
}

// mapActivityType translates external detection types into engine activity
// types. Unknown detections land as alerts so nothing is dropped.
func mapActivityType(external string) types.ActivityType {
	switch external {
	case "tailgate", "violence", "weapon", "intrusion":
		return types.ActivitySecurityBreach
	case "slip_fall":
		return types.ActivityMedical
	case "loitering":
		return types.ActivityAlert
	case "patrol_checkpoint":
		return types.ActivityPatrol
	default:
		return types.ActivityAlert
	}
}

// titleCase turns an external snake_case type into a display title.
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
