package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vigilops/vigil/internal/types"
)

// SOPSource supplies the procedure a handler applies to an incident type.
// The SOP library implements this; handlers fall back to their built-in
// step lists when no source is wired or the source has no match.
type SOPSource interface {
	// StepsFor returns the SOP key and ordered step ids for an incident
	// type. An empty key means no SOP is defined for that type.
	StepsFor(incidentType types.ActivityType) (key string, stepIDs []string)
}

// RegisterBuiltins registers the standard handler set: the medical and
// security specialists at priority 10 and the catch-all general handler at
// priority 0.
func RegisterBuiltins(o *Orchestrator, sops SOPSource) error {
	for _, h := range []Handler{
		NewMedicalEmergencyHandler(sops),
		NewSecurityBreachHandler(sops),
		NewGeneralHandler(sops),
	} {
		if err := o.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// MedicalEmergencyHandler processes medical activities and incidents.
type MedicalEmergencyHandler struct {
	sops SOPSource
}

// NewMedicalEmergencyHandler builds the medical specialist.
func NewMedicalEmergencyHandler(sops SOPSource) *MedicalEmergencyHandler {
	return &MedicalEmergencyHandler{sops: sops}
}

// Capability returns the medical handler's claims.
func (h *MedicalEmergencyHandler) Capability() Capability {
	return Capability{
		Key:      "medical-emergency",
		Claims:   []types.ActivityType{types.ActivityMedical},
		Priority: 10,
	}
}

// CanHandleActivity reports whether the activity is medical.
func (h *MedicalEmergencyHandler) CanHandleActivity(act *types.Activity) bool {
	return act.Type == types.ActivityMedical
}

// CanHandleIncident reports whether the incident is medical.
func (h *MedicalEmergencyHandler) CanHandleIncident(inc *types.Incident) bool {
	return inc.Type == types.ActivityMedical
}

// ProcessActivity decides on a medical activity. Critical activities demand
// an incident; everything else is monitored while responders work.
func (h *MedicalEmergencyHandler) ProcessActivity(_ context.Context, act *types.Activity) (*types.Decision, error) {
	key, steps := resolveSOP(h.sops, types.ActivityMedical, "medical-response", medicalSteps)
	if act.Priority == types.PriorityCritical {
		return newDecision("medical-emergency", types.ActionCreateIncident, 0.95, key, steps, true), nil
	}
	return newDecision("medical-emergency", types.ActionMonitor, 0.85, key, steps, false), nil
}

// ProcessIncident decides on a medical incident. Critical incidents
// escalate to a case; the rest resolve once the response SOP ran.
func (h *MedicalEmergencyHandler) ProcessIncident(_ context.Context, inc *types.Incident) (*types.Decision, error) {
	key, steps := resolveSOP(h.sops, types.ActivityMedical, "medical-response", medicalSteps)
	if inc.Priority == types.PriorityCritical {
		return newDecision("medical-emergency", types.ActionEscalate, 0.9, key, steps, true), nil
	}
	return newDecision("medical-emergency", types.ActionResolve, 0.9, key, steps, false), nil
}

// SecurityBreachHandler processes security breaches and be-on-lookout events.
type SecurityBreachHandler struct {
	sops SOPSource
}

// NewSecurityBreachHandler builds the security specialist.
func NewSecurityBreachHandler(sops SOPSource) *SecurityBreachHandler {
	return &SecurityBreachHandler{sops: sops}
}

// Capability returns the security handler's claims.
func (h *SecurityBreachHandler) Capability() Capability {
	return Capability{
		Key:      "security-breach",
		Claims:   []types.ActivityType{types.ActivitySecurityBreach, types.ActivityBOLEvent},
		Priority: 10,
	}
}

// CanHandleActivity reports whether the activity is a breach or BOL event.
func (h *SecurityBreachHandler) CanHandleActivity(act *types.Activity) bool {
	return act.Type == types.ActivitySecurityBreach || act.Type == types.ActivityBOLEvent
}

// CanHandleIncident reports whether the incident is a breach or BOL event.
func (h *SecurityBreachHandler) CanHandleIncident(inc *types.Incident) bool {
	return inc.Type == types.ActivitySecurityBreach || inc.Type == types.ActivityBOLEvent
}

// ProcessActivity decides on a security activity. Breaches always warrant
// an incident; BOL events are monitored unless priority is high or above.
func (h *SecurityBreachHandler) ProcessActivity(_ context.Context, act *types.Activity) (*types.Decision, error) {
	key, steps := resolveSOP(h.sops, act.Type, "breach-containment", securitySteps)
	if act.Type == types.ActivitySecurityBreach || act.Priority.Rank() >= types.PriorityHigh.Rank() {
		return newDecision("security-breach", types.ActionCreateIncident, 0.9, key, steps, true), nil
	}
	return newDecision("security-breach", types.ActionMonitor, 0.75, key, steps, false), nil
}

// ProcessIncident decides on a security incident. High and critical
// incidents escalate to an investigation case.
func (h *SecurityBreachHandler) ProcessIncident(_ context.Context, inc *types.Incident) (*types.Decision, error) {
	key, steps := resolveSOP(h.sops, inc.Type, "breach-containment", securitySteps)
	if inc.Priority.Rank() >= types.PriorityHigh.Rank() {
		return newDecision("security-breach", types.ActionEscalate, 0.85, key, steps, true), nil
	}
	return newDecision("security-breach", types.ActionResolve, 0.85, key, steps, false), nil
}

// GeneralHandler is the catch-all. It claims every type at the lowest
// priority, so it only sees what no specialist took.
type GeneralHandler struct {
	sops SOPSource
}

// NewGeneralHandler builds the catch-all handler.
func NewGeneralHandler(sops SOPSource) *GeneralHandler {
	return &GeneralHandler{sops: sops}
}

// Capability returns the catch-all claims: everything, at priority zero.
func (h *GeneralHandler) Capability() Capability {
	return Capability{Key: "general", Priority: 0}
}

// CanHandleActivity always accepts.
func (h *GeneralHandler) CanHandleActivity(*types.Activity) bool { return true }

// CanHandleIncident always accepts.
func (h *GeneralHandler) CanHandleIncident(*types.Incident) bool { return true }

// ProcessActivity monitors anything that reached the catch-all.
func (h *GeneralHandler) ProcessActivity(_ context.Context, act *types.Activity) (*types.Decision, error) {
	key, steps := resolveSOP(h.sops, act.Type, "general-monitoring", generalSteps)
	return newDecision("general", types.ActionMonitor, 0.6, key, steps, false), nil
}

// ProcessIncident resolves routine incidents and escalates critical ones.
func (h *GeneralHandler) ProcessIncident(_ context.Context, inc *types.Incident) (*types.Decision, error) {
	key, steps := resolveSOP(h.sops, inc.Type, "general-monitoring", generalSteps)
	if inc.Priority == types.PriorityCritical {
		return newDecision("general", types.ActionEscalate, 0.7, key, steps, true), nil
	}
	return newDecision("general", types.ActionResolve, 0.7, key, steps, false), nil
}

// Built-in fallback step lists, used when no SOP library is wired.
var (
	medicalSteps  = []string{"assess-scene", "call-ems", "render-first-aid", "secure-area", "document-response"}
	securitySteps = []string{"secure-perimeter", "review-cameras", "identify-subjects", "notify-supervisor", "preserve-evidence"}
	generalSteps  = []string{"observe", "log-details", "notify-on-change"}
)

func resolveSOP(sops SOPSource, incidentType types.ActivityType, fallbackKey string, fallbackSteps []string) (string, []string) {
	if sops != nil {
		if key, steps := sops.StepsFor(incidentType); key != "" {
			return key, steps
		}
	}
	return fallbackKey, fallbackSteps
}

func newDecision(handlerKey string, action types.DecisionAction, confidence float64, sopKey string, steps []string, escalate bool) *types.Decision {
	return &types.Decision{
		ID:                 uuid.NewString(),
		HandlerKey:         handlerKey,
		Timestamp:          time.Now(),
		Confidence:         confidence,
		Action:             action,
		SOPSteps:           steps,
		EscalationRequired: escalate,
		Metadata:           map[string]string{MetaSOPKey: sopKey},
	}
}
