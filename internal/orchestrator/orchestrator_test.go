package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vigilops/vigil/internal/types"
)

type fakeHandler struct {
	cap    Capability
	decide func(ctx context.Context) (*types.Decision, error)
}

func (f *fakeHandler) Capability() Capability                 { return f.cap }
func (f *fakeHandler) CanHandleActivity(*types.Activity) bool { return true }
func (f *fakeHandler) CanHandleIncident(*types.Incident) bool { return true }

func (f *fakeHandler) ProcessActivity(ctx context.Context, _ *types.Activity) (*types.Decision, error) {
	return f.decide(ctx)
}

func (f *fakeHandler) ProcessIncident(ctx context.Context, _ *types.Incident) (*types.Decision, error) {
	return f.decide(ctx)
}

func staticDecision(confidence float64) func(context.Context) (*types.Decision, error) {
	return func(context.Context) (*types.Decision, error) {
		return &types.Decision{
			ID:         fmt.Sprintf("d-%d", time.Now().UnixNano()),
			Confidence: confidence,
			Action:     types.ActionMonitor,
		}, nil
	}
}

func newFake(key string, priority int, confidence float64, claims ...types.ActivityType) *fakeHandler {
	return &fakeHandler{
		cap:    Capability{Key: key, Claims: claims, Priority: priority},
		decide: staticDecision(confidence),
	}
}

func testIncident(t types.ActivityType) *types.Incident {
	return &types.Incident{
		ID:                "inc-1",
		Type:              t,
		Status:            types.IncidentPending,
		Priority:          types.PriorityHigh,
		Title:             "test incident",
		TriggerActivityID: "act-1",
	}
}

func TestRegisterRejectsDuplicateKey(t *testing.T) {
	o := New(Options{})
	if err := o.Register(newFake("alpha", 5, 0.9, types.ActivityAlert)); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := o.Register(newFake("alpha", 7, 0.9, types.ActivityMedical))
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("Register() error = %v, want ErrDuplicateHandler", err)
	}
}

func TestRegisterRejectsAmbiguousClaims(t *testing.T) {
	tests := []struct {
		name    string
		first   *fakeHandler
		second  *fakeHandler
		wantErr bool
	}{
		{
			name:    "same priority overlapping claims",
			first:   newFake("a", 5, 0.9, types.ActivityAlert, types.ActivityMedical),
			second:  newFake("b", 5, 0.9, types.ActivityMedical),
			wantErr: true,
		},
		{
			name:    "same priority catch-all overlaps everything",
			first:   newFake("a", 5, 0.9),
			second:  newFake("b", 5, 0.9, types.ActivityPatrol),
			wantErr: true,
		},
		{
			name:   "same priority disjoint claims",
			first:  newFake("a", 5, 0.9, types.ActivityAlert),
			second: newFake("b", 5, 0.9, types.ActivityMedical),
		},
		{
			name:   "overlapping claims at different priorities",
			first:  newFake("a", 5, 0.9, types.ActivityMedical),
			second: newFake("b", 9, 0.9, types.ActivityMedical),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(Options{})
			if err := o.Register(tt.first); err != nil {
				t.Fatalf("first Register() error = %v", err)
			}
			err := o.Register(tt.second)
			if tt.wantErr && !errors.Is(err, ErrAmbiguousClaim) {
				t.Errorf("Register() error = %v, want ErrAmbiguousClaim", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Register() error = %v, want nil", err)
			}
		})
	}
}

func TestRoutePrefersHigherPriority(t *testing.T) {
	o := New(Options{})
	low := newFake("low", 0, 0.5)
	high := newFake("high", 10, 0.99, types.ActivityMedical)
	if err := o.Register(low); err != nil {
		t.Fatal(err)
	}
	if err := o.Register(high); err != nil {
		t.Fatal(err)
	}

	dec, err := o.RouteIncident(context.Background(), testIncident(types.ActivityMedical))
	if err != nil {
		t.Fatalf("RouteIncident() error = %v", err)
	}
	if dec.HandlerKey != "high" {
		t.Errorf("HandlerKey = %s, want high (specialist over catch-all)", dec.HandlerKey)
	}

	dec, err = o.RouteIncident(context.Background(), testIncident(types.ActivityPatrol))
	if err != nil {
		t.Fatalf("RouteIncident() error = %v", err)
	}
	if dec.HandlerKey != "low" {
		t.Errorf("HandlerKey = %s, want low (catch-all takes unclaimed type)", dec.HandlerKey)
	}
}

func TestRouteActivityNoHandlerIsNotAnError(t *testing.T) {
	o := New(Options{})
	if err := o.Register(newFake("medical-only", 10, 0.9, types.ActivityMedical)); err != nil {
		t.Fatal(err)
	}
	dec, err := o.RouteActivity(context.Background(), &types.Activity{ID: "act-1", Type: types.ActivityPatrol})
	if err != nil {
		t.Errorf("RouteActivity() error = %v, want nil", err)
	}
	if dec != nil {
		t.Errorf("RouteActivity() = %+v, want nil decision", dec)
	}
}

func TestRouteIncidentNoHandlerIsHardError(t *testing.T) {
	o := New(Options{})
	_, err := o.RouteIncident(context.Background(), testIncident(types.ActivityMedical))
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("RouteIncident() error = %v, want ErrNoHandler", err)
	}
}

func TestDecisionTimeout(t *testing.T) {
	o := New(Options{DecisionTimeout: 20 * time.Millisecond})
	stuck := &fakeHandler{
		cap: Capability{Key: "stuck", Priority: 1},
		decide: func(ctx context.Context) (*types.Decision, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	if err := o.Register(stuck); err != nil {
		t.Fatal(err)
	}
	_, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert))
	if !errors.Is(err, ErrDecisionTimeout) {
		t.Errorf("RouteIncident() error = %v, want ErrDecisionTimeout", err)
	}
}

func TestParentCancellationIsNotATimeout(t *testing.T) {
	o := New(Options{})
	stuck := &fakeHandler{
		cap: Capability{Key: "stuck", Priority: 1},
		decide: func(ctx context.Context) (*types.Decision, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	if err := o.Register(stuck); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.RouteIncident(ctx, testIncident(types.ActivityAlert))
	if err == nil {
		t.Fatal("RouteIncident() should fail on cancelled context")
	}
	if errors.Is(err, ErrDecisionTimeout) {
		t.Errorf("RouteIncident() error = %v, should not be a timeout", err)
	}
}

func TestHandlerErrorPropagates(t *testing.T) {
	o := New(Options{})
	boom := errors.New("sensor offline")
	failing := &fakeHandler{
		cap:    Capability{Key: "failing", Priority: 1},
		decide: func(context.Context) (*types.Decision, error) { return nil, boom },
	}
	if err := o.Register(failing); err != nil {
		t.Fatal(err)
	}
	_, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert))
	if !errors.Is(err, boom) {
		t.Errorf("RouteIncident() error = %v, want wrapped handler error", err)
	}
	// A failed decision leaves no trace in memory.
	if mem := o.GetMemory("failing"); mem.Metrics().TotalHandled != 0 {
		t.Errorf("TotalHandled = %d, want 0 after failed decision", mem.Metrics().TotalHandled)
	}
}

func TestMemoryUpdatedAfterDecision(t *testing.T) {
	o := New(Options{})
	if err := o.Register(newFake("h", 1, 0.9)); err != nil {
		t.Fatal(err)
	}
	if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert)); err != nil {
		t.Fatal(err)
	}

	mem := o.GetMemory("h")
	if mem == nil {
		t.Fatal("GetMemory() = nil for registered handler")
	}
	metrics := mem.Metrics()
	if metrics.TotalHandled != 1 {
		t.Errorf("TotalHandled = %d, want 1", metrics.TotalHandled)
	}
	if metrics.ResolutionRate != 1.0 {
		t.Errorf("ResolutionRate = %g, want 1.0 for confidence 0.9", metrics.ResolutionRate)
	}
	if metrics.LastProcessed.IsZero() {
		t.Error("LastProcessed should be set")
	}
	convos := mem.Conversations()
	if len(convos) != 1 {
		t.Fatalf("Conversations() = %d entries, want 1", len(convos))
	}
	if convos[0].EntityID != "inc-1" {
		t.Errorf("EntityID = %s, want inc-1", convos[0].EntityID)
	}
	if convos[0].Outcome != types.OutcomeSuccess {
		t.Errorf("Outcome = %s, want success", convos[0].Outcome)
	}
}

func TestGetMemoryAbsentKeyIsNil(t *testing.T) {
	o := New(Options{})
	if mem := o.GetMemory("never-registered"); mem != nil {
		t.Errorf("GetMemory() = %v, want nil", mem)
	}
}

// TestResolutionRateMatchesFullRecompute drives the incremental update with
// a mixed confidence sequence and checks the running rate against a from-
// scratch recompute over the full history.
func TestResolutionRateMatchesFullRecompute(t *testing.T) {
	o := New(Options{})
	handler := &fakeHandler{cap: Capability{Key: "h", Priority: 1}}
	if err := o.Register(handler); err != nil {
		t.Fatal(err)
	}

	confidences := []float64{0.9, 0.5, 0.95, 0.8, 0.81, 0.3, 1.0, 0.79, 0.85, 0.2}
	for _, c := range confidences {
		handler.decide = staticDecision(c)
		if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert)); err != nil {
			t.Fatal(err)
		}
	}

	mem := o.GetMemory("h")
	metrics := mem.Metrics()
	if metrics.TotalHandled != len(confidences) {
		t.Fatalf("TotalHandled = %d, want %d", metrics.TotalHandled, len(confidences))
	}

	successes := 0
	for _, entry := range mem.Conversations() {
		if entry.Outcome == types.OutcomeSuccess {
			successes++
		}
	}
	want := float64(successes) / float64(len(confidences))
	if math.Abs(metrics.ResolutionRate-want) > 1e-9 {
		t.Errorf("ResolutionRate = %g, full recompute = %g", metrics.ResolutionRate, want)
	}
	// Strictly-above threshold: 0.9, 0.95, 0.81, 1.0, 0.85 succeed; 0.8 fails.
	if successes != 5 {
		t.Errorf("successes = %d, want 5", successes)
	}
}

func TestConcurrentRoutingToSameHandler(t *testing.T) {
	o := New(Options{})
	if err := o.Register(newFake("shared", 1, 0.9)); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	metrics := o.GetMemory("shared").Metrics()
	if metrics.TotalHandled != workers*perWorker {
		t.Errorf("TotalHandled = %d, want %d", metrics.TotalHandled, workers*perWorker)
	}
	if math.Abs(metrics.ResolutionRate-1.0) > 1e-9 {
		t.Errorf("ResolutionRate = %g, want 1.0", metrics.ResolutionRate)
	}
}

type recordingOpener struct {
	mu            sync.Mutex
	calls         int
	handledAtCall int
	err           error
	memoryAtCall  func() int
}

func (r *recordingOpener) OpenForIncident(_ context.Context, _ *types.Incident, _ *types.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.memoryAtCall != nil {
		r.handledAtCall = r.memoryAtCall()
	}
	return r.err
}

func TestCaseHandOffAfterMemoryUpdate(t *testing.T) {
	opener := &recordingOpener{}
	o := New(Options{CaseOpener: opener})
	escalating := &fakeHandler{
		cap: Capability{Key: "h", Priority: 1},
		decide: func(context.Context) (*types.Decision, error) {
			return &types.Decision{ID: "d-1", Confidence: 0.9, Action: types.ActionEscalate, EscalationRequired: true}, nil
		},
	}
	if err := o.Register(escalating); err != nil {
		t.Fatal(err)
	}
	opener.memoryAtCall = func() int { return o.GetMemory("h").Metrics().TotalHandled }

	if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert)); err != nil {
		t.Fatalf("RouteIncident() error = %v", err)
	}
	if opener.calls != 1 {
		t.Fatalf("opener calls = %d, want 1", opener.calls)
	}
	if opener.handledAtCall != 1 {
		t.Errorf("memory at hand-off = %d decisions, want 1 (memory updates first)", opener.handledAtCall)
	}
}

func TestCaseHandOffFailureDoesNotFailRoute(t *testing.T) {
	opener := &recordingOpener{err: errors.New("case service down")}
	o := New(Options{CaseOpener: opener})
	escalating := &fakeHandler{
		cap: Capability{Key: "h", Priority: 1},
		decide: func(context.Context) (*types.Decision, error) {
			return &types.Decision{ID: "d-1", Confidence: 0.9, Action: types.ActionEscalate, EscalationRequired: true}, nil
		},
	}
	if err := o.Register(escalating); err != nil {
		t.Fatal(err)
	}
	dec, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert))
	if err != nil {
		t.Errorf("RouteIncident() error = %v, hand-off failure must not propagate", err)
	}
	if dec == nil {
		t.Error("decision should still be returned")
	}
}

func TestNoHandOffWithoutEscalation(t *testing.T) {
	opener := &recordingOpener{}
	o := New(Options{CaseOpener: opener})
	if err := o.Register(newFake("h", 1, 0.9)); err != nil {
		t.Fatal(err)
	}
	if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert)); err != nil {
		t.Fatal(err)
	}
	if opener.calls != 0 {
		t.Errorf("opener calls = %d, want 0 for non-escalating decision", opener.calls)
	}
}

func TestSystemMetrics(t *testing.T) {
	o := New(Options{})
	if got := o.SystemMetrics(); got.AgentCount != 0 || !got.LastProcessed.IsZero() {
		t.Errorf("empty orchestrator metrics = %+v", got)
	}
	if err := RegisterBuiltins(o, nil); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	if got := o.SystemMetrics(); got.AgentCount != 3 {
		t.Errorf("AgentCount = %d, want 3", got.AgentCount)
	}
	if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityMedical)); err != nil {
		t.Fatal(err)
	}
	if got := o.SystemMetrics(); got.LastProcessed.IsZero() {
		t.Error("LastProcessed should be set after a routed decision")
	}
}

func TestBuiltinHandlerRouting(t *testing.T) {
	o := New(Options{})
	if err := RegisterBuiltins(o, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		activityType types.ActivityType
		wantHandler  string
	}{
		{types.ActivityMedical, "medical-emergency"},
		{types.ActivitySecurityBreach, "security-breach"},
		{types.ActivityBOLEvent, "security-breach"},
		{types.ActivityPatrol, "general"},
		{types.ActivityAlert, "general"},
	}
	for _, tt := range tests {
		dec, err := o.RouteIncident(context.Background(), testIncident(tt.activityType))
		if err != nil {
			t.Fatalf("RouteIncident(%s) error = %v", tt.activityType, err)
		}
		if dec.HandlerKey != tt.wantHandler {
			t.Errorf("RouteIncident(%s) handler = %s, want %s", tt.activityType, dec.HandlerKey, tt.wantHandler)
		}
	}
}

func TestBuiltinMedicalCriticalEscalates(t *testing.T) {
	o := New(Options{})
	if err := RegisterBuiltins(o, nil); err != nil {
		t.Fatal(err)
	}
	inc := testIncident(types.ActivityMedical)
	inc.Priority = types.PriorityCritical
	dec, err := o.RouteIncident(context.Background(), inc)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != types.ActionEscalate {
		t.Errorf("Action = %s, want escalate", dec.Action)
	}
	if !dec.EscalationRequired {
		t.Error("critical medical incident should require escalation")
	}
	if len(dec.SOPSteps) == 0 {
		t.Error("decision should carry applied SOP steps")
	}
}

func TestMemorySOPStats(t *testing.T) {
	o := New(Options{})
	if err := RegisterBuiltins(o, nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityMedical)); err != nil {
			t.Fatal(err)
		}
	}
	stats := o.GetMemory("medical-emergency").SOPStats()
	if len(stats) != 1 {
		t.Fatalf("SOPStats() = %d records, want 1", len(stats))
	}
	if stats[0].IncidentType != types.ActivityMedical {
		t.Errorf("IncidentType = %s, want medical", stats[0].IncidentType)
	}
	if stats[0].Applications != 3 {
		t.Errorf("Applications = %d, want 3", stats[0].Applications)
	}
	if stats[0].SOPKey != "medical-response" {
		t.Errorf("SOPKey = %s, want medical-response", stats[0].SOPKey)
	}
	if stats[0].ComplianceRate != 1.0 {
		t.Errorf("ComplianceRate = %g, want 1.0 (steps applied every time)", stats[0].ComplianceRate)
	}
}

func TestMemoryReset(t *testing.T) {
	o := New(Options{})
	if err := o.Register(newFake("h", 1, 0.9)); err != nil {
		t.Fatal(err)
	}
	if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert)); err != nil {
		t.Fatal(err)
	}
	mem := o.GetMemory("h")
	mem.Reset()
	if mem.Metrics().TotalHandled != 0 {
		t.Error("Reset() should clear metrics")
	}
	if len(mem.Conversations()) != 0 {
		t.Error("Reset() should clear conversations")
	}
}

func TestMemoryPatterns(t *testing.T) {
	o := New(Options{})
	if err := o.Register(newFake("h", 1, 0.9)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := o.RouteIncident(context.Background(), testIncident(types.ActivityAlert)); err != nil {
			t.Fatal(err)
		}
	}
	patterns := o.GetMemory("h").Patterns()
	if patterns["alert/monitor"] != 2 {
		t.Errorf("patterns = %v, want alert/monitor = 2", patterns)
	}
}
