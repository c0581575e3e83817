package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vigilops/vigil/internal/custody"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

// escalatedIncident files an activity that auto-escalates and returns the
// pending incident's id.
func escalatedIncident(t *testing.T, env *testEnv, title string) string {
	t.Helper()
	act, err := env.svc.CreateActivity(context.Background(), CreateActivityInput{
		Type:  types.ActivityAlert,
		Title: title,
	}, testOfficer())
	if err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	if len(act.IncidentIDs) != 1 {
		t.Fatalf("activity %s did not escalate", act.ID)
	}
	return act.IncidentIDs[0]
}

// openCase creates a bare case led by the test supervisor.
func openCase(t *testing.T, env *testEnv, title string, incidents ...string) *types.Case {
	t.Helper()
	kase, err := env.svc.CreateCase(context.Background(), CreateCaseInput{
		Type:        types.CaseInvestigation,
		Title:       title,
		IncidentIDs: incidents,
	}, testSupervisor())
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	return kase
}

// advanceToAnalysis walks a fresh case to the analysis stage.
func advanceToAnalysis(t *testing.T, env *testEnv, caseID string) {
	t.Helper()
	ctx := context.Background()
	for _, status := range []types.CaseStatus{
		types.CaseInvestigating, types.CaseEvidenceCollection, types.CaseAnalysis,
	} {
		if _, err := env.svc.UpdateCaseStatus(ctx, caseID, status, testSupervisor()); err != nil {
			t.Fatalf("UpdateCaseStatus(%s): %v", status, err)
		}
	}
}

func TestCreateCaseLinksIncidents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	incID := escalatedIncident(t, env, "Tailgate at the east gate")
	kase := openCase(t, env, "East gate intrusion review", incID)

	if kase.CaseNumber != "CASE-2026-0001" {
		t.Errorf("case number = %s, want CASE-2026-0001", kase.CaseNumber)
	}
	if kase.Status != types.CaseOpen {
		t.Errorf("status = %s, want open", kase.Status)
	}
	if kase.LeadInvestigator != "u-200" {
		t.Errorf("lead = %s, want the acting supervisor", kase.LeadInvestigator)
	}

	inc, err := env.store.GetIncident(ctx, incID)
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if len(inc.CaseIDs) != 1 || inc.CaseIDs[0] != kase.ID {
		t.Errorf("incident case ids = %v, want [%s]", inc.CaseIDs, kase.ID)
	}

	// Sequential numbering within the year.
	second := openCase(t, env, "Follow-up review")
	if second.CaseNumber != "CASE-2026-0002" {
		t.Errorf("second case number = %s, want CASE-2026-0002", second.CaseNumber)
	}

	if n := env.capture.count(eventbus.EventCaseOpened); n != 2 {
		t.Errorf("case.opened events = %d, want 2", n)
	}
}

func TestCreateCaseUnknownIncidentRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateCase(ctx, CreateCaseInput{
		Title:       "Case against a ghost",
		IncidentIDs: []string{"inc-ghost"},
	}, testSupervisor())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	cases, err := env.store.ListCases(ctx, types.CaseFilter{}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if len(cases) != 0 {
		t.Errorf("cases = %d, want 0 after rollback", len(cases))
	}
}

func TestCaseStatusFlowRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Inventory shrinkage inquiry")
	advanceToAnalysis(t, env, kase.ID)

	got, err := env.store.GetCase(ctx, kase.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.Status != types.CaseAnalysis {
		t.Errorf("status = %s, want analysis", got.Status)
	}
	if len(got.StatusHistory) != 3 {
		t.Fatalf("history = %d entries, want 3", len(got.StatusHistory))
	}
	wantEdges := [][2]types.CaseStatus{
		{types.CaseOpen, types.CaseInvestigating},
		{types.CaseInvestigating, types.CaseEvidenceCollection},
		{types.CaseEvidenceCollection, types.CaseAnalysis},
	}
	for i, edge := range wantEdges {
		ch := got.StatusHistory[i]
		if ch.From != edge[0] || ch.To != edge[1] {
			t.Errorf("history[%d] = %s->%s, want %s->%s", i, ch.From, ch.To, edge[0], edge[1])
		}
		if ch.ChangedBy != "u-200" {
			t.Errorf("history[%d].ChangedBy = %s, want u-200", i, ch.ChangedBy)
		}
	}
}

func TestCaseStatusOfficerAnalysisNeedsApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Badge cloning report")
	for _, status := range []types.CaseStatus{types.CaseInvestigating, types.CaseEvidenceCollection} {
		if _, err := env.svc.UpdateCaseStatus(ctx, kase.ID, status, testOfficer()); err != nil {
			t.Fatalf("UpdateCaseStatus(%s): %v", status, err)
		}
	}

	got, err := env.svc.UpdateCaseStatus(ctx, kase.ID, types.CaseAnalysis, testOfficer())
	if err != nil {
		t.Fatalf("UpdateCaseStatus(analysis): %v", err)
	}
	last := got.StatusHistory[len(got.StatusHistory)-1]
	if !last.RequiresApproval {
		t.Error("officer move into analysis should be flagged for approval")
	}
}

func TestUpdateCaseStatusRefusesClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Shortcut closure attempt")
	if _, err := env.svc.UpdateCaseStatus(ctx, kase.ID, types.CaseClosed, testSupervisor()); err == nil {
		t.Fatal("expected a bare status change to closed to be refused")
	}
}

func TestCloseCaseGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Dock camera outage")
	advanceToAnalysis(t, env, kase.ID)

	// Missing documentation blocks closure.
	_, err := env.svc.CloseCase(ctx, kase.ID, CloseCaseInput{}, testSupervisor())
	if !errors.Is(err, custody.ErrClosureBlocked) {
		t.Fatalf("close without docs: err = %v, want ErrClosureBlocked", err)
	}

	// Unprocessed evidence blocks closure even with documentation.
	item, err := env.svc.AddEvidence(ctx, kase.ID, custody.CollectInput{
		Type:        types.EvidencePhoto,
		Description: "Timestamped frame before the outage",
	}, testOfficer())
	if err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}
	docs := CloseCaseInput{
		Conclusion:      "Power feed interrupted by contractor work",
		Recommendations: "Add the dock circuit to the change freeze list",
		Outcome:         types.OutcomeResolved,
	}
	_, err = env.svc.CloseCase(ctx, kase.ID, docs, testSupervisor())
	if !errors.Is(err, custody.ErrClosureBlocked) {
		t.Fatalf("close with pending evidence: err = %v, want ErrClosureBlocked", err)
	}

	// The blocked attempts changed nothing.
	mid, err := env.store.GetCase(ctx, kase.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if mid.Status != types.CaseAnalysis || mid.ClosedAt != nil {
		t.Fatalf("blocked close mutated the case: status %s closed_at %v", mid.Status, mid.ClosedAt)
	}

	if _, err := env.svc.ProcessEvidence(ctx, item.ID, custody.ProcessResult{
		Status: types.ProcessingProcessed,
		Notes:  "Frame exported and archived",
	}, testOfficer()); err != nil {
		t.Fatalf("ProcessEvidence: %v", err)
	}

	closed, err := env.svc.CloseCase(ctx, kase.ID, docs, testSupervisor())
	if err != nil {
		t.Fatalf("CloseCase: %v", err)
	}
	if closed.Status != types.CaseClosed {
		t.Errorf("status = %s, want closed", closed.Status)
	}
	if closed.ClosedAt == nil || closed.ClosedBy != "u-200" {
		t.Errorf("closure record = at %v by %q, want a timestamp and u-200", closed.ClosedAt, closed.ClosedBy)
	}
	if closed.Outcome != types.OutcomeResolved {
		t.Errorf("outcome = %s, want resolved", closed.Outcome)
	}
	last := closed.StatusHistory[len(closed.StatusHistory)-1]
	if last.From != types.CaseAnalysis || last.To != types.CaseClosed {
		t.Errorf("last history = %s->%s, want analysis->closed", last.From, last.To)
	}
	if n := env.capture.count(eventbus.EventCaseClosed); n != 1 {
		t.Errorf("case.closed events = %d, want 1", n)
	}
}

func TestCloseCaseDeniedFromOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Premature closure")
	_, err := env.svc.CloseCase(ctx, kase.ID, CloseCaseInput{
		Conclusion:      "Nothing to see",
		Recommendations: "None",
	}, testSupervisor())
	if !errors.Is(err, ErrTransitionDenied) {
		t.Fatalf("err = %v, want ErrTransitionDenied from open", err)
	}
}

func TestReopenClosedCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Repeat offender pattern")
	advanceToAnalysis(t, env, kase.ID)
	if _, err := env.svc.CloseCase(ctx, kase.ID, CloseCaseInput{
		Conclusion:      "Pattern confirmed across three sites",
		Recommendations: "Share the watchlist with neighboring sites",
	}, testSupervisor()); err != nil {
		t.Fatalf("CloseCase: %v", err)
	}

	// Officers cannot reopen.
	if _, err := env.svc.UpdateCaseStatus(ctx, kase.ID, types.CaseAnalysis, testOfficer()); !errors.Is(err, ErrTransitionDenied) {
		t.Fatalf("officer reopen: err = %v, want ErrTransitionDenied", err)
	}

	reopened, err := env.svc.UpdateCaseStatus(ctx, kase.ID, types.CaseAnalysis, testSupervisor())
	if err != nil {
		t.Fatalf("supervisor reopen: %v", err)
	}
	if reopened.Status != types.CaseAnalysis {
		t.Errorf("status = %s, want analysis", reopened.Status)
	}
	if reopened.ClosedAt != nil || reopened.ClosedBy != "" {
		t.Errorf("closure record survived reopen: at %v by %q", reopened.ClosedAt, reopened.ClosedBy)
	}
	last := reopened.StatusHistory[len(reopened.StatusHistory)-1]
	if last.From != types.CaseClosed || !last.RequiresApproval {
		t.Errorf("reopen history = from %s approval %t, want closed with approval", last.From, last.RequiresApproval)
	}
}

func TestAddEvidenceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Stolen laptop from the lab")
	item, err := env.svc.AddEvidence(ctx, kase.ID, custody.CollectInput{
		Type:        types.EvidenceDigital,
		Description: "Door controller export",
		StoragePath: "/mnt/evidence/door-ctl-7.bin",
		Location:    "lab entrance",
		Notes:       "pulled during initial sweep",
	}, testOfficer())
	if err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}

	if item.CaseID != kase.ID {
		t.Errorf("case id = %s, want %s", item.CaseID, kase.ID)
	}
	if item.ProcessingStatus != types.ProcessingPending {
		t.Errorf("processing = %s, want pending", item.ProcessingStatus)
	}
	if item.ContentHash == "" {
		t.Error("content hash not computed at collection")
	}
	if len(item.Chain) != 1 || item.Chain[0].Action != types.CustodyCollected {
		t.Fatalf("chain = %+v, want a single collected entry", item.Chain)
	}

	got, err := env.store.GetCase(ctx, kase.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if len(got.EvidenceIDs) != 1 || got.EvidenceIDs[0] != item.ID {
		t.Errorf("case evidence ids = %v, want [%s]", got.EvidenceIDs, item.ID)
	}

	listed, err := env.svc.ListCaseEvidence(ctx, kase.ID)
	if err != nil {
		t.Fatalf("ListCaseEvidence: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed evidence = %d, want 1", len(listed))
	}
}

func TestAddEvidenceClosedCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Sealed matter")
	advanceToAnalysis(t, env, kase.ID)
	if _, err := env.svc.CloseCase(ctx, kase.ID, CloseCaseInput{
		Conclusion:      "Resolved without physical evidence",
		Recommendations: "No follow-up required",
	}, testSupervisor()); err != nil {
		t.Fatalf("CloseCase: %v", err)
	}

	_, err := env.svc.AddEvidence(ctx, kase.ID, custody.CollectInput{
		Type: types.EvidencePhoto,
	}, testOfficer())
	if err == nil {
		t.Fatal("expected evidence intake into a closed case to fail")
	}
}

func TestCustodyChainGrowsAppendOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kase := openCase(t, env, "Vandalized kiosk")
	item, err := env.svc.AddEvidence(ctx, kase.ID, custody.CollectInput{
		Type:     types.EvidencePhysical,
		Location: "plaza kiosk",
	}, testOfficer())
	if err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}
	firstEntry := item.Chain[0]

	item, err = env.svc.TransferEvidence(ctx, item.ID, "u-300", "hand-off to forensics", types.ConditionGood, false, testOfficer())
	if err != nil {
		t.Fatalf("TransferEvidence: %v", err)
	}
	if len(item.Chain) != 2 {
		t.Fatalf("chain = %d entries after transfer, want 2", len(item.Chain))
	}
	if item.Chain[1].Action != types.CustodyTransferred || item.Chain[1].Actor != "u-300" {
		t.Errorf("transfer entry = %+v, want transferred to u-300", item.Chain[1])
	}

	item, err = env.svc.ProcessEvidence(ctx, item.ID, custody.ProcessResult{
		Status: types.ProcessingProcessed,
		Notes:  "fingerprints lifted",
	}, testSupervisor())
	if err != nil {
		t.Fatalf("ProcessEvidence: %v", err)
	}
	if item.ProcessingStatus != types.ProcessingProcessed {
		t.Errorf("processing = %s, want processed", item.ProcessingStatus)
	}
	if len(item.Chain) != 3 || item.Chain[2].Action != types.CustodyProcessed {
		t.Fatalf("chain = %+v, want a processed entry third", item.Chain)
	}

	item, err = env.svc.VerifyEvidence(ctx, item.ID, false, "seal mismatch", testSupervisor())
	if err != nil {
		t.Fatalf("VerifyEvidence: %v", err)
	}
	if item.IntegrityVerified {
		t.Error("failed verification left the integrity flag set")
	}
	if len(item.Chain) != 4 || item.Chain[3].Condition != types.ConditionCompromised {
		t.Fatalf("chain = %+v, want a compromised verification entry", item.Chain)
	}

	item, err = env.svc.VerifyEvidence(ctx, item.ID, true, "reseal witnessed", testSupervisor())
	if err != nil {
		t.Fatalf("VerifyEvidence: %v", err)
	}
	if !item.IntegrityVerified {
		t.Error("passed verification did not set the integrity flag")
	}

	// Every earlier entry is untouched.
	if item.Chain[0] != firstEntry {
		t.Errorf("collection entry changed: %+v vs %+v", item.Chain[0], firstEntry)
	}
	if item.Chain[0].ID == "" || item.Chain[1].ID == item.Chain[0].ID {
		t.Errorf("chain entry ids not sequential: %s, %s", item.Chain[0].ID, item.Chain[1].ID)
	}

	// Processing cannot return an item to pending.
	if _, err := env.svc.ProcessEvidence(ctx, item.ID, custody.ProcessResult{
		Status: types.ProcessingPending,
	}, testSupervisor()); err == nil {
		t.Fatal("expected processing back to pending to fail")
	}
}

func TestEvidenceUnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.AddEvidence(ctx, "case-ghost", custody.CollectInput{Type: types.EvidencePhoto}, testOfficer())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown case: err = %v, want ErrNotFound", err)
	}
	_, err = env.svc.TransferEvidence(ctx, "ev-ghost", "u-300", "r", types.ConditionGood, false, testOfficer())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown evidence: err = %v, want ErrNotFound", err)
	}
}
