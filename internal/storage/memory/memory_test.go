package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/types"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testActivity(id string, created time.Time) *types.Activity {
	return &types.Activity{
		ID:             id,
		Type:           types.ActivityAlert,
		Title:          "Tailgating at dock door",
		Priority:       types.PriorityMedium,
		Status:         types.ActivityDetecting,
		Location:       "Loading Dock",
		Reporter:       "u-100",
		ReporterClass:  types.ActorHuman,
		RetentionUntil: created.Add(types.DefaultActivityRetention),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func testIncident(id string) *types.Incident {
	return &types.Incident{
		ID:                 id,
		Type:               types.ActivityMedical,
		Status:             types.IncidentPending,
		Priority:           types.PriorityCritical,
		Title:              "Collapse near gate 4",
		TriggerActivityID:  "act-trigger",
		RequiresValidation: true,
		Dismissible:        true,
		CreatedAt:          base,
		UpdatedAt:          base,
	}
}

func testCase(id string) *types.Case {
	return &types.Case{
		ID:               id,
		CaseNumber:       "CASE-2026-0001",
		Type:             types.CaseInvestigation,
		Status:           types.CaseOpen,
		Priority:         types.PriorityHigh,
		Title:            "Warehouse inventory shrinkage",
		LeadInvestigator: "u-200",
		CreatedAt:        base,
		UpdatedAt:        base,
	}
}

func testEvidence(id, caseID string) *types.EvidenceItem {
	return &types.EvidenceItem{
		ID:               id,
		CaseID:           caseID,
		Type:             types.EvidencePhoto,
		Classification:   types.ClassInternal,
		ProcessingStatus: types.ProcessingPending,
		CollectedBy:      "u-100",
		Chain: []types.CustodyEntry{
			{ID: id + "-c1", Action: types.CustodyCollected, Actor: "u-100", Timestamp: base, Condition: types.ConditionGood},
		},
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func TestActivityCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	act := testActivity("act-1", base)
	if err := s.CreateActivity(ctx, act); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	if err := s.CreateActivity(ctx, act); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("duplicate create = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetActivity(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if got.Title != act.Title || got.Type != act.Type {
		t.Errorf("got %+v, want stored activity", got)
	}

	got.Status = types.ActivityAssigned
	got.UpdatedAt = base.Add(time.Minute)
	if err := s.UpdateActivity(ctx, got); err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
	again, err := s.GetActivity(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetActivity after update: %v", err)
	}
	if again.Status != types.ActivityAssigned {
		t.Errorf("Status = %s, want assigned", again.Status)
	}

	if _, err := s.GetActivity(ctx, "act-missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing get = %v, want ErrNotFound", err)
	}
	missing := testActivity("act-missing", base)
	if err := s.UpdateActivity(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing update = %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := New()

	act := testActivity("act-1", base)
	act.Title = ""
	if err := s.CreateActivity(ctx, act); err == nil {
		t.Error("CreateActivity should reject an activity without title")
	}

	act = testActivity("", base)
	if err := s.CreateActivity(ctx, act); err == nil {
		t.Error("CreateActivity should reject an empty id")
	}
}

func TestStoredStateIsNotAliased(t *testing.T) {
	ctx := context.Background()
	s := New()

	act := testActivity("act-1", base)
	act.UserTags = []string{"original"}
	if err := s.CreateActivity(ctx, act); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}

	// Mutating the input after create must not reach the store.
	act.UserTags[0] = "mutated-input"
	got, err := s.GetActivity(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if got.UserTags[0] != "original" {
		t.Errorf("store aliased create input: tag = %s", got.UserTags[0])
	}

	// Mutating a read result must not reach the store either.
	got.UserTags[0] = "mutated-read"
	again, err := s.GetActivity(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if again.UserTags[0] != "original" {
		t.Errorf("store aliased read result: tag = %s", again.UserTags[0])
	}
}

func TestEvidenceChainIsNotAliased(t *testing.T) {
	ctx := context.Background()
	s := New()

	item := testEvidence("ev-1", "case-1")
	if err := s.CreateEvidence(ctx, item); err != nil {
		t.Fatalf("CreateEvidence: %v", err)
	}
	got, err := s.GetEvidence(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetEvidence: %v", err)
	}
	got.Chain[0].Actor = "tampered"
	again, err := s.GetEvidence(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetEvidence: %v", err)
	}
	if again.Chain[0].Actor != "u-100" {
		t.Errorf("custody chain aliased: actor = %s", again.Chain[0].Actor)
	}
}

func TestListActivitiesFilters(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := testActivity("act-a", base)
	a.Type = types.ActivityMedical
	a.UserTags = []string{"gate-4", "ems"}
	b := testActivity("act-b", base.Add(time.Hour))
	b.Status = types.ActivityResolved
	c := testActivity("act-c", base.Add(2*time.Hour))
	c.Archived = true
	for _, act := range []*types.Activity{a, b, c} {
		if err := s.CreateActivity(ctx, act); err != nil {
			t.Fatalf("CreateActivity %s: %v", act.ID, err)
		}
	}

	medical := types.ActivityMedical
	got, err := s.ListActivities(ctx, types.ActivityFilter{Type: &medical}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 1 || got[0].ID != "act-a" {
		t.Errorf("type filter returned %d items, want [act-a]", len(got))
	}

	got, err = s.ListActivities(ctx, types.ActivityFilter{Tags: []string{"gate-4", "ems"}}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 1 || got[0].ID != "act-a" {
		t.Errorf("tag filter returned %d items, want [act-a]", len(got))
	}

	// Requiring a tag the activity lacks excludes it.
	got, err = s.ListActivities(ctx, types.ActivityFilter{Tags: []string{"gate-4", "absent"}}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("tag filter returned %d items, want none", len(got))
	}

	archived := true
	got, err = s.ListActivities(ctx, types.ActivityFilter{Archived: &archived}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 1 || got[0].ID != "act-c" {
		t.Errorf("archived filter returned %d items, want [act-c]", len(got))
	}

	// Retention: everything expires 30d after creation; act-c is archived and
	// never re-expires.
	asOf := base.Add(31 * 24 * time.Hour)
	got, err = s.ListActivities(ctx, types.ActivityFilter{ExpiredAsOf: &asOf}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expired filter returned %d items, want 2", len(got))
	}
	for _, act := range got {
		if act.ID == "act-c" {
			t.Error("archived activity reported as expired")
		}
	}
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()

	// Same created_at: ordering falls back to id.
	x := testActivity("act-x", base)
	w := testActivity("act-w", base)
	v := testActivity("act-v", base.Add(time.Hour))
	v.Priority = types.PriorityCritical
	for _, act := range []*types.Activity{x, w, v} {
		if err := s.CreateActivity(ctx, act); err != nil {
			t.Fatalf("CreateActivity %s: %v", act.ID, err)
		}
	}

	got, err := s.ListActivities(ctx, types.ActivityFilter{}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	wantOrder := []string{"act-w", "act-x", "act-v"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("default order[%d] = %s, want %s", i, got[i].ID, id)
		}
	}

	got, err = s.ListActivities(ctx, types.ActivityFilter{}, types.ListOptions{SortBy: types.SortByPriority, SortDesc: true})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if got[0].ID != "act-v" {
		t.Errorf("priority desc first = %s, want act-v", got[0].ID)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 5; i++ {
		act := testActivity(fmt.Sprintf("act-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := s.CreateActivity(ctx, act); err != nil {
			t.Fatalf("CreateActivity: %v", err)
		}
	}

	got, err := s.ListActivities(ctx, types.ActivityFilter{}, types.ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 2 || got[0].ID != "act-1" || got[1].ID != "act-2" {
		t.Errorf("page = %v, want [act-1 act-2]", ids(got))
	}

	// Offset past the end yields an empty page, not an error.
	got, err = s.ListActivities(ctx, types.ActivityFilter{}, types.ListOptions{Offset: 10})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("overrun page returned %d items, want 0", len(got))
	}
}

func ids(list []*types.Activity) []string {
	out := make([]string, len(list))
	for i, act := range list {
		out[i] = act.ID
	}
	return out
}

func TestIncidentAndCaseCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	inc := testIncident("inc-1")
	if err := s.CreateIncident(ctx, inc); err != nil {
		t.Fatalf("CreateIncident: %v", err)
	}
	gotInc, err := s.GetIncident(ctx, "inc-1")
	if err != nil {
		t.Fatalf("GetIncident: %v", err)
	}
	if !gotInc.RequiresValidation || !gotInc.Dismissible {
		t.Error("incident flags not persisted")
	}

	kase := testCase("case-1")
	if err := s.CreateCase(ctx, kase); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	gotCase, err := s.GetCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if gotCase.CaseNumber != "CASE-2026-0001" {
		t.Errorf("CaseNumber = %s", gotCase.CaseNumber)
	}

	gotCase.Status = types.CaseInvestigating
	gotCase.AppendStatusChange(types.StatusChange{
		From: types.CaseOpen, To: types.CaseInvestigating,
		ChangedBy: "u-200", Role: types.RoleOfficer, Timestamp: base,
	})
	if err := s.UpdateCase(ctx, gotCase); err != nil {
		t.Fatalf("UpdateCase: %v", err)
	}
	again, err := s.GetCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if len(again.StatusHistory) != 1 {
		t.Errorf("history length = %d, want 1", len(again.StatusHistory))
	}
}

func TestNextCaseNumber(t *testing.T) {
	ctx := context.Background()
	s := New()

	for want := 1; want <= 3; want++ {
		got, err := s.NextCaseNumber(ctx, 2026)
		if err != nil {
			t.Fatalf("NextCaseNumber: %v", err)
		}
		if got != want {
			t.Errorf("seq = %d, want %d", got, want)
		}
	}

	// Years are independent sequences.
	got, err := s.NextCaseNumber(ctx, 2027)
	if err != nil {
		t.Fatalf("NextCaseNumber: %v", err)
	}
	if got != 1 {
		t.Errorf("2027 seq = %d, want 1", got)
	}
}

func TestRunInTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		seq, err := tx.NextCaseNumber(ctx, 2026)
		if err != nil {
			return err
		}
		if seq != 1 {
			t.Errorf("in-tx seq = %d, want 1", seq)
		}
		if err := tx.CreateCase(ctx, testCase("case-1")); err != nil {
			return err
		}
		return tx.CreateEvidence(ctx, testEvidence("ev-1", "case-1"))
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	if _, err := s.GetCase(ctx, "case-1"); err != nil {
		t.Errorf("case not visible after commit: %v", err)
	}
	if _, err := s.GetEvidence(ctx, "ev-1"); err != nil {
		t.Errorf("evidence not visible after commit: %v", err)
	}
}

func TestRunInTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		if _, err := tx.NextCaseNumber(ctx, 2026); err != nil {
			return err
		}
		if err := tx.CreateCase(ctx, testCase("case-1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTransaction = %v, want boom", err)
	}

	if _, err := s.GetCase(ctx, "case-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rolled-back case visible: %v", err)
	}
	// The staged sequence was discarded with the transaction.
	seq, err := s.NextCaseNumber(ctx, 2026)
	if err != nil {
		t.Fatalf("NextCaseNumber: %v", err)
	}
	if seq != 1 {
		t.Errorf("seq after rollback = %d, want 1", seq)
	}
}

func TestTransactionReadsItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateActivity(ctx, testActivity("act-1", base)); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}

	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		act, err := tx.GetActivity(ctx, "act-1")
		if err != nil {
			return err
		}
		act.Status = types.ActivityAssigned
		if err := tx.UpdateActivity(ctx, act); err != nil {
			return err
		}
		again, err := tx.GetActivity(ctx, "act-1")
		if err != nil {
			return err
		}
		if again.Status != types.ActivityAssigned {
			t.Errorf("in-tx read = %s, want staged assigned", again.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	got, err := s.GetActivity(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if got.Status != types.ActivityAssigned {
		t.Errorf("committed status = %s, want assigned", got.Status)
	}
}

func TestClosedStoreRejectsEverything(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateActivity(ctx, testActivity("act-1", base)); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Ping(ctx); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Ping = %v, want ErrClosed", err)
	}
	if err := s.CreateActivity(ctx, testActivity("act-2", base)); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("CreateActivity = %v, want ErrClosed", err)
	}
	if _, err := s.GetActivity(ctx, "act-1"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("GetActivity = %v, want ErrClosed", err)
	}
	if _, err := s.ListActivities(ctx, types.ActivityFilter{}, types.ListOptions{}); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("ListActivities = %v, want ErrClosed", err)
	}
	if _, err := s.NextCaseNumber(ctx, 2026); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("NextCaseNumber = %v, want ErrClosed", err)
	}
	err := s.RunInTransaction(ctx, func(tx storage.Tx) error { return nil })
	if !errors.Is(err, storage.ErrClosed) {
		t.Errorf("RunInTransaction = %v, want ErrClosed", err)
	}
}

func TestConcurrentCreatesAndLists(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				act := testActivity(fmt.Sprintf("act-%d-%d", g, i), base.Add(time.Duration(i)*time.Second))
				if err := s.CreateActivity(ctx, act); err != nil {
					t.Errorf("CreateActivity: %v", err)
					return
				}
				if _, err := s.ListActivities(ctx, types.ActivityFilter{}, types.ListOptions{Limit: 5}); err != nil {
					t.Errorf("ListActivities: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	got, err := s.ListActivities(ctx, types.ActivityFilter{}, types.ListOptions{})
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(got) != 160 {
		t.Errorf("stored %d activities, want 160", len(got))
	}
}
