package audit

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vigilops/vigil/internal/types"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	return New(filepath.Join(t.TempDir(), ".vigil", FileName))
}

func TestRecord_CreatesFileAndWritesJSONL(t *testing.T) {
	l := testLog(t)

	id1, err := l.Record(Entry{
		ActorID: "u-100", ActorName: "Dana Reyes", Role: types.RoleOfficer,
		Action: "activity.create", Entity: EntityActivity, EntityID: "act-abc123",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id1 == "" {
		t.Fatalf("expected id")
	}
	if _, err := l.Record(Entry{
		ActorID: "u-100", ActorName: "Dana Reyes", Role: types.RoleOfficer,
		Action: "activity.status", Entity: EntityActivity, EntityID: "act-abc123",
		Detail: map[string]string{"from": "detecting", "to": "assigned"},
	}); err != nil {
		t.Fatalf("record status change: %v", err)
	}

	f, err := os.Open(l.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	lines := 0
	for sc.Scan() {
		lines++
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestRecord_RequiresActorAndAction(t *testing.T) {
	l := testLog(t)

	if _, err := l.Record(Entry{Action: "activity.create"}); err == nil {
		t.Errorf("expected error for missing actor id")
	}
	if _, err := l.Record(Entry{ActorID: "u-100"}); err == nil {
		t.Errorf("expected error for missing action")
	}
}

func TestList_FiltersEntries(t *testing.T) {
	l := testLog(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	seed := []Entry{
		{Timestamp: base, ActorID: "u-100", Action: "activity.create", Entity: EntityActivity, EntityID: "act-1"},
		{Timestamp: base.Add(time.Minute), ActorID: "u-200", Action: "incident.confirm", Entity: EntityIncident, EntityID: "inc-1"},
		{Timestamp: base.Add(2 * time.Minute), ActorID: "u-100", Action: "activity.status", Entity: EntityActivity, EntityID: "act-1"},
		{Timestamp: base.Add(3 * time.Minute), ActorID: "u-200", Action: "case.close", Entity: EntityCase, EntityID: "case-1"},
	}
	for i, e := range seed {
		if _, err := l.Record(e); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by entity", Filter{Entity: EntityActivity}, 2},
		{"by entity id", Filter{EntityID: "inc-1"}, 1},
		{"by actor", Filter{ActorID: "u-200"}, 2},
		{"by exact action", Filter{Action: "case.close"}, 1},
		{"by action namespace", Filter{Action: "activity."}, 2},
		{"since", Filter{Since: base.Add(2 * time.Minute)}, 2},
		{"limit keeps most recent", Filter{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skipped, err := l.List(tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if skipped != 0 {
				t.Errorf("skipped = %d, want 0", skipped)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}

	got, _, err := l.List(Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].Action != "activity.status" || got[1].Action != "case.close" {
		t.Errorf("limit window = [%s %s], want [activity.status case.close]", got[0].Action, got[1].Action)
	}
}

func TestList_SkipsCorruptLines(t *testing.T) {
	l := testLog(t)

	if _, err := l.Record(Entry{ActorID: "u-100", Action: "activity.create", Entity: EntityActivity, EntityID: "act-1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("{not json\n\n{\"ts\":\"2026-03-10T09:00:00Z\"}\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := l.Record(Entry{ActorID: "u-100", Action: "activity.status", Entity: EntityActivity, EntityID: "act-1"}); err != nil {
		t.Fatalf("record after garbage: %v", err)
	}

	got, skipped, err := l.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2 (corrupt line and missing id)", skipped)
	}
}

func TestList_MissingFileIsEmpty(t *testing.T) {
	l := testLog(t)

	got, skipped, err := l.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 || skipped != 0 {
		t.Errorf("got %d entries %d skipped, want 0 0", len(got), skipped)
	}
}
