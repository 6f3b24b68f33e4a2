package domain

import (
	"testing"
	"time"
)

func TestRecentProjects(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orgs := []Organization{{ID: "o1", Name: "Work"}}
	projects := []Project{
		{ID: "A", OrgID: "o1"},
		{ID: "B", OrgID: "o1"},
		{ID: "C", OrgID: "o1"},
		{ID: "D", OrgID: "gone"},
	}
	tasks := []Task{
		{ID: "a1", ProjectID: "A", Status: StatusInProgress, CreatedAt: base},
		{ID: "a2", ProjectID: "A", Status: StatusDone, CreatedAt: base, CompletedAt: ptr(base.Add(3 * time.Hour))},
		{ID: "b1", ProjectID: "B", Status: StatusKIV, CreatedAt: base.Add(time.Hour)},
		{ID: "d1", ProjectID: "D", Status: StatusInProgress, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "x1", ProjectID: "X", Status: StatusInProgress, CreatedAt: base.Add(9 * time.Hour)},
	}

	got := RecentProjects(orgs, projects, tasks, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	want := []string{"A", "D", "B"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	a := got[0]
	if a.OrgName != "Work" || a.TotalTasks != 2 || a.IncompleteTasks != 1 {
		t.Fatalf("unexpected summary %+v", a)
	}
	if a.LastWorkedOn == nil || !a.LastWorkedOn.Equal(base.Add(3*time.Hour)) {
		t.Fatalf("expected completion to count as work, got %v", a.LastWorkedOn)
	}
	if got[1].OrgName != "Unknown Organization" {
		t.Fatalf("expected placeholder org name, got %q", got[1].OrgName)
	}

	all := RecentProjects(orgs, projects, tasks, 10)
	if last := all[len(all)-1]; last.ID != "C" || last.LastWorkedOn != nil {
		t.Fatalf("expected project without tasks last, got %+v", last)
	}
}

func TestOrgPatch(t *testing.T) {
	o := Organization{ID: "o1", Name: "Old", OrderIndex: 2}
	OrgPatch{Name: ptr("New")}.Apply(&o)
	if o.Name != "New" || o.OrderIndex != 2 {
		t.Fatalf("unexpected org %+v", o)
	}
	if err := (OrgPatch{Name: ptr("  ")}).Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !(OrgPatch{}).Empty() {
		t.Fatalf("expected empty patch")
	}
}

func TestProjectPatchValidate(t *testing.T) {
	if err := (ProjectPatch{Goal: ptr("ship")}).Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := (ProjectPatch{Name: ptr("")}).Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := (ProjectPatch{OrderIndex: ptr(-1)}).Validate(); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
