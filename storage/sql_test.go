package storage

import (
	"testing"
	"time"

	"github.com/fareidzulkifli/task-manager/domain"
)

func TestUpdateStatement(t *testing.T) {
	set := taskAssignments(domain.MovePatch("p2", 3), fixedNow)
	q, args := updateStatement("tasks", set, "t1", dollar)
	if q != "UPDATE tasks SET project_id = $1, order_index = $2 WHERE id = $3" {
		t.Fatalf("unexpected query %q", q)
	}
	if len(args) != 3 || args[0] != "p2" || args[1] != 3 || args[2] != "t1" {
		t.Fatalf("unexpected args %v", args)
	}

	q, _ = updateStatement("projects", projectAssignments(domain.ProjectOrderPatch(0)), "p1", question)
	if q != "UPDATE projects SET order_index = ? WHERE id = ?" {
		t.Fatalf("unexpected query %q", q)
	}
}

func TestTaskAssignmentsStatusWritesCompletedAt(t *testing.T) {
	set := taskAssignments(domain.TaskPatch{Status: ptr(domain.StatusDone)}, fixedNow)
	if len(set) != 2 || set[1].column != "completed_at" {
		t.Fatalf("unexpected assignments %v", set)
	}
	ts, ok := set[1].value.(*time.Time)
	if !ok || ts == nil || !ts.Equal(fixedNow) {
		t.Fatalf("unexpected completed_at %v", set[1].value)
	}

	q, _ := updateStatement("tasks", set, "t1", question)
	want := "UPDATE tasks SET status = ?, completed_at = CASE WHEN status = 'Done' THEN completed_at ELSE ? END WHERE id = ?"
	if q != want {
		t.Fatalf("unexpected query %q", q)
	}

	set = taskAssignments(domain.TaskPatch{Status: ptr(domain.StatusInProgress)}, fixedNow)
	if set[1].keepWhen != "" {
		t.Fatalf("leaving Done must clear completed_at unconditionally")
	}
	if ts, ok := set[1].value.(*time.Time); !ok || ts != nil {
		t.Fatalf("expected NULL completed_at, got %v", set[1].value)
	}
}

func TestMigrationsAreOrdered(t *testing.T) {
	for _, dialect := range []string{"postgres", "sqlite"} {
		ms, err := migrations(dialect)
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		if len(ms) == 0 || ms[0].version != 1 {
			t.Fatalf("%s: unexpected migrations %v", dialect, ms)
		}
	}
}
