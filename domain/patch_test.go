package domain

import (
	"slices"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestTaskPatchKeepsAbsentFields(t *testing.T) {
	due := "2026-01-02"
	tk := Task{ID: "t1", Summary: "s", NotesMarkdown: "n", Urgent: true, DueDate: &due, OrderIndex: 4}
	TaskPatch{Important: ptr(true)}.Apply(&tk, time.Now())
	if tk.Summary != "s" || tk.NotesMarkdown != "n" || !tk.Urgent || !tk.Important || tk.DueDate == nil || tk.OrderIndex != 4 {
		t.Fatalf("unexpected task: %#v", tk)
	}
}

func TestTaskPatchCompletedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tk := Task{ID: "t1", Status: StatusInProgress}

	TaskPatch{Status: ptr(StatusDone)}.Apply(&tk, now)
	if tk.CompletedAt == nil || !tk.CompletedAt.Equal(now) {
		t.Fatalf("expected completed_at %v, got %v", now, tk.CompletedAt)
	}

	TaskPatch{Status: ptr(StatusDone)}.Apply(&tk, now.Add(time.Hour))
	if !tk.CompletedAt.Equal(now) {
		t.Fatalf("completed_at changed without a transition: %v", tk.CompletedAt)
	}

	TaskPatch{Status: ptr(StatusKIV)}.Apply(&tk, now)
	if tk.CompletedAt != nil {
		t.Fatalf("expected completed_at cleared, got %v", tk.CompletedAt)
	}
}

func TestTaskPatchClearsDueDate(t *testing.T) {
	due := "2026-01-02"
	tk := Task{DueDate: &due}
	TaskPatch{DueDate: ptr("")}.Apply(&tk, time.Now())
	if tk.DueDate != nil {
		t.Fatalf("expected due date cleared, got %v", *tk.DueDate)
	}
}

func TestTaskPatchValidate(t *testing.T) {
	tests := []struct {
		name  string
		patch TaskPatch
		ok    bool
	}{
		{"empty", TaskPatch{}, true},
		{"known status", TaskPatch{Status: ptr(StatusKIV)}, true},
		{"unknown status", TaskPatch{Status: ptr(Status("Later"))}, false},
		{"bad date", TaskPatch{DueDate: ptr("02/01/2026")}, false},
		{"clear date", TaskPatch{DueDate: ptr("")}, true},
		{"negative order", TaskPatch{OrderIndex: ptr(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestTaskPatchFields(t *testing.T) {
	got := MovePatch("p2", 0).Fields()
	if !slices.Equal(got, []string{"project_id", "order_index"}) {
		t.Fatalf("unexpected fields: %v", got)
	}
	if !(TaskPatch{}).Empty() {
		t.Fatalf("expected empty patch")
	}
}
