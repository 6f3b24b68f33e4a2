package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fareidzulkifli/task-manager/domain"
)

func TestTaskEntityRoundTrip(t *testing.T) {
	completed := fixedNow.Add(time.Hour)
	in := domain.Task{
		ID:          "t1",
		ProjectID:   "p1",
		Summary:     "write",
		Status:      domain.StatusDone,
		Urgent:      true,
		DueDate:     ptr("2024-06-01"),
		OrderIndex:  4,
		CompletedAt: &completed,
		CreatedAt:   fixedNow,
	}
	data, err := json.Marshal(encodeTask(in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := decodeTask(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != "t1" || out.ProjectID != "p1" || out.OrderIndex != 4 || !out.Urgent || out.Status != domain.StatusDone {
		t.Fatalf("unexpected task %#v", out)
	}
	if out.DueDate == nil || *out.DueDate != "2024-06-01" {
		t.Fatalf("due date lost: %v", out.DueDate)
	}
	if out.CompletedAt == nil || !out.CompletedAt.Equal(completed) || !out.CreatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps lost: %v %v", out.CompletedAt, out.CreatedAt)
	}
}

func TestDecodeTaskNullables(t *testing.T) {
	out, err := decodeTask([]byte(`{"PartitionKey":"task","RowKey":"t2","ProjectID":"p1","Status":"KIV","DueDate":"","CompletedAt":"","CreatedAt":""}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DueDate != nil || out.CompletedAt != nil || !out.CreatedAt.IsZero() {
		t.Fatalf("expected empty nullables, got %#v", out)
	}
}

func TestEncodeTaskPatchMergesOnlyPresentFields(t *testing.T) {
	data, err := json.Marshal(encodeTaskPatch("t1", domain.OrderPatch(0), fixedNow))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{"PartitionKey": "task", "RowKey": "t1", "OrderIndex": float64(0)}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestEncodeTaskPatchStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    domain.Status
		completed string
	}{
		{"done stamps", domain.StatusDone, fixedNow.Format(time.RFC3339Nano)},
		{"in progress clears", domain.StatusInProgress, ""},
		{"kiv clears", domain.StatusKIV, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := encodeTaskPatch("t1", domain.TaskPatch{Status: ptr(tt.status)}, fixedNow)
			if u.Status == nil || *u.Status != string(tt.status) {
				t.Fatalf("unexpected status %v", u.Status)
			}
			if u.CompletedAt == nil || *u.CompletedAt != tt.completed {
				t.Fatalf("expected completed %q, got %v", tt.completed, u.CompletedAt)
			}
		})
	}
}

func TestEncodeTaskPatchClearsDueDate(t *testing.T) {
	data, err := json.Marshal(encodeTaskPatch("t1", domain.TaskPatch{DueDate: ptr("")}, fixedNow))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := got["DueDate"]; !ok || v != "" {
		t.Fatalf("expected empty DueDate to be written, got %v", got)
	}
}

func TestProjectEntityRoundTrip(t *testing.T) {
	in := domain.Project{ID: "p1", OrgID: "o1", Name: "Board", OrderIndex: 2, Focus: "q3"}
	data, err := json.Marshal(encodeProject(in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := decodeProject(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("expected %#v, got %#v", in, out)
	}
}

func TestEqFilterEscapesQuotes(t *testing.T) {
	if got := eqFilter("OrgID", "o'1"); got != "OrgID eq 'o''1'" {
		t.Fatalf("unexpected filter %q", got)
	}
}
