package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestOrderPatchMarshalIncludesZeroOrder(t *testing.T) {
	payload, err := sonic.Marshal(OrderPatch(0))
	if err != nil {
		t.Fatalf("marshal patch: %v", err)
	}
	if !strings.Contains(string(payload), "\"order_index\":0") {
		t.Fatalf("expected order_index field to be present, got %s", payload)
	}
	if strings.Contains(string(payload), "summary") {
		t.Fatalf("unexpected absent field in payload %s", payload)
	}
}

func TestTaskPatchCommandRoundTrip(t *testing.T) {
	cmd, err := NewTaskPatchCommand("k1", "t1", MovePatch("p2", 3), 42)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if cmd.EntityType != EntityTask || cmd.Type != CommandPatch || cmd.EntityID != "t1" {
		t.Fatalf("unexpected command: %#v", cmd)
	}
	p, err := cmd.TaskPatch()
	if err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	if p.ProjectID == nil || *p.ProjectID != "p2" || p.OrderIndex == nil || *p.OrderIndex != 3 {
		t.Fatalf("unexpected patch: %v", p)
	}
	if p.Status != nil || p.Summary != nil {
		t.Fatalf("absent fields decoded as present: %v", p)
	}
}
