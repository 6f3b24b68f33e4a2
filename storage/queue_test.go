package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/fareidzulkifli/task-manager/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueuePatchTaskEnqueuesCommand(t *testing.T) {
	fq := &fakeQueue{}
	q := &Queue{commands: fq, now: func() time.Time { return fixedNow }}

	if _, err := q.PatchTask(context.Background(), "t1", domain.MovePatch("p2", 0)); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if len(fq.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fq.messages))
	}
	var cmd domain.Command
	if err := sonic.UnmarshalString(fq.messages[0], &cmd); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := uuid.Parse(cmd.ID); err != nil {
		t.Fatalf("expected uuid idempotency key, got %q", cmd.ID)
	}
	if cmd.EntityType != domain.EntityTask || cmd.EntityID != "t1" || cmd.Type != domain.CommandPatch || cmd.Timestamp != fixedNow.UnixNano() {
		t.Fatalf("unexpected command %#v", cmd)
	}
	p, err := cmd.TaskPatch()
	if err != nil {
		t.Fatalf("task patch: %v", err)
	}
	if p.ProjectID == nil || *p.ProjectID != "p2" || p.OrderIndex == nil || *p.OrderIndex != 0 {
		t.Fatalf("unexpected patch %v", p)
	}
}

func TestQueuePatchProjectPropagatesErrors(t *testing.T) {
	fq := &fakeQueue{err: errors.New("enqueue failure")}
	q := &Queue{commands: fq, now: func() time.Time { return fixedNow }}

	if _, err := q.PatchProject(context.Background(), "p1", domain.ProjectOrderPatch(1)); err == nil {
		t.Fatal("expected error")
	}
}

func TestQueueKeysAreUnique(t *testing.T) {
	fq := &fakeQueue{}
	q := &Queue{commands: fq, now: func() time.Time { return fixedNow }}
	for i := 0; i < 3; i++ {
		if _, err := q.PatchTask(context.Background(), "t1", domain.OrderPatch(i)); err != nil {
			t.Fatalf("patch: %v", err)
		}
	}
	seen := map[string]bool{}
	for _, m := range fq.messages {
		var cmd domain.Command
		if err := sonic.UnmarshalString(m, &cmd); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if seen[cmd.ID] {
			t.Fatalf("duplicate key %s", cmd.ID)
		}
		seen[cmd.ID] = true
	}
}
