package board

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/fareidzulkifli/task-manager/domain"
)

func seededStore() *fakeStore {
	fs := newFakeStore()
	fs.orgs["o1"] = domain.Organization{ID: "o1", Name: "Org"}
	for i, id := range []string{"A", "B", "C"} {
		fs.projects[id] = domain.Project{ID: id, OrgID: "o1", Name: id, OrderIndex: i}
	}
	for i, id := range []string{"t1", "t2", "t3"} {
		fs.tasks[id] = domain.Task{ID: id, ProjectID: "A", Summary: id, Status: domain.StatusInProgress, OrderIndex: i}
	}
	return fs
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestBridgeAppliesPatches(t *testing.T) {
	fs := seededStore()
	logger, _ := test.NewNullLogger()
	b := NewBridge(fs, logger, BridgeOptions{Workers: 2, Buffer: 1})

	b.PatchTask("t1", domain.OrderPatch(2))
	b.PatchTask("t3", domain.OrderPatch(0))
	b.PatchProject("A", domain.ProjectOrderPatch(2))
	b.Close()

	if n := fs.patchCount(); n != 3 {
		t.Fatalf("expected 3 store patches, got %d", n)
	}
	if fs.tasks["t1"].OrderIndex != 2 || fs.tasks["t3"].OrderIndex != 0 || fs.projects["A"].OrderIndex != 2 {
		t.Fatalf("store not updated: %#v %#v", fs.tasks, fs.projects)
	}
}

func TestBridgeFailureIsReportedNotRetried(t *testing.T) {
	exporter := setupTestTracer(t)
	fs := seededStore()
	fs.patchErr = errors.New("boom")
	logger, hook := test.NewNullLogger()
	b := NewBridge(fs, logger, BridgeOptions{Workers: 1, Buffer: 4})
	alerts := b.Alerts(4)
	defer alerts.Close()

	b.PatchTask("t1", domain.OrderPatch(1))

	select {
	case perr := <-alerts.C:
		if perr.Entity != domain.EntityTask || perr.ID != "t1" || !errors.Is(perr, fs.patchErr) {
			t.Fatalf("unexpected alert %#v", perr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected persistence alert")
	}
	b.Close()

	if n := fs.patchCount(); n != 1 {
		t.Fatalf("expected exactly one attempt, got %d", n)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel || entry.Data["id"] != "t1" || entry.Data["entity"] != domain.EntityTask {
		t.Fatalf("unexpected log entry %#v", entry)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "board.patch" || span.Status.Code != codes.Error || span.SpanKind != trace.SpanKindClient {
		t.Fatalf("unexpected span %s status %v", span.Name, span.Status)
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value.AsString()
	}
	if attrs["entity"] != "task" || attrs["id"] != "t1" || attrs["fields"] != "order_index" {
		t.Fatalf("unexpected span attributes %v", attrs)
	}
}

func TestBridgeFailureKeepsLocalState(t *testing.T) {
	fs := seededStore()
	fs.patchErr = errors.New("offline")
	logger, _ := test.NewNullLogger()
	b := NewBridge(fs, logger, BridgeOptions{Workers: 1})

	state, err := Load(context.Background(), fs, "o1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c := NewCoordinator(state, b, logger)
	if _, err := c.Drop(DragEvent{ActiveID: "A", OverID: "C"}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	b.Close()

	if got := domain.ProjectIDs(state.Projects()); got[2] != "A" {
		t.Fatalf("local state reverted: %v", got)
	}
	if fs.projects["A"].OrderIndex != 0 {
		t.Fatalf("store changed despite failure")
	}
	if n := fs.patchCount(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestBridgeSaturatedPoolDoesNotBlock(t *testing.T) {
	fs := seededStore()
	logger, _ := test.NewNullLogger()
	b := NewBridge(fs, logger, BridgeOptions{Workers: 1, Buffer: 0})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.PatchTask("t1", domain.OrderPatch(i%3))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("submissions blocked")
	}
	b.Close()
	if n := fs.patchCount(); n != 50 {
		t.Fatalf("expected 50 patches, got %d", n)
	}
}

func TestBridgeDropsWritesAfterClose(t *testing.T) {
	fs := seededStore()
	logger, hook := test.NewNullLogger()
	b := NewBridge(fs, logger, BridgeOptions{Workers: 1})
	b.Close()
	b.PatchTask("t1", domain.OrderPatch(1))
	if n := fs.patchCount(); n != 0 {
		t.Fatalf("expected no patches after close, got %d", n)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected warning, got %#v", entry)
	}
}

func TestBridgeReportReachesAlertSubscribers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	b := NewBridge(seededStore(), logger, BridgeOptions{Workers: 1})
	defer b.Close()
	alerts := b.Alerts(1)
	defer alerts.Close()

	b.Report(&domain.PersistenceError{Entity: domain.EntityTask, ID: "t1", Err: errors.New("rejected by worker")})
	select {
	case pe := <-alerts.C:
		if pe.ID != "t1" {
			t.Fatalf("unexpected alert: %+v", pe)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected alert")
	}
}
