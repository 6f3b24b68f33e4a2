package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestRequestMetricsLog(t *testing.T) {
	logger, hook := test.NewNullLogger()

	m := newRequestMetrics(logger, "/api/orgs/:id/drag")
	m.start = m.start.Add(-50 * time.Millisecond)
	m.ObserveAuth(2 * time.Millisecond)
	m.ObserveBoard(3 * time.Millisecond)
	m.SetPatches(4)
	m.SetErrorStage("board")
	m.Log(http.StatusInternalServerError, errors.New("boom"))

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "board.request.metrics" {
		t.Fatalf("expected metrics entry, got %+v", entry)
	}
	if entry.Data["route"] != "/api/orgs/:id/drag" || entry.Data["status"] != http.StatusInternalServerError {
		t.Fatalf("unexpected route or status: %+v", entry.Data)
	}
	if total, ok := entry.Data["total_ms"].(float64); !ok || total < 50 {
		t.Fatalf("unexpected total_ms: %#v", entry.Data["total_ms"])
	}
	if entry.Data["auth_ms"] != 2.0 || entry.Data["board_ms"] != 3.0 {
		t.Fatalf("unexpected durations: %+v", entry.Data)
	}
	if entry.Data["patches"] != 4 || entry.Data["error_stage"] != "board" || entry.Data["error"] != "boom" {
		t.Fatalf("unexpected fields: %+v", entry.Data)
	}
}

func TestRequestMetricsOmitsEmptyFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := newRequestMetrics(logger, "/api/nav")
	m.ObserveAuth(0)
	m.SetPatches(0)
	m.SetErrorStage("")
	m.Log(http.StatusOK, nil)

	entry := hook.LastEntry()
	for _, k := range []string{"auth_ms", "board_ms", "patches", "error_stage", "error"} {
		if _, ok := entry.Data[k]; ok {
			t.Fatalf("unexpected field %s in %+v", k, entry.Data)
		}
	}
	var nilMetrics *requestMetrics
	nilMetrics.Log(http.StatusOK, nil)
}
