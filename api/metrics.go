package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type requestMetrics struct {
	logger       *log.Logger
	route        string
	start        time.Time
	authDuration time.Duration
	boardWait    time.Duration
	patches      int
	errorStage   string
	err          error
}

func newRequestMetrics(logger *log.Logger, route string) *requestMetrics {
	return &requestMetrics{logger: logger, route: route, start: time.Now()}
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

// ObserveBoard records time spent waiting on the board event loop.
func (m *requestMetrics) ObserveBoard(d time.Duration) {
	if d > 0 {
		m.boardWait = d
	}
}

func (m *requestMetrics) SetPatches(n int) {
	if n > 0 {
		m.patches = n
	}
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.boardWait > 0 {
		fields["board_ms"] = durationToMillis(m.boardWait)
	}
	if m.patches > 0 {
		fields["patches"] = m.patches
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("board.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
