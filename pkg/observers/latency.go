package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/sage/pkg/metrics"
)

// LatencyObserver tracks per-run spans and logs one latency line when the
// run reaches a terminal event.
type LatencyObserver struct {
	mu   sync.Mutex
	runs map[string]*span
	log  *slog.Logger
}

type span struct {
	started       time.Time
	firstStep     time.Time
	firstToolDone time.Time
	iterations    int
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		runs: make(map[string]*span),
		log:  log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	runID := ""
	if ev.Tags != nil {
		runID = ev.Tags[metrics.TagRunID]
	}
	if runID == "" {
		return
	}
	o.mu.Lock()
	s := o.runs[runID]
	if s == nil {
		s = &span{}
		o.runs[runID] = s
	}
	switch ev.Name {
	case metrics.EventRunStart:
		if s.started.IsZero() {
			s.started = ev.Time
		}
	case metrics.EventReasoningDone:
		s.iterations++
		if s.firstStep.IsZero() {
			s.firstStep = ev.Time
		}
	case metrics.EventToolResult:
		if s.firstToolDone.IsZero() {
			s.firstToolDone = ev.Time
		}
	case metrics.EventRunDone, metrics.EventRunAborted:
		o.logRunLocked(runID, s, ev)
		delete(o.runs, runID)
	}
	o.mu.Unlock()
}

func (o *LatencyObserver) logRunLocked(runID string, s *span, terminal metrics.MetricsEvent) {
	o.log.Info("latency",
		"run_id", runID,
		"outcome", terminal.Name,
		"first_step_ms", durationMs(s.started, s.firstStep),
		"first_tool_ms", durationMs(s.started, s.firstToolDone),
		"total_ms", durationMs(s.started, terminal.Time),
		"reasoning_steps", s.iterations,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
