package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/sage/pkg/metrics"
)

type UsageSummary struct {
	RunID         string `json:"run_id"`
	Provider      string `json:"provider,omitempty"`
	Tokens        int    `json:"tokens"`
	ReasoningJobs int    `json:"reasoning_steps"`
	ToolCalls     int    `json:"tool_calls"`
	ToolFailures  int    `json:"tool_failures"`
	Aborted       bool   `json:"aborted,omitempty"`
	RecordedAtUTC string `json:"recorded_at_utc"`
}

// UsageObserver accumulates per-run token and tool-call counts and writes a
// *.usage.json summary per run on Close.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" || ev.Tags == nil {
		return
	}
	runID := ev.Tags[metrics.TagRunID]
	if runID == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[runID]
	if stat == nil {
		stat = &UsageSummary{RunID: runID}
		o.stats[runID] = stat
	}
	switch ev.Name {
	case metrics.EventReasoningDone:
		stat.ReasoningJobs++
		if p := ev.Tags[metrics.TagProvider]; p != "" {
			stat.Provider = p
		}
		stat.Tokens += intField(ev.Fields, "tokens")
	case metrics.EventToolCall:
		stat.ToolCalls++
	case metrics.EventToolResult:
		if status, _ := ev.Fields["status"].(string); status != "ok" && status != "" {
			stat.ToolFailures++
		}
	case metrics.EventRunAborted:
		stat.Aborted = true
	}
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for runID, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(runID)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

var _ metrics.Observer = (*UsageObserver)(nil)
