package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/sage/pkg/metrics"
)

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventToolCall,
		Time: time.Now(),
		Tags: map[string]string{
			metrics.TagRunID:    "run-1",
			metrics.TagToolName: "web_search",
		},
	})
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "run-1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(b), "tool_call") {
		t.Fatalf("expected tool_call event in file, got %q", b)
	}
}

func TestTimelineObserverRedactsStringFields(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventRunStart,
		Time:   time.Now(),
		Tags:   map[string]string{metrics.TagRunID: "run-2"},
		Fields: map[string]any{"input": "my key is sk-abcdefghijklmnopqrstuvwx"},
	})
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "run-2.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(b), "sk-abcdefghijklmnopqrstuvwx") {
		t.Fatalf("api key leaked into timeline: %q", b)
	}
}

func TestUsageObserverSummaries(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)

	tags := map[string]string{metrics.TagRunID: "run-3", metrics.TagProvider: "openai"}
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventReasoningDone,
		Time:   time.Now(),
		Tags:   tags,
		Fields: map[string]any{"tokens": 120},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventToolCall,
		Time: time.Now(),
		Tags: map[string]string{metrics.TagRunID: "run-3", metrics.TagToolName: "calculator"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventToolResult,
		Time:   time.Now(),
		Tags:   map[string]string{metrics.TagRunID: "run-3", metrics.TagToolName: "calculator"},
		Fields: map[string]any{"status": "ok"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventReasoningDone,
		Time:   time.Now(),
		Tags:   tags,
		Fields: map[string]any{"tokens": 80},
	})
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "run-3.usage.json"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var got UsageSummary
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Tokens != 200 {
		t.Fatalf("expected 200 tokens, got %d", got.Tokens)
	}
	if got.ReasoningJobs != 2 || got.ToolCalls != 1 || got.ToolFailures != 0 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.Provider != "openai" {
		t.Fatalf("expected provider openai, got %q", got.Provider)
	}
}

func TestPurgeArtifactsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jsonl")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	fresh := filepath.Join(dir, "fresh.jsonl")
	if err := os.WriteFile(fresh, []byte("y"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := PurgeArtifacts(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file must survive: %v", err)
	}
}
