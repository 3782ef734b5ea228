package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/sage/pkg/llm"
	"github.com/harunnryd/sage/pkg/resilience"
)

func TestGeneratePassesParamsThrough(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hi"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4},
		})
	}))
	defer srv.Close()

	a := NewAdapter("sk-test", "gpt-default")
	a.BaseURL = srv.URL
	resp, err := a.Generate(context.Background(), llm.Context{
		Messages: []map[string]any{{"role": "user", "content": "hello"}},
		Params:   llm.Params{Model: "gpt-custom", Temperature: 0.3, MaxOutputTokens: 128},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "hi" || resp.Usage.TotalTokens != 4 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if got["model"] != "gpt-custom" {
		t.Fatalf("expected params model to win, got %v", got["model"])
	}
	if got["temperature"] != 0.3 {
		t.Fatalf("expected temperature pass-through, got %v", got["temperature"])
	}
	if got["max_completion_tokens"] != float64(128) {
		t.Fatalf("expected max tokens pass-through, got %v", got["max_completion_tokens"])
	}
}

func TestGenerateParsesToolCallsWithRepair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name": "calculator",
									// trailing comma: malformed on purpose
									"arguments": `{"expression": "12*7",}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		})
	}))
	defer srv.Close()

	a := NewAdapter("sk-test", "gpt-default")
	a.BaseURL = srv.URL
	resp, err := a.Generate(context.Background(), llm.Context{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !resp.Requested() {
		t.Fatalf("expected tool request")
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "calculator" {
		t.Fatalf("unexpected call %#v", call)
	}
	if call.Arguments["expression"] != "12*7" {
		t.Fatalf("expected repaired arguments, got %#v", call.Arguments)
	}
}

func TestGenerateRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAdapter("sk-test", "gpt-default")
	a.BaseURL = srv.URL
	_, err := a.Generate(context.Background(), llm.Context{})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}
