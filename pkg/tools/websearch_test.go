package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearchHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["query"] != "go release date" {
			t.Errorf("unexpected query %v", body["query"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Go", "url": "https://go.dev", "content": "Go was announced in 2009."},
			},
		})
	}))
	defer srv.Close()

	ws := NewWebSearch("tvly-test")
	ws.BaseURL = srv.URL
	out, err := ws.Handle(context.Background(), map[string]any{"query": "go release date"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(out, "go.dev") {
		t.Fatalf("expected result URL in output, got %s", out)
	}
}

func TestWebSearchRetriesOnRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{}})
	}))
	defer srv.Close()

	ws := NewWebSearch("tvly-test")
	ws.BaseURL = srv.URL
	if _, err := ws.Handle(context.Background(), map[string]any{"query": "x"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}

func TestWebSearchRequiresKey(t *testing.T) {
	ws := NewWebSearch("")
	if _, err := ws.Handle(context.Background(), map[string]any{"query": "x"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
