package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/sage/pkg/agent"
	"github.com/harunnryd/sage/pkg/conversation"
	"github.com/harunnryd/sage/pkg/transports"
)

type stubHandler struct {
	result *agent.Result
	events []agent.StreamEvent
	err    error
	last   transports.Request
}

func (h *stubHandler) Invoke(ctx context.Context, req transports.Request) (*agent.Result, error) {
	h.last = req
	return h.result, h.err
}

func (h *stubHandler) Stream(ctx context.Context, req transports.Request) <-chan agent.StreamEvent {
	h.last = req
	out := make(chan agent.StreamEvent, len(h.events))
	for _, ev := range h.events {
		out <- ev
	}
	close(out)
	return out
}

func (h *stubHandler) Health() error { return h.err }

func TestHandleInvokeReturnsTranscript(t *testing.T) {
	turns := []conversation.Turn{
		conversation.NewUserTurn("hi"),
		conversation.NewAssistantTurn("hello"),
	}
	tr := New(Config{})
	tr.SetHandler(&stubHandler{result: &agent.Result{RunID: "r1", Turns: turns, Answer: "hello"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/invoke", strings.NewReader(`{"input":"hi"}`))
	w := httptest.NewRecorder()
	tr.handleInvoke(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got invokeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Answer != "hello" || len(got.Turns) != 2 {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestHandleInvokeRejectsBadRequests(t *testing.T) {
	tr := New(Config{})
	tr.SetHandler(&stubHandler{result: &agent.Result{}})

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"empty input", http.MethodPost, `{"input":"  "}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/v1/chat/invoke", strings.NewReader(tc.body))
		w := httptest.NewRecorder()
		tr.handleInvoke(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestHandleStreamWritesNDJSON(t *testing.T) {
	turn := conversation.NewUserTurn("q")
	done := &agent.Result{RunID: "r1", Answer: "a"}
	tr := New(Config{})
	tr.SetHandler(&stubHandler{events: []agent.StreamEvent{
		{Turn: &turn},
		{Result: done},
	}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", strings.NewReader(`{"input":"q"}`))
	w := httptest.NewRecorder()
	tr.handleStream(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("expected ndjson content type, got %q", ct)
	}
	scanner := bufio.NewScanner(w.Body)
	var lines []agent.StreamEvent
	for scanner.Scan() {
		var ev agent.StreamEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line not json: %v", err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Turn == nil || lines[1].Result == nil {
		t.Fatalf("expected turn then final result, got %+v", lines)
	}
	if lines[1].Result.Answer != "a" {
		t.Fatalf("final marker lost answer: %+v", lines[1].Result)
	}
}

func TestHandleHealth(t *testing.T) {
	tr := New(Config{})

	w := httptest.NewRecorder()
	tr.handleHealth(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before handler wired, got %d", w.Code)
	}

	tr.SetHandler(&stubHandler{})
	w = httptest.NewRecorder()
	tr.handleHealth(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	tr.draining.Store(true)
	w = httptest.NewRecorder()
	tr.handleHealth(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", w.Code)
	}
}

func TestHistoryPassedThrough(t *testing.T) {
	h := &stubHandler{result: &agent.Result{}}
	tr := New(Config{})
	tr.SetHandler(h)

	body := `{"input":"next","history":[{"seq":0,"role":"user","content":"first"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/invoke", strings.NewReader(body))
	w := httptest.NewRecorder()
	tr.handleInvoke(w, req)

	if len(h.last.History) != 1 || h.last.History[0].Content != "first" {
		t.Fatalf("history not decoded: %+v", h.last.History)
	}
}
