package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/sage/pkg/agent"
	"github.com/harunnryd/sage/pkg/conversation"
	"github.com/harunnryd/sage/pkg/transports"
)

type stubHandler struct{}

func (stubHandler) Invoke(ctx context.Context, req transports.Request) (*agent.Result, error) {
	return &agent.Result{Answer: "pong"}, nil
}

func (stubHandler) Stream(ctx context.Context, req transports.Request) <-chan agent.StreamEvent {
	out := make(chan agent.StreamEvent, 2)
	turn := conversation.NewUserTurn(req.Input)
	out <- agent.StreamEvent{Turn: &turn}
	out <- agent.StreamEvent{Result: &agent.Result{Answer: "pong"}}
	close(out)
	return out
}

func (stubHandler) Health() error { return nil }

func dialTest(t *testing.T, tr *Transport) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(tr)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestServeStreamsEvents(t *testing.T) {
	tr := New(Config{})
	tr.SetHandler(stubHandler{})
	conn, cleanup := dialTest(t, tr)
	defer cleanup()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"input":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var events []agent.StreamEvent
	for len(events) < 2 {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev agent.StreamEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		events = append(events, ev)
	}
	if events[0].Turn == nil || events[0].Turn.Content != "ping" {
		t.Fatalf("expected echoed turn, got %+v", events[0])
	}
	if events[1].Result == nil || events[1].Result.Answer != "pong" {
		t.Fatalf("expected final result, got %+v", events[1])
	}
}

func TestServeRejectsInvalidRequest(t *testing.T) {
	tr := New(Config{})
	tr.SetHandler(stubHandler{})
	conn, cleanup := dialTest(t, tr)
	defer cleanup()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"input":""}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), "invalid request") {
		t.Fatalf("expected error message, got %s", msg)
	}
}

func TestCheckOrigin(t *testing.T) {
	tr := New(Config{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest("GET", "/v1/chat/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	if !tr.checkOrigin(req) {
		t.Fatalf("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if tr.checkOrigin(req) {
		t.Fatalf("unknown origin accepted")
	}
}
