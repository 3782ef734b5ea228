package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/sage/pkg/transports"
)

type Config struct {
	ServerAddr     string
	Path           string
	AllowedOrigins []string
	ReadLimit      int64
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ServerAddr) == "" {
		c.ServerAddr = ":8081"
	}
	if c.Path == "" {
		c.Path = "/v1/chat/ws"
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	return c
}

// Transport serves chat runs over a WebSocket connection. Each text message
// from the client is a request; every appended turn and the final result go
// back as JSON messages. A client may send the next request after the final
// event of the previous run.
type Transport struct {
	cfg      Config
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	mu      sync.Mutex
	handler transports.Handler

	draining atomic.Bool
}

func New(cfg Config) *Transport {
	t := &Transport{
		cfg: cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "websocket" }

func (t *Transport) SetHandler(h transports.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{"addr": t.Addr(), "path": t.cfg.Path}
}

func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.cfg.ServerAddr
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if len(t.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range t.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(t.cfg.Path, t)

	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = ln
	t.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	server := t.server
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ws_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Close()
}

type errorMessage struct {
	Error string `json:"error"`
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(t.cfg.ReadLimit)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler == nil {
			_ = writeJSON(conn, errorMessage{Error: "not ready"})
			continue
		}
		var req transports.Request
		if err := json.Unmarshal(msg, &req); err != nil || strings.TrimSpace(req.Input) == "" {
			_ = writeJSON(conn, errorMessage{Error: "invalid request"})
			continue
		}
		for ev := range handler.Stream(r.Context(), req) {
			if err := writeJSON(conn, ev); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

var (
	_ transports.Transport     = (*Transport)(nil)
	_ transports.ReadyReporter = (*Transport)(nil)
)
