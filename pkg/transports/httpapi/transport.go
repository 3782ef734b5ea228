package httpapi

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

	"github.com/harunnryd/sage/pkg/conversation"
	"github.com/harunnryd/sage/pkg/transports"
)

type Config struct {
	ServerAddr     string
	InvokePath     string
	StreamPath     string
	HealthPath     string
	MaxRequestBody int64
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ServerAddr) == "" {
		c.ServerAddr = ":8080"
	}
	if c.InvokePath == "" {
		c.InvokePath = "/v1/chat/invoke"
	}
	if c.StreamPath == "" {
		c.StreamPath = "/v1/chat/stream"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/v1/health"
	}
	if c.MaxRequestBody <= 0 {
		c.MaxRequestBody = 1 << 20
	}
	return c
}

// Transport serves chat runs over plain HTTP. Invoke returns the full
// transcript at once; Stream writes newline-delimited JSON events as the
// run progresses.
type Transport struct {
	cfg      Config
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	handler transports.Handler

	draining atomic.Bool
}

func New(cfg Config) *Transport {
	return &Transport{cfg: cfg.withDefaults()}
}

func (t *Transport) Name() string { return "http" }

func (t *Transport) SetHandler(h transports.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"addr":        t.Addr(),
		"invoke_path": t.cfg.InvokePath,
		"stream_path": t.cfg.StreamPath,
	}
}

// Addr returns the bound listen address, useful when ServerAddr used port 0.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.cfg.ServerAddr
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.InvokePath, t.handleInvoke)
	mux.HandleFunc(t.cfg.StreamPath, t.handleStream)
	mux.HandleFunc(t.cfg.HealthPath, t.handleHealth)

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
			slog.Error("http_transport_server_error", "error", err.Error())
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (t *Transport) currentHandler() transports.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler
}

func (t *Transport) decodeRequest(w http.ResponseWriter, r *http.Request) (transports.Request, bool) {
	var req transports.Request
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return req, false
	}
	body := http.MaxBytesReader(w, r.Body, t.cfg.MaxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return req, false
	}
	return req, true
}

type invokeResponse struct {
	RunID   string              `json:"run_id"`
	Turns   []conversation.Turn `json:"turns"`
	Answer  string              `json:"answer,omitempty"`
	Aborted bool                `json:"aborted,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (t *Transport) handleInvoke(w http.ResponseWriter, r *http.Request) {
	handler := t.currentHandler()
	if handler == nil || t.draining.Load() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	req, ok := t.decodeRequest(w, r)
	if !ok {
		return
	}
	res, err := handler.Invoke(r.Context(), req)
	if res == nil {
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}
	out := invokeResponse{
		RunID:   res.RunID,
		Turns:   res.Turns,
		Answer:  res.Answer,
		Aborted: res.Aborted,
	}
	if err != nil {
		out.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (t *Transport) handleStream(w http.ResponseWriter, r *http.Request) {
	handler := t.currentHandler()
	if handler == nil || t.draining.Load() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	req, ok := t.decodeRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev := range handler.Stream(r.Context(), req) {
		if err := enc.Encode(ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler := t.currentHandler()
	status := "ok"
	code := http.StatusOK
	if t.draining.Load() {
		status = "draining"
		code = http.StatusServiceUnavailable
	} else if handler == nil {
		status = "starting"
		code = http.StatusServiceUnavailable
	} else if err := handler.Health(); err != nil {
		status = err.Error()
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

var (
	_ transports.Transport     = (*Transport)(nil)
	_ transports.ReadyReporter = (*Transport)(nil)
)
