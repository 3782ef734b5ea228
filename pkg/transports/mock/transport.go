package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/sage/pkg/agent"
	"github.com/harunnryd/sage/pkg/transports"
)

// Transport is an in-memory transport for local testing and integration.
// It implements the transports.Transport interface without any network
// dependency; tests push requests with Invoke/Stream directly.
type Transport struct {
	mu      sync.Mutex
	handler transports.Handler
	closed  atomic.Bool
}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) SetHandler(h transports.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.closed.Store(true)
	return nil
}

// Invoke forwards a request to the wired handler, as a network client would.
func (t *Transport) Invoke(ctx context.Context, req transports.Request) (*agent.Result, error) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if t.closed.Load() || handler == nil {
		return nil, errors.New("transport not ready")
	}
	return handler.Invoke(ctx, req)
}

// Stream forwards a streaming request to the wired handler.
func (t *Transport) Stream(ctx context.Context, req transports.Request) (<-chan agent.StreamEvent, error) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if t.closed.Load() || handler == nil {
		return nil, errors.New("transport not ready")
	}
	return handler.Stream(ctx, req), nil
}

var _ transports.Transport = (*Transport)(nil)
