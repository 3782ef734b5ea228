package transports

import (
	"context"

	"github.com/harunnryd/sage/pkg/agent"
	"github.com/harunnryd/sage/pkg/conversation"
)

// Request is one chat invocation: the user input plus optional prior
// transcript supplied by the client.
type Request struct {
	Input   string              `json:"input"`
	History []conversation.Turn `json:"history,omitempty"`
}

// Handler is the engine surface a transport calls into. Invoke blocks until
// the run reaches a terminal state; Stream emits turns as they are appended.
type Handler interface {
	Invoke(ctx context.Context, req Request) (*agent.Result, error)
	Stream(ctx context.Context, req Request) <-chan agent.StreamEvent
	Health() error
}

// Transport defines a vendor-agnostic boundary for chat requests.
// Implementations are responsible for their own network lifecycle.
type Transport interface {
	Name() string
	SetHandler(h Handler)
	Start(ctx context.Context) error
	Stop() error
}

// ReadyReporter allows transports to expose readiness metadata (e.g., listen
// addresses). Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
