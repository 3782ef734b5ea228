package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/sage/pkg/llm"
)

// Step is one scripted reasoning result: either a response or an error.
type Step struct {
	Response llm.Response
	Err      error
}

// Adapter replays a fixed script of reasoning results, one per Generate
// call. It is deterministic: the same conversation replayed against the same
// script yields the same decisions. The last step repeats once the script is
// exhausted.
type Adapter struct {
	mu    sync.Mutex
	steps []Step
	calls int
	seen  []llm.Context
}

func NewAdapter(steps ...Step) *Adapter {
	if len(steps) == 0 {
		steps = []Step{{Response: llm.Response{Text: "mock response"}}}
	}
	return &Adapter{steps: steps}
}

// Text is a convenience constructor for a single final-answer script.
func Text(text string) *Adapter {
	return NewAdapter(Step{Response: llm.Response{Text: text}})
}

func (a *Adapter) Name() string { return "mock_llm" }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, input)
	i := a.calls
	if i >= len(a.steps) {
		i = len(a.steps) - 1
	}
	a.calls++
	step := a.steps[i]
	return step.Response, step.Err
}

func (a *Adapter) Stream(ctx context.Context, input llm.Context) (<-chan string, error) {
	resp, err := a.Generate(ctx, input)
	if err != nil {
		return nil, err
	}
	out := make(chan string, 1)
	if resp.Text != "" {
		out <- resp.Text
	}
	close(out)
	return out, nil
}

func (a *Adapter) MapTools(tools []llm.Tool) (any, error) {
	return nil, nil
}

// Calls reports how many Generate calls were made.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// LastContext returns the most recent Generate input.
func (a *Adapter) LastContext() (llm.Context, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.seen) == 0 {
		return llm.Context{}, false
	}
	return a.seen[len(a.seen)-1], true
}

var _ llm.Adapter = (*Adapter)(nil)
