package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/sage/pkg/conversation"
	"github.com/harunnryd/sage/pkg/errorsx"
	"github.com/harunnryd/sage/pkg/llm"
	"github.com/harunnryd/sage/pkg/metrics"
	"github.com/harunnryd/sage/pkg/redact"
	"github.com/harunnryd/sage/pkg/tools"
)

var ErrTurnLimit = errors.New("reasoning iteration limit exceeded")

// Config holds per-orchestrator settings. Provider credentials and model
// options arrive here explicitly; the orchestrator reads no ambient state.
type Config struct {
	MaxIterations int
	Params        llm.Params
	Retry         llm.RetryConfig
	Plan          bool
	SystemPrompt  string
	MaxHistory    int
	Now           func() time.Time
}

// Result is the outcome of one run: the full transcript and either a final
// answer or the abort error.
type Result struct {
	RunID   string              `json:"run_id"`
	Turns   []conversation.Turn `json:"turns"`
	Answer  string              `json:"answer,omitempty"`
	Aborted bool                `json:"aborted,omitempty"`
	Err     error               `json:"-"`
}

// StreamEvent is one unit of a streaming run: every appended turn is emitted
// as it lands in the transcript, and the closing event carries the Result as
// the final marker.
type StreamEvent struct {
	Turn   *conversation.Turn `json:"turn,omitempty"`
	Result *Result            `json:"result,omitempty"`
}

// Orchestrator alternates reasoning steps and tool dispatch until the model
// answers or a bound trips. One orchestrator serves many concurrent runs;
// all per-run state lives on the stack of Run.
type Orchestrator struct {
	adapter    llm.Adapter
	registry   *tools.Registry
	dispatcher *Dispatcher
	cfg        Config
	log        *slog.Logger
	obs        metrics.Observer
	listeners  []StateListener
}

func NewOrchestrator(adapter llm.Adapter, registry *tools.Registry, dispatcher *Dispatcher, cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(registry, DispatchOptions{})
	}
	return &Orchestrator{
		adapter:    adapter,
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        slog.Default(),
	}
}

func (o *Orchestrator) SetLogger(log *slog.Logger) {
	if log != nil {
		o.log = log
		o.dispatcher.SetLogger(log)
	}
}

func (o *Orchestrator) SetObserver(obs metrics.Observer) {
	o.obs = obs
	o.dispatcher.SetObserver(obs)
}

// AddStateListener registers a listener applied to every subsequent run.
func (o *Orchestrator) AddStateListener(l StateListener) {
	o.listeners = append(o.listeners, l)
}

// Run processes one request and returns the full transcript at once. On
// abort the partial transcript is returned together with the error.
func (o *Orchestrator) Run(ctx context.Context, history []conversation.Turn, input string) (*Result, error) {
	res := o.run(ctx, history, input, nil)
	return res, res.Err
}

// RunStream processes one request, emitting every appended turn in append
// order. The channel is closed after the final event (the one carrying
// Result), which is the stream's terminal marker. If the caller cancels ctx,
// emission stops and no further reasoning or tool work is started.
func (o *Orchestrator) RunStream(ctx context.Context, history []conversation.Turn, input string) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		emit := func(t conversation.Turn) bool {
			select {
			case out <- StreamEvent{Turn: &t}:
				return true
			case <-ctx.Done():
				return false
			}
		}
		res := o.run(ctx, history, input, emit)
		select {
		case out <- StreamEvent{Result: res}:
		case <-ctx.Done():
		}
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, history []conversation.Turn, input string, emit func(conversation.Turn) bool) *Result {
	runID := uuid.NewString()
	state := conversation.NewState(conversation.TrimHistory(history, o.cfg.MaxHistory))
	fsm := newStateMachine(o.listeners...)

	o.record(metrics.MetricsEvent{
		Name:   metrics.EventRunStart,
		Time:   o.cfg.Now(),
		Tags:   map[string]string{metrics.TagRunID: runID},
		Fields: map[string]any{"history_turns": state.Len()},
	})
	o.log.Info("run_start", "run_id", runID, "input", redact.Text(input))

	appendTurn := func(t conversation.Turn) (conversation.Turn, bool) {
		stored := state.Append(t)
		if emit != nil && !emit(stored) {
			return stored, false
		}
		return stored, true
	}

	if _, ok := appendTurn(conversation.NewUserTurn(input)); !ok {
		return o.aborted(runID, state, fsm, errorsx.Wrap(ctx.Err(), errorsx.ReasonRunCanceled))
	}

	for iter := 0; ; iter++ {
		if iter >= o.cfg.MaxIterations {
			err := errorsx.Wrap(fmt.Errorf("%w after %d steps", ErrTurnLimit, iter), errorsx.ReasonTurnLimit)
			return o.aborted(runID, state, fsm, err)
		}
		if ctx.Err() != nil {
			return o.aborted(runID, state, fsm, errorsx.Wrap(ctx.Err(), errorsx.ReasonRunCanceled))
		}

		resp, err := llm.Retry(ctx, o.cfg.Retry, func(ctx context.Context) (llm.Response, error) {
			return o.adapter.Generate(ctx, llm.Context{
				Messages: o.wireMessages(state),
				Tools:    o.registry.Declarations(),
				Params:   o.cfg.Params,
			})
		})
		if err != nil {
			reason := errorsx.ReasonProviderCall
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = errorsx.ReasonRunCanceled
			}
			return o.aborted(runID, state, fsm, errorsx.Wrap(err, reason))
		}
		o.record(metrics.MetricsEvent{
			Name: metrics.EventReasoningDone,
			Time: o.cfg.Now(),
			Tags: map[string]string{metrics.TagRunID: runID, metrics.TagProvider: o.adapter.Name()},
			Fields: map[string]any{
				"tokens":     resp.Usage.TotalTokens,
				"tool_calls": len(resp.ToolCalls),
				"iteration":  iter,
			},
		})

		if !resp.Requested() {
			stored, ok := appendTurn(conversation.NewAssistantTurn(resp.Text))
			if !ok {
				return o.aborted(runID, state, fsm, errorsx.Wrap(ctx.Err(), errorsx.ReasonRunCanceled))
			}
			_ = fsm.Transition(StateAnswered, "final answer")
			o.record(metrics.MetricsEvent{
				Name:   metrics.EventRunDone,
				Time:   o.cfg.Now(),
				Tags:   map[string]string{metrics.TagRunID: runID},
				Fields: map[string]any{"iterations": iter + 1, "turns": state.Len()},
			})
			o.log.Info("run_done", "run_id", runID, "iterations", iter+1, "seq", stored.Seq)
			return &Result{RunID: runID, Turns: state.Turns(), Answer: resp.Text}
		}

		if err := fsm.Transition(StateTooling, "tool request"); err != nil {
			return o.aborted(runID, state, fsm, err)
		}
		callTurns := make([]conversation.Turn, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			t, ok := appendTurn(conversation.NewToolCallTurn(call.ID, call.Name, call.Arguments))
			if !ok {
				return o.aborted(runID, state, fsm, errorsx.Wrap(ctx.Err(), errorsx.ReasonRunCanceled))
			}
			o.record(metrics.MetricsEvent{
				Name: metrics.EventToolCall,
				Time: o.cfg.Now(),
				Tags: map[string]string{metrics.TagRunID: runID, metrics.TagToolName: call.Name},
			})
			callTurns = append(callTurns, t)
		}

		resultTurns, err := o.dispatcher.Dispatch(ctx, callTurns, runID)
		if err != nil {
			return o.aborted(runID, state, fsm, errorsx.Wrap(err, errorsx.ReasonRunCanceled))
		}
		for _, rt := range resultTurns {
			if _, ok := appendTurn(rt); !ok {
				return o.aborted(runID, state, fsm, errorsx.Wrap(ctx.Err(), errorsx.ReasonRunCanceled))
			}
		}
		if err := fsm.Transition(StateReasoning, "tool results appended"); err != nil {
			return o.aborted(runID, state, fsm, err)
		}
	}
}

// wireMessages renders the provider payload: the optional planning preamble
// followed by the transcript.
func (o *Orchestrator) wireMessages(state *conversation.State) []map[string]any {
	turns := state.Turns()
	msgs := make([]map[string]any, 0, len(turns)+1)
	if prompt := o.systemPrompt(); prompt != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": prompt})
	}
	return append(msgs, conversation.Messages(turns)...)
}

func (o *Orchestrator) systemPrompt() string {
	if !o.cfg.Plan && o.cfg.SystemPrompt == "" {
		return ""
	}
	var b strings.Builder
	if o.cfg.SystemPrompt != "" {
		b.WriteString(o.cfg.SystemPrompt)
	} else {
		b.WriteString("You are a general assistant. Answer the user's question, using tools when they help.")
	}
	if o.cfg.Plan {
		fmt.Fprintf(&b, "\n\nCurrent date: %s\n", o.cfg.Now().UTC().Format("2006-01-02"))
		if catalog := o.registry.Catalog(); catalog != "" {
			b.WriteString("Available tools:\n")
			b.WriteString(catalog)
		}
		b.WriteString("Plan your approach before answering. Think about which tools are needed and in what order.")
	}
	return b.String()
}

func (o *Orchestrator) aborted(runID string, state *conversation.State, fsm *stateMachine, err error) *Result {
	if !fsm.State().Terminal() {
		_ = fsm.Transition(StateAborted, err.Error())
	}
	o.record(metrics.MetricsEvent{
		Name:   metrics.EventRunAborted,
		Time:   o.cfg.Now(),
		Tags:   map[string]string{metrics.TagRunID: runID},
		Fields: map[string]any{"reason": string(errorsx.Reason(err))},
	})
	o.log.Warn("run_aborted", "run_id", runID, "reason", string(errorsx.Reason(err)), "error", err)
	return &Result{RunID: runID, Turns: state.Turns(), Aborted: true, Err: err}
}

func (o *Orchestrator) record(ev metrics.MetricsEvent) {
	if o.obs != nil {
		o.obs.RecordEvent(ev)
	}
}
