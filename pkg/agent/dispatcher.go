package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/sage/pkg/conversation"
	"github.com/harunnryd/sage/pkg/metrics"
	"github.com/harunnryd/sage/pkg/resilience"
	"github.com/harunnryd/sage/pkg/tools"
)

var ErrToolTimeout = errors.New("tool timeout")

type DispatchOptions struct {
	Concurrency  int
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// Dispatcher executes the tool calls of one reasoning step. Calls run
// concurrently up to Concurrency, but results always come back in request
// order so the transcript stays deterministic for the model.
type Dispatcher struct {
	registry *tools.Registry
	opts     DispatchOptions
	obs      metrics.Observer
	log      *slog.Logger
}

func NewDispatcher(registry *tools.Registry, opts DispatchOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 150 * time.Millisecond
	}
	return &Dispatcher{
		registry: registry,
		opts:     opts,
		log:      slog.Default(),
	}
}

func (d *Dispatcher) SetObserver(obs metrics.Observer) { d.obs = obs }

func (d *Dispatcher) SetLogger(log *slog.Logger) {
	if log != nil {
		d.log = log
	}
}

// Dispatch runs every call turn and returns one tool_result turn per call,
// index-aligned with the input. Handler failures, unknown tools, and
// argument mismatches become failed result turns, never errors: the model
// sees the failure text and can self-correct. The only error returned is
// context cancellation, in which case in-flight calls are abandoned and all
// results are discarded.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []conversation.Turn, runID string) ([]conversation.Turn, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	results := make([]conversation.Turn, len(calls))
	sem := make(chan struct{}, d.opts.Concurrency)
	done := make(chan struct{})

	go func() {
		defer close(done)
		inner := make(chan struct{}, len(calls))
		for i := range calls {
			go func(i int) {
				defer func() { inner <- struct{}{} }()
				sem <- struct{}{}
				defer func() { <-sem }()
				results[i] = d.exec(ctx, calls[i], runID)
			}(i)
		}
		for range calls {
			<-inner
		}
	}()

	select {
	case <-done:
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) exec(ctx context.Context, call conversation.Turn, runID string) conversation.Turn {
	started := time.Now()
	result := d.invoke(ctx, call)
	status := "ok"
	if result.Failed {
		status = string(result.Failure)
	}
	d.record(metrics.MetricsEvent{
		Name: metrics.EventToolResult,
		Time: time.Now(),
		Tags: map[string]string{
			metrics.TagRunID:    runID,
			metrics.TagToolName: call.ToolName,
		},
		Fields: map[string]any{
			"status":      status,
			"duration_ms": time.Since(started).Milliseconds(),
		},
	})
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, call conversation.Turn) conversation.Turn {
	handler, spec, err := d.registry.Resolve(call.ToolName)
	if err != nil {
		return conversation.NewFailedToolResultTurn(call.CallID, call.ToolName,
			failureText(conversation.FailureUnknownTool, err), conversation.FailureUnknownTool)
	}
	if err := tools.ValidateArgs(spec, call.Arguments); err != nil {
		return conversation.NewFailedToolResultTurn(call.CallID, call.ToolName,
			failureText(conversation.FailureInvalidArgs, err), conversation.FailureInvalidArgs)
	}
	out, err := d.callWithRetry(ctx, handler, call.Arguments)
	if err != nil {
		kind := conversation.FailureExecution
		if errors.Is(err, ErrToolTimeout) {
			kind = conversation.FailureTimeout
		}
		d.log.Warn("tool_failed", "tool_name", call.ToolName, "kind", string(kind), "error", err)
		return conversation.NewFailedToolResultTurn(call.CallID, call.ToolName, failureText(kind, err), kind)
	}
	return conversation.NewToolResultTurn(call.CallID, call.ToolName, out)
}

func (d *Dispatcher) callWithRetry(ctx context.Context, handler tools.Handler, args map[string]any) (string, error) {
	policy := resilience.RetryPolicy{MaxRetries: d.opts.Retries, Backoff: d.opts.RetryBackoff}
	var out string
	err := policy.Do(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := d.callWithTimeout(ctx, handler, args)
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (d *Dispatcher) callWithTimeout(ctx context.Context, handler tools.Handler, args map[string]any) (out string, err error) {
	callCtx := ctx
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("tool panic: %v", r)}
			}
		}()
		res, err := handler(callCtx, args)
		ch <- result{text: res, err: err}
	}()
	select {
	case out := <-ch:
		return out.text, out.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrToolTimeout
	}
}

func (d *Dispatcher) record(ev metrics.MetricsEvent) {
	if d.obs != nil {
		d.obs.RecordEvent(ev)
	}
}

func failureText(kind conversation.FailureKind, err error) string {
	return fmt.Sprintf("tool error (%s): %v", kind, err)
}
