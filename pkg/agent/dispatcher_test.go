package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/harunnryd/sage/pkg/conversation"
	"github.com/harunnryd/sage/pkg/tools"
)

func sleepyRegistry(t *testing.T, delays map[string]time.Duration) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	for name, delay := range delays {
		name, delay := name, delay
		err := reg.Register(tools.Spec{
			Name:        name,
			Description: name,
			Params:      []tools.Param{{Name: "q", Type: tools.TypeString}},
		}, func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return "result:" + name, nil
		})
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return reg
}

func TestDispatchKeepsRequestOrder(t *testing.T) {
	// Completion order is deliberately the reverse of request order.
	reg := sleepyRegistry(t, map[string]time.Duration{
		"slow":   80 * time.Millisecond,
		"medium": 40 * time.Millisecond,
		"fast":   5 * time.Millisecond,
	})
	d := NewDispatcher(reg, DispatchOptions{Concurrency: 3})

	calls := []conversation.Turn{
		conversation.NewToolCallTurn("call_1", "slow", nil),
		conversation.NewToolCallTurn("call_2", "medium", nil),
		conversation.NewToolCallTurn("call_3", "fast", nil),
	}
	results, err := d.Dispatch(context.Background(), calls, "run-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"call_1", "call_2", "call_3"} {
		if results[i].CallID != want {
			t.Fatalf("result %d: expected %s, got %s", i, want, results[i].CallID)
		}
	}
	if results[0].Content != "result:slow" {
		t.Fatalf("unexpected content %q", results[0].Content)
	}
}

func TestDispatchUnknownToolBecomesFailureTurn(t *testing.T) {
	reg := tools.NewRegistry()
	d := NewDispatcher(reg, DispatchOptions{})
	calls := []conversation.Turn{conversation.NewToolCallTurn("call_1", "nope", nil)}
	results, err := d.Dispatch(context.Background(), calls, "run-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r := results[0]
	if !r.Failed || r.Failure != conversation.FailureUnknownTool {
		t.Fatalf("expected unknown-tool failure, got %#v", r)
	}
	if r.CallID != "call_1" {
		t.Fatalf("failure turn must keep the call id, got %q", r.CallID)
	}
}

func TestDispatchInvalidArgumentsNeverReachHandler(t *testing.T) {
	reg := tools.NewRegistry()
	var invoked bool
	err := reg.Register(tools.Spec{
		Name:   "echo",
		Params: []tools.Param{{Name: "text", Type: tools.TypeString, Required: true}},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		invoked = true
		return "", nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	d := NewDispatcher(reg, DispatchOptions{})
	calls := []conversation.Turn{
		conversation.NewToolCallTurn("call_1", "echo", map[string]any{"text": 42}),
	}
	results, err := d.Dispatch(context.Background(), calls, "run-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if invoked {
		t.Fatalf("handler must not run on invalid arguments")
	}
	if results[0].Failure != conversation.FailureInvalidArgs {
		t.Fatalf("expected invalid-args failure, got %#v", results[0])
	}
}

func TestDispatchCapturesHandlerErrorAndPanic(t *testing.T) {
	reg := tools.NewRegistry()
	if err := reg.Register(tools.Spec{Name: "boom"}, func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("kaput")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(tools.Spec{Name: "panic"}, func(ctx context.Context, args map[string]any) (string, error) {
		panic("unexpected")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	d := NewDispatcher(reg, DispatchOptions{})
	calls := []conversation.Turn{
		conversation.NewToolCallTurn("call_1", "boom", nil),
		conversation.NewToolCallTurn("call_2", "panic", nil),
	}
	results, err := d.Dispatch(context.Background(), calls, "run-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for i, r := range results {
		if !r.Failed || r.Failure != conversation.FailureExecution {
			t.Fatalf("result %d: expected execution failure, got %#v", i, r)
		}
	}
}

func TestDispatchTimeout(t *testing.T) {
	reg := sleepyRegistry(t, map[string]time.Duration{"slow": 200 * time.Millisecond})
	d := NewDispatcher(reg, DispatchOptions{Timeout: 20 * time.Millisecond})
	calls := []conversation.Turn{conversation.NewToolCallTurn("call_1", "slow", nil)}
	results, err := d.Dispatch(context.Background(), calls, "run-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if results[0].Failure != conversation.FailureTimeout {
		t.Fatalf("expected timeout failure, got %#v", results[0])
	}
}

func TestDispatchCancellationDiscardsResults(t *testing.T) {
	reg := sleepyRegistry(t, map[string]time.Duration{"slow": 150 * time.Millisecond})
	d := NewDispatcher(reg, DispatchOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	calls := []conversation.Turn{conversation.NewToolCallTurn("call_1", "slow", nil)}
	results, err := d.Dispatch(ctx, calls, "run-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected results discarded on cancel, got %#v", results)
	}
}

func TestDispatchManyOrderings(t *testing.T) {
	// Shuffle completion times across several rounds; request order must win
	// every time.
	for round := 0; round < 5; round++ {
		delays := map[string]time.Duration{}
		var calls []conversation.Turn
		for i := 0; i < 4; i++ {
			name := fmt.Sprintf("tool%d", i)
			delays[name] = time.Duration((round*7+i*13)%40) * time.Millisecond
		}
		reg := sleepyRegistry(t, delays)
		for i := 0; i < 4; i++ {
			calls = append(calls, conversation.NewToolCallTurn(fmt.Sprintf("call_%d", i), fmt.Sprintf("tool%d", i), nil))
		}
		d := NewDispatcher(reg, DispatchOptions{Concurrency: 4})
		results, err := d.Dispatch(context.Background(), calls, "run-1")
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		for i, r := range results {
			if want := fmt.Sprintf("call_%d", i); r.CallID != want {
				t.Fatalf("round %d: result %d has call id %s, want %s", round, i, r.CallID, want)
			}
		}
	}
}
