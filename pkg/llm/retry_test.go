package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	var slept []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
	}
	calls := 0
	resp, err := Retry(context.Background(), cfg, func(ctx context.Context) (Response, error) {
		calls++
		if calls < 3 {
			return Response{}, errors.New("transient")
		}
		return Response{Text: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if resp.Text != "ok" || calls != 3 {
		t.Fatalf("expected success on attempt 3, got calls=%d resp=%+v", calls, resp)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(slept))
	}
	if slept[1] <= slept[0] {
		t.Fatalf("backoff must grow, got %v then %v", slept[0], slept[1])
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, Sleep: func(time.Duration) {}}
	calls := 0
	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (Response, error) {
		calls++
		return Response{}, errors.New("down")
	})
	if err == nil || calls != 2 {
		t.Fatalf("expected failure after 2 attempts, calls=%d err=%v", calls, err)
	}
}

func TestRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Retry(ctx, RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}}, func(ctx context.Context) (Response, error) {
		calls++
		return Response{}, errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("canceled retry must not call provider, calls=%d", calls)
	}
}

func TestRetryDoesNotRetryCanceledCalls(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}}
	calls := 0
	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (Response, error) {
		calls++
		return Response{}, context.Canceled
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single attempt for canceled call, calls=%d err=%v", calls, err)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	var slept []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    2 * time.Second,
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
	}
	_, _ = Retry(context.Background(), cfg, func(ctx context.Context) (Response, error) {
		return Response{}, errors.New("down")
	})
	for _, d := range slept {
		if d > 2*time.Second {
			t.Fatalf("delay exceeded cap: %v", d)
		}
	}
}
