package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsflow/internal/resilience/retry"
)

func fastConfig() retry.Config {
	return retry.Config{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func TestWithBackoff_succeedsAfterRetry(t *testing.T) {
	calls := 0
	err := retry.WithBackoff(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return &retry.HTTPError{StatusCode: 503, Message: "unavailable"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("want success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}
}

func TestWithBackoff_nonRetryableAborts(t *testing.T) {
	calls := 0
	wantErr := &retry.HTTPError{StatusCode: 404, Message: "not found"}
	err := retry.WithBackoff(context.Background(), fastConfig(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) && err != wantErr {
		t.Fatalf("want terminal 404, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("404 must not be retried, got %d calls", calls)
	}
}

func TestWithBackoff_exhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry.WithBackoff(context.Background(), fastConfig(), func() error {
		calls++
		return &retry.HTTPError{StatusCode: 500, Message: "boom"}
	})
	if err == nil {
		t.Fatal("want error after exhausted attempts")
	}
	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"500", &retry.HTTPError{StatusCode: 500}, true},
		{"429", &retry.HTTPError{StatusCode: 429}, true},
		{"403 header rotation", &retry.HTTPError{StatusCode: 403}, true},
		{"404 terminal", &retry.HTTPError{StatusCode: 404}, false},
		{"400 terminal", &retry.HTTPError{StatusCode: 400}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v)=%v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
