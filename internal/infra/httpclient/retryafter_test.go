package httpclient

import (
	"errors"
	"testing"
	"time"

	"newsflow/internal/resilience/retry"
)

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("120"); got != 2*time.Minute {
		t.Fatalf("seconds form: %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Fatalf("absent header: %v", got)
	}
	if got := parseRetryAfter("not-a-date"); got != 0 {
		t.Fatalf("junk header: %v", got)
	}
	if got := parseRetryAfter("-5"); got != 0 {
		t.Fatalf("negative seconds: %v", got)
	}

	// HTTP-date form: a point one minute ahead yields roughly that delay.
	future := time.Now().Add(time.Minute).UTC().Format(time.RFC1123)
	got := parseRetryAfter(future)
	if got < 50*time.Second || got > 70*time.Second {
		t.Fatalf("http-date form: %v", got)
	}
}

func TestClassify_rateLimitedHonorsRetryAfter(t *testing.T) {
	c := New(DefaultConfig())

	wrapped := &tooManyRequestsError{
		inner:      &retry.HTTPError{StatusCode: 429, Message: "https://api.ex.com"},
		retryAfter: 90 * time.Second,
	}
	err := c.classify(wrapped, "https://api.ex.com")

	var rateErr *RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("want RateLimitedError, got %v", err)
	}
	if rateErr.RetryAfter != 90*time.Second {
		t.Fatalf("Retry-After hint lost: %v", rateErr.RetryAfter)
	}
}

func TestClassify_rateLimitedDefaultsWithoutHeader(t *testing.T) {
	c := New(DefaultConfig())

	wrapped := &tooManyRequestsError{
		inner: &retry.HTTPError{StatusCode: 429, Message: "https://api.ex.com"},
	}
	err := c.classify(wrapped, "https://api.ex.com")

	var rateErr *RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("want RateLimitedError, got %v", err)
	}
	if rateErr.RetryAfter != defaultRetryAfter {
		t.Fatalf("want %v fallback, got %v", defaultRetryAfter, rateErr.RetryAfter)
	}
}

func TestTooManyRequestsError_staysRetryable(t *testing.T) {
	wrapped := &tooManyRequestsError{
		inner:      &retry.HTTPError{StatusCode: 429, Message: "x"},
		retryAfter: time.Second,
	}
	if !retry.IsRetryable(wrapped) {
		t.Fatal("429 must stay retryable through the wrapper")
	}
}
