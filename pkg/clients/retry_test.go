package clients

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

func TestNewQueryRetryPolicy_NormalizesConfigToBoundRetries(t *testing.T) {
	cfg := QueryExecutorConfig{
		MaxRetries: -3,
		BaseDelay:  0,
		MaxDelay:   0,
	}
	policy := NewQueryRetryPolicy[int](cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, NewTransportError("dial", errors.New("network partition"))
	})
	if err == nil {
		t.Fatal("expected query to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected bounded single attempt with negative retries, got %d", got)
	}
}

func TestNewQueryRetryPolicy_RetriesUpToConfiguredLimit(t *testing.T) {
	cfg := QueryExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}
	policy := NewQueryRetryPolicy[string](cfg)

	var attempts int32
	got, err := failsafe.With(policy).Get(func() (string, error) {
		count := atomic.AddInt32(&attempts, 1)
		if count < 3 {
			return "", NewTransportError("read", errors.New("connection reset"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestNewQueryRetryPolicy_DoesNotRetryNotFound(t *testing.T) {
	cfg := QueryExecutorConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}
	policy := NewQueryRetryPolicy[int](cfg)

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Fatalf("expected single attempt for NotFound, got %d", n)
	}
}

func TestNewQueryExecutor_AbortsOnContextCancel(t *testing.T) {
	cfg := QueryExecutorConfig{
		MaxRetries: 10,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
	}
	executor := NewQueryExecutor[int](cfg)

	ctx, cancel := context.WithCancel(context.Background())
	var attempts int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := executor.WithContext(ctx).Get(func() (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, NewTransportError("read", errors.New("slow relay"))
	})
	if err == nil {
		t.Fatal("expected failure after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("executor kept retrying after cancel, ran for %v", elapsed)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, false},
		{"wrapped not found", errors.Join(errors.New("outer"), ErrNotFound), false},
		{"transport", NewTransportError("dial", errors.New("refused")), true},
		{"protocol", NewProtocolError("req", "unexpected frame %q", "AUTH"), true},
		{"plain", errors.New("something else"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
