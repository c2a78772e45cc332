package clients

import (
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/KashirApp/Kashir-sub002/pkg/logging"
)

// QueryExecutorConfig configures retry behavior for network queries
type QueryExecutorConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// ShouldRetry overrides the default retry predicate
	ShouldRetry func(err error) bool

	// Logger for per-attempt debugging
	Logger logging.Logger
}

// DefaultQueryExecutorConfig returns sensible defaults for relay queries
func DefaultQueryExecutorConfig() QueryExecutorConfig {
	return QueryExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// NewQueryRetryPolicy creates a retry policy with exponential backoff for
// network queries
func NewQueryRetryPolicy[T any](cfg QueryExecutorConfig) retrypolicy.RetryPolicy[T] {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	builder := retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		HandleIf(func(_ T, err error) bool {
			return shouldRetry(err)
		})

	if cfg.Logger != nil {
		builder = builder.OnRetry(func(event failsafe.ExecutionEvent[T]) {
			cfg.Logger.WithFields(logging.Fields{
				"attempt": event.Attempts(),
				"error":   event.LastError(),
			}).Debug("Retrying query")
		})
	}

	return builder.Build()
}

// NewQueryExecutor creates a failsafe executor for network queries
func NewQueryExecutor[T any](cfg QueryExecutorConfig) failsafe.Executor[T] {
	return failsafe.With(NewQueryRetryPolicy[T](cfg))
}
