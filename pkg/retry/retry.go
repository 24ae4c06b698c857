package retry

import (
	"context"
	"fmt"
	"time"

	errs "custsync/pkg/errors"
	"custsync/pkg/logger"
)

// Operation is a single attempt; it receives the caller's context
type Operation func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.NewNopLogger(),
	}
}

// DefaultRetryIf retries only errors classified as transient fetch failures.
// Cancellation and unclassified errors are returned immediately.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	return errs.IsRetryable(errs.KindOf(err))
}

// Do executes op until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is done. The last attempt's error stays in the chain.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry cancelled: %w", err)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
		}

		delay := time.Duration(0)
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg *Config) (T, error) {
	var result T
	err := Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, cfg)
	return result, err
}
