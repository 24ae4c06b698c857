// Package retry runs an operation with backoff until it succeeds, fails with
// a non-retryable error, or runs out of attempts.
//
// By default only errors classified as transient fetch failures are retried:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		page, err = client.fetch(ctx, req)
//		return err
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ExponentialBackoff{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2},
//	})
package retry
