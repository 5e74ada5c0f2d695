// Package retry provides bounded retry loops with pluggable backoff
// strategies. All waits go through an injectable clock so timer-driven
// behavior stays testable.
package retry

import (
	"context"
	"time"
)

// Do runs the operation, retrying on failure
// Returns the aggregated error if all attempts fail
func Do(ctx context.Context, operation func() error, opts ...Option) error {
	_, err := DoWithData(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, opts...)
	return err
}

// DoWithData runs the operation and returns its data, retrying on failure
func DoWithData[T any](ctx context.Context, operation func() (T, error), opts ...Option) (T, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var result T
	var errs []error

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var err error
		if cfg.timeout > 0 {
			opCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
			result, err = executeWithContext(opCtx, operation)
			cancel()
		} else {
			result, err = operation()
		}

		if err == nil {
			return result, nil
		}
		errs = append(errs, err)

		if !cfg.condition(err) {
			return result, &MultiError{Errors: errs, Attempts: attempt}
		}
		if attempt == cfg.maxAttempts {
			return result, &MultiError{Errors: errs, Attempts: attempt}
		}

		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}

		backoff := cfg.backoff.Next(attempt)

		// stop early when the remaining deadline cannot cover the wait
		if deadline, ok := ctx.Deadline(); ok {
			if time.Until(deadline) < backoff {
				errs = append(errs, context.DeadlineExceeded)
				return result, &MultiError{Errors: errs, Attempts: attempt}
			}
		}

		select {
		case <-cfg.clock.After(backoff):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	return result, &MultiError{Errors: errs, Attempts: cfg.maxAttempts}
}

// executeWithContext runs the operation under a timeout context
func executeWithContext[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	type result struct {
		data T
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		data, err := operation()
		ch <- result{data: data, err: err}
	}()

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
