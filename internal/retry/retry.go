// Package retry wraps an operation in an exponential backoff policy. It is an
// outer policy: callers opt in by passing a Config with MaxRetries > 0.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Config holds retry configuration. The zero value runs the operation once.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultConfig returns the policy used when retries are switched on without
// an explicit delay.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  5 * time.Second,
	}
}

// StatusError reports an HTTP response that was not 200 OK.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// WithBackoff executes operation, retrying retryable failures with
// exponential backoff and jitter until MaxRetries is exhausted or ctx ends.
func WithBackoff(ctx context.Context, config Config, operation func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		if config.MaxRetries <= 0 {
			return err
		}
		// Cancellation of the caller's context is final; a timeout inside
		// the operation is not.
		if ctx.Err() != nil {
			return err
		}

		if !IsRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt >= config.MaxRetries {
			return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, err)
		}

		delay := config.BaseDelay * time.Duration(1<<attempt)
		if config.BaseDelay > 0 {
			delay += rand.N(config.BaseDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// IsRetryable reports whether err is worth another attempt: network
// failures including client timeouts, 5xx responses and 429 rate limiting.
// Cancellation, a bare context deadline and other HTTP statuses are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return HTTPStatusRetryable(statusErr.Code)
	}

	// http.Client timeouts also match context.DeadlineExceeded, so the
	// net.Error check has to come first.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// HTTPStatusRetryable checks if an HTTP status code is retryable
func HTTPStatusRetryable(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
