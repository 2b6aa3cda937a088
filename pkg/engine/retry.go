package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/provider"
)

// Defaults for the bounded exponential backoff applied to transient
// provider errors.
const (
	defaultMaxAttempts       = 3
	defaultInitialDelay      = 500 * time.Millisecond
	defaultMaxDelay          = 10 * time.Second
	defaultBackoffMultiplier = 2.0
)

// RetryPolicy bounds how provider calls are retried. Only transient errors
// are retried; authorization and validation failures surface immediately.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns the policy used when the configuration does
// not tune retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       defaultMaxAttempts,
		InitialDelay:      defaultInitialDelay,
		MaxDelay:          defaultMaxDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
	}
}

// PolicyFromConfig builds a policy from the retry section of serverless.yml,
// falling back to defaults for unset fields.
func PolicyFromConfig(r config.Retry) RetryPolicy {
	p := DefaultRetryPolicy()
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelayMS > 0 {
		p.InitialDelay = time.Duration(r.InitialDelayMS) * time.Millisecond
	}
	if r.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(r.MaxDelayMS) * time.Millisecond
	}
	return p
}

// Do executes fn, retrying transient failures with exponential backoff and
// jitter. Non-retryable errors and context cancellation return immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function")
	}

	var lastErr error
	start := time.Now()
	maxAttempts := p.MaxAttempts + 1 // +1 for the initial attempt

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !provider.IsRetryable(err) {
			return err
		}

		if attempt >= p.MaxAttempts {
			break
		}

		if ctx.Err() != nil {
			return &RetryExhaustedError{
				Reason:        fmt.Sprintf("context cancelled: %v", ctx.Err()),
				Attempts:      attempt + 1,
				LastError:     lastErr,
				TotalDuration: time.Since(start),
			}
		}

		delay := p.calculateDelay(attempt)

		// Sleep with context awareness (using a timer to avoid leaks).
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return &RetryExhaustedError{
				Reason:        fmt.Sprintf("context cancelled: %v", ctx.Err()),
				Attempts:      attempt + 1,
				LastError:     lastErr,
				TotalDuration: time.Since(start),
			}
		}
	}

	return &RetryExhaustedError{
		Reason:        fmt.Sprintf("max attempts (%d) reached", maxAttempts),
		Attempts:      maxAttempts,
		LastError:     lastErr,
		TotalDuration: time.Since(start),
	}
}

// calculateDelay computes the next backoff delay with jitter.
func (p RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))

	// Guard against overflow/Inf/NaN from math.Pow
	if math.IsInf(delay, 0) || math.IsNaN(delay) {
		delay = float64(p.MaxDelay)
	}

	// ±25% jitter to avoid thundering herd against provider rate limits.
	jitter := delay * 0.25 * (rand.Float64()*2 - 1)
	delay += jitter

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// RetryExhaustedError is returned when retries are exhausted or the run is
// cancelled while waiting to retry.
type RetryExhaustedError struct {
	Reason        string
	Attempts      int
	LastError     error
	TotalDuration time.Duration
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted: %s after %d attempts (took %v): %v",
		e.Reason, e.Attempts, e.TotalDuration, e.LastError)
}

// Unwrap returns the last error for error chain unwrapping.
func (e *RetryExhaustedError) Unwrap() error {
	return e.LastError
}
