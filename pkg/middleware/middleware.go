// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package middleware provides a chainable wrapper around Batch/Context calls
// (Submit, CheckStatus, Upload, Download, ReadFile, WriteFile), adding
// logging, metrics, and circuit-breaking the same way an HTTP RoundTripper
// chain wraps individual requests.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/Cloudac7/dpdispatcher/pkg/logging"
)

// Invoker performs one named Batch/Context operation.
type Invoker func(ctx context.Context) error

// Middleware wraps an Invoker with additional behavior.
type Middleware func(Invoker) Invoker

// Chain composes middlewares into a single one, applied outermost-first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Invoker) Invoker {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// WithTimeout bounds the call with timeout, unless ctx already has a deadline.
func WithTimeout(timeout time.Duration) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context) error {
			if _, hasDeadline := ctx.Deadline(); !hasDeadline && timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return next(ctx)
		}
	}
}

// WithLogging logs the start, duration, and outcome of each call under name.
func WithLogging(logger logging.Logger, name string) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context) error {
			start := time.Now()
			opLogger := logger.With("operation", name)
			opLogger.Debug("invoking batch operation")

			err := next(ctx)

			duration := time.Since(start)
			if err != nil {
				opLogger.Error("batch operation failed", "error", err, "duration_ms", duration.Milliseconds())
				return err
			}
			opLogger.Info("batch operation completed", "duration_ms", duration.Milliseconds())
			return nil
		}
	}
}

// ShouldRetryFunc determines if a call should be retried given its error and attempt.
type ShouldRetryFunc func(err error, attempt int) bool

// DefaultShouldRetry retries any non-nil, non-cancellation error.
func DefaultShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	return err != context.Canceled
}

// WithRetry makes up to maxAttempts calls in total (the first call included),
// with exponential backoff between them.
func WithRetry(maxAttempts int, shouldRetry ShouldRetryFunc) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context) error {
			var lastErr error
			for attempt := 0; attempt < maxAttempts; attempt++ {
				lastErr = next(ctx)
				if !shouldRetry(lastErr, attempt) {
					return lastErr
				}
				if attempt < maxAttempts-1 {
					select {
					case <-time.After(calculateBackoff(attempt)):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			return fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
		}
	}
}

func calculateBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	jitter := time.Duration(float64(base) * 0.1)
	return base + jitter
}

// MetricsCollector is the interface for collecting per-operation metrics.
type MetricsCollector interface {
	RecordRequest(operation string)
	RecordResponse(operation string, duration time.Duration)
	RecordError(operation string, err error)
}

// WithMetrics records request/response/error counters for each call.
func WithMetrics(collector MetricsCollector, name string) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context) error {
			start := time.Now()
			collector.RecordRequest(name)

			err := next(ctx)

			duration := time.Since(start)
			if err != nil {
				collector.RecordError(name, err)
			} else {
				collector.RecordResponse(name, duration)
			}
			return err
		}
	}
}

// WithCircuitBreaker short-circuits calls after threshold consecutive
// failures, until timeout has elapsed since the last failure.
func WithCircuitBreaker(threshold int, timeout time.Duration) Middleware {
	breaker := &circuitBreaker{threshold: threshold, timeout: timeout}

	return func(next Invoker) Invoker {
		return func(ctx context.Context) error {
			if !breaker.Allow() {
				return fmt.Errorf("circuit breaker is open")
			}

			err := next(ctx)
			if err != nil {
				breaker.RecordFailure()
			} else {
				breaker.RecordSuccess()
			}
			return err
		}
	}
}

type circuitBreaker struct {
	threshold int
	timeout   time.Duration
	failures  int
	lastFail  time.Time
}

func (cb *circuitBreaker) Allow() bool {
	if cb.failures < cb.threshold {
		return true
	}
	return time.Since(cb.lastFail) > cb.timeout
}

func (cb *circuitBreaker) RecordFailure() {
	cb.failures++
	cb.lastFail = time.Now()
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.failures = 0
}
