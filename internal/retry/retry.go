// Package retry implements the bounded exponential-backoff retry envelope
// and throttled progress reporting used around every graph-store call.
package retry

import (
	"context"
	"time"

	"github.com/citegraph/layout-engine/internal/breaker"
	"github.com/citegraph/layout-engine/pkg/errors"
	"github.com/citegraph/layout-engine/pkg/utils"
)

// Reconnector is invoked before a retry attempt that follows a transient
// store error, so the caller can discard and re-establish its connection.
type Reconnector func(ctx context.Context) error

// Envelope wraps an operation with bounded exponential-backoff retry and a
// circuit breaker. One Envelope belongs to exactly one worker: breaker and
// retry state are never shared across workers.
type Envelope struct {
	maxRetries   int
	baseDelaySec int
	breaker      *breaker.Breaker
	clock        utils.Clock
	logger       utils.Logger
	reconnect    Reconnector
}

// New creates a retry envelope. baseDelaySec is the retry_delay_sec
// configuration value; the wait after failed attempt i (0-indexed) is
// baseDelaySec * 2^i.
func New(maxRetries, baseDelaySec int, b *breaker.Breaker, clock utils.Clock, logger utils.Logger, reconnect Reconnector) *Envelope {
	if clock == nil {
		clock = utils.NewRealClock()
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Envelope{
		maxRetries:   maxRetries,
		baseDelaySec: baseDelaySec,
		breaker:      b,
		clock:        clock,
		logger:       logger,
		reconnect:    reconnect,
	}
}

// Do executes fn, retrying transient store errors up to maxRetries times
// with exponential backoff (baseDelaySec * 2^attempt), routed through the
// circuit breaker. Cancellation errors and circuit-open errors are never
// retried. op is a short label used in log lines only.
func (e *Envelope) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.CodeCancelled, "operation cancelled before attempt", err)
		}

		callErr := e.breaker.Run(func() error {
			return fn(ctx)
		})

		if callErr == nil {
			return nil
		}
		lastErr = callErr

		if errors.IsCircuitOpenError(callErr) || errors.IsCancelledError(callErr) {
			return callErr
		}
		if !errors.IsTransientStoreError(callErr) {
			return callErr
		}
		if attempt == e.maxRetries {
			break
		}

		wait := backoffDuration(e.baseDelaySec, attempt)
		e.logger.Warn("transient store error, retrying op=%s attempt=%d wait=%s err=%v", op, attempt+1, wait, callErr)

		if e.reconnect != nil {
			if rerr := e.reconnect(ctx); rerr != nil {
				e.logger.Warn("reconnect failed op=%s err=%v", op, rerr)
			}
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(errors.CodeCancelled, "operation cancelled during backoff", ctx.Err())
		case <-e.clock.After(wait):
		}
	}

	return errors.Wrap(errors.CodeDatabaseError, "operation failed after retries", lastErr)
}

// backoffDuration computes retry_delay * 2^attempt.
func backoffDuration(baseDelaySec, attempt int) time.Duration {
	base := time.Duration(baseDelaySec) * time.Second
	return base * time.Duration(1<<uint(attempt))
}
