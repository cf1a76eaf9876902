// Package workqueue bounds the parallelism of adapter operations against one
// distributor and contains their retry policy. Transient failures never
// escape the queue unless retries are exhausted; fatal failures surface
// immediately.
package workqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-extract-catalog/distributor"
)

// Queue wraps adapter calls with a concurrency limiter, a per-attempt
// timeout, and bounded retries with exponential backoff.
type Queue struct {
	sem        chan struct{}
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	backoffMax time.Duration
	metrics    *Metrics

	totalRetries int64
}

// New builds a queue. limit is the politeness bound toward one target site
// (default 3); timeout bounds each attempt, not the whole operation.
func New(limit int, timeout time.Duration, maxRetries int, backoff, backoffMax time.Duration, metrics *Metrics) *Queue {
	if limit <= 0 {
		limit = 3
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Queue{
		sem:        make(chan struct{}, limit),
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    backoff,
		backoffMax: backoffMax,
		metrics:    metrics,
	}
}

// Do runs fn under the concurrency limit, retrying transient failures up to
// the configured bound. After exhausting retries the last error is returned;
// fatal errors are returned without retrying.
func (q *Queue) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.sem }()

	q.metrics.IncOperation(operation)

	var lastErr error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&q.totalRetries, 1)
			q.metrics.IncRetries()
			slog.Debug("retrying operation",
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr),
			)
			if err := sleepCtx(ctx, q.backoffDelay(attempt)); err != nil {
				return lastErr
			}
		}

		err := q.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		q.metrics.IncError(distributor.ClassLabel(err))

		if ctx.Err() != nil {
			return err
		}
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

func (q *Queue) attempt(ctx context.Context, fn func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	start := time.Now()
	err := fn(attemptCtx)
	q.metrics.ObserveDuration(time.Since(start))

	// A per-attempt deadline trip reads as a navigation timeout unless the
	// caller itself was cancelled.
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return distributor.NavError{Err: err}
	}
	return err
}

// retryable reports whether the queue may re-run the operation. Only
// navigation-class failures (timeouts, resets, DNS) qualify; authentication
// and selector mismatches are fatal by design, and anything unclassified is
// surfaced rather than hammered against the portal.
func retryable(err error) bool {
	if distributor.Fatal(err) {
		return false
	}
	var nav distributor.NavError
	return errors.As(err, &nav)
}

func (q *Queue) backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := q.backoff * time.Duration(1<<(attempt-1))
	if q.backoffMax > 0 && delay > q.backoffMax {
		delay = q.backoffMax
	}
	return delay
}

// TotalRetries returns the number of retry attempts performed so far.
func (q *Queue) TotalRetries() int {
	return int(atomic.LoadInt64(&q.totalRetries))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
