// Package dispatcher publishes RunnerRequest envelopes onto the broker's
// durable output queue (spec §4.4), retrying transient publish failures with
// capped exponential backoff before giving up.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/unicon-platform/unicon-backend/internal/broker"
	"github.com/unicon-platform/unicon-backend/internal/core"
	"github.com/unicon-platform/unicon-backend/internal/corelog"
	"github.com/unicon-platform/unicon-backend/internal/model"
)

// Backoff tunes the dispatcher's publish retry policy (spec §4.4).
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultBackoff matches spec.md's dispatcher backoff: 100ms initial, x2
// each attempt, capped at 10s, 6 attempts total.
func DefaultBackoff() Backoff {
	return Backoff{InitialDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, MaxAttempts: 6}
}

// Dispatcher publishes RunnerRequest envelopes onto a broker's named queue.
type Dispatcher struct {
	Broker  broker.Broker
	Queue   string
	Backoff Backoff
	Log     corelog.Logger
	Metrics *Metrics
}

// New builds a Dispatcher. log and metrics may be nil (corelog.Default() /
// no metrics recorded, respectively).
func New(b broker.Broker, queue string, backoff Backoff, log corelog.Logger, metrics *Metrics) *Dispatcher {
	if log == nil {
		log = corelog.Default()
	}
	return &Dispatcher{Broker: b, Queue: queue, Backoff: backoff, Log: log, Metrics: metrics}
}

// Dispatch marshals req and publishes it to the queue, retrying on failure
// with exponential backoff and jitter (spec §4.4). Returns a
// core.Error{Kind: DispatchFailed} once attempts are exhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.RunnerRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return core.Wrap(core.DispatchFailed, "marshal runner request", err)
	}

	start := time.Now()
	delay := d.Backoff.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= d.Backoff.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.Wrap(core.DispatchFailed, "context cancelled before publish", err)
		}

		lastErr = d.Broker.PublishQueue(ctx, d.Queue, payload)
		if lastErr == nil {
			d.Metrics.observeOutcome("success")
			d.Metrics.observeLatencySeconds(time.Since(start).Seconds())
			return nil
		}

		d.Log.Warn("dispatcher: publish attempt %d/%d for submission %s failed: %v", attempt, d.Backoff.MaxAttempts, req.SubmissionID, lastErr)
		d.Metrics.observeOutcome("retry")

		if attempt == d.Backoff.MaxAttempts {
			break
		}

		jittered := withJitter(delay)
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return core.Wrap(core.DispatchFailed, "context cancelled during backoff", ctx.Err())
		}

		delay = time.Duration(math.Min(float64(delay)*2, float64(d.Backoff.MaxDelay)))
	}

	d.Metrics.observeOutcome("exhausted")
	return core.Wrap(core.DispatchFailed, fmt.Sprintf("submission %s: exhausted %d publish attempts", req.SubmissionID, d.Backoff.MaxAttempts), lastErr)
}

// withJitter adds +/-25% jitter to a delay, mirroring the teacher's own
// backoff jitter convention.
func withJitter(delay time.Duration) time.Duration {
	jitter := float64(delay) * 0.25 * (2*rand.Float64() - 1) //nolint:gosec // non-cryptographic jitter
	return delay + time.Duration(jitter)
}
