// Package listener reconciles RunnerResult envelopes arriving on the
// broker's fan-out exchange back onto pending TaskResults (spec §4.6).
package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"github.com/unicon-platform/unicon-backend/internal/broker"
	"github.com/unicon-platform/unicon-backend/internal/corelog"
	"github.com/unicon-platform/unicon-backend/internal/model"
	"github.com/unicon-platform/unicon-backend/internal/store"
)

// Listener subscribes to the runner result channel and reconciles each
// delivery against the Store.
type Listener struct {
	Broker  broker.Broker
	Channel string
	Store   store.Store
	Log     corelog.Logger
}

// New builds a Listener. log may be nil (falls back to corelog.Default()).
func New(b broker.Broker, channel string, st store.Store, log corelog.Logger) *Listener {
	if log == nil {
		log = corelog.Default()
	}
	return &Listener{Broker: b, Channel: channel, Store: st, Log: log}
}

// Run subscribes to the fan-out channel and processes deliveries until ctx
// is cancelled. A panic while processing one delivery is recovered and
// logged so it cannot take down the message loop (spec §9, mirroring the
// teacher's own SafeGo convention).
func (l *Listener) Run(ctx context.Context) error {
	deliveries, err := l.Broker.SubscribeFanout(ctx, l.Channel)
	if err != nil {
		return fmt.Errorf("listener: subscribe %s: %w", l.Channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			l.processSafely(ctx, delivery)
		}
	}
}

func (l *Listener) processSafely(ctx context.Context, delivery broker.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			l.Log.Error("listener: recovered panic processing delivery: %v", r)
		}
	}()
	l.process(ctx, delivery)
}

func (l *Listener) process(ctx context.Context, delivery broker.Delivery) {
	result, err := decodeResult(delivery.Payload)
	if err != nil {
		l.Log.Error("listener: could not decode runner result: %v", err)
		ack(delivery)
		return
	}

	pending, err := l.Store.FindPendingByCorrelation(ctx, result.SubmissionID)
	if err != nil {
		if err == store.ErrNotFound {
			l.Log.Warn("STALE_RESULT: no pending task result for correlation id %s", result.SubmissionID)
			ack(delivery)
			return
		}
		l.Log.Error("listener: lookup correlation %s: %v", result.SubmissionID, err)
		return
	}

	status := model.StatusSuccess
	var payload any = result.Result
	if result.Error != "" {
		status = model.StatusFail
		payload = result.Error
	}

	if err := l.Store.CompleteTaskResult(ctx, pending.ID, status, payload); err != nil {
		l.Log.Error("listener: complete task result %d: %v", pending.ID, err)
		return
	}

	// Ack only after the durable write succeeds, so a crash before the
	// write leaves the delivery available for redelivery (spec §4.6).
	ack(delivery)
}

// ack acknowledges a delivery that will never be retried: a successfully
// reconciled result, a stale result with no matching pending task, or a
// payload that could not be decoded at all. Only a transient lookup/write
// failure withholds ack, so the broker redelivers it.
func ack(delivery broker.Delivery) {
	if delivery.Ack != nil {
		delivery.Ack()
	}
}

// decodeResult parses a runner result payload, repairing near-miss JSON
// from the external runner before giving up (spec §4.6).
func decodeResult(payload []byte) (model.RunnerResult, error) {
	var result model.RunnerResult
	if err := json.Unmarshal(payload, &result); err == nil {
		return result, nil
	}

	repaired, err := jsonrepair.JSONRepair(string(payload))
	if err != nil {
		return model.RunnerResult{}, fmt.Errorf("listener: payload is not valid JSON and could not be repaired: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return model.RunnerResult{}, fmt.Errorf("listener: repaired payload still does not unmarshal: %w", err)
	}
	return result, nil
}
