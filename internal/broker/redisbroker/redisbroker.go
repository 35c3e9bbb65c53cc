// Package redisbroker implements internal/broker.Broker on Redis: RPUSH/BLPOP
// for the durable output queue, PUBLISH/SUBSCRIBE for the fan-out exchange.
// The original evaluation core used RabbitMQ/aio_pika for both surfaces; the
// teacher stack this module is grounded on offers Redis instead, which maps
// onto the same two semantics (a work queue and a pub/sub fanout)
// (substitution noted in SPEC_FULL.md §4.8). Message acknowledgement is not
// carried over: Redis pub/sub has no acks, so Delivery.Ack is a no-op and a
// result that is never acknowledged is not redelivered.
package redisbroker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unicon-platform/unicon-backend/internal/broker"
	"github.com/unicon-platform/unicon-backend/internal/corelog"
)

// Options configures a Broker's Redis connection.
type Options struct {
	Addr         string
	Password     string
	DB           int
	ReconnectCap time.Duration
	Logger       corelog.Logger
}

// Broker implements broker.Broker on top of a single Redis connection.
type Broker struct {
	client       *redis.Client
	reconnectCap time.Duration
	log          corelog.Logger
}

// New builds a Broker from Options, applying corelog/config defaults for
// anything left unset.
func New(opts Options) *Broker {
	if opts.ReconnectCap <= 0 {
		opts.ReconnectCap = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = corelog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Broker{client: client, reconnectCap: opts.ReconnectCap, log: opts.Logger}
}

// NewFromClient wraps an already-constructed *redis.Client, the seam
// internal/broker tests use with miniredis.
func NewFromClient(client *redis.Client, reconnectCap time.Duration, log corelog.Logger) *Broker {
	if log == nil {
		log = corelog.Default()
	}
	return &Broker{client: client, reconnectCap: reconnectCap, log: log}
}

// PublishQueue RPUSHes payload onto the named list. internal/dispatcher wraps
// this call with its own retry/backoff policy (spec §4.4); this method
// itself makes a single attempt.
func (b *Broker) PublishQueue(ctx context.Context, queue string, payload []byte) error {
	if err := b.client.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("redisbroker: rpush %s: %w", queue, err)
	}
	return nil
}

// SubscribeFanout subscribes to a Redis pub/sub channel and relays every
// message as a broker.Delivery until ctx is cancelled. Redis PUBLISH has no
// delivery guarantee of its own; Ack is a no-op here because the listener's
// durability comes from its store write, not from the broker (spec §4.6).
func (b *Broker) SubscribeFanout(ctx context.Context, channel string) (<-chan broker.Delivery, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("redisbroker: subscribe %s: %w", channel, err)
	}

	out := make(chan broker.Delivery)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					b.reconnectFanout(ctx, channel, out)
					return
				}
				select {
				case out <- broker.Delivery{Payload: []byte(msg.Payload), Ack: func() {}}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// reconnectFanout resubscribes with capped exponential backoff when the
// underlying pub/sub connection drops, logging each attempt (spec §6).
func (b *Broker) reconnectFanout(ctx context.Context, channel string, out chan<- broker.Delivery) {
	delay := 100 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		pubsub := b.client.Subscribe(ctx, channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			b.log.Warn("redisbroker: reconnect to %s failed: %v", channel, err)
			delay *= 2
			if delay > b.reconnectCap {
				delay = b.reconnectCap
			}
			continue
		}
		b.log.Info("redisbroker: reconnected to %s", channel)
		delay = 100 * time.Millisecond

		disconnected := b.drainUntilClosed(ctx, pubsub, out)
		if !disconnected {
			return
		}
	}
}

// drainUntilClosed relays messages from pubsub to out until ctx is
// cancelled (returns false) or the underlying connection drops (returns
// true, so the caller resubscribes).
func (b *Broker) drainUntilClosed(ctx context.Context, pubsub *redis.PubSub, out chan<- broker.Delivery) bool {
	defer pubsub.Close()
	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-msgs:
			if !ok {
				return true
			}
			select {
			case out <- broker.Delivery{Payload: []byte(msg.Payload), Ack: func() {}}:
			case <-ctx.Done():
				return false
			}
		}
	}
}

// Close releases the underlying Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}
