package events

import (
	"context"
	"encoding/json"
	"fmt"

	"marketchat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus using Redis Pub/Sub so every API instance sees
// every room's events.
type RedisBus struct {
	client *redis.Client
	log    *logger.Logger
}

func NewRedisBus(client *redis.Client, l *logger.Logger) *RedisBus {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &RedisBus{client: client, log: l}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan Envelope, defaultSubscriberBuffer)
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warnf("dropping undecodable event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- env:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()
	return newSubscription(channel, out, cancel), nil
}
