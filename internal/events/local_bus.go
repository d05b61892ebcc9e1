package events

import (
	"context"
	"sync"
)

const defaultSubscriberBuffer = 64

// LocalBus is an in-process Bus for single-instance deployments and tests.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Envelope]struct{}
	buffer int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:   make(map[string]map[chan Envelope]struct{}),
		buffer: defaultSubscriberBuffer,
	}
}

func (b *LocalBus) Publish(_ context.Context, channel string, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		select {
		case ch <- env:
		default:
			// Subscriber is not keeping up; drop.
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ch := make(chan Envelope, b.buffer)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan Envelope]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return newSubscription(channel, ch, cancel), nil
}

// Subscribers reports how many live subscriptions a channel has.
func (b *LocalBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
