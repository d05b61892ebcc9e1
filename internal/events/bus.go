package events

import "context"

// Bus fans envelopes out to every live subscriber of a channel.
type Bus interface {
	Publish(ctx context.Context, channel string, env Envelope) error
	// Subscribe returns a stream that ends when ctx is cancelled or the
	// subscription is closed. Subscribing again yields a fresh stream.
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
}

type Subscription struct {
	Channel string
	events  <-chan Envelope
	cancel  context.CancelFunc
}

func newSubscription(channel string, events <-chan Envelope, cancel context.CancelFunc) *Subscription {
	return &Subscription{Channel: channel, events: events, cancel: cancel}
}

// Events is closed once the subscription is torn down.
func (s *Subscription) Events() <-chan Envelope {
	return s.events
}

func (s *Subscription) Close() {
	s.cancel()
}
