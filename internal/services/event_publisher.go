package services

import (
	"context"

	"marketchat/internal/events"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

// EventPublisher pushes domain events onto the realtime bus. Publishing is
// best effort: the write has already been committed, so a failure is logged
// and clients catch up on their next history load.
type EventPublisher struct {
	bus events.Bus
	log *logger.Logger
}

func NewEventPublisher(bus events.Bus, l *logger.Logger) *EventPublisher {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &EventPublisher{bus: bus, log: l}
}

func (p *EventPublisher) publish(ctx context.Context, channel, eventType, aggregateType string, aggregateID uuid.UUID, payload any) {
	if p == nil || p.bus == nil {
		return
	}
	env, err := events.NewEnvelope(eventType, aggregateType, aggregateID.String(), payload)
	if err != nil {
		p.log.Errorf("encode %s event: %v", eventType, err)
		return
	}
	if err := p.bus.Publish(ctx, channel, env); err != nil {
		p.log.Warnf("publish %s to %s: %v", eventType, channel, err)
	}
}
