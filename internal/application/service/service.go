package service

import (
	"context"

	"github.com/garyjia/inspector-vouchers/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EventPublisher receives events after the change that raised them has committed
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

type nopPublisher struct{}

func (nopPublisher) DispatchAsync(context.Context, *event.Event) {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
