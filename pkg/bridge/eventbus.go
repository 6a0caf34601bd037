package bridge

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives progress events published on a channel.
type Handler func(ProgressEvent)

// EventBus is a registry of named channels with synchronous,
// best-effort fan-out. A panicking subscriber never blocks delivery
// to the others and never reaches the publisher.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
	logger *zap.Logger
}

// Subscription is the handle returned by Subscribe; disposing it
// removes the listener.
type Subscription struct {
	bus     *EventBus
	channel string
	id      uint64
}

// NewEventBus creates an empty event bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[string]map[uint64]Handler),
		logger: logger,
	}
}

// Subscribe registers a handler on a channel and returns its
// subscription handle.
func (b *EventBus) Subscribe(channel string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if b.subs[channel] == nil {
		b.subs[channel] = make(map[uint64]Handler)
	}
	b.subs[channel][id] = handler

	return &Subscription{bus: b, channel: channel, id: id}
}

// Unsubscribe removes the handler. Calling it on an already removed
// subscription is a no-op.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if handlers, ok := s.bus.subs[s.channel]; ok {
		delete(handlers, s.id)
	}
}

// Publish dispatches the event synchronously to every current
// subscriber of the channel.
func (b *EventBus) Publish(channel string, event ProgressEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[channel]))
	for _, h := range b.subs[channel] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(channel, handler, event)
	}
}

func (b *EventBus) dispatch(channel string, handler Handler, event ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("channel", channel),
				zap.String("tracking_id", event.TrackingID),
				zap.Any("panic", r))
		}
	}()
	handler(event)
}
