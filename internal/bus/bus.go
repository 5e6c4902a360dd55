package bus

import (
	"context"
	"log/slog"
	"sync"
)

const inboundBuffer = 256

// MessageBus is the in-process event fabric: a buffered inbound queue
// consumed by the dialogue runtime, plus a fan-out event broadcast for ops
// clients. Explicitly constructed and injected, never a singleton.
type MessageBus struct {
	inbound chan InboundEvent

	mu          sync.RWMutex
	subscribers map[string]EventHandler
	closed      bool
}

// NewMessageBus creates an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundEvent, inboundBuffer),
		subscribers: make(map[string]EventHandler),
	}
}

// PublishInbound enqueues an inbound event. A full queue drops the event
// with a log line rather than blocking the channel adapter's poll loop.
func (b *MessageBus) PublishInbound(ev InboundEvent) {
	select {
	case b.inbound <- ev:
	default:
		slog.Warn("bus: inbound queue full, dropping event",
			"channel", ev.Channel, "address", ev.Address, "message_id", ev.MessageID)
	}
}

// ConsumeInbound blocks until an event arrives or ctx is cancelled.
// The second result is false on shutdown.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case <-ctx.Done():
		return InboundEvent{}, false
	case ev, ok := <-b.inbound:
		return ev, ok
	}
}

// Subscribe registers an event handler under id, replacing any previous
// handler with the same id.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a handler. Unknown ids are a no-op.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast delivers an event to every subscriber. Handlers run inline;
// they must not block.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
