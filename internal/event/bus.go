// Package event provides the in-process publish/subscribe bus used by server
// modules to react to each other's state changes without direct coupling.
package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/plugin"
)

// Compile-time interface guard.
var _ plugin.Bus = (*Bus)(nil)

// Bus is a synchronous in-process event bus. Handlers run on the publisher's
// goroutine in subscription order; a slow handler delays the publisher.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]plugin.EventHandler
	all      map[int]plugin.EventHandler
	logger   *zap.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string]map[int]plugin.EventHandler),
		all:      make(map[int]plugin.EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for events on the given topic. The returned
// function removes the subscription.
func (b *Bus) Subscribe(topic string, h plugin.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]plugin.EventHandler)
	}
	b.handlers[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}
}

// SubscribeAll registers a handler for every event regardless of topic.
func (b *Bus) SubscribeAll(h plugin.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers the event to all matching handlers synchronously.
// A handler panic is recovered and logged so one subscriber cannot take
// down the publisher.
func (b *Bus) Publish(ctx context.Context, e plugin.Event) error {
	b.mu.RLock()
	topicHandlers := make([]plugin.EventHandler, 0, len(b.handlers[e.Topic])+len(b.all))
	for _, h := range b.handlers[e.Topic] {
		topicHandlers = append(topicHandlers, h)
	}
	for _, h := range b.all {
		topicHandlers = append(topicHandlers, h)
	}
	b.mu.RUnlock()

	for _, h := range topicHandlers {
		b.deliver(ctx, e, h)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, e plugin.Event, h plugin.EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", e.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}

// PublishAsync delivers the event on a new goroutine and returns immediately.
func (b *Bus) PublishAsync(ctx context.Context, e plugin.Event) {
	go func() {
		_ = b.Publish(ctx, e)
	}()
}
