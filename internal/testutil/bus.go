package testutil

import (
	"context"
	"sync"

	"github.com/perquyk/snutz/pkg/plugin"
)

// Compile-time interface check.
var _ plugin.Bus = (*MockBus)(nil)

// MockBus records published events for assertion; subscriptions are no-ops.
type MockBus struct {
	mu     sync.Mutex
	events []plugin.Event
}

// NewMockBus returns an empty MockBus.
func NewMockBus() *MockBus {
	return &MockBus{}
}

func (b *MockBus) record(event plugin.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Publish records the event.
func (b *MockBus) Publish(_ context.Context, event plugin.Event) error {
	b.record(event)
	return nil
}

// PublishAsync records the event immediately; there is no goroutine.
func (b *MockBus) PublishAsync(_ context.Context, event plugin.Event) {
	b.record(event)
}

// Subscribe is a no-op that returns a no-op unsubscribe function.
func (b *MockBus) Subscribe(_ string, _ plugin.EventHandler) func() {
	return func() {}
}

// SubscribeAll is a no-op that returns a no-op unsubscribe function.
func (b *MockBus) SubscribeAll(_ plugin.EventHandler) func() {
	return func() {}
}

// Events returns a copy of everything published so far.
func (b *MockBus) Events() []plugin.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]plugin.Event, len(b.events))
	copy(out, b.events)
	return out
}

// EventsFor returns the recorded events with the given topic.
func (b *MockBus) EventsFor(topic string) []plugin.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []plugin.Event
	for _, e := range b.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards the recorded events.
func (b *MockBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
