package testutil

import (
	"context"
	"sync"

	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

var _ plugin.EventBus = (*MockBus)(nil)

// MockBus records published events instead of delivering them. Publish and
// PublishAsync both record synchronously so tests can assert right after a
// handler returns.
type MockBus struct {
	mu     sync.Mutex
	events []plugin.Event
}

func NewMockBus() *MockBus {
	return &MockBus{}
}

func (b *MockBus) Publish(_ context.Context, event plugin.Event) error {
	b.record(event)
	return nil
}

func (b *MockBus) PublishAsync(_ context.Context, event plugin.Event) {
	b.record(event)
}

func (b *MockBus) Subscribe(string, plugin.EventHandler) func() { return func() {} }

func (b *MockBus) SubscribeAll(plugin.EventHandler) func() { return func() {} }

func (b *MockBus) record(e plugin.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Events returns a copy of everything published so far.
func (b *MockBus) Events() []plugin.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]plugin.Event(nil), b.events...)
}

// Topics returns the topic of every recorded event, in publish order.
func (b *MockBus) Topics() []string {
	events := b.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Topic
	}
	return out
}

// Changes returns the models.Change payloads recorded for topic, or for
// every topic when topic is empty.
func (b *MockBus) Changes(topic string) []models.Change {
	var out []models.Change
	for _, e := range b.Events() {
		if topic != "" && e.Topic != topic {
			continue
		}
		if c, ok := e.Payload.(models.Change); ok {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets all recorded events.
func (b *MockBus) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
