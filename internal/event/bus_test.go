package event

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/aims/pkg/models"
	"github.com/HerbHall/aims/pkg/plugin"
)

func TestPublishDeliversToTopicThenWildcard(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var order []string

	bus.SubscribeAll(func(_ context.Context, e plugin.Event) { order = append(order, "all:"+e.Topic) })
	bus.Subscribe("inventory.device.created", func(_ context.Context, e plugin.Event) {
		c := e.Payload.(models.Change)
		order = append(order, "topic:"+c.ResourceID)
	})

	ctx := context.Background()
	if err := bus.Publish(ctx, plugin.Event{
		Topic:   "inventory.device.created",
		Payload: models.Change{Action: "create", ResourceID: "LT-001"},
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := bus.Publish(ctx, plugin.Event{Topic: "directory.client.changed"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	want := []string{"topic:LT-001", "all:inventory.device.created", "all:directory.client.changed"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("delivery order = %v, want %v", order, want)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var topic, all int32

	unsubTopic := bus.Subscribe("settings.changed", func(context.Context, plugin.Event) { atomic.AddInt32(&topic, 1) })
	unsubAll := bus.SubscribeAll(func(context.Context, plugin.Event) { atomic.AddInt32(&all, 1) })

	ctx := context.Background()
	_ = bus.Publish(ctx, plugin.Event{Topic: "settings.changed"})
	unsubTopic()
	unsubAll()
	_ = bus.Publish(ctx, plugin.Event{Topic: "settings.changed"})

	if got := atomic.LoadInt32(&topic); got != 1 {
		t.Errorf("topic handler calls = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&all); got != 1 {
		t.Errorf("wildcard handler calls = %d, want 1", got)
	}
}

func TestPublishAsyncSurvivesCancelledContext(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var live atomic.Bool

	bus.SubscribeAll(func(ctx context.Context, _ plugin.Event) {
		live.Store(ctx.Err() == nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.PublishAsync(ctx, plugin.Event{Topic: "auth.user.created"})

	drainCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := bus.Drain(drainCtx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if !live.Load() {
		t.Error("handler saw a cancelled context, want a live one")
	}
}

func TestDrainTimesOut(t *testing.T) {
	bus := NewBus(zap.NewNop())
	release := make(chan struct{})
	bus.SubscribeAll(func(context.Context, plugin.Event) { <-release })
	defer close(release)

	bus.PublishAsync(context.Background(), plugin.Event{Topic: "inventory.resync.completed"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bus.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var after int32

	bus.Subscribe("inventory.device.moved", func(context.Context, plugin.Event) { panic("boom") })
	bus.Subscribe("inventory.device.moved", func(context.Context, plugin.Event) { atomic.AddInt32(&after, 1) })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "inventory.device.moved"})
	if got := atomic.LoadInt32(&after); got != 1 {
		t.Errorf("handler after panic calls = %d, want 1", got)
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := NewBus(zap.NewNop())
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var stamps []time.Time
	bus.SubscribeAll(func(_ context.Context, e plugin.Event) { stamps = append(stamps, e.Timestamp) })

	ctx := context.Background()
	_ = bus.Publish(ctx, plugin.Event{Topic: "a"})
	_ = bus.Publish(ctx, plugin.Event{Topic: "b", Timestamp: fixed})

	if len(stamps) != 2 {
		t.Fatalf("got %d events, want 2", len(stamps))
	}
	if stamps[0].IsZero() {
		t.Error("Timestamp not stamped on publish")
	}
	if !stamps[1].Equal(fixed) {
		t.Errorf("Timestamp = %v, want caller's %v", stamps[1], fixed)
	}
}
