package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-analyzer/internal/engine"
)

func tickResult(i int) *engine.TickResult {
	return &engine.TickResult{
		Symbol:    "NIFTY",
		Timestamp: time.Now(),
		SpotPrice: 20000 + float64(i),
		ATMStrike: 20000,
	}
}

func TestProperty_FanOutDelivery(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("every subscriber receives every published result in order", prop.ForAll(
		func(numSubs, numResults int) bool {
			cfg := BusConfig{BufferSize: 256, SubscriberBufferSize: 64}
			bus := NewBusWithConfig(cfg)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			bus.Start(ctx)
			defer bus.Stop()

			channels := make([]<-chan *engine.TickResult, numSubs)
			for i := 0; i < numSubs; i++ {
				channels[i] = bus.Subscribe(fmt.Sprintf("sub-%d", i))
			}

			for i := 0; i < numResults; i++ {
				bus.Publish(tickResult(i))
			}

			for _, ch := range channels {
				for i := 0; i < numResults; i++ {
					select {
					case r := <-ch:
						if r.SpotPrice != 20000+float64(i) {
							return false
						}
					case <-time.After(2 * time.Second):
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	cfg := BusConfig{BufferSize: 64, SubscriberBufferSize: 2}
	bus := NewBusWithConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	slow := bus.Subscribe("slow") // never drained
	fast := bus.Subscribe("fast")

	var received atomic.Int64
	go func() {
		for range fast {
			received.Add(1)
		}
	}()

	const published = 20
	for i := 0; i < published; i++ {
		bus.Publish(tickResult(i))
	}

	// The distribution loop must chew through every publish even though
	// one subscriber never drains.
	deadline := time.Now().Add(3 * time.Second)
	for bus.Metrics().Received < published {
		if time.Now().After(deadline) {
			t.Fatalf("distribution loop stalled at %d of %d", bus.Metrics().Received, published)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if received.Load() == 0 {
		t.Error("fast subscriber received nothing")
	}
	if len(slow) > cfg.SubscriberBufferSize {
		t.Errorf("slow channel holds %d, buffer is %d", len(slow), cfg.SubscriberBufferSize)
	}
	if m := bus.Metrics(); m.Dropped == 0 {
		t.Error("expected drops recorded for the stalled subscriber")
	}
}

func TestConsumersReceiveResults(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(10)
	bus.RegisterConsumer(ConsumerFunc(func(r *engine.TickResult) {
		count.Add(1)
		wg.Done()
	}))

	for i := 0; i < 10; i++ {
		bus.Publish(tickResult(i))
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer saw %d of 10 results", count.Load())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	ch := bus.Subscribe("viewer")
	if bus.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d, want 1", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch)
	if bus.SubscriberCount() != 0 {
		t.Errorf("subscriber count after unsubscribe = %d, want 0", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after unsubscribe")
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	ch := bus.Subscribe("viewer")
	bus.Stop()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after Stop")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after Stop")
	}
	if bus.IsStarted() {
		t.Error("bus still marked started after Stop")
	}
}

func TestPublishBeforeStartDoesNotBlock(t *testing.T) {
	cfg := BusConfig{BufferSize: 2, SubscriberBufferSize: 2}
	bus := NewBusWithConfig(cfg)

	// Unstarted bus: the buffer absorbs two, the rest drop without
	// blocking the caller.
	for i := 0; i < 5; i++ {
		bus.Publish(tickResult(i))
	}
	if m := bus.Metrics(); m.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", m.Dropped)
	}
}
