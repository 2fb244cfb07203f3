// Package stream fans analysis tick results out to multiple consumers.
package stream

import (
	"context"
	"sync"
	"time"

	"options-analyzer/internal/engine"
)

// BusConfig holds configuration for the result bus.
type BusConfig struct {
	// BufferSize is the size of the internal result channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultBusConfig returns the default bus configuration.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		BufferSize:           256,
		SubscriberBufferSize: 32,
	}
}

// Bus distributes tick results from the single analysis loop to any
// number of consumers (store, notifier, CLI display) without letting a
// slow one stall the pipeline.
type Bus struct {
	config      BusConfig
	mu          sync.RWMutex
	subscribers []*Subscriber
	resultChan  chan *engine.TickResult
	done        chan struct{}
	started     bool
	consumers   []Consumer
	consumersMu sync.RWMutex

	// Metrics
	received  uint64
	delivered uint64
	dropped   uint64
	metricsMu sync.RWMutex
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Channel      chan *engine.TickResult
	DroppedCount int
	CreatedAt    time.Time
}

// NewBus creates a bus with default configuration.
func NewBus() *Bus {
	return NewBusWithConfig(DefaultBusConfig())
}

// NewBusWithConfig creates a bus with custom configuration.
func NewBusWithConfig(config BusConfig) *Bus {
	return &Bus{
		config:     config,
		resultChan: make(chan *engine.TickResult, config.BufferSize),
		done:       make(chan struct{}),
	}
}

// Start begins the distribution loop.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go b.distributeLoop(ctx)
}

func (b *Bus) distributeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case result := <-b.resultChan:
			b.metricsMu.Lock()
			b.received++
			b.metricsMu.Unlock()

			b.broadcast(result)
			b.notifyConsumers(result)
		}
	}
}

// Stop stops the bus and closes all subscriber channels.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return
	}

	close(b.done)
	b.started = false

	for _, sub := range b.subscribers {
		close(sub.Channel)
	}
	b.subscribers = nil
}

// Subscribe returns a channel receiving every tick result.
func (b *Bus) Subscribe(id string) <-chan *engine.TickResult {
	ch := make(chan *engine.TickResult, b.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(ch <-chan *engine.TickResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.Channel == ch {
			close(sub.Channel)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			break
		}
	}
}

// Publish hands a result to the bus for distribution. Non-blocking:
// if the internal buffer is full the result is dropped.
func (b *Bus) Publish(result *engine.TickResult) {
	select {
	case b.resultChan <- result:
	default:
		b.metricsMu.Lock()
		b.dropped++
		b.metricsMu.Unlock()
	}
}

// broadcast sends a result to all subscribers with non-blocking sends
// so slow consumers never block the rest.
func (b *Bus) broadcast(result *engine.TickResult) {
	b.mu.RLock()
	subs := make([]*Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- result:
			b.metricsMu.Lock()
			b.delivered++
			b.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			b.metricsMu.Lock()
			b.dropped++
			b.metricsMu.Unlock()
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Metrics returns bus counters.
func (b *Bus) Metrics() BusMetrics {
	b.metricsMu.RLock()
	defer b.metricsMu.RUnlock()

	return BusMetrics{
		Received:    b.received,
		Delivered:   b.delivered,
		Dropped:     b.dropped,
		Subscribers: b.SubscriberCount(),
	}
}

// BusMetrics contains bus performance counters.
type BusMetrics struct {
	Received    uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// IsStarted returns whether the bus is running.
func (b *Bus) IsStarted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

// Consumer processes tick results delivered by the bus.
type Consumer interface {
	// OnResult is called for each distributed tick result.
	OnResult(result *engine.TickResult)
}

// RegisterConsumer adds a consumer. Each delivery runs in its own
// goroutine so consumers cannot block the loop.
func (b *Bus) RegisterConsumer(consumer Consumer) {
	b.consumersMu.Lock()
	b.consumers = append(b.consumers, consumer)
	b.consumersMu.Unlock()
}

// UnregisterConsumer removes a consumer.
func (b *Bus) UnregisterConsumer(consumer Consumer) {
	b.consumersMu.Lock()
	defer b.consumersMu.Unlock()

	for i, c := range b.consumers {
		if c == consumer {
			b.consumers = append(b.consumers[:i], b.consumers[i+1:]...)
			break
		}
	}
}

func (b *Bus) notifyConsumers(result *engine.TickResult) {
	b.consumersMu.RLock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.consumersMu.RUnlock()

	for _, consumer := range consumers {
		go consumer.OnResult(result)
	}
}

// ConsumerFunc is a function adapter for Consumer.
type ConsumerFunc func(*engine.TickResult)

// OnResult implements Consumer.
func (f ConsumerFunc) OnResult(result *engine.TickResult) {
	f(result)
}
