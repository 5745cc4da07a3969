// Package events provides the non-blocking pub/sub fabric the controller
// publishes remediation telemetry on. Publishing never blocks and never
// fails the caller: slow or absent subscribers lose events instead of
// stalling the control loop.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published message.
type Event struct {
	Topic     string
	Timestamp time.Time
	Payload   map[string]any
}

// Publisher is the write side of the bus. Implementations must not block.
type Publisher interface {
	Publish(topic string, payload map[string]any)
}

// Subscriber receives events for one topic.
type Subscriber func(Event)

// Bus is an in-process pub/sub bus. Delivery is asynchronous through
// buffered channels; when a subscriber's buffer is full the event is
// dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	bufferSize  int
	dropped     atomic.Uint64
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[string][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for an exact topic and returns an unsubscribe
// function. The subscriber runs on its own goroutine; a panic inside fn is
// contained and does not disturb other subscribers.
func (b *Bus) Subscribe(topic string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[topic] = append(b.subscribers[topic], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					_ = recover()
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[topic]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends an event to all subscribers of topic without blocking.
func (b *Bus) Publish(topic string, payload map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, topic)
	}
}

// Fanout publishes every event to each wrapped publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(topic string, payload map[string]any) {
	for _, p := range f {
		p.Publish(topic, payload)
	}
}
