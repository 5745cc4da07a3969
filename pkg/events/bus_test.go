package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) add(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) last() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var got collector
	bus.Subscribe(TopicHealApplied, got.add)

	bus.Publish(TopicHealApplied, map[string]any{"strategy": "sync_envs"})
	bus.Publish(TopicHealError, map[string]any{"error": "nope"})

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
	event := got.last()
	assert.Equal(t, TopicHealApplied, event.Topic)
	assert.Equal(t, "sync_envs", event.Payload["strategy"])
	assert.False(t, event.Timestamp.IsZero())
}

func TestBusPublishWithoutSubscribersIsSilent(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()
	assert.NotPanics(t, func() {
		bus.Publish(TopicAudit, map[string]any{"n": 1})
	})
	assert.Zero(t, bus.Dropped())
}

func TestBusDropsWhenSubscriberBufferFull(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	block := make(chan struct{})
	bus.Subscribe(TopicIncident, func(Event) { <-block })

	// First event occupies the handler, second fills the buffer, the rest
	// are dropped without blocking the publisher.
	for i := 0; i < 5; i++ {
		bus.Publish(TopicIncident, map[string]any{"i": i})
	}
	close(block)

	assert.Eventually(t, func() bool { return bus.Dropped() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var got collector
	unsubscribe := bus.Subscribe(TopicEnvDrift, got.add)

	bus.Publish(TopicEnvDrift, map[string]any{"path": ".env"})
	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	bus.Publish(TopicEnvDrift, map[string]any{"path": ".env"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, got.len())
}

func TestBusIsolatesSubscriberPanics(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var got collector
	bus.Subscribe(TopicAudit, func(Event) { panic("subscriber bug") })
	bus.Subscribe(TopicAudit, got.add)

	bus.Publish(TopicAudit, map[string]any{"marker": "ESCALATION"})
	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFanoutPublishesToAll(t *testing.T) {
	first := NewBus(10)
	second := NewBus(10)
	defer first.Close()
	defer second.Close()

	var a, b collector
	first.Subscribe(TopicScheduleTick, a.add)
	second.Subscribe(TopicScheduleTick, b.add)

	Fanout{first, second}.Publish(TopicScheduleTick, map[string]any{"interval": "12h"})

	require.Eventually(t, func() bool { return a.len() == 1 && b.len() == 1 }, time.Second, 5*time.Millisecond)
}
