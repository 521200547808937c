package events

import (
	"sync"
	"testing"
	"time"
)

// collector gathers events delivered on subscriber goroutines.
type collector struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func newCollector(expect int) *collector {
	return &collector{done: make(chan struct{}, expect)}
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for event %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// TestSubscribeByType tests that typed subscribers only see their type.
func TestSubscribeByType(t *testing.T) {
	bus := NewEventBus()
	signals := newCollector(2)
	bus.Subscribe(EventSignalGenerated, signals.handle)

	bus.Publish(Event{Type: EventRuleCreated, Data: map[string]interface{}{}})
	bus.PublishSignal("r1", "breakout", "BTCUSDT", "15m", 65000)

	got := signals.wait(t, 1)
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0].Type != EventSignalGenerated {
		t.Errorf("Expected SIGNAL_GENERATED, got %s", got[0].Type)
	}
	if got[0].Data["rule_id"] != "r1" || got[0].Data["symbol"] != "BTCUSDT" {
		t.Errorf("Unexpected signal payload: %v", got[0].Data)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Publish should stamp a timestamp")
	}
}

// TestSubscribeAll tests that all-event subscribers see every type.
func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	all := newCollector(3)
	bus.SubscribeAll(all.handle)

	bus.Publish(Event{Type: EventRuleCreated})
	bus.PublishError("runner", "boom")
	bus.Publish(Event{Type: EventEngineStarted})

	got := all.wait(t, 3)
	seen := make(map[EventType]bool)
	for _, e := range got {
		seen[e.Type] = true
	}
	if !seen[EventRuleCreated] || !seen[EventError] || !seen[EventEngineStarted] {
		t.Errorf("All-subscriber should see every type, got %v", seen)
	}
}

// TestPublishError tests the error event payload.
func TestPublishError(t *testing.T) {
	bus := NewEventBus()
	errs := newCollector(1)
	bus.Subscribe(EventError, errs.handle)

	bus.PublishError("runner", "series fetch failed")

	got := errs.wait(t, 1)
	if got[0].Data["source"] != "runner" || got[0].Data["message"] != "series fetch failed" {
		t.Errorf("Unexpected error payload: %v", got[0].Data)
	}
}
