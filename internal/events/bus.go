// Package events is the in-process pub/sub bus connecting the evaluation
// runner and the API layer's WebSocket stream.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventEvaluationUpdate EventType = "EVALUATION_UPDATE"
	EventRuleCreated      EventType = "RULE_CREATED"
	EventRuleUpdated      EventType = "RULE_UPDATED"
	EventRuleDeleted      EventType = "RULE_DELETED"
	EventEngineStarted    EventType = "ENGINE_STARTED"
	EventEngineStopped    EventType = "ENGINE_STOPPED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event for a rule whose tree
// flipped true on the latest closed bar.
func (eb *EventBus) PublishSignal(ruleID, ruleName, symbol, timeframe string, price float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"rule_id":   ruleID,
			"rule_name": ruleName,
			"symbol":    symbol,
			"timeframe": timeframe,
			"price":     price,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"source":  source,
			"message": message,
		},
	})
}
