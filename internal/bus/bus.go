// Package bus carries status events between the character loop and its
// observers (logging, HTTP status, transport). The viseme hand-off itself
// never travels over the bus.
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

const (
	// Speech queue events
	EventSpeechStarted       EventType = "speech.started"
	EventSpeechFinished      EventType = "speech.finished"
	EventSpeechPlaybackError EventType = "speech.playback_error"
	EventSpeechTurnComplete  EventType = "speech.turn_complete"

	// Bridge events
	EventUtteranceAccepted EventType = "bridge.utterance_accepted"
	EventUtteranceDropped  EventType = "bridge.utterance_dropped"

	// Avatar events
	EventMoodChanged        EventType = "avatar.mood_changed"
	EventTimelineSuperseded EventType = "avatar.timeline_superseded"
	EventTimelineComplete   EventType = "avatar.timeline_complete"

	// Session events
	EventSessionConnected    EventType = "session.connected"
	EventSessionDisconnected EventType = "session.disconnected"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish fans the event out on fresh goroutines. Publishers on the character
// loop use this so a slow observer never stalls a frame.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	if b == nil {
		return
	}
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}

// Count returns the number of handlers subscribed to t.
func (b *EventBus) Count(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}
