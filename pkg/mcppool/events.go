package mcppool

import (
	"log/slog"
	"sort"
	"sync"
)

// EventType identifies a pool lifecycle notification.
type EventType string

const (
	EventServerConnected    EventType = "server_connected"
	EventServerDisconnected EventType = "server_disconnected"
	EventServerError        EventType = "server_error"
	EventToolCallStart      EventType = "tool_call_start"
	EventToolCallComplete   EventType = "tool_call_complete"
	EventToolCallError      EventType = "tool_call_error"
)

// Event is a transient (type, payload) notification. Connected events carry
// the []ToolInfo capability list, error events the message string, and tool
// call events a CallRecord snapshot.
type Event struct {
	Type     EventType
	ServerID string
	Payload  any
}

// EventHandler receives published events synchronously with the publisher.
type EventHandler func(Event)

// Bus fans pool events out to subscribers. Delivery is synchronous relative
// to the publisher; a handler panic is recovered and logged so it can never
// abort delivery to the remaining handlers or fail the triggering operation.
type Bus struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	nextID   int
	handlers map[EventType]map[int]EventHandler
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[EventType]map[int]EventHandler),
	}
}

// Subscribe registers a handler for one event type and returns a function
// that removes it again. Removal is safe at any time, including from inside
// a handler.
func (b *Bus) Subscribe(t EventType, h EventHandler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[int]EventHandler)
	}
	b.handlers[t][id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers[t], id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every handler registered for its type, in
// registration order.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	registered := b.handlers[evt.Type]
	ids := make([]int, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]EventHandler, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, registered[id])
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		b.deliver(evt, h)
	}
}

func (b *Bus) deliver(evt Event, h EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(evt.Type),
				"server", evt.ServerID,
				"panic", r)
		}
	}()
	h(evt)
}
