package convo

import (
	"sync"
	"time"
)

// EventType represents the type of streaming event
type EventType string

const (
	EventTypeConversation EventType = "conversation"
	EventTypeContentDelta EventType = "content_delta"
	EventTypeToolCall     EventType = "tool_call"
	EventTypeError        EventType = "error"
	EventTypeDone         EventType = "done"
)

// Event represents a streaming event emitted during a chat turn. The JSON
// encoding is the wire form written to SSE frames.
type Event struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// ConversationEvent identifies the conversation a stream belongs to. It is
// always the first event of a stream so the caller can correlate before any
// model text arrives.
func ConversationEvent(conversationID string) Event {
	return NewEvent(EventTypeConversation, map[string]any{
		"conversation_id": conversationID,
	})
}

// ContentDelta creates an incremental text fragment event
func ContentDelta(delta string) Event {
	return NewEvent(EventTypeContentDelta, map[string]any{
		"delta": delta,
	})
}

// ToolCallEvent announces a tool dispatch. Tool execution itself is not
// streamed; this is the only observable trace of it.
func ToolCallEvent(name, callID string) Event {
	return NewEvent(EventTypeToolCall, map[string]any{
		"tool_name": name,
		"call_id":   callID,
	})
}

// ErrorEvent creates an error event
func ErrorEvent(err error) Event {
	return NewEvent(EventTypeError, map[string]any{
		"error": err.Error(),
	})
}

// DoneEvent marks the end of a stream. It is emitted only after the updated
// conversation has been persisted. The data object is empty rather than nil
// so every frame on the wire carries an object.
func DoneEvent() Event {
	return NewEvent(EventTypeDone, map[string]any{})
}

// FilterEvents forwards only events with matching types.
func FilterEvents(input <-chan Event, types ...EventType) <-chan Event {
	out := make(chan Event)
	if len(types) == 0 {
		go func() {
			defer close(out)
			for event := range input {
				out <- event
			}
		}()
		return out
	}

	allowed := make(map[EventType]struct{}, len(types))
	for _, typ := range types {
		allowed[typ] = struct{}{}
	}

	go func() {
		defer close(out)
		for event := range input {
			if _, ok := allowed[event.Type]; ok {
				out <- event
			}
		}
	}()

	return out
}

// EventRecorder captures events for replay or inspection.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewEventRecorder creates a new recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Record captures events while forwarding them.
func (r *EventRecorder) Record(input <-chan Event) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		for event := range input {
			r.mu.Lock()
			r.events = append(r.events, event)
			r.mu.Unlock()
			out <- event
		}
	}()

	return out
}

// Events returns a copy of recorded events.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make([]Event, len(r.events))
	copy(copied, r.events)
	return copied
}
