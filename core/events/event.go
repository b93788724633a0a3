package events

import "nhbmarket/core/types"

// Event represents a structured state change emitted by the market.
type Event interface {
	EventType() string
}

// Payload is implemented by events that expose their canonical attribute map.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until the surrounding transaction commits. Events
// recorded after a snapshot can be dropped with Truncate.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.events)
}

// Truncate drops every event recorded after position n.
func (b *Buffer) Truncate(n int) {
	if b == nil || n < 0 || n >= len(b.events) {
		return
	}
	b.events = b.events[:n]
}

// Flush forwards the buffered events in order and empties the buffer.
func (b *Buffer) Flush(to Emitter) {
	if b == nil {
		return
	}
	pending := b.events
	b.events = nil
	if to == nil {
		return
	}
	for _, evt := range pending {
		to.Emit(evt)
	}
}

// Multi fans each event out to all wrapped emitters.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
