package events

import "sovereign/core/types"

// Event represents a structured state change emitted by an engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the websocket
// stream, the receipt journal).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Envelope adapts a committed types.Event to the Event interface.
type Envelope struct {
	*types.Event
}

// EventType implements Event.
func (e Envelope) EventType() string {
	if e.Event == nil {
		return ""
	}
	return e.Type
}

// Recorder keeps every emitted event in memory. Tests use it to assert on
// emitted events.
type Recorder struct {
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) { r.events = append(r.events, evt) }

// Events returns the recorded events.
func (r *Recorder) Events() []Event { return append([]Event(nil), r.events...) }

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

// Fanout delivers each event to every emitter in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
