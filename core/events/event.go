package events

// Event represents a structured state change emitted by the grants engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, the audit
// journal).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans an event out to every configured emitter in order.
type MultiEmitter struct {
	Emitters []Emitter
}

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m.Emitters {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}
