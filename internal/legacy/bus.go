package legacy

import "sync"

// BusCall is one Trigger call seen by a RecordingBus.
type BusCall struct {
	Event string
	Args  []any
}

// RecordingBus is a Bus that remembers every trigger. Scenario pages
// install it to stand in for a theme's jQuery.
type RecordingBus struct {
	mu    sync.Mutex
	calls []BusCall
}

// Trigger implements Bus.
func (b *RecordingBus) Trigger(event string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, BusCall{Event: event, Args: args})
}

// Calls returns the triggers seen so far.
func (b *RecordingBus) Calls() []BusCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BusCall(nil), b.calls...)
}
