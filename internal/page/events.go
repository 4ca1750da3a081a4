package page

import (
	"golang.org/x/net/html"
)

// Event is a DOM CustomEvent dispatched on the document.
type Event struct {
	Type   string
	Detail any
}

type listener struct {
	id int
	fn func(Event)
}

// AddEventListener subscribes fn to events of type typ.
// The returned function unsubscribes it.
func (d *Document) AddEventListener(typ string, fn func(Event)) (remove func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	l := &listener{id: d.nextID, fn: fn}
	d.listeners[typ] = append(d.listeners[typ], l)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		ls := d.listeners[typ]
		for i, candidate := range ls {
			if candidate.id == l.id {
				d.listeners[typ] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

// DispatchEvent delivers ev to every listener of its type, in
// subscription order, and appends it to the event log.
func (d *Document) DispatchEvent(ev Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	ls := append([]*listener(nil), d.listeners[ev.Type]...)
	d.mu.Unlock()

	for _, l := range ls {
		l.fn(ev)
	}
}

// Dispatched returns every event dispatched so far.
func (d *Document) Dispatched() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// MutationRecord describes one change to the light DOM.
type MutationRecord struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

type observer struct {
	id int
	fn func([]MutationRecord)
}

// Observe subscribes fn to every child-list change of the light DOM.
// The returned function disconnects the observer.
func (d *Document) Observe(fn func([]MutationRecord)) (disconnect func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	o := &observer{id: d.nextID, fn: fn}
	d.observers = append(d.observers, o)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, candidate := range d.observers {
			if candidate.id == o.id {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

func deliver(obs []*observer, rec MutationRecord) {
	records := []MutationRecord{rec}
	for _, o := range obs {
		o.fn(records)
	}
}
