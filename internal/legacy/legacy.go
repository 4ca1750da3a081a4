// Package legacy isolates the host-page globals older storefront themes
// rely on: a jQuery-style event bus and the platform's LS namespace.
//
// The engine consults an Adapter only when Detect finds such globals.
// Nothing in the decision path depends on them.
package legacy

import (
	"sync"

	"github.com/roach88/salesboost/internal/ir"
)

// Global names probed on the host window.
const (
	GlobalLS = "LS"
)

// BusGlobals are the names a legacy event bus may be installed under,
// in probe order.
var BusGlobals = []string{"jQuery", "jQueryNuvem", "$"}

// CartUpdatedEvent is the bus event triggered after a cart change.
const CartUpdatedEvent = "cart:updated"

// Globals reads window globals. *page.Document implements it.
type Globals interface {
	Global(name string) (any, bool)
}

// Bus is a jQuery-style event bus bound to the document.
type Bus interface {
	Trigger(event string, args ...any)
}

// Adapter is the optional bridge to legacy theme globals.
type Adapter interface {
	// CartHint returns the cart the theme last published, if any.
	CartHint() (ir.CartSnapshot, bool)
	// NotifyLegacyTheme publishes cart to the legacy bus and namespace.
	NotifyLegacyTheme(cart ir.CartSnapshot)
}

// Namespace is the platform LS global: the store id and the cart hint.
//
// Thread-safety: safe for concurrent use.
type Namespace struct {
	mu      sync.Mutex
	storeID string
	cart    *ir.CartSnapshot
}

// NewNamespace creates an LS namespace for storeID, which may be empty.
func NewNamespace(storeID string) *Namespace {
	return &Namespace{storeID: storeID}
}

// StoreID returns the store id exposed by the platform.
func (ns *Namespace) StoreID() string {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.storeID
}

// Cart returns the cart hint.
func (ns *Namespace) Cart() (ir.CartSnapshot, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.cart == nil {
		return ir.CartSnapshot{}, false
	}
	return *ns.cart, true
}

// SetCart replaces the cart hint.
func (ns *Namespace) SetCart(cart ir.CartSnapshot) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.cart = &cart
}

// StoreID returns the store id published in the LS global.
func StoreID(g Globals) (string, bool) {
	ns := namespace(g)
	if ns == nil || ns.StoreID() == "" {
		return "", false
	}
	return ns.StoreID(), true
}

// Detect returns an Adapter bound to the legacy globals of g, or nil when
// the page has neither a bus nor an LS namespace.
func Detect(g Globals) Adapter {
	a := &adapter{ns: namespace(g)}
	for _, name := range BusGlobals {
		if v, ok := g.Global(name); ok {
			if bus, ok := v.(Bus); ok {
				a.bus = bus
				a.busName = name
				break
			}
		}
	}
	if a.bus == nil && a.ns == nil {
		return nil
	}
	return a
}

type adapter struct {
	bus     Bus
	busName string
	ns      *Namespace
}

func (a *adapter) CartHint() (ir.CartSnapshot, bool) {
	if a.ns == nil {
		return ir.CartSnapshot{}, false
	}
	return a.ns.Cart()
}

func (a *adapter) NotifyLegacyTheme(cart ir.CartSnapshot) {
	if a.bus != nil {
		a.bus.Trigger(CartUpdatedEvent, cart)
	}
	if a.ns != nil {
		a.ns.SetCart(cart)
	}
}

func namespace(g Globals) *Namespace {
	v, ok := g.Global(GlobalLS)
	if !ok {
		return nil
	}
	ns, _ := v.(*Namespace)
	return ns
}
