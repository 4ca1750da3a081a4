package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/legacy"
	"github.com/roach88/salesboost/internal/page"
	"github.com/roach88/salesboost/internal/present"
)

// Page markers read at start.
const (
	storeIDSelector   = "script[data-store-id]"
	storeIDAttr       = "data-store-id"
	productIDSelector = "[data-product-id]"
	productIDAttr     = "data-product-id"
)

// subscribe wires the host cart event and the DOM observer to Trigger.
func (e *Engine) subscribe() {
	removeListener := e.doc.AddEventListener(ReasonCartEvent, func(page.Event) {
		e.Trigger(ReasonCartEvent)
	})
	disconnect := e.doc.Observe(func(records []page.MutationRecord) {
		if onlyWidgetChanges(records) {
			return
		}
		e.Trigger(ReasonMutation)
	})

	e.mu.Lock()
	e.unsubscribe = append(e.unsubscribe, removeListener, disconnect)
	e.mu.Unlock()
}

// broadcast tells the host and the legacy theme that the cart changed.
// It runs after every mutation sequence, successful or not.
func (e *Engine) broadcast(_ context.Context, snap ir.CartSnapshot) {
	for _, typ := range CartEvents {
		e.doc.DispatchEvent(page.Event{Type: typ, Detail: snap})
	}
	if e.legacy != nil {
		e.legacy.NotifyLegacyTheme(snap)
	}
	slog.Debug("cart change broadcast", "items", len(snap.Items), "subtotal", snap.Subtotal)
}

// resolveStoreID prefers the configured id, then the LS global, then the
// loader script tag.
func (e *Engine) resolveStoreID() (string, bool) {
	e.mu.Lock()
	configured := e.storeID
	e.mu.Unlock()
	if id := strings.TrimSpace(configured); id != "" {
		return id, true
	}
	if id, ok := legacy.StoreID(e.doc); ok {
		return id, true
	}
	if n, _, ok := e.doc.QueryFirst([]string{storeIDSelector}); ok {
		if id, _ := page.Attr(n, storeIDAttr); strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), true
		}
	}
	return "", false
}

// discoverProductID reads the product of a product page, if any.
func discoverProductID(doc *page.Document) ir.ID {
	n, _, ok := doc.QueryFirst([]string{productIDSelector})
	if !ok {
		return ""
	}
	id, _ := page.Attr(n, productIDAttr)
	return ir.ID(strings.TrimSpace(id))
}

// onlyWidgetChanges reports whether every record only adds or removes
// widget nodes, which are the engine's own writes.
func onlyWidgetChanges(records []page.MutationRecord) bool {
	for _, r := range records {
		for _, n := range r.Added {
			if !present.IsWidgetNode(n) {
				return false
			}
		}
		for _, n := range r.Removed {
			if !present.IsWidgetNode(n) {
				return false
			}
		}
		if len(r.Added) == 0 && len(r.Removed) == 0 {
			return false
		}
	}
	return true
}
