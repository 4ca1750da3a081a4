// Package harness runs storefront scenarios against a real engine.
//
// A scenario describes a host page, a config document, a fake storefront
// cart and a list of steps. The harness serves the config and the cart
// over HTTP, starts an engine on the page and executes the steps in
// order, recording a trace after each one.
//
// # Scenario Format
//
//	name: bundle_verified_add
//	description: "Accepting a bundle adds both items, verified"
//	page: |
//	  <html><body><form id="product_form"></form></body></html>
//	store_id: "42"
//	config: |
//	  {"bundles": [{"id": "b1", "products": [{"id": 1, "variantId": 10}]}]}
//	catalog:
//	  - {variant: "10", product: "1", price: 15000}
//	storefront: {mode: truthful}
//	steps:
//	  - action: start
//	  - action: click
//	    widget: b1@product
//	    expect: verified
//	assertions:
//	  - type: cart_contains
//	    variant: "10"
//
// # Steps
//
//   - start: resolve the store, load the config, run the first tick
//   - tick: run a tick directly
//   - click: activate a widget; expect is verified or failed
//   - cart_event: dispatch cart:updated on the page
//   - host_html: append markup to the first element matching selector
//   - set_cart: replace the storefront cart, as if edited elsewhere
//   - settle: fire the pending settle timers of widgets
//
// After every step except start and tick, a pending trigger is flushed as
// one tick, standing in for the debounce window.
//
// # Determinism
//
// Tick ids come from a sequence, settle timers only fire on settle steps
// and analytics are discarded, so traces compare byte for byte against
// golden files in testdata/golden.
package harness
