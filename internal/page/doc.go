// Package page models the host storefront page the engine runs in.
//
// A Document wraps an HTML tree parsed with golang.org/x/net/html and adds
// the few browser facilities the engine relies on: CSS selector probing,
// custom events, mutation observation and window globals.
//
// Shadow roots are represented as declarative shadow DOM, a
// <template shadowrootmode="open"> child of the host element. Selector
// queries against the document do not descend into shadow roots, and
// changes inside them produce no mutation records, as in a browser.
package page
