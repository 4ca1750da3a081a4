// Package cart talks to the host platform's cart endpoints.
//
// Client.Get is the cart state provider: every call issues a cache-busted
// GET /cart.json and decodes the host's answer. Nothing is cached or
// predicted locally; the host cart is mutated by the shopper and by other
// scripts at any time, so any local view would be stale.
//
// Client.Add issues POST /cart/add.json. Its HTTP status is reported to the
// caller but is never proof of effect; callers verify with a fresh Get.
package cart
