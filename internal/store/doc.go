// Package store provides SQLite-backed durable storage for salesboost.
//
// The store keeps the last successfully fetched campaign config document
// per store id. It is the durable fallback of the config loader: when the
// admin config service is unreachable the engine starts from the cached
// copy instead of rendering nothing.
//
// Cart state is never stored here. Carts are always read fresh from the
// host platform.
//
// # Database Configuration
//
//   - WAL mode: cache reads during writes from another engine process
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Payloads are stored verbatim; the content hash (ir.ConfigHash) is
// stored alongside so callers can tell whether a refresh changed anything.
package store
