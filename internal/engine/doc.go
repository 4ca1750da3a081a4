// Package engine runs the storefront decision engine on a host page.
//
// An Engine is an explicit instance holding the loaded campaigns, the last
// cart snapshot and the in-flight tick flag. Nothing is global, so several
// engines can run side by side under test.
//
// Tick is a level-triggered control loop step: fetch a fresh cart, select
// the winner of every placement, render. It never diffs against the
// previous tick.
//
// Reactivity:
// Host cart events and DOM mutations call Trigger. Triggers feed a queue
// holding at most one pending re-evaluation token; Run waits for a token,
// lets the debounce window pass without new triggers, then runs one tick.
// Any number of triggers inside a window, or during a running tick, collapse
// into a single follow-up tick.
//
// Errors:
// A failed cart read aborts that tick only; the next trigger retries. A
// failure rendering one placement never stops the other placements.
package engine
