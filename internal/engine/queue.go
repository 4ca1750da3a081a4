package engine

import "sync"

// maxPendingReasons caps the reasons kept for logging between ticks.
const maxPendingReasons = 16

// triggerQueue holds at most one pending re-evaluation token.
//
// Enqueue never blocks: the token channel has a buffer of one, so any
// number of triggers before the next Drain coalesce into a single wakeup.
// The reasons are kept only for logging.
type triggerQueue struct {
	mu      sync.Mutex
	reasons []string
	closed  bool
	signal  chan struct{}
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{signal: make(chan struct{}, 1)}
}

// Enqueue records a trigger. Returns false once the queue is closed.
func (q *triggerQueue) Enqueue(reason string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if len(q.reasons) < maxPendingReasons {
		q.reasons = append(q.reasons, reason)
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Wait returns the token channel. It is closed when the queue closes.
func (q *triggerQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drain returns and clears the reasons recorded since the last Drain and
// consumes a waiting token, since the tick about to run covers them.
func (q *triggerQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.signal:
	default:
	}
	out := q.reasons
	q.reasons = nil
	return out
}

// Pending reports whether a token is waiting.
func (q *triggerQueue) Pending() bool {
	return len(q.signal) > 0
}

// Close stops accepting triggers and wakes the waiter.
func (q *triggerQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
