package testutil

import (
	"strconv"
	"sync"
)

// CacheBusters hands out "1", "2", "3"... in place of the millisecond
// timestamps the cart reader appends to its URL, so request URIs are
// identical across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type CacheBusters struct {
	mu     sync.Mutex
	issued int
}

// Next returns the next buster. Its signature matches cart.WithCacheBuster.
func (b *CacheBusters) Next() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issued++
	return strconv.Itoa(b.issued)
}

// Issued returns how many busters were handed out.
func (b *CacheBusters) Issued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issued
}
