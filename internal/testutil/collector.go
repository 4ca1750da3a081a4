package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Collector is a fake analytics endpoint recording every posted event.
type Collector struct {
	Server *httptest.Server

	mu     sync.Mutex
	events []map[string]any
	status int
	notify chan struct{}
}

// NewCollector starts a collector. Closed by t.Cleanup.
func NewCollector(t testing.TB) *Collector {
	t.Helper()

	c := &Collector{notify: make(chan struct{}, 1024), status: http.StatusOK}
	c.Server = httptest.NewServer(http.HandlerFunc(c.handle))
	t.Cleanup(c.Server.Close)
	return c
}

// URL returns the track endpoint.
func (c *Collector) URL() string {
	return c.Server.URL + "/api/track"
}

// FailWith sets the response status.
func (c *Collector) FailWith(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// Events returns the decoded events received so far.
func (c *Collector) Events() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.events...)
}

// WaitFor blocks until n events arrived or the timeout passed.
// Returns the events received.
func (c *Collector) WaitFor(n int, timeout time.Duration) []map[string]any {
	deadline := time.After(timeout)
	for {
		if events := c.Events(); len(events) >= n {
			return events
		}
		select {
		case <-c.notify:
		case <-deadline:
			return c.Events()
		}
	}
}

func (c *Collector) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var ev map[string]any
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.events = append(c.events, ev)
	status := c.status
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	w.WriteHeader(status)
}
