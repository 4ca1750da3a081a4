package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// ConfigServer is a fake admin config service.
//
// It answers GET with the document registered for the x-store-id header,
// 404 for unknown stores, and can be switched to failing or hanging to
// exercise the loader's cache fallback and timeout.
type ConfigServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	docs     map[string][]byte
	status   int
	delay    time.Duration
	requests int
	storeIDs []string
}

// NewConfigServer starts a config server. Closed by t.Cleanup.
func NewConfigServer(t testing.TB) *ConfigServer {
	t.Helper()

	cs := &ConfigServer{docs: make(map[string][]byte)}
	cs.Server = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.Server.Close)
	return cs
}

// URL returns the config endpoint.
func (cs *ConfigServer) URL() string {
	return cs.Server.URL + "/api/config"
}

// SetDocument registers the raw document served for a store.
func (cs *ConfigServer) SetDocument(storeID string, raw []byte) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.docs[storeID] = raw
}

// FailWith forces every response to the given status. Zero restores
// normal behavior.
func (cs *ConfigServer) FailWith(status int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.status = status
}

// Delay makes every response wait d before answering.
func (cs *ConfigServer) Delay(d time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.delay = d
}

// Requests returns the number of requests served.
func (cs *ConfigServer) Requests() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.requests
}

// StoreIDs returns the x-store-id header of every request.
func (cs *ConfigServer) StoreIDs() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.storeIDs...)
}

func (cs *ConfigServer) handle(w http.ResponseWriter, r *http.Request) {
	storeID := r.Header.Get("x-store-id")

	cs.mu.Lock()
	cs.requests++
	cs.storeIDs = append(cs.storeIDs, storeID)
	status, delay := cs.status, cs.delay
	doc, ok := cs.docs[storeID]
	cs.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown store"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}
