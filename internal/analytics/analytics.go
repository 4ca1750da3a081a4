// Package analytics delivers best-effort tracking events.
//
// Track never blocks: events go to a bounded queue drained by one
// goroutine, and are dropped when the queue is full or the POST fails.
// There is no retry and no exactly-once guarantee.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/salesboost/internal/metrics"
)

// Event names accepted by the track endpoint.
const (
	EventView       = "view"
	EventOfferClick = "offer_click"
	EventOfferAdd   = "offer_add"
	EventAddedCombo = "added_combo"
)

// DefaultQueueSize bounds the events waiting for delivery.
const DefaultQueueSize = 64

// DefaultTimeout bounds each POST.
const DefaultTimeout = 5 * time.Second

// Event is the track endpoint payload. Timestamp is epoch milliseconds.
type Event struct {
	Event     string         `json:"event"`
	ComboID   string         `json:"combo_id,omitempty"`
	URL       string         `json:"url"`
	Timestamp int64          `json:"timestamp"`
	Device    string         `json:"device"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Sink accepts events.
type Sink interface {
	Track(ev Event)
}

// Discard is a Sink that drops everything.
type Discard struct{}

// Track implements Sink.
func (Discard) Track(Event) {}

// Client posts events to a track endpoint.
//
// Thread-safety: Track and Close are safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	http      *http.Client
	timeout   time.Duration
	queueSize int
	metrics   *metrics.Metrics
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.http = hc }
}

// WithTimeout sets the per-event POST timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithQueueSize sets the queue capacity. Values below 1 become 1.
func WithQueueSize(n int) Option {
	return func(c *clientConfig) {
		if n < 1 {
			n = 1
		}
		c.queueSize = n
	}
}

// WithMetrics counts dropped events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *clientConfig) { c.metrics = m }
}

// New starts a client delivering to endpoint. Call Close to stop it.
func New(endpoint string, opts ...Option) *Client {
	cfg := clientConfig{
		http:      http.DefaultClient,
		timeout:   DefaultTimeout,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{
		endpoint: endpoint,
		http:     cfg.http,
		timeout:  cfg.timeout,
		metrics:  cfg.metrics,
		queue:    make(chan Event, cfg.queueSize),
		done:     make(chan struct{}),
	}
	go c.deliver()
	return c
}

// Track enqueues ev, dropping it when the queue is full or the client
// is closed.
func (c *Client) Track(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.metrics.RecordAnalyticsDropped()
		return
	}
	select {
	case c.queue <- ev:
	default:
		c.metrics.RecordAnalyticsDropped()
		slog.Debug("analytics queue full, dropping event", "event", ev.Event)
	}
}

// Close stops accepting events and waits until queued ones are delivered
// or ctx is done.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) deliver() {
	defer close(c.done)
	for ev := range c.queue {
		if err := c.post(ev); err != nil {
			c.metrics.RecordAnalyticsDropped()
			slog.Debug("analytics delivery failed", "event", ev.Event, "error", err)
		}
	}
}

func (c *Client) post(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post event: HTTP %d", resp.StatusCode)
	}
	return nil
}
