package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roach88/salesboost/internal/ir"
)

// Host cart endpoints, relative to the storefront origin.
const (
	ReadPath = "/cart.json"
	AddPath  = "/cart/add.json"
)

// DefaultTimeout bounds each cart read and add POST.
const DefaultTimeout = 10 * time.Second

// ErrCartFetch is matched by every cart read failure.
var ErrCartFetch = errors.New("cart fetch failed")

// FetchError describes a failed cart read.
// Status is zero when no HTTP response was received.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("cart fetch failed: HTTP %d", e.Status)
	}
	return fmt.Sprintf("cart fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCartFetch) true for any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrCartFetch }

// Reader provides fresh cart snapshots.
type Reader interface {
	Get(ctx context.Context) (ir.CartSnapshot, error)
}

// Writer submits add-to-cart requests.
type Writer interface {
	Add(ctx context.Context, item ir.Item) (int, error)
}

// Client implements Reader and Writer against a storefront origin.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	base        *url.URL
	http        *http.Client
	timeout     time.Duration
	cacheBuster func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default cookie-carrying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithCacheBuster replaces the query value generator of cart reads.
// Tests use a deterministic sequence.
func WithCacheBuster(fn func() string) Option {
	return func(c *Client) {
		c.cacheBuster = fn
	}
}

// New creates a cart client for the storefront at baseURL.
//
// The default HTTP client keeps a cookie jar so the session cookie set by
// the host on the first request is sent with every later one, matching
// the same-origin credentials of the storefront.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("cart: invalid storefront url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("cart: storefront url %q must be absolute", baseURL)
	}

	c := &Client{
		base:        base,
		timeout:     DefaultTimeout,
		cacheBuster: defaultCacheBuster(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cart: cookie jar: %w", err)
		}
		c.http = &http.Client{Jar: jar}
	}

	return c, nil
}

// Get reads the current host cart.
//
// Every call issues a network request with a unique cache-buster and
// no-store headers. Non-2xx answers and undecodable bodies are
// *FetchError.
func (c *Client) Get(ctx context.Context) (ir.CartSnapshot, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	u := c.endpoint(ReadPath)
	q := u.Query()
	q.Set("t", c.cacheBuster())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ir.CartSnapshot{}, &FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return ir.CartSnapshot{}, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ir.CartSnapshot{}, &FetchError{Status: resp.StatusCode}
	}

	var snap ir.CartSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return ir.CartSnapshot{}, &FetchError{Err: fmt.Errorf("decode cart: %w", err)}
	}
	if snap.Items == nil {
		snap.Items = []ir.CartLine{}
	}
	return snap, nil
}

// Add posts one item to the host add endpoint and returns the HTTP status.
//
// The response body is drained and discarded: hosts answer 200 while
// silently ignoring sold-out or disabled variants, so the status is only
// informational. err is non-nil only when no response was received.
func (c *Client) Add(ctx context.Context, item ir.Item) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	form := url.Values{}
	form.Set("variant_id", item.Key().String())
	form.Set("quantity", strconv.Itoa(item.Quantity()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(AddPath).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("cart add: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cart add: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	u.RawQuery = ""
	return &u
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// defaultCacheBuster returns wall-clock milliseconds plus a per-client
// counter, so two reads within the same millisecond still differ.
func defaultCacheBuster() func() string {
	var n atomic.Int64
	return func() string {
		return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + strconv.FormatInt(n.Add(1), 10)
	}
}
