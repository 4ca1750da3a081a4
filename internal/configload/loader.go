// Package configload fetches the campaign config of a store.
//
// Load issues a single request with a bounded timeout. A fresh document
// is compiled, written to the durable cache and returned. When the fetch
// or compilation fails, the cached copy is compiled instead. Staleness is
// acceptable here; there is no retry loop.
package configload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/salesboost/internal/compiler"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/store"
)

// DefaultTimeout bounds the config fetch.
const DefaultTimeout = 5 * time.Second

// maxDocumentSize caps the config body read from the network.
const maxDocumentSize = 4 << 20

// ErrConfigTooLarge means the config service sent more than
// maxDocumentSize bytes. The document is not compiled or cached.
var ErrConfigTooLarge = errors.New("config document too large")

// ErrConfigUnavailable means neither the network nor the cache produced
// a usable config. The engine does not start.
var ErrConfigUnavailable = errors.New("config unavailable")

// Cache is the durable per-store copy of the last good document.
// Implemented by *store.Store.
type Cache interface {
	GetConfig(ctx context.Context, storeID string) (store.CachedConfig, bool, error)
	PutConfig(ctx context.Context, storeID string, payload []byte) error
}

// Source tells where a loaded config came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
)

// Result is a loaded config.
type Result struct {
	Campaigns []ir.CampaignConfig
	Source    Source
	Hash      string
}

// Loader fetches configs from the admin config service.
type Loader struct {
	endpoint string
	http     *http.Client
	cache    Cache
	timeout  time.Duration
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(l *Loader) {
		l.http = hc
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// New creates a loader for endpoint. cache may be nil, in which case a
// network failure is immediately ErrConfigUnavailable.
func New(endpoint string, cache Cache, opts ...Option) *Loader {
	l := &Loader{
		endpoint: endpoint,
		http:     http.DefaultClient,
		cache:    cache,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the campaigns of storeID.
//
// The returned error wraps ErrConfigUnavailable together with the network
// and cache causes when both paths fail.
func (l *Loader) Load(ctx context.Context, storeID string) ([]ir.CampaignConfig, error) {
	res, err := l.LoadResult(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return res.Campaigns, nil
}

// LoadResult is Load with provenance.
func (l *Loader) LoadResult(ctx context.Context, storeID string) (Result, error) {
	if storeID == "" {
		return Result{}, fmt.Errorf("%w: empty store id", ErrConfigUnavailable)
	}

	raw, netErr := l.fetch(ctx, storeID)
	if netErr == nil {
		camps, err := compiler.Compile(raw)
		if err == nil {
			hash, err := ir.ConfigHash(raw)
			if err != nil {
				slog.Debug("config hash failed", "store_id", storeID, "error", err)
			}
			l.persist(ctx, storeID, raw)
			slog.Debug("config loaded", "store_id", storeID, "source", SourceNetwork, "campaigns", len(camps), "hash", hash)
			return Result{Campaigns: camps, Source: SourceNetwork, Hash: hash}, nil
		}
		// A document that does not compile is never cached; the last good
		// copy stays authoritative.
		netErr = fmt.Errorf("compile fetched config: %w", err)
	}

	res, cacheErr := l.fromCache(ctx, storeID)
	if cacheErr == nil {
		slog.Info("config service unavailable, using cached config",
			"store_id", storeID, "error", netErr, "hash", res.Hash)
		return res, nil
	}

	return Result{}, fmt.Errorf("%w: %w", ErrConfigUnavailable, errors.Join(netErr, cacheErr))
}

func (l *Loader) fetch(ctx context.Context, storeID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	req.Header.Set("x-store-id", storeID)
	req.Header.Set("Accept", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch config: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetch config: read body: %w", err)
	}
	if len(raw) > maxDocumentSize {
		return nil, fmt.Errorf("fetch config: %w: body exceeds %d bytes", ErrConfigTooLarge, maxDocumentSize)
	}
	return raw, nil
}

// persist writes the document to the cache. Failures are logged only:
// a fresh config is still usable without a durable copy.
func (l *Loader) persist(ctx context.Context, storeID string, raw []byte) {
	if l.cache == nil {
		return
	}
	if err := l.cache.PutConfig(ctx, storeID, raw); err != nil {
		slog.Warn("config cache write failed", "store_id", storeID, "error", err)
	}
}

func (l *Loader) fromCache(ctx context.Context, storeID string) (Result, error) {
	if l.cache == nil {
		return Result{}, errors.New("no config cache configured")
	}

	cached, ok, err := l.cache.GetConfig(ctx, storeID)
	if err != nil {
		return Result{}, fmt.Errorf("read config cache: %w", err)
	}
	if !ok {
		return Result{}, fmt.Errorf("no cached config for store %q", storeID)
	}

	camps, err := compiler.Compile(cached.Payload)
	if err != nil {
		return Result{}, fmt.Errorf("compile cached config: %w", err)
	}
	return Result{Campaigns: camps, Source: SourceCache, Hash: cached.Hash}, nil
}
