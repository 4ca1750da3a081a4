package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/salesboost/internal/analytics"
	"github.com/roach88/salesboost/internal/cart"
	"github.com/roach88/salesboost/internal/configload"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/legacy"
	"github.com/roach88/salesboost/internal/metrics"
	"github.com/roach88/salesboost/internal/mutation"
	"github.com/roach88/salesboost/internal/page"
	"github.com/roach88/salesboost/internal/present"
	"github.com/roach88/salesboost/internal/selector"
)

// DefaultDebounce is the quiet period between the last trigger and a tick.
const DefaultDebounce = 600 * time.Millisecond

// Trigger reasons.
const (
	ReasonStart     = "start"
	ReasonCartEvent = "cart:updated"
	ReasonMutation  = "dom-mutation"
	ReasonSettled   = "settled"
	ReasonManual    = "manual"
)

// Cart events dispatched on the document after every mutation sequence.
var CartEvents = []string{"cart:updated", "cart:refresh", "added_to_cart"}

// DefaultPlacements are evaluated on every tick, in this order.
var DefaultPlacements = []ir.Placement{ir.PlacementProduct, ir.PlacementMinicart, ir.PlacementPopup}

// ConfigSource loads the campaigns of a store. Implemented by
// *configload.Loader.
type ConfigSource interface {
	LoadResult(ctx context.Context, storeID string) (configload.Result, error)
}

// CartClient reads and writes the host cart. Implemented by *cart.Client.
type CartClient interface {
	cart.Reader
	cart.Writer
}

// Engine is one decision engine bound to one host page.
//
// Thread-safety model:
//   - Trigger, Activate and the accessors: safe from any goroutine
//   - Run: exactly one goroutine
//   - Start: once, before Run
type Engine struct {
	doc     *page.Document
	configs ConfigSource
	cart    CartClient
	layer   *present.Layer
	mutator *mutation.Engine
	legacy  legacy.Adapter
	metrics *metrics.Metrics
	clock   *Clock
	ids     TickIDGenerator
	queue   *triggerQueue

	storeID       string
	pageProductID ir.ID
	placements    []ir.Placement
	debounce      time.Duration

	// layer and mutator options gathered before construction
	retryMax    int
	backOff     func() backoff.BackOff
	layerOpts   []present.Option
	unsubscribe []func()

	mu        sync.Mutex
	campaigns []ir.CampaignConfig
	source    configload.Source
	lastCart  *ir.CartSnapshot
	started   bool

	ticking atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStoreID fixes the store id instead of discovering it on the page.
func WithStoreID(id string) Option {
	return func(e *Engine) { e.storeID = id }
}

// WithPageProductID fixes the product of the current page.
func WithPageProductID(id ir.ID) Option {
	return func(e *Engine) { e.pageProductID = id }
}

// WithPlacements sets the placements evaluated per tick.
func WithPlacements(ps ...ir.Placement) Option {
	return func(e *Engine) { e.placements = append([]ir.Placement(nil), ps...) }
}

// WithDebounce sets the trailing debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithRetryMax sets the retries per added item.
func WithRetryMax(n int) Option {
	return func(e *Engine) { e.retryMax = n }
}

// WithBackOff sets the pacing between add attempts.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(e *Engine) { e.backOff = factory }
}

// WithMetrics records engine counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTickIDs sets the tick id generator.
func WithTickIDs(g TickIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithSink sets the analytics sink of the widgets.
func WithSink(s analytics.Sink) Option {
	return func(e *Engine) { e.layerOpts = append(e.layerOpts, present.WithSink(s)) }
}

// WithLayerOptions passes options through to the presentation layer.
func WithLayerOptions(opts ...present.Option) Option {
	return func(e *Engine) { e.layerOpts = append(e.layerOpts, opts...) }
}

// New creates an Engine for doc. Nothing runs until Start.
func New(doc *page.Document, configs ConfigSource, client CartClient, opts ...Option) *Engine {
	e := &Engine{
		doc:        doc,
		configs:    configs,
		cart:       client,
		clock:      NewClock(),
		ids:        UUIDv7Generator{},
		queue:      newTriggerQueue(),
		placements: slices.Clone(DefaultPlacements),
		debounce:   DefaultDebounce,
		retryMax:   mutation.DefaultRetryMax,
	}
	for _, opt := range opts {
		opt(e)
	}

	mutOpts := []mutation.Option{
		mutation.WithRetryMax(e.retryMax),
		mutation.WithNotifier(mutation.NotifierFunc(e.broadcast)),
		mutation.WithMetrics(e.metrics),
	}
	if e.backOff != nil {
		mutOpts = append(mutOpts, mutation.WithBackOff(e.backOff))
	}
	e.mutator = mutation.New(client, client, mutOpts...)

	layerOpts := append([]present.Option{
		present.WithMetrics(e.metrics),
		present.WithScheduler(e.Trigger),
	}, e.layerOpts...)
	e.layer = present.NewLayer(doc, e.mutator, layerOpts...)

	return e
}

// Start resolves the store id, loads the config, subscribes to host
// signals and runs the first tick.
//
// Failing to find a store id or a config returns an error matched by
// IsConfigUnavailable; the engine then renders nothing. A failed first
// tick is logged, not returned.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	storeID, ok := e.resolveStoreID()
	if !ok {
		err := &Error{Code: ErrCodeNoStoreID, Message: "store id not found on page"}
		slog.Error("engine not started", "error", err)
		return err
	}

	res, err := e.configs.LoadResult(ctx, storeID)
	if err != nil {
		e.metrics.RecordConfigLoad("none")
		ee := &Error{Code: ErrCodeConfigUnavailable, Message: "no config for store " + storeID, Err: err}
		slog.Error("engine not started", "store_id", storeID, "error", err)
		return ee
	}
	e.metrics.RecordConfigLoad(string(res.Source))

	if e.pageProductID.IsZero() {
		e.pageProductID = discoverProductID(e.doc)
	}
	e.legacy = legacy.Detect(e.doc)

	e.mu.Lock()
	e.storeID = storeID
	e.campaigns = res.Campaigns
	e.source = res.Source
	e.mu.Unlock()

	e.subscribe()

	slog.Info("engine started",
		"store_id", storeID,
		"campaigns", len(res.Campaigns),
		"source", res.Source,
		"config_hash", res.Hash,
		"page_product", e.pageProductID,
		"legacy", e.legacy != nil,
	)

	if err := e.Tick(ctx); err != nil {
		slog.Warn("first tick failed", "error", err)
	}
	return nil
}

// Tick runs one full evaluation: fresh cart, winners, render.
//
// A cart read failure aborts the tick before any widget changes and is
// returned as a CART_FETCH error. Placement failures are joined and
// returned after every placement was attempted.
func (e *Engine) Tick(ctx context.Context) error {
	e.ticking.Store(true)
	defer e.ticking.Store(false)

	seq := e.clock.Next()
	tickID := e.ids.Generate()

	snap, err := e.cart.Get(ctx)
	if err != nil {
		e.metrics.RecordTick(false)
		slog.Warn("tick aborted: cart read failed", "tick", tickID, "seq", seq, "error", err)
		return &Error{Code: ErrCodeCartFetch, Message: "cart read failed", Err: err}
	}
	e.checkHint(snap)

	e.mu.Lock()
	e.lastCart = &snap
	campaigns := e.campaigns
	e.mu.Unlock()

	winners := selector.SelectAll(campaigns, snap, e.pageProductID, e.placements)

	var errs []error
	for _, p := range e.placements {
		if err := e.renderPlacement(ctx, p, winners[p], snap); err != nil {
			errs = append(errs, err)
		}
	}
	e.metrics.RecordTick(true)

	slog.Debug("tick done",
		"tick", tickID,
		"seq", seq,
		"subtotal", snap.Subtotal,
		"items", len(snap.Items),
		"widgets", len(e.layer.Widgets()),
		"errors", len(errs),
	)
	return errors.Join(errs...)
}

// renderPlacement renders one placement, turning errors and panics into
// *Error so the caller can carry on with the next placement.
func (e *Engine) renderPlacement(ctx context.Context, p ir.Placement, winner *ir.CampaignConfig, snap ir.CartSnapshot) (err error) {
	campaign := ""
	if winner != nil {
		campaign = winner.ID
	}
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Code: ErrCodeRenderFailed, Message: fmt.Sprintf("panic: %v", r), Campaign: campaign, Placement: p}
			slog.Error("render panicked", "placement", p, "campaign", campaign, "panic", r)
		}
	}()

	rerr := e.layer.Render(ctx, p, winner, snap)
	switch {
	case rerr == nil:
		return nil
	case errors.Is(rerr, present.ErrNoInsertionPoint):
		slog.Info("no insertion point, skipping widget", "placement", p, "campaign", campaign)
		return &Error{Code: ErrCodeNoInsertionPoint, Message: "no insertion point", Campaign: campaign, Placement: p, Err: rerr}
	default:
		slog.Warn("render failed", "placement", p, "campaign", campaign, "error", rerr)
		return &Error{Code: ErrCodeRenderFailed, Message: "render failed", Campaign: campaign, Placement: p, Err: rerr}
	}
}

// Trigger asks for a tick. It never blocks; triggers pending at the same
// time collapse into one tick.
func (e *Engine) Trigger(reason string) {
	e.metrics.RecordTrigger(reason)
	if !e.queue.Enqueue(reason) {
		slog.Debug("trigger after stop ignored", "reason", reason)
	}
}

// Run executes debounced ticks until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	slog.Debug("reactivity loop starting", "debounce", e.debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-e.queue.Wait():
			if !ok {
				return nil
			}
		}

		if err := e.settle(ctx); err != nil {
			if errors.Is(err, errStopped) {
				return nil
			}
			return err
		}

		reasons := e.queue.Drain()
		slog.Debug("debounced tick", "reasons", reasons)
		if err := e.Tick(ctx); err != nil {
			slog.Debug("tick finished with errors", "error", err)
		}
	}
}

// Flush runs the pending tick now instead of after the debounce window.
// It reports whether a tick ran. Use it instead of Run when the caller
// drives time itself.
func (e *Engine) Flush(ctx context.Context) (bool, error) {
	if !e.queue.Pending() {
		return false, nil
	}
	reasons := e.queue.Drain()
	slog.Debug("flushed tick", "reasons", reasons)
	return true, e.Tick(ctx)
}

var errStopped = errors.New("engine stopped")

// settle waits until the debounce window passes with no new trigger.
func (e *Engine) settle(ctx context.Context) error {
	if e.debounce <= 0 {
		return nil
	}
	timer := time.NewTimer(e.debounce)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-e.queue.Wait():
			if !ok {
				return errStopped
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(e.debounce)
		case <-timer.C:
			return nil
		}
	}
}

// Stop unsubscribes from the page and makes Run return.
func (e *Engine) Stop() {
	e.mu.Lock()
	unsub := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
	e.queue.Close()
}

// Activate clicks the action of widget id. A failed mutation is returned
// as a VERIFICATION_FAILED error.
func (e *Engine) Activate(ctx context.Context, id ir.WidgetIdentity) error {
	err := e.layer.Activate(ctx, id)
	if errors.Is(err, mutation.ErrVerificationFailed) {
		return &Error{Code: ErrCodeVerificationFailed, Message: "cart add not verified", Campaign: id.CampaignID, Placement: id.Placement, Err: err}
	}
	return err
}

// Widgets returns the widget identities on the page.
func (e *Engine) Widgets() []ir.WidgetIdentity {
	return e.layer.Widgets()
}

// WidgetState returns the action state of widget id.
func (e *Engine) WidgetState(id ir.WidgetIdentity) (present.State, bool) {
	return e.layer.State(id)
}

// LastCart returns the snapshot read by the latest successful tick.
func (e *Engine) LastCart() (ir.CartSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastCart == nil {
		return ir.CartSnapshot{}, false
	}
	return *e.lastCart, true
}

// Campaigns returns the loaded campaigns.
func (e *Engine) Campaigns() []ir.CampaignConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.campaigns)
}

// StoreID returns the resolved store id, empty before Start.
func (e *Engine) StoreID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storeID
}

// ConfigSource returns where the config came from.
func (e *Engine) ConfigSource() configload.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Ticking reports whether a tick is running.
func (e *Engine) Ticking() bool {
	return e.ticking.Load()
}

// TickCount returns the number of ticks started.
func (e *Engine) TickCount() int64 {
	return e.clock.Current()
}

// checkHint compares the theme's cart hint with the fresh read. The hint
// never feeds a decision.
func (e *Engine) checkHint(snap ir.CartSnapshot) {
	if e.legacy == nil {
		return
	}
	hint, ok := e.legacy.CartHint()
	if ok && hint.Subtotal != snap.Subtotal {
		slog.Debug("legacy cart hint is stale", "hint_subtotal", hint.Subtotal, "subtotal", snap.Subtotal)
	}
}
