package present

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/roach88/salesboost/internal/analytics"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/metrics"
	"github.com/roach88/salesboost/internal/mutation"
	"github.com/roach88/salesboost/internal/page"
)

// DefaultSettleDelay is how long the success state stays before the
// follow-up re-evaluation.
const DefaultSettleDelay = 2 * time.Second

// State is the action state of a widget.
type State string

const (
	StateIdle    State = "idle"
	StateBusy    State = "busy"
	StateSuccess State = "success"
	StateRetry   State = "retry"
)

// Mutator runs a campaign's cart mutation. Implemented by *mutation.Engine.
type Mutator interface {
	AddSequential(ctx context.Context, req ir.MutationRequest) ir.MutationOutcome
}

// DefaultSelectors are the insertion selectors probed per placement.
func DefaultSelectors() map[ir.Placement][]string {
	return map[ir.Placement][]string{
		ir.PlacementProduct:  {".js-product-form", "#product_form", ".js-addtocart", ".product-buy-container"},
		ir.PlacementMinicart: {".js-ajax-cart-container", ".js-cart-panel", "#ajax-cart-details"},
		ir.PlacementPopup:    {".js-modal-body", ".modal-body"},
	}
}

type widget struct {
	id       ir.WidgetIdentity
	campaign ir.CampaignConfig
	node     *html.Node
	state    State
	// inFlight holds the widget in place across ticks, from click until
	// the settle delay ran out or the action failed.
	inFlight bool
}

// Layer renders widgets into a Document and runs their actions.
//
// Thread-safety: Render and Activate may be called from different
// goroutines. The tick loop calls Render; each click runs Activate on its
// own goroutine.
type Layer struct {
	doc         *page.Document
	mutator     Mutator
	selectors   map[ir.Placement][]string
	sink        analytics.Sink
	metrics     *metrics.Metrics
	money       MoneyFormatter
	settleDelay time.Duration
	schedule    func(reason string)
	afterFunc   func(d time.Duration, fn func())
	device      string
	now         func() time.Time

	mu      sync.Mutex
	widgets map[string]*widget
	viewed  map[string]bool
}

// Option configures a Layer.
type Option func(*Layer)

// WithSelectors overrides the insertion selectors of the given placements.
func WithSelectors(sel map[ir.Placement][]string) Option {
	return func(l *Layer) {
		for p, s := range sel {
			l.selectors[p] = append([]string(nil), s...)
		}
	}
}

// WithSink sets the analytics sink.
func WithSink(s analytics.Sink) Option {
	return func(l *Layer) { l.sink = s }
}

// WithMetrics records renders and skips.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Layer) { l.metrics = m }
}

// WithMoneyFormatter sets how shipping bar amounts are shown.
func WithMoneyFormatter(f MoneyFormatter) Option {
	return func(l *Layer) { l.money = f }
}

// WithSettleDelay sets how long a success state stays before the
// follow-up tick.
func WithSettleDelay(d time.Duration) Option {
	return func(l *Layer) { l.settleDelay = d }
}

// WithScheduler sets the function asked for a new tick after a settled
// success. The engine passes its Trigger.
func WithScheduler(fn func(reason string)) Option {
	return func(l *Layer) { l.schedule = fn }
}

// WithAfterFunc replaces time.AfterFunc for the settle delay.
func WithAfterFunc(fn func(d time.Duration, f func())) Option {
	return func(l *Layer) { l.afterFunc = fn }
}

// WithDevice sets the device reported in analytics events.
func WithDevice(device string) Option {
	return func(l *Layer) { l.device = device }
}

// WithNow replaces time.Now for analytics timestamps.
func WithNow(now func() time.Time) Option {
	return func(l *Layer) { l.now = now }
}

// NewLayer creates a presentation layer over doc.
func NewLayer(doc *page.Document, m Mutator, opts ...Option) *Layer {
	money, _ := NewCurrencyFormatter("ARS", "es-AR")
	l := &Layer{
		doc:         doc,
		mutator:     m,
		selectors:   DefaultSelectors(),
		sink:        analytics.Discard{},
		money:       money,
		settleDelay: DefaultSettleDelay,
		schedule:    func(string) {},
		afterFunc:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		device:      "unknown",
		now:         time.Now,
		widgets:     make(map[string]*widget),
		viewed:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Render makes winner the only widget of placement.
//
// Widgets of other campaigns at placement are removed; with a nil winner
// the placement ends empty. Every existing node of the winner's identity
// is removed before the new one is inserted, so repeated renders leave
// exactly one node. A widget whose action is in flight is left in place.
func (l *Layer) Render(ctx context.Context, placement ir.Placement, winner *ir.CampaignConfig, cart ir.CartSnapshot) error {
	keep := ""
	if winner != nil {
		keep = ir.WidgetIdentity{CampaignID: winner.ID, Placement: placement}.Key()
	}
	l.removeStale(placement, keep)

	if winner == nil {
		return nil
	}
	id := ir.WidgetIdentity{CampaignID: winner.ID, Placement: placement}

	l.mu.Lock()
	w := l.widgets[id.Key()]
	busy := w != nil && w.inFlight && l.doc.Attached(w.node)
	retry := w != nil && w.state == StateRetry
	l.mu.Unlock()
	if busy {
		slog.Debug("widget action in flight, keeping node", "widget", id)
		return nil
	}

	view, err := NewView(winner, placement, cart, l.money)
	if err != nil {
		return err
	}
	node, err := BuildNode(view)
	if err != nil {
		return err
	}

	l.removeIdentity(id)

	selectors := l.selectors[placement]
	ref, matched, ok := l.doc.QueryFirst(selectors)
	if !ok {
		l.metrics.RecordSkip(string(placement))
		return &InsertionError{Widget: id, Selectors: selectors}
	}
	if err := l.doc.InsertAfter(ref, node); err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}

	nw := &widget{id: id, campaign: *winner, node: node, state: StateIdle}
	l.mu.Lock()
	l.widgets[id.Key()] = nw
	firstView := !l.viewed[id.Key()]
	l.viewed[id.Key()] = true
	l.mu.Unlock()

	// A failed action keeps offering the retry until it succeeds.
	if retry && view.Actionable() {
		l.mu.Lock()
		nw.state = StateRetry
		l.mu.Unlock()
		l.setControl(nw, StateRetry, LabelRetry, false)
	}

	l.metrics.RecordRender(string(placement), string(winner.Kind))
	slog.Debug("widget rendered", "widget", id, "kind", winner.Kind, "selector", matched)

	if firstView {
		l.track(analytics.EventView, winner, placement, nil)
	}
	return nil
}

// Activate runs the action of the widget id, as a click on its control.
//
// The control is disabled and shows the busy label while the mutation
// runs. On success it shows the success label and, after the settle
// delay, asks for a new tick. On failure it is re-enabled with the retry
// label and the verification error is returned. Clicks on a widget whose
// action is already in flight are ignored.
func (l *Layer) Activate(ctx context.Context, id ir.WidgetIdentity) error {
	l.mu.Lock()
	w := l.widgets[id.Key()]
	if w == nil || !l.doc.Attached(w.node) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWidget, id)
	}
	if w.campaign.Kind == ir.KindShippingBar {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotActionable, id)
	}
	if w.inFlight {
		l.mu.Unlock()
		slog.Debug("ignoring click on busy widget", "widget", id)
		return nil
	}
	w.inFlight = true
	w.state = StateBusy
	campaign := w.campaign
	l.mu.Unlock()

	l.setControl(w, StateBusy, LabelBusy, true)
	l.track(analytics.EventOfferClick, &campaign, id.Placement, nil)

	req := campaign.MutationRequest()
	out := l.mutator.AddSequential(ctx, req)

	if !out.Success {
		l.mu.Lock()
		w.state = StateRetry
		w.inFlight = false
		l.mu.Unlock()
		l.setControl(w, StateRetry, LabelRetry, false)

		err := mutation.OutcomeErr(out, req)
		slog.Info("widget action failed", "widget", id, "failed_at", out.FailedAt, "error", err)
		return err
	}

	l.mu.Lock()
	w.state = StateSuccess
	l.mu.Unlock()
	l.setControl(w, StateSuccess, LabelSuccess, true)

	event := analytics.EventOfferAdd
	if campaign.Kind == ir.KindBundle {
		event = analytics.EventAddedCombo
	}
	l.track(event, &campaign, id.Placement, map[string]any{"attempts": out.Attempts})

	l.afterFunc(l.settleDelay, func() {
		l.mu.Lock()
		w.inFlight = false
		l.mu.Unlock()
		l.schedule("settled")
	})
	return nil
}

// State returns the action state of the widget id.
func (l *Layer) State(id ir.WidgetIdentity) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.widgets[id.Key()]
	if w == nil || !l.doc.Attached(w.node) {
		return "", false
	}
	return w.state, true
}

// Widgets returns the identities of every widget node on the page, in
// document order.
func (l *Layer) Widgets() []ir.WidgetIdentity {
	var out []ir.WidgetIdentity
	for _, n := range l.doc.FindAllWithAttr(WidgetAttr) {
		key, _ := page.Attr(n, WidgetAttr)
		id, err := ir.ParseWidgetIdentity(key)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// removeStale removes the widgets of placement other than keep, unless
// their action is in flight.
func (l *Layer) removeStale(placement ir.Placement, keep string) {
	for _, n := range l.doc.FindByAttr(PlacementAttr, string(placement)) {
		key, ok := page.Attr(n, WidgetAttr)
		if !ok || key == keep {
			continue
		}

		l.mu.Lock()
		w := l.widgets[key]
		held := w != nil && w.node == n && w.inFlight
		if !held && w != nil && w.node == n {
			delete(l.widgets, key)
		}
		l.mu.Unlock()

		if held {
			continue
		}
		l.doc.Remove(n)
		slog.Debug("removed stale widget", "widget", key)
	}
}

// removeIdentity removes every node carrying the identity id.
func (l *Layer) removeIdentity(id ir.WidgetIdentity) {
	for _, n := range l.doc.FindByAttr(WidgetAttr, id.Key()) {
		l.doc.Remove(n)
	}
	l.mu.Lock()
	delete(l.widgets, id.Key())
	l.mu.Unlock()
}

func (l *Layer) setControl(w *widget, state State, label string, disabled bool) {
	l.doc.Update(func(*html.Node) {
		btn := page.ShadowQuery(w.node, "#"+ActionID)
		if btn == nil {
			return
		}
		page.SetAttr(btn, StateAttr, string(state))
		if disabled {
			page.SetAttr(btn, "disabled", "")
		} else {
			page.RemoveAttr(btn, "disabled")
		}
		page.SetText(btn, label)
	})
}

func (l *Layer) track(event string, c *ir.CampaignConfig, placement ir.Placement, extra map[string]any) {
	meta := map[string]any{
		"kind":      string(c.Kind),
		"placement": string(placement),
	}
	for k, v := range extra {
		meta[k] = v
	}
	l.sink.Track(analytics.Event{
		Event:     event,
		ComboID:   c.ID,
		URL:       l.doc.URL(),
		Timestamp: l.now().UnixMilli(),
		Device:    l.device,
		Meta:      meta,
	})
}
