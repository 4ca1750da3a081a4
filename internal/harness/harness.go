package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roach88/salesboost/internal/analytics"
	"github.com/roach88/salesboost/internal/cart"
	"github.com/roach88/salesboost/internal/configload"
	"github.com/roach88/salesboost/internal/engine"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/page"
	"github.com/roach88/salesboost/internal/present"
	"github.com/roach88/salesboost/internal/store"
	"github.com/roach88/salesboost/internal/testutil"
)

// PageURL is the URL scenario pages are loaded under.
const PageURL = "https://shop.example/productos/remera"

// Harness executes one scenario.
type Harness struct {
	sc     *Scenario
	doc    *page.Document
	engine *engine.Engine
	sf     *testutil.Storefront
	cache  *store.Store
	result *Result

	mu      sync.Mutex
	settles []func()
}

// Run executes scenario against a fresh storefront, config service and
// in-memory config cache. The servers are closed by t.Cleanup.
//
// An error means the scenario could not be set up; expectation failures
// are reported in the Result.
func Run(t testing.TB, sc *Scenario) (*Result, error) {
	t.Helper()

	doc, err := page.ParseString(sc.Page, PageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	cache, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	t.Cleanup(func() { cache.Close() })

	if sc.CachedConfig != "" {
		id := sc.StoreID
		if id == "" {
			id = storeIDOf(doc)
		}
		if err := cache.PutConfig(context.Background(), id, []byte(sc.CachedConfig)); err != nil {
			return nil, fmt.Errorf("seed cache: %w", err)
		}
	}

	cs := testutil.NewConfigServer(t)
	if sc.ConfigService == "down" {
		cs.FailWith(503)
	}

	sf := testutil.NewStorefront(t)
	sf.SetMode(storefrontModes[sc.Storefront.Mode], sc.Storefront.FailFirst)
	if sc.Storefront.NoopStatus != 0 {
		sf.SetNoopStatus(sc.Storefront.NoopStatus)
	}
	for _, c := range sc.Catalog {
		sf.SetCatalog(ir.ID(c.Variant), ir.ID(c.Product), c.Price)
	}
	if sc.Cart != nil {
		sf.SetCart(sc.Cart.Subtotal, sc.Cart.lines()...)
	}

	client, err := cart.New(sf.URL())
	if err != nil {
		return nil, err
	}

	h := &Harness{sc: sc, doc: doc, sf: sf, cache: cache, result: NewResult()}

	opts := []engine.Option{
		engine.WithStoreID(sc.StoreID),
		engine.WithPageProductID(ir.ID(sc.PageProduct)),
		engine.WithTickIDs(&engine.SequenceGenerator{Prefix: "tick"}),
		engine.WithSink(analytics.Discard{}),
		engine.WithLayerOptions(
			present.WithAfterFunc(h.afterFunc),
			present.WithMoneyFormatter(pesos{}),
		),
	}
	if sc.RetryMax != nil {
		opts = append(opts, engine.WithRetryMax(*sc.RetryMax))
	}
	loader := configload.New(cs.URL(), cache, configload.WithTimeout(time.Second))
	h.engine = engine.New(doc, loader, client, opts...)
	t.Cleanup(h.engine.Stop)

	// The config service learns the store id only after resolution, so
	// register the document under every id the engine might send.
	for _, id := range []string{sc.StoreID, storeIDOf(doc)} {
		if id != "" {
			cs.SetDocument(id, []byte(sc.Config))
		}
	}

	ctx := context.Background()
	for i, step := range sc.Steps {
		h.execute(ctx, i, step)
	}
	h.result.Page = doc.String()

	checkAssertions(h, sc.Assertions)
	return h.result, nil
}

func (h *Harness) afterFunc(_ time.Duration, f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settles = append(h.settles, f)
}

func (h *Harness) execute(ctx context.Context, i int, step Step) {
	label := step.Action
	var err error

	switch step.Action {
	case StepStart:
		err = h.engine.Start(ctx)
		got := "ok"
		if engine.IsConfigUnavailable(err) {
			got = "unavailable"
		}
		if step.Expect != "" && step.Expect != got {
			h.result.AddError(fmt.Sprintf("steps[%d]: start: expected %s, got %s (%v)", i, step.Expect, got, err))
		}
	case StepTick:
		err = h.engine.Tick(ctx)
	case StepClick:
		label = "click " + step.Widget
		id, _ := ir.ParseWidgetIdentity(step.Widget)
		err = h.engine.Activate(ctx, id)
		got := "verified"
		if err != nil {
			got = "failed"
		}
		if step.Expect != "" && step.Expect != got {
			h.result.AddError(fmt.Sprintf("steps[%d]: click %s: expected %s, got %s (%v)", i, step.Widget, step.Expect, got, err))
		}
		err = h.flush(ctx, err)
	case StepCartEvent:
		h.doc.DispatchEvent(page.Event{Type: engine.ReasonCartEvent})
		err = h.flush(ctx, nil)
	case StepHostHTML:
		label = "host_html " + step.Selector
		target, _, ok := h.doc.QueryFirst([]string{step.Selector})
		if !ok {
			h.result.AddError(fmt.Sprintf("steps[%d]: no element matches %q", i, step.Selector))
			break
		}
		if aerr := h.doc.AppendHTML(target, step.HTML); aerr != nil {
			h.result.AddError(fmt.Sprintf("steps[%d]: %v", i, aerr))
			break
		}
		err = h.flush(ctx, nil)
	case StepSetCart:
		h.sf.SetCart(step.Cart.Subtotal, step.Cart.lines()...)
	case StepSettle:
		h.mu.Lock()
		settles := h.settles
		h.settles = nil
		h.mu.Unlock()
		for _, f := range settles {
			f()
		}
		err = h.flush(ctx, nil)
	}

	h.record(i, label, err)
}

// flush runs the tick a step scheduled. prev is kept when the tick is
// clean so a failed click stays visible in the trace.
func (h *Harness) flush(ctx context.Context, prev error) error {
	if _, err := h.engine.Flush(ctx); err != nil {
		return errors.Join(prev, err)
	}
	return prev
}

func (h *Harness) record(i int, step string, err error) {
	ev := TraceEvent{
		Seq:     i + 1,
		Step:    step,
		Ticks:   h.engine.TickCount(),
		Widgets: []string{},
		Posts:   h.sf.Posts(),
		Reads:   h.sf.Reads(),
		Error:   errorCode(err),
	}
	for _, id := range h.engine.Widgets() {
		ev.Widgets = append(ev.Widgets, id.Key())
	}
	slices.Sort(ev.Widgets)

	for _, key := range ev.Widgets {
		id, _ := ir.ParseWidgetIdentity(key)
		if state, ok := h.engine.WidgetState(id); ok && state != present.StateIdle {
			if ev.States == nil {
				ev.States = map[string]string{}
			}
			ev.States[key] = string(state)
		}
	}
	if snap, ok := h.engine.LastCart(); ok {
		ev.Subtotal = snap.Subtotal
	}
	h.result.Trace = append(h.result.Trace, ev)
}

// errorCode reduces err to its engine error codes.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var codes []string
	collectCodes(err, &codes)
	if len(codes) == 0 {
		return err.Error()
	}
	slices.Sort(codes)
	return strings.Join(slices.Compact(codes), ",")
}

func collectCodes(err error, codes *[]string) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collectCodes(e, codes)
		}
		return
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		*codes = append(*codes, string(ee.Code))
	}
}

func storeIDOf(doc *page.Document) string {
	n, _, ok := doc.QueryFirst([]string{"script[data-store-id]"})
	if !ok {
		return ""
	}
	id, _ := page.Attr(n, "data-store-id")
	return id
}

// pesos formats minor units as whole pesos so traces do not depend on
// locale data.
type pesos struct{}

func (pesos) FormatMoney(m ir.Money) string { return fmt.Sprintf("$ %d", m/100) }
