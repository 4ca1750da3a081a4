package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/present"
)

// checkAssertions evaluates every assertion against the final state and
// records failures in h.result.
func checkAssertions(h *Harness, assertions []Assertion) {
	for i, a := range assertions {
		if err := checkAssertion(h, a); err != nil {
			h.result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
}

func checkAssertion(h *Harness, a Assertion) error {
	switch a.Type {
	case AssertWidgetPresent:
		if n := len(h.doc.FindByAttr(present.WidgetAttr, a.Widget)); n != 1 {
			return fmt.Errorf("expected exactly one %s node, found %d", a.Widget, n)
		}
	case AssertWidgetAbsent:
		if n := len(h.doc.FindByAttr(present.WidgetAttr, a.Widget)); n != 0 {
			return fmt.Errorf("expected no %s node, found %d", a.Widget, n)
		}
	case AssertWidgetState:
		id, err := ir.ParseWidgetIdentity(a.Widget)
		if err != nil {
			return err
		}
		state, ok := h.engine.WidgetState(id)
		if !ok {
			return fmt.Errorf("widget %s not rendered", a.Widget)
		}
		if string(state) != a.State {
			return fmt.Errorf("expected state %s, got %s", a.State, state)
		}
	case AssertCartContains:
		snap := h.sf.Cart()
		if !snap.Contains(ir.Item{VariantID: ir.ID(a.Variant)}) {
			return fmt.Errorf("variant %s not in cart %v", a.Variant, snap.Items)
		}
	case AssertPosts:
		if got := h.sf.Posts(); got != a.Count {
			return fmt.Errorf("expected %d add POSTs, got %d", a.Count, got)
		}
	case AssertReads:
		if got := h.sf.Reads(); got != a.Count {
			return fmt.Errorf("expected %d cart reads, got %d", a.Count, got)
		}
	case AssertTicks:
		if got := h.engine.TickCount(); got != int64(a.Count) {
			return fmt.Errorf("expected %d ticks, got %d", a.Count, got)
		}
	case AssertEventCount:
		got := 0
		for _, ev := range h.doc.Dispatched() {
			if ev.Type == a.Event {
				got++
			}
		}
		if got != a.Count {
			return fmt.Errorf("expected %d %s events, got %d", a.Count, a.Event, got)
		}
	case AssertPageContains:
		if !strings.Contains(h.result.Page, a.Contains) {
			return fmt.Errorf("page does not contain %q", a.Contains)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
