// Package selector picks the winning campaign of a placement.
//
// Every function here is pure: no state, no I/O, no clocks. Identical
// (configs, cart, pageProductID, placement) input always yields the
// identical winner, so overlapping re-evaluation ticks can call it freely.
package selector

import (
	"cmp"
	"slices"

	"github.com/roach88/salesboost/internal/ir"
)

// MinTotalMet reports whether the cart subtotal reaches the campaign
// minimum. The boundary is inclusive.
func MinTotalMet(c *ir.CampaignConfig, cart ir.CartSnapshot) bool {
	return cart.Subtotal >= c.MinTotal
}

// TriggerMet reports whether any trigger product is in the cart or is the
// product of the current page. A campaign without triggers always meets
// this condition.
func TriggerMet(c *ir.CampaignConfig, cart ir.CartSnapshot, pageProductID ir.ID) bool {
	if len(c.Triggers) == 0 {
		return true
	}
	for _, t := range c.Triggers {
		if !pageProductID.IsZero() && t == pageProductID {
			return true
		}
		if cart.HasProduct(t) {
			return true
		}
	}
	return false
}

// Eligible combines MinTotalMet and TriggerMet with the campaign logic
// (AND unless OR is configured). Enabled and placement are not checked.
func Eligible(c *ir.CampaignConfig, cart ir.CartSnapshot, pageProductID ir.ID) bool {
	total := MinTotalMet(c, cart)
	trigger := TriggerMet(c, cart, pageProductID)
	if c.EffectiveLogic() == ir.LogicOr {
		return total || trigger
	}
	return total && trigger
}

// Candidates returns every enabled, eligible campaign of the placement,
// by priority descending. Equal priorities keep configuration order.
//
// The returned pointers point into configs.
func Candidates(configs []ir.CampaignConfig, cart ir.CartSnapshot, pageProductID ir.ID, placement ir.Placement) []*ir.CampaignConfig {
	var out []*ir.CampaignConfig
	for i := range configs {
		c := &configs[i]
		if !c.Enabled || !c.Placements.Has(placement) {
			continue
		}
		if !Eligible(c, cart, pageProductID) {
			continue
		}
		out = append(out, c)
	}

	slices.SortStableFunc(out, func(a, b *ir.CampaignConfig) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return out
}

// Select returns the winner of the placement or nil.
// The returned pointer points into configs.
func Select(configs []ir.CampaignConfig, cart ir.CartSnapshot, pageProductID ir.ID, placement ir.Placement) *ir.CampaignConfig {
	candidates := Candidates(configs, cart, pageProductID, placement)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// SelectAll resolves each placement independently. Placements without a
// winner map to nil so callers can clear them.
func SelectAll(configs []ir.CampaignConfig, cart ir.CartSnapshot, pageProductID ir.ID, placements []ir.Placement) map[ir.Placement]*ir.CampaignConfig {
	out := make(map[ir.Placement]*ir.CampaignConfig, len(placements))
	for _, p := range placements {
		out[p] = Select(configs, cart, pageProductID, p)
	}
	return out
}
