package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salesboost/internal/ir"
)

func camp(id string, priority int, placements ...ir.Placement) ir.CampaignConfig {
	return ir.CampaignConfig{
		ID:         id,
		Kind:       ir.KindOffer,
		Enabled:    true,
		Placements: placements,
		Priority:   priority,
	}
}

func cartWith(subtotal ir.Money, products ...ir.ID) ir.CartSnapshot {
	snap := ir.CartSnapshot{Subtotal: subtotal, Items: []ir.CartLine{}}
	for _, p := range products {
		snap.Items = append(snap.Items, ir.CartLine{ProductID: p, VariantID: p + "-v", Quantity: 1})
	}
	return snap
}

func TestSelect_HigherPriorityWins(t *testing.T) {
	configs := []ir.CampaignConfig{
		camp("low", 1, ir.PlacementProduct),
		camp("high", 9, ir.PlacementProduct),
	}

	got := Select(configs, cartWith(0), "", ir.PlacementProduct)
	require.NotNil(t, got)
	assert.Equal(t, "high", got.ID)
}

func TestSelect_EqualPriorityKeepsConfigOrder(t *testing.T) {
	configs := []ir.CampaignConfig{
		camp("first", 3, ir.PlacementProduct),
		camp("second", 3, ir.PlacementProduct),
		camp("third", 3, ir.PlacementProduct),
	}

	got := Select(configs, cartWith(0), "", ir.PlacementProduct)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ID)
}

func TestSelect_MinTotalBoundaryInclusive(t *testing.T) {
	c := camp("min", 0, ir.PlacementMinicart)
	c.MinTotal = 50000
	configs := []ir.CampaignConfig{c}

	assert.Nil(t, Select(configs, cartWith(49999), "", ir.PlacementMinicart))

	got := Select(configs, cartWith(50000), "", ir.PlacementMinicart)
	require.NotNil(t, got)
	assert.Equal(t, "min", got.ID)
}

func TestSelect_TriggerANDSemantics(t *testing.T) {
	c := camp("trig", 0, ir.PlacementProduct)
	c.Triggers = []ir.ID{"P1"}
	c.Logic = ir.LogicAnd
	configs := []ir.CampaignConfig{c}

	assert.NotNil(t, Select(configs, cartWith(0, "P1"), "", ir.PlacementProduct), "P1 in cart, any subtotal")
	assert.NotNil(t, Select(configs, cartWith(999999, "P1"), "", ir.PlacementProduct))
	assert.Nil(t, Select(configs, cartWith(999999, "P2"), "", ir.PlacementProduct), "cart without P1")
}

func TestSelect_TriggerMatchesPageProduct(t *testing.T) {
	c := camp("pdp", 0, ir.PlacementProduct)
	c.Triggers = []ir.ID{"P7"}
	configs := []ir.CampaignConfig{c}

	assert.NotNil(t, Select(configs, cartWith(0), "P7", ir.PlacementProduct))
	assert.Nil(t, Select(configs, cartWith(0), "P8", ir.PlacementProduct))
}

func TestSelect_ORSemantics(t *testing.T) {
	c := camp("or", 0, ir.PlacementProduct)
	c.Triggers = []ir.ID{"P1"}
	c.MinTotal = 1000
	c.Logic = ir.LogicOr
	configs := []ir.CampaignConfig{c}

	assert.NotNil(t, Select(configs, cartWith(1000), "", ir.PlacementProduct), "total alone")
	assert.NotNil(t, Select(configs, cartWith(0, "P1"), "", ir.PlacementProduct), "trigger alone")
	assert.Nil(t, Select(configs, cartWith(999, "P2"), "", ir.PlacementProduct), "neither")
}

func TestSelect_LogicDefaultsToAND(t *testing.T) {
	c := camp("default", 0, ir.PlacementProduct)
	c.Triggers = []ir.ID{"P1"}
	c.MinTotal = 1000
	c.Logic = ""
	configs := []ir.CampaignConfig{c}

	assert.Nil(t, Select(configs, cartWith(1000), "", ir.PlacementProduct))
	assert.Nil(t, Select(configs, cartWith(0, "P1"), "", ir.PlacementProduct))
	assert.NotNil(t, Select(configs, cartWith(1000, "P1"), "", ir.PlacementProduct))
}

func TestSelect_FiltersDisabledAndPlacement(t *testing.T) {
	disabled := camp("disabled", 100, ir.PlacementProduct)
	disabled.Enabled = false
	elsewhere := camp("elsewhere", 50, ir.PlacementPopup)
	configs := []ir.CampaignConfig{disabled, elsewhere, camp("ok", 1, ir.PlacementProduct)}

	got := Select(configs, cartWith(0), "", ir.PlacementProduct)
	require.NotNil(t, got)
	assert.Equal(t, "ok", got.ID)
}

func TestSelect_EmptyConfigs(t *testing.T) {
	assert.Nil(t, Select(nil, cartWith(0), "", ir.PlacementProduct))
}

func TestSelectAll_PlacementsResolvedIndependently(t *testing.T) {
	bar := camp("bar", 0, ir.PlacementMinicart)
	bar.Kind = ir.KindShippingBar
	bundle := camp("bundle", 5, ir.PlacementProduct)
	bundle.Kind = ir.KindBundle
	configs := []ir.CampaignConfig{bar, bundle}

	got := SelectAll(configs, cartWith(0), "", []ir.Placement{ir.PlacementMinicart, ir.PlacementProduct, ir.PlacementPopup})

	require.Len(t, got, 3)
	assert.Equal(t, "bar", got[ir.PlacementMinicart].ID)
	assert.Equal(t, "bundle", got[ir.PlacementProduct].ID)
	assert.Nil(t, got[ir.PlacementPopup])
}

func TestCandidates_Ordering(t *testing.T) {
	configs := []ir.CampaignConfig{
		camp("a", 1, ir.PlacementProduct),
		camp("b", 5, ir.PlacementProduct),
		camp("c", 1, ir.PlacementProduct),
		camp("d", 5, ir.PlacementProduct),
	}

	var ids []string
	for _, c := range Candidates(configs, cartWith(0), "", ir.PlacementProduct) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}

func TestCandidates_DoesNotReorderInput(t *testing.T) {
	configs := []ir.CampaignConfig{
		camp("a", 1, ir.PlacementProduct),
		camp("b", 5, ir.PlacementProduct),
	}

	_ = Candidates(configs, cartWith(0), "", ir.PlacementProduct)
	assert.Equal(t, "a", configs[0].ID)
	assert.Equal(t, "b", configs[1].ID)
}
