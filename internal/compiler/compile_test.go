package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salesboost/internal/ir"
)

const fullConfig = `{
  "general": {"storeId": "6325197", "theme": "dark"},
  "smartOffers": [
    {
      "id": "o1",
      "name": "Serum upsell",
      "status": "active",
      "placements": ["product", "minicart"],
      "triggers": [{"id": 111}, "P2"],
      "logic": "or",
      "minTotal": 50000,
      "priority": 5,
      "title": "Sumá el serum",
      "ctaText": "Lo quiero",
      "offerProduct": {"id": 900, "variantId": 901},
      "theme": {"primaryColor": "#ff0000", "borderRadius": 4}
    }
  ],
  "bundles": [
    {
      "id": 77,
      "label": "PACK AHORRO",
      "enabled": true,
      "placements": ["product"],
      "badge": "-20% OFF",
      "products": [{"id": 1, "name": "A", "price": 1000}, {"id": 2, "variantId": 22, "qty": 2}]
    }
  ],
  "cartGifts": {"enabled": true, "threshold": 80000, "productId": 555, "msgSuccess": "Ganaste un regalo", "placements": ["minicart"]},
  "shippingBar": {"enabled": true, "threshold": 100000, "msgProgress": "Te faltan {remaining}", "placements": ["minicart"], "color": "#000000"},
  "whatsappRecovery": {"enabled": false},
  "learnedPayments": []
}`

func TestCompile_FullDocument(t *testing.T) {
	camps, err := Compile([]byte(fullConfig))
	require.NoError(t, err)
	require.Len(t, camps, 4)

	// Configuration order: offers, bundles, gift, shipping bar.
	assert.Equal(t, []string{"o1", "77", CartGiftID, ShippingBarID},
		[]string{camps[0].ID, camps[1].ID, camps[2].ID, camps[3].ID})

	offer := camps[0]
	assert.Equal(t, ir.KindOffer, offer.Kind)
	assert.True(t, offer.Enabled, "status active enables the offer")
	assert.Equal(t, ir.LogicOr, offer.Logic)
	assert.Equal(t, []ir.ID{"111", "P2"}, offer.Triggers)
	assert.Equal(t, ir.Money(50000), offer.MinTotal)
	assert.Equal(t, 5, offer.Priority)
	assert.Equal(t, "Lo quiero", offer.Content.CTA)
	assert.Equal(t, []ir.Item{{ProductID: "900", VariantID: "901"}}, offer.Payload.Items)
	assert.True(t, offer.Placements.Has(ir.PlacementMinicart))
	assert.Equal(t, 4, offer.Theme.BorderRadius)

	bundle := camps[1]
	assert.Equal(t, ir.KindBundle, bundle.Kind)
	assert.Equal(t, ir.LogicAnd, bundle.Logic, "logic defaults to AND")
	assert.Equal(t, "PACK AHORRO", bundle.Content.Title)
	assert.Equal(t, []ir.Item{{ProductID: "1"}, {ProductID: "2", VariantID: "22", Qty: 2}}, bundle.Payload.Items)

	gift := camps[2]
	assert.Equal(t, ir.KindGift, gift.Kind)
	assert.Equal(t, ir.Money(80000), gift.MinTotal)
	assert.Equal(t, []ir.Item{{ProductID: "555"}}, gift.Payload.Items)

	bar := camps[3]
	assert.Equal(t, ir.KindShippingBar, bar.Kind)
	assert.Equal(t, ir.Money(0), bar.MinTotal)
	assert.Equal(t, ir.Money(100000), bar.Threshold)
	assert.Empty(t, bar.Payload.Items)
	assert.Equal(t, "#000000", bar.Theme.PrimaryColor)
}

func TestCompile_ModuleFlagsDisableFamilies(t *testing.T) {
	raw := `{
	  "modules": {"offersEnabled": false},
	  "smartOffers": [{"id": "o1", "enabled": true}],
	  "bundles": [{"id": "b1", "enabled": true}]
	}`

	camps, err := Compile([]byte(raw))
	require.NoError(t, err)
	require.Len(t, camps, 2)
	assert.False(t, camps[0].Enabled, "offers module off")
	assert.True(t, camps[1].Enabled, "absent bundles flag means enabled")
}

func TestCompile_EnabledResolution(t *testing.T) {
	raw := `{"smartOffers": [
	  {"id": "a"},
	  {"id": "b", "status": "paused"},
	  {"id": "c", "status": "ACTIVE"},
	  {"id": "d", "enabled": false, "status": "active"}
	]}`

	camps, err := Compile([]byte(raw))
	require.NoError(t, err)
	require.Len(t, camps, 4)

	assert.True(t, camps[0].Enabled)
	assert.False(t, camps[1].Enabled)
	assert.True(t, camps[2].Enabled)
	assert.False(t, camps[3].Enabled, "explicit flag wins over status")
}

func TestCompile_EmptyDocument(t *testing.T) {
	camps, err := Compile([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, camps)
}

func TestCompile_AcceptsEscapedSlash(t *testing.T) {
	raw := `{"smartOffers": [{"id": "o1", "title": "https:\/\/shop.example\/x"}]}`

	camps, err := Compile([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/x", camps[0].Content.Title)
}

func TestCompile_DuplicateIDs(t *testing.T) {
	raw := `{"smartOffers": [{"id": "x"}], "bundles": [{"id": "x"}]}`

	rep, err := CompileReport([]byte(raw))
	require.NoError(t, err)
	require.Len(t, rep.Campaigns, 1)
	assert.Equal(t, ir.KindOffer, rep.Campaigns[0].Kind, "first use of the id wins")

	require.Len(t, rep.Dropped, 1)
	assert.Equal(t, "bundles[0].id", rep.Dropped[0].Field)
	assert.Contains(t, rep.Dropped[0].Message, "smartOffers[0]")
}

func TestCompile_BadEntryKeepsSiblings(t *testing.T) {
	raw := `{
	  "smartOffers": [{"id": "O1", "minTotal": 12.5}, {"id": "O2", "minTotal": 500}],
	  "bundles": [{"id": "B1", "products": [{"id": "P1", "variantId": "V1"}]}],
	  "cartGifts": {"enabled": true, "threshold": 999.99, "productId": 5},
	  "shippingBar": {"enabled": true, "threshold": 50000}
	}`

	camps, err := Compile([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"O2", "B1", ShippingBarID}, ids(camps))
	assert.Equal(t, []ir.Item{{ProductID: "P1", VariantID: "V1"}}, camps[1].Payload.Items)

	rep, err := CompileReport([]byte(raw))
	require.NoError(t, err)
	require.Len(t, rep.Dropped, 2)
	assert.Equal(t, "smartOffers[0].minTotal", rep.Dropped[0].Field)
	assert.True(t, strings.HasPrefix(rep.Dropped[1].Field, "cartGifts"), rep.Dropped[1].Field)
	assert.False(t, rep.Dropped[0].Pos.IsValid())
}

func TestCompile_SectionNotAList(t *testing.T) {
	raw := `{"bundles": "nope", "smartOffers": [{"id": "o1"}]}`

	rep, err := CompileReport([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ids(rep.Campaigns))
	require.Len(t, rep.Dropped, 1)
	assert.Equal(t, "bundles", rep.Dropped[0].Field)
}

func TestCompile_BadModulesMeansEnabled(t *testing.T) {
	raw := `{"modules": {"offersEnabled": "no"}, "smartOffers": [{"id": "o1"}]}`

	rep, err := CompileReport([]byte(raw))
	require.NoError(t, err)
	require.Len(t, rep.Campaigns, 1)
	assert.True(t, rep.Campaigns[0].Enabled)
	require.Len(t, rep.Dropped, 1)
	assert.True(t, strings.HasPrefix(rep.Dropped[0].Field, "modules"), rep.Dropped[0].Field)
}

func TestCompile_BareProductIDs(t *testing.T) {
	raw := `{"bundles": [{"id": "b1", "products": [11, "P2", {"id": 3, "variantId": 33}]}],
	  "cartGifts": {"enabled": true, "giftProducts": [7]}}`

	rep, err := CompileReport([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, rep.Dropped)
	require.Len(t, rep.Campaigns, 2)
	assert.Equal(t, []ir.Item{{ProductID: "11"}, {ProductID: "P2"}, {ProductID: "3", VariantID: "33"}}, rep.Campaigns[0].Payload.Items)
	assert.Equal(t, []ir.Item{{ProductID: "7"}}, rep.Campaigns[1].Payload.Items)
}

func TestCompile_NotAnObject(t *testing.T) {
	for _, raw := range []string{`{"smartOffers": [`, `[]`, `"config"`} {
		_, err := Compile([]byte(raw))
		require.Error(t, err, raw)

		var ce *CompileError
		require.True(t, errors.As(err, &ce), raw)
		assert.Equal(t, "config", ce.Field)
	}
}

func TestRelocate(t *testing.T) {
	tests := []struct {
		field, path, want string
	}{
		{"smartOffers[0]", "#Offer.minTotal", "smartOffers[0].minTotal"},
		{"smartOffers[0]", "minTotal", "smartOffers[0].minTotal"},
		{"bundles[1]", "#Bundle.products[0].qty", "bundles[1].products[0].qty"},
		{"shippingBar", "#ShippingBar", "shippingBar"},
		{"cartGifts", "config", "cartGifts"},
	}
	for _, tt := range tests {
		ce := relocate(tt.field, &CompileError{Field: tt.path, Message: "bad"})
		assert.Equal(t, tt.want, ce.Field, tt.path)
	}
}

func ids(camps []ir.CampaignConfig) []string {
	out := make([]string, 0, len(camps))
	for _, c := range camps {
		out = append(out, c.ID)
	}
	return out
}

func TestValidate_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing id", `{"bundles": [{"label": "no id"}]}`},
		{"float money", `{"smartOffers": [{"id": "o", "minTotal": 499.5}]}`},
		{"negative threshold", `{"shippingBar": {"threshold": -1}}`},
		{"bad logic", `{"smartOffers": [{"id": "o", "logic": "XOR"}]}`},
		{"placements not a list", `{"smartOffers": [{"id": "o", "placements": "product"}]}`},
		{"zero qty", `{"bundles": [{"id": "b", "products": [{"id": 1, "qty": 0}]}]}`},
		{"not json", `{"smartOffers": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.raw))
			require.Error(t, err)

			var ce *CompileError
			assert.True(t, errors.As(err, &ce), "want *CompileError, got %T: %v", err, err)
		})
	}
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "bundles[2].products", fieldPath([]string{"bundles", "2", "products"}))
	assert.Equal(t, "shippingBar", fieldPath([]string{"shippingBar"}))
}
