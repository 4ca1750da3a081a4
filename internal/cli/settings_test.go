package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salesboost/internal/ir"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 2, s.RetryMax)
	assert.Equal(t, 600*time.Millisecond, s.Debounce)
	assert.Equal(t, 2*time.Second, s.SettleDelay)
	assert.Equal(t, 5*time.Second, s.ConfigTimeout)
	assert.Equal(t, 10*time.Second, s.RequestTimeout)
	assert.Equal(t, "ARS", s.Currency)
	assert.Equal(t, []string{".js-ajax-cart-container", ".js-cart-panel", "#ajax-cart-details"}, s.Placements[ir.PlacementMinicart])
	assert.NoError(t, s.Validate())
}

func TestLoadSettings_NoFile(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettings_Precedence(t *testing.T) {
	path := writeFile(t, "salesboost.yaml", `
store_id: "100"
storefront_url: https://shop.example
retry_max: 4
debounce: 250ms
placements:
  popup: [".quick-view"]
`)
	t.Setenv("SALESBOOST_STORE_ID", "200")
	t.Setenv("SALESBOOST_SETTLE_DELAY", "1s")

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "200", s.StoreID, "env overrides file")
	assert.Equal(t, "https://shop.example", s.StorefrontURL)
	assert.Equal(t, 4, s.RetryMax)
	assert.Equal(t, 250*time.Millisecond, s.Debounce)
	assert.Equal(t, time.Second, s.SettleDelay)
	assert.Equal(t, []string{".quick-view"}, s.Placements[ir.PlacementPopup])
	assert.Len(t, s.Placements[ir.PlacementProduct], 4, "unlisted placements keep defaults")
}

func TestLoadSettings_Errors(t *testing.T) {
	_, err := LoadSettings(writeFile(t, "bad.yaml", "retry_max: [1"))
	assert.ErrorContains(t, err, "parse settings")

	_, err = LoadSettings(writeFile(t, "neg.yaml", "retry_max: -1"))
	assert.ErrorContains(t, err, "retry_max must be >= 0")

	_, err = LoadSettings("/does/not/exist.yaml")
	assert.ErrorContains(t, err, "read settings")

	t.Setenv("SALESBOOST_DEBOUNCE", "soon")
	_, err = LoadSettings("")
	assert.ErrorContains(t, err, "parse env")
}
