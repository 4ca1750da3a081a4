package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/salesboost/internal/cart"
	"github.com/roach88/salesboost/internal/configload"
	"github.com/roach88/salesboost/internal/engine"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/mutation"
	"github.com/roach88/salesboost/internal/present"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SALESBOOST_"

// Settings configures one engine instance.
//
// Precedence: defaults < YAML file < environment < flags.
type Settings struct {
	StoreID           string        `yaml:"store_id" env:"STORE_ID"`
	ConfigEndpoint    string        `yaml:"config_endpoint" env:"CONFIG_ENDPOINT"`
	StorefrontURL     string        `yaml:"storefront_url" env:"STOREFRONT_URL"`
	CacheDB           string        `yaml:"cache_db" env:"CACHE_DB"`
	RetryMax          int           `yaml:"retry_max" env:"RETRY_MAX"`
	Debounce          time.Duration `yaml:"debounce" env:"DEBOUNCE"`
	SettleDelay       time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
	ConfigTimeout     time.Duration `yaml:"config_timeout" env:"CONFIG_TIMEOUT"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	AnalyticsEndpoint string        `yaml:"analytics_endpoint" env:"ANALYTICS_ENDPOINT"`
	Device            string        `yaml:"device" env:"DEVICE"`
	MetricsAddr       string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	Currency          string        `yaml:"currency" env:"CURRENCY"`
	Locale            string        `yaml:"locale" env:"LOCALE"`
	PageProductID     string        `yaml:"page_product_id" env:"PAGE_PRODUCT_ID"`

	// Placements maps a placement to its ordered insertion selectors.
	// Placements missing here keep their defaults.
	Placements map[ir.Placement][]string `yaml:"placements"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		RetryMax:       mutation.DefaultRetryMax,
		Debounce:       engine.DefaultDebounce,
		SettleDelay:    present.DefaultSettleDelay,
		ConfigTimeout:  configload.DefaultTimeout,
		RequestTimeout: cart.DefaultTimeout,
		Device:         "desktop",
		Currency:       "ARS",
		Locale:         "es-AR",
		Placements:     present.DefaultSelectors(),
	}
}

// LoadSettings applies the YAML file at path (skipped when empty) and then
// the environment on top of the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
		var file Settings
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
		s.merge(file)
	}

	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, s.Validate()
}

// merge copies the non-zero fields of o onto s.
func (s *Settings) merge(o Settings) {
	setString(&s.StoreID, o.StoreID)
	setString(&s.ConfigEndpoint, o.ConfigEndpoint)
	setString(&s.StorefrontURL, o.StorefrontURL)
	setString(&s.CacheDB, o.CacheDB)
	setString(&s.AnalyticsEndpoint, o.AnalyticsEndpoint)
	setString(&s.Device, o.Device)
	setString(&s.MetricsAddr, o.MetricsAddr)
	setString(&s.Currency, o.Currency)
	setString(&s.Locale, o.Locale)
	setString(&s.PageProductID, o.PageProductID)
	if o.RetryMax != 0 {
		s.RetryMax = o.RetryMax
	}
	setDuration(&s.Debounce, o.Debounce)
	setDuration(&s.SettleDelay, o.SettleDelay)
	setDuration(&s.ConfigTimeout, o.ConfigTimeout)
	setDuration(&s.RequestTimeout, o.RequestTimeout)
	for p, sel := range o.Placements {
		s.Placements[p] = sel
	}
}

// Validate rejects settings no engine can run with.
func (s Settings) Validate() error {
	var errs []error
	if s.RetryMax < 0 {
		errs = append(errs, fmt.Errorf("retry_max must be >= 0, got %d", s.RetryMax))
	}
	for name, d := range map[string]time.Duration{
		"debounce":        s.Debounce,
		"settle_delay":    s.SettleDelay,
		"config_timeout":  s.ConfigTimeout,
		"request_timeout": s.RequestTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	for p, sel := range s.Placements {
		if len(sel) == 0 {
			errs = append(errs, fmt.Errorf("placements.%s: no selectors", p))
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
