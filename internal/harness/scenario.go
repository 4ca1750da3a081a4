package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/testutil"
)

// Scenario is one storefront scenario.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Page is the host page markup.
	Page string `yaml:"page"`

	// StoreID overrides the store id found on the page.
	StoreID string `yaml:"store_id,omitempty"`

	// PageProduct overrides the product id found on the page.
	PageProduct string `yaml:"page_product,omitempty"`

	// Config is the document served by the config service.
	Config string `yaml:"config"`

	// ConfigService is "up" (default) or "down".
	ConfigService string `yaml:"config_service,omitempty"`

	// CachedConfig seeds the durable cache before start.
	CachedConfig string `yaml:"cached_config,omitempty"`

	Catalog    []CatalogEntry `yaml:"catalog,omitempty"`
	Cart       *CartSpec      `yaml:"cart,omitempty"`
	Storefront StorefrontSpec `yaml:"storefront,omitempty"`

	// RetryMax overrides the retries per item.
	RetryMax *int `yaml:"retry_max,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// CatalogEntry prices a variant of the fake storefront.
type CatalogEntry struct {
	Variant string   `yaml:"variant"`
	Product string   `yaml:"product"`
	Price   ir.Money `yaml:"price"`
}

// CartSpec is a storefront cart.
type CartSpec struct {
	Subtotal ir.Money   `yaml:"subtotal"`
	Lines    []LineSpec `yaml:"lines,omitempty"`
}

// LineSpec is one cart line.
type LineSpec struct {
	Product  string `yaml:"product"`
	Variant  string `yaml:"variant"`
	Quantity int    `yaml:"quantity"`
}

func (c CartSpec) lines() []ir.CartLine {
	out := make([]ir.CartLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		out = append(out, ir.CartLine{ProductID: ir.ID(l.Product), VariantID: ir.ID(l.Variant), Quantity: qty})
	}
	return out
}

// StorefrontSpec sets how the fake storefront answers adds.
type StorefrontSpec struct {
	// Mode is truthful (default), silent_noop or fail_first.
	Mode       string `yaml:"mode,omitempty"`
	FailFirst  int    `yaml:"fail_first,omitempty"`
	NoopStatus int    `yaml:"noop_status,omitempty"`
}

var storefrontModes = map[string]testutil.AddMode{
	"":            testutil.AddTruthful,
	"truthful":    testutil.AddTruthful,
	"silent_noop": testutil.AddSilentNoop,
	"fail_first":  testutil.AddFailFirst,
}

// Step is one scenario step.
type Step struct {
	Action   string    `yaml:"action"`
	Widget   string    `yaml:"widget,omitempty"`
	Selector string    `yaml:"selector,omitempty"`
	HTML     string    `yaml:"html,omitempty"`
	Cart     *CartSpec `yaml:"cart,omitempty"`

	// Expect is checked by start (ok, unavailable) and click (verified,
	// failed).
	Expect string `yaml:"expect,omitempty"`
}

// Step actions.
const (
	StepStart     = "start"
	StepTick      = "tick"
	StepClick     = "click"
	StepCartEvent = "cart_event"
	StepHostHTML  = "host_html"
	StepSetCart   = "set_cart"
	StepSettle    = "settle"
)

// Assertion checks the final page, cart or storefront counters.
type Assertion struct {
	Type     string `yaml:"type"`
	Widget   string `yaml:"widget,omitempty"`
	State    string `yaml:"state,omitempty"`
	Variant  string `yaml:"variant,omitempty"`
	Event    string `yaml:"event,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Count    int    `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertWidgetPresent = "widget_present"
	AssertWidgetAbsent  = "widget_absent"
	AssertWidgetState   = "widget_state"
	AssertCartContains  = "cart_contains"
	AssertPosts         = "posts"
	AssertReads         = "reads"
	AssertEventCount    = "event_count"
	AssertTicks         = "ticks"
	AssertPageContains  = "page_contains"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so
// typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Page == "" {
		return fmt.Errorf("page is required")
	}
	if s.ConfigService != "" && s.ConfigService != "up" && s.ConfigService != "down" {
		return fmt.Errorf("config_service must be up or down, got %q", s.ConfigService)
	}
	if _, ok := storefrontModes[s.Storefront.Mode]; !ok {
		return fmt.Errorf("storefront.mode: unknown mode %q", s.Storefront.Mode)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Steps[0].Action != StepStart {
		return fmt.Errorf("steps[0]: first step must be %s", StepStart)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch step.Action {
	case StepStart:
		if step.Expect != "" && step.Expect != "ok" && step.Expect != "unavailable" {
			return fmt.Errorf("steps[%d]: start expects ok or unavailable", i)
		}
	case StepTick, StepCartEvent, StepSettle:
	case StepClick:
		if _, err := ir.ParseWidgetIdentity(step.Widget); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Expect != "" && step.Expect != "verified" && step.Expect != "failed" {
			return fmt.Errorf("steps[%d]: click expects verified or failed", i)
		}
	case StepHostHTML:
		if step.Selector == "" || step.HTML == "" {
			return fmt.Errorf("steps[%d]: host_html needs selector and html", i)
		}
	case StepSetCart:
		if step.Cart == nil {
			return fmt.Errorf("steps[%d]: set_cart needs cart", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertWidgetPresent, AssertWidgetAbsent:
		if a.Widget == "" {
			return fmt.Errorf("assertions[%d]: widget is required for %s", i, a.Type)
		}
	case AssertWidgetState:
		if a.Widget == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: widget and state are required for %s", i, a.Type)
		}
	case AssertCartContains:
		if a.Variant == "" {
			return fmt.Errorf("assertions[%d]: variant is required for %s", i, a.Type)
		}
	case AssertPosts, AssertReads, AssertTicks:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", i, a.Type)
		}
	case AssertPageContains:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for %s", i, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
