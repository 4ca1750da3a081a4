package present

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/salesboost/internal/ir"
)

// Widget defaults.
const (
	DefaultPrimaryColor    = "#4f46e5"
	DefaultBackgroundColor = "#fff"
	DefaultBorderRadius    = 12
	DefaultCTA             = "Agregar"

	LabelBusy    = "PROCESANDO..."
	LabelSuccess = "¡LISTO!"
	LabelRetry   = "REINTENTAR"
)

// RemainingPlaceholder is replaced by the formatted amount left to reach
// the shipping bar threshold.
const RemainingPlaceholder = "{remaining}"

// View is the typed view-model of one widget.
type View interface {
	Identity() ir.WidgetIdentity
	// Actionable reports whether the widget has an action control.
	Actionable() bool
	templateName() string
}

// Card is the content shared by actionable widgets.
type Card struct {
	CampaignID string
	Key        string
	Kind       ir.Kind
	Placement  ir.Placement
	Theme      ir.Theme
	Badge      string
	Title      string
	Subtitle   string
	CTA        string
}

// Identity implements View.
func (c Card) Identity() ir.WidgetIdentity {
	return ir.WidgetIdentity{CampaignID: c.CampaignID, Placement: c.Placement}
}

// Actionable implements View.
func (Card) Actionable() bool { return true }

func (Card) templateName() string { return "card" }

// BundleView adds every product of a combo at once.
type BundleView struct {
	Card
	Items int
}

// OfferView adds a single suggested product.
type OfferView struct {
	Card
}

// GiftView adds the gift unlocked by the cart total.
type GiftView struct {
	Card
}

// ShippingBarView shows progress toward the free shipping threshold.
type ShippingBarView struct {
	CampaignID string
	Key        string
	Placement  ir.Placement
	Theme      ir.Theme
	Message    string
	Percent    int
	Reached    bool
}

// Identity implements View.
func (s ShippingBarView) Identity() ir.WidgetIdentity {
	return ir.WidgetIdentity{CampaignID: s.CampaignID, Placement: s.Placement}
}

// Actionable implements View.
func (ShippingBarView) Actionable() bool { return false }

func (ShippingBarView) templateName() string { return "shippingBar" }

// MoneyFormatter renders an amount in minor units for display.
type MoneyFormatter interface {
	FormatMoney(m ir.Money) string
}

// CurrencyFormatter formats with golang.org/x/text currency data.
type CurrencyFormatter struct {
	Unit currency.Unit
	Tag  language.Tag
}

// NewCurrencyFormatter parses an ISO 4217 code and a BCP 47 locale.
func NewCurrencyFormatter(code, locale string) (CurrencyFormatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return CurrencyFormatter{}, fmt.Errorf("currency %q: %w", code, err)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return CurrencyFormatter{}, fmt.Errorf("locale %q: %w", locale, err)
	}
	return CurrencyFormatter{Unit: unit, Tag: tag}, nil
}

// FormatMoney implements MoneyFormatter.
func (f CurrencyFormatter) FormatMoney(m ir.Money) string {
	scale, _ := currency.Standard.Rounding(f.Unit)
	amount := float64(m) / math.Pow10(scale)
	return message.NewPrinter(f.Tag).Sprint(currency.Symbol(f.Unit.Amount(amount)))
}

// NewView builds the view-model of campaign c at placement.
func NewView(c *ir.CampaignConfig, placement ir.Placement, cart ir.CartSnapshot, money MoneyFormatter) (View, error) {
	id := ir.WidgetIdentity{CampaignID: c.ID, Placement: placement}

	if c.Kind == ir.KindShippingBar {
		return shippingBarView(c, id, cart, money), nil
	}

	card := Card{
		CampaignID: c.ID,
		Key:        id.Key(),
		Kind:       c.Kind,
		Placement:  placement,
		Theme:      withDefaults(c.Theme),
		Badge:      c.Content.Badge,
		Title:      c.Content.Title,
		Subtitle:   c.Content.Subtitle,
		CTA:        c.Content.CTA,
	}
	if card.CTA == "" {
		card.CTA = DefaultCTA
	}

	switch c.Kind {
	case ir.KindBundle:
		if card.Title == "" {
			card.Title = c.Name
		}
		return BundleView{Card: card, Items: len(c.Payload.Items)}, nil
	case ir.KindOffer:
		return OfferView{Card: card}, nil
	case ir.KindGift:
		if card.Title == "" {
			card.Title = c.Content.MsgSuccess
		}
		return GiftView{Card: card}, nil
	default:
		return nil, fmt.Errorf("unknown campaign kind %q", c.Kind)
	}
}

func shippingBarView(c *ir.CampaignConfig, id ir.WidgetIdentity, cart ir.CartSnapshot, money MoneyFormatter) ShippingBarView {
	v := ShippingBarView{
		CampaignID: c.ID,
		Key:        id.Key(),
		Placement:  id.Placement,
		Theme:      withDefaults(c.Theme),
	}

	switch {
	case c.Threshold <= 0 || cart.Subtotal >= c.Threshold:
		v.Reached = true
		v.Percent = 100
		v.Message = c.Content.MsgSuccess
	case cart.Subtotal <= 0 && c.Content.MsgInitial != "":
		v.Message = c.Content.MsgInitial
	default:
		v.Percent = max(0, int(cart.Subtotal*100/c.Threshold))
		v.Message = strings.ReplaceAll(c.Content.MsgProgress, RemainingPlaceholder, money.FormatMoney(c.Threshold-cart.Subtotal))
	}
	return v
}

func withDefaults(t ir.Theme) ir.Theme {
	if t.PrimaryColor == "" {
		t.PrimaryColor = DefaultPrimaryColor
	}
	if t.BackgroundColor == "" {
		t.BackgroundColor = DefaultBackgroundColor
	}
	if t.BorderRadius == 0 {
		t.BorderRadius = DefaultBorderRadius
	}
	return t
}
