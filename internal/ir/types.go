package ir

import (
	"fmt"
	"strings"
)

// Money is an amount in the store currency's minor units (cents).
type Money int64

// Kind identifies the merchandising experience a campaign renders.
type Kind string

const (
	KindBundle      Kind = "bundle"
	KindOffer       Kind = "offer"
	KindGift        Kind = "gift"
	KindShippingBar Kind = "shippingBar"
)

// Logic combines the min-total and trigger predicates of a campaign.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Placement names an injection slot on the host page.
type Placement string

const (
	PlacementProduct  Placement = "product"
	PlacementMinicart Placement = "minicart"
	PlacementPopup    Placement = "popup"
)

// Placements is a set of placements. Order carries no meaning.
type Placements []Placement

// Has reports whether p is a member of the set.
func (ps Placements) Has(p Placement) bool {
	for _, candidate := range ps {
		if candidate == p {
			return true
		}
	}
	return false
}

// Item is one line of a campaign payload: what to put in the cart.
type Item struct {
	ProductID ID  `json:"productId,omitempty"`
	VariantID ID  `json:"variantId,omitempty"`
	Qty       int `json:"qty,omitempty"`
}

// Key returns the identity sent to the host add endpoint.
// The variant wins; products without variants are added by product id.
func (i Item) Key() ID {
	if !i.VariantID.IsZero() {
		return i.VariantID
	}
	return i.ProductID
}

// Quantity returns the requested quantity, defaulting to 1.
func (i Item) Quantity() int {
	if i.Qty <= 0 {
		return 1
	}
	return i.Qty
}

// Payload is the cart mutation a campaign performs when accepted.
type Payload struct {
	Items []Item `json:"items"`
}

// Theme holds the data-driven design tokens of a widget.
type Theme struct {
	PrimaryColor    string `json:"primaryColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	BorderRadius    int    `json:"borderRadius,omitempty"`
}

// Content holds the copy shown by a widget.
//
// MsgInitial, MsgProgress and MsgSuccess are only read by shipping bar and
// gift widgets; MsgProgress may contain a {remaining} placeholder.
type Content struct {
	Badge       string `json:"badge,omitempty"`
	Title       string `json:"title,omitempty"`
	Subtitle    string `json:"subtitle,omitempty"`
	CTA         string `json:"cta,omitempty"`
	MsgInitial  string `json:"msgInitial,omitempty"`
	MsgProgress string `json:"msgProgress,omitempty"`
	MsgSuccess  string `json:"msgSuccess,omitempty"`
}

// CampaignConfig is one compiled merchandising rule.
//
// Triggers empty means the campaign is trigger-eligible by default.
// Threshold is the shipping bar goal; it is zero for every other kind.
type CampaignConfig struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Name       string     `json:"name,omitempty"`
	Enabled    bool       `json:"enabled"`
	Placements Placements `json:"placements"`
	Triggers   []ID       `json:"triggers,omitempty"`
	Logic      Logic      `json:"logic,omitempty"`
	MinTotal   Money      `json:"minTotal"`
	Priority   int        `json:"priority"`
	Payload    Payload    `json:"payload"`
	Theme      Theme      `json:"theme"`
	Content    Content    `json:"content"`
	Threshold  Money      `json:"threshold,omitempty"`
}

// EffectiveLogic returns the configured logic, AND when unspecified.
func (c *CampaignConfig) EffectiveLogic() Logic {
	if strings.EqualFold(string(c.Logic), string(LogicOr)) {
		return LogicOr
	}
	return LogicAnd
}

// MutationRequest derives the ordered add-to-cart request of the payload.
// The returned slice is a copy; callers may not alias the config.
func (c *CampaignConfig) MutationRequest() MutationRequest {
	req := make(MutationRequest, len(c.Payload.Items))
	copy(req, c.Payload.Items)
	return req
}

// CartLine is one line of the host cart as reported by the cart endpoint.
type CartLine struct {
	ProductID ID  `json:"product_id"`
	VariantID ID  `json:"variant_id"`
	Quantity  int `json:"quantity"`
}

// CartSnapshot is the host cart at one point in time.
//
// Snapshots are always the result of a fresh read; nothing in the engine
// predicts or patches them locally.
type CartSnapshot struct {
	Items    []CartLine `json:"items"`
	Subtotal Money      `json:"total_price"`
}

// HasProduct reports whether any line belongs to product id.
func (s CartSnapshot) HasProduct(id ID) bool {
	for _, line := range s.Items {
		if line.ProductID == id {
			return true
		}
	}
	return false
}

// Contains reports whether a line matching the item identity is present.
// Items with a variant match on variant; otherwise on product id, treating
// the product id as a variant id too since hosts accept either on add.
func (s CartSnapshot) Contains(item Item) bool {
	for _, line := range s.Items {
		if line.matches(item) {
			return true
		}
	}
	return false
}

// Quantity sums the units of every line matching the item identity, using
// the same rules as Contains. A line reporting no quantity counts as one.
func (s CartSnapshot) Quantity(item Item) int {
	n := 0
	for _, line := range s.Items {
		if line.matches(item) {
			n += max(line.Quantity, 1)
		}
	}
	return n
}

func (l CartLine) matches(item Item) bool {
	if !item.VariantID.IsZero() {
		return l.VariantID == item.VariantID
	}
	return l.ProductID == item.ProductID || l.VariantID == item.ProductID
}

// MutationRequest is an ordered list of items to add to the cart.
type MutationRequest []Item

// NoFailure is the FailedAt value of a successful outcome.
const NoFailure = -1

// MutationOutcome reports the result of a sequential add.
//
// FailedAt is the index of the item whose verification never succeeded,
// or NoFailure. Attempts counts add POSTs across the whole sequence.
type MutationOutcome struct {
	Success  bool          `json:"success"`
	FailedAt int           `json:"failedAt"`
	Attempts int           `json:"attempts"`
	Cart     *CartSnapshot `json:"cart,omitempty"`
}

// WidgetIdentity uniquely identifies a rendered widget node.
// At most one live node exists per identity.
type WidgetIdentity struct {
	CampaignID string    `json:"campaignId"`
	Placement  Placement `json:"placement"`
}

// Key returns the identity as "<campaign>@<placement>".
func (w WidgetIdentity) Key() string {
	return w.CampaignID + "@" + string(w.Placement)
}

// String implements fmt.Stringer.
func (w WidgetIdentity) String() string {
	return w.Key()
}

// ParseWidgetIdentity parses a key produced by WidgetIdentity.Key.
// The placement is taken after the last '@' so campaign ids may contain '@'.
func ParseWidgetIdentity(key string) (WidgetIdentity, error) {
	i := strings.LastIndex(key, "@")
	if i <= 0 || i == len(key)-1 {
		return WidgetIdentity{}, fmt.Errorf("invalid widget identity %q: want <campaign>@<placement>", key)
	}
	return WidgetIdentity{CampaignID: key[:i], Placement: Placement(key[i+1:])}, nil
}
