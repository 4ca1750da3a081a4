package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/salesboost/internal/ir"
)

// wireSections splits the admin config document into the sections the
// engine consumes. Each entry is validated and decoded on its own so one
// bad campaign cannot hide the others. Sections the engine does not
// consume (general, minicartUpsell, whatsappRecovery, learnedPayments)
// are ignored.
type wireSections struct {
	SmartOffers json.RawMessage `json:"smartOffers"`
	Bundles     json.RawMessage `json:"bundles"`
	ShippingBar json.RawMessage `json:"shippingBar"`
	CartGifts   json.RawMessage `json:"cartGifts"`
	Modules     json.RawMessage `json:"modules"`
}

type wireModules struct {
	OffersEnabled  *bool `json:"offersEnabled"`
	BundlesEnabled *bool `json:"bundlesEnabled"`
}

// wireTargeting is the eligibility and copy block shared by offers and
// bundles.
type wireTargeting struct {
	ID         ir.ID          `json:"id"`
	Name       string         `json:"name"`
	Enabled    *bool          `json:"enabled"`
	Status     string         `json:"status"`
	Placements []ir.Placement `json:"placements"`
	Triggers   []wireTrigger  `json:"triggers"`
	Logic      ir.Logic       `json:"logic"`
	MinTotal   ir.Money       `json:"minTotal"`
	Priority   int            `json:"priority"`
	Theme      ir.Theme       `json:"theme"`
	Badge      string         `json:"badge"`
	Title      string         `json:"title"`
	Subtitle   string         `json:"subtitle"`
	CTAText    string         `json:"ctaText"`
}

type wireOffer struct {
	wireTargeting
	OfferProduct *wireItem `json:"offerProduct"`
}

type wireBundle struct {
	wireTargeting
	Label    string     `json:"label"`
	Products []wireItem `json:"products"`
}

type wireShippingBar struct {
	Enabled     bool           `json:"enabled"`
	Threshold   ir.Money       `json:"threshold"`
	MsgInitial  string         `json:"msgInitial"`
	MsgProgress string         `json:"msgProgress"`
	MsgSuccess  string         `json:"msgSuccess"`
	Placements  []ir.Placement `json:"placements"`
	Color       string         `json:"color"`
	Priority    int            `json:"priority"`
}

type wireCartGifts struct {
	Enabled      bool           `json:"enabled"`
	Threshold    ir.Money       `json:"threshold"`
	ProductID    ir.ID          `json:"productId"`
	VariantID    ir.ID          `json:"variantId"`
	GiftProducts []wireItem     `json:"giftProducts"`
	Placements   []ir.Placement `json:"placements"`
	Triggers     []wireTrigger  `json:"triggers"`
	Logic        ir.Logic       `json:"logic"`
	Priority     int            `json:"priority"`
	MsgInitial   string         `json:"msgInitial"`
	MsgSuccess   string         `json:"msgSuccess"`
	Theme        ir.Theme       `json:"theme"`
}

// wireItem accepts either a bare id or an object. The admin stores bundle
// products as {id, name, price, image}; id doubles as the product id.
type wireItem struct {
	ID        ir.ID `json:"id"`
	ProductID ir.ID `json:"productId"`
	VariantID ir.ID `json:"variantId"`
	Qty       int   `json:"qty"`
}

func (w *wireItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain wireItem
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("item: %w", err)
		}
		*w = wireItem(p)
		return nil
	}
	var id ir.ID
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("item: %w", err)
	}
	*w = wireItem{ID: id}
	return nil
}

// item converts to the payload model.
func (w wireItem) item() ir.Item {
	product := w.ProductID
	if product.IsZero() {
		product = w.ID
	}
	return ir.Item{ProductID: product, VariantID: w.VariantID, Qty: w.Qty}
}

// wireTrigger accepts "P1", 123 or {"id": "P1"}.
type wireTrigger ir.ID

func (w *wireTrigger) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ID ir.ID `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("trigger: %w", err)
		}
		*w = wireTrigger(obj.ID)
		return nil
	}
	var id ir.ID
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	*w = wireTrigger(id)
	return nil
}

func triggers(ws []wireTrigger) []ir.ID {
	if len(ws) == 0 {
		return nil
	}
	out := make([]ir.ID, 0, len(ws))
	for _, w := range ws {
		if w != "" {
			out = append(out, ir.ID(w))
		}
	}
	return out
}
