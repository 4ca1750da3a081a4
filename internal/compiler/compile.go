package compiler

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/salesboost/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Fixed ids of the singleton campaigns.
const (
	ShippingBarID = "shipping-bar"
	CartGiftID    = "cart-gift"
)

// Report is the outcome of compiling one config document.
type Report struct {
	// Campaigns in configuration order.
	Campaigns []ir.CampaignConfig

	// Dropped lists the entries that failed validation, in document order.
	// Each one is skipped without touching its siblings.
	Dropped []*CompileError
}

// schema compiles the embedded CUE definitions once per call. cue.Context
// values are not safe for concurrent use, so nothing is shared.
func schema() (*cue.Context, cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, cue.Value{}, fmt.Errorf("compile schema: %w", formatCUEError(err))
	}
	return ctx, v, nil
}

// checker validates single entries against one schema definition.
type checker struct {
	ctx    *cue.Context
	schema cue.Value
}

// check unifies raw with definition def. field is the entry's path in the
// document and prefixes the reported path.
func (c checker) check(def, field string, raw json.RawMessage) *CompileError {
	// encoding/json accepts every JSON escape, including "\/" which plain
	// CUE syntax rejects.
	expr, err := cuejson.Extract(field, raw)
	if err != nil {
		return relocate(field, err)
	}
	data := c.ctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return relocate(field, err)
	}
	unified := c.schema.LookupPath(cue.ParsePath(def)).Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return relocate(field, err)
	}
	return nil
}

// relocate turns a CUE error on a lone entry into a CompileError whose
// field is the entry's path in the whole document.
func relocate(field string, err error) *CompileError {
	var ce *CompileError
	if errors.As(err, &ce) {
		dup := *ce
		ce = &dup
	} else if ce, _ = formatCUEError(err).(*CompileError); ce == nil {
		ce = &CompileError{Message: err.Error()}
	}
	rel := ce.Field
	if strings.HasPrefix(rel, "#") {
		rel = ""
		if i := strings.IndexAny(ce.Field, ".["); i >= 0 {
			rel = strings.TrimPrefix(ce.Field[i:], ".")
		}
	}
	switch {
	case rel == "" || rel == "config":
		ce.Field = field
	case rel[0] == '[':
		ce.Field = field + rel
	default:
		ce.Field = field + "." + rel
	}
	// Positions point into the lone entry, not the document.
	ce.Pos = token.NoPos
	return ce
}

// Validate checks a raw config document against the CUE schema.
// Returns the first *CompileError: a document that is not a JSON object,
// or else the first entry that would be dropped.
func Validate(raw []byte) error {
	rep, err := CompileReport(raw)
	if err != nil {
		return err
	}
	if len(rep.Dropped) > 0 {
		return rep.Dropped[0]
	}
	return nil
}

// Compile builds the campaigns of a raw config document. Entries that
// fail validation are logged and skipped; only a document that is not a
// JSON object is an error.
//
// The returned slice is in configuration order. Campaign ids are unique
// across kinds because they form half of every widget identity.
func Compile(raw []byte) ([]ir.CampaignConfig, error) {
	rep, err := CompileReport(raw)
	if err != nil {
		return nil, err
	}
	for _, d := range rep.Dropped {
		slog.Warn("campaign entry dropped", "field", d.Field, "error", d.Message)
	}
	return rep.Campaigns, nil
}

// CompileReport is Compile returning the dropped entries instead of
// logging them.
func CompileReport(raw []byte) (Report, error) {
	var sections wireSections
	if err := json.Unmarshal(raw, &sections); err != nil {
		return Report{}, &CompileError{Field: "config", Message: err.Error()}
	}

	ctx, sch, err := schema()
	if err != nil {
		return Report{}, err
	}
	c := checker{ctx: ctx, schema: sch}

	var rep Report
	drop := func(ce *CompileError) { rep.Dropped = append(rep.Dropped, ce) }

	var modules wireModules
	if !absent(sections.Modules) {
		if ce := c.check("#Modules", "modules", sections.Modules); ce != nil {
			drop(ce)
		} else if err := json.Unmarshal(sections.Modules, &modules); err != nil {
			drop(&CompileError{Field: "modules", Message: err.Error()})
		}
	}
	offersOn := flag(modules.OffersEnabled)
	bundlesOn := flag(modules.BundlesEnabled)

	seen := make(map[string]string)
	add := func(field string, camp ir.CampaignConfig) {
		if prev, dup := seen[camp.ID]; dup {
			drop(&CompileError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate campaign id %q (first used by %s)", camp.ID, prev),
			})
			return
		}
		seen[camp.ID] = field
		rep.Campaigns = append(rep.Campaigns, camp)
	}

	for field, entry := range entries("smartOffers", sections.SmartOffers, drop) {
		var o wireOffer
		if !decode(c, "#Offer", field, entry, &o, drop) {
			continue
		}
		camp := targeted(ir.KindOffer, o.wireTargeting)
		camp.Enabled = camp.Enabled && offersOn
		if o.OfferProduct != nil {
			camp.Payload.Items = []ir.Item{o.OfferProduct.item()}
		}
		add(field, camp)
	}

	for field, entry := range entries("bundles", sections.Bundles, drop) {
		var b wireBundle
		if !decode(c, "#Bundle", field, entry, &b, drop) {
			continue
		}
		camp := targeted(ir.KindBundle, b.wireTargeting)
		camp.Enabled = camp.Enabled && bundlesOn
		if camp.Content.Title == "" {
			camp.Content.Title = b.Label
		}
		if camp.Name == "" {
			camp.Name = b.Label
		}
		for _, p := range b.Products {
			camp.Payload.Items = append(camp.Payload.Items, p.item())
		}
		add(field, camp)
	}

	if !absent(sections.CartGifts) {
		var g wireCartGifts
		if decode(c, "#CartGifts", "cartGifts", sections.CartGifts, &g, drop) {
			add("cartGifts", gift(&g))
		}
	}

	if !absent(sections.ShippingBar) {
		var s wireShippingBar
		if decode(c, "#ShippingBar", "shippingBar", sections.ShippingBar, &s, drop) {
			add("shippingBar", shippingBar(&s))
		}
	}

	return rep, nil
}

// entries yields the elements of a list section with their field paths.
// A section that is not a list is dropped whole.
func entries(section string, raw json.RawMessage, drop func(*CompileError)) iter.Seq2[string, json.RawMessage] {
	return func(yield func(string, json.RawMessage) bool) {
		if absent(raw) {
			return
		}
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			drop(&CompileError{Field: section, Message: "must be a list"})
			return
		}
		for i, entry := range list {
			if !yield(fmt.Sprintf("%s[%d]", section, i), entry) {
				return
			}
		}
	}
}

// decode validates entry and decodes it into dst. It reports false when
// the entry was dropped.
func decode(c checker, def, field string, entry json.RawMessage, dst any, drop func(*CompileError)) bool {
	if ce := c.check(def, field, entry); ce != nil {
		drop(ce)
		return false
	}
	if err := json.Unmarshal(entry, dst); err != nil {
		drop(&CompileError{Field: field, Message: err.Error()})
		return false
	}
	return true
}

func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func targeted(kind ir.Kind, t wireTargeting) ir.CampaignConfig {
	return ir.CampaignConfig{
		ID:         t.ID.String(),
		Kind:       kind,
		Name:       t.Name,
		Enabled:    enabled(t.Enabled, t.Status),
		Placements: ir.Placements(t.Placements),
		Triggers:   triggers(t.Triggers),
		Logic:      logic(t.Logic),
		MinTotal:   t.MinTotal,
		Priority:   t.Priority,
		Theme:      t.Theme,
		Content: ir.Content{
			Badge:    t.Badge,
			Title:    t.Title,
			Subtitle: t.Subtitle,
			CTA:      t.CTAText,
		},
	}
}

func gift(g *wireCartGifts) ir.CampaignConfig {
	c := ir.CampaignConfig{
		ID:         CartGiftID,
		Kind:       ir.KindGift,
		Name:       "Cart gift",
		Enabled:    g.Enabled,
		Placements: ir.Placements(g.Placements),
		Triggers:   triggers(g.Triggers),
		Logic:      logic(g.Logic),
		MinTotal:   g.Threshold,
		Priority:   g.Priority,
		Theme:      g.Theme,
		Content: ir.Content{
			Title:      g.MsgSuccess,
			Subtitle:   g.MsgInitial,
			MsgInitial: g.MsgInitial,
			MsgSuccess: g.MsgSuccess,
		},
	}
	if !g.ProductID.IsZero() || !g.VariantID.IsZero() {
		c.Payload.Items = []ir.Item{{ProductID: g.ProductID, VariantID: g.VariantID}}
	} else {
		for _, p := range g.GiftProducts {
			c.Payload.Items = append(c.Payload.Items, p.item())
		}
	}
	return c
}

// shippingBar always matches: no triggers, no minimum. The threshold is
// the progress goal, not an eligibility condition.
func shippingBar(s *wireShippingBar) ir.CampaignConfig {
	return ir.CampaignConfig{
		ID:         ShippingBarID,
		Kind:       ir.KindShippingBar,
		Name:       "Shipping bar",
		Enabled:    s.Enabled,
		Placements: ir.Placements(s.Placements),
		Logic:      ir.LogicAnd,
		Priority:   s.Priority,
		Threshold:  s.Threshold,
		Theme:      ir.Theme{PrimaryColor: s.Color},
		Content: ir.Content{
			MsgInitial:  s.MsgInitial,
			MsgProgress: s.MsgProgress,
			MsgSuccess:  s.MsgSuccess,
		},
	}
}

// enabled resolves the explicit flag first, then the legacy status field.
// A campaign with neither is enabled.
func enabled(flag *bool, status string) bool {
	if flag != nil {
		return *flag
	}
	if status != "" {
		return strings.EqualFold(status, "active")
	}
	return true
}

func logic(l ir.Logic) ir.Logic {
	if strings.EqualFold(string(l), string(ir.LogicOr)) {
		return ir.LogicOr
	}
	return ir.LogicAnd
}

func flag(b *bool) bool {
	return b == nil || *b
}
