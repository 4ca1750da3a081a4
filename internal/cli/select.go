package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/salesboost/internal/compiler"
	"github.com/roach88/salesboost/internal/engine"
	"github.com/roach88/salesboost/internal/ir"
	"github.com/roach88/salesboost/internal/selector"
)

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	CartFile   string
	Subtotal   int64
	Product    string
	Placements []string
}

// Winner is the decision for one placement.
type Winner struct {
	Placement  ir.Placement     `json:"placement"`
	Campaign   *CampaignSummary `json:"campaign,omitempty"`
	Candidates []string         `json:"candidates"`
}

// SelectResult is the output of select.
type SelectResult struct {
	Subtotal ir.Money `json:"subtotal"`
	Product  ir.ID    `json:"pageProduct,omitempty"`
	Winners  []Winner `json:"winners"`
}

// Text implements Texter.
func (r SelectResult) Text() string {
	lines := []string{fmt.Sprintf("subtotal=%d page_product=%q", r.Subtotal, r.Product)}
	for _, w := range r.Winners {
		if w.Campaign == nil {
			lines = append(lines, fmt.Sprintf("  %-9s -", w.Placement))
			continue
		}
		lines = append(lines, fmt.Sprintf("  %-9s %s (%s, priority %d) of %v",
			w.Placement, w.Campaign.ID, w.Campaign.Kind, w.Campaign.Priority, w.Candidates))
	}
	return strings.Join(lines, "\n")
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select <config.json>",
		Short: "Show the winning campaign per placement for a cart",
		Long: `Evaluate a config document against a cart without touching any page.

The cart is read from --cart (the host /cart.json shape) or built from
--subtotal alone.

Example:
  salesboost select config.json --cart cart.json --product 111
  salesboost select config.json --subtotal 50000 --placement minicart`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.CartFile, "cart", "", "cart JSON file")
	cmd.Flags().Int64Var(&opts.Subtotal, "subtotal", 0, "cart subtotal in minor units, when --cart is not given")
	cmd.Flags().StringVar(&opts.Product, "product", "", "product id of the current page")
	cmd.Flags().StringSliceVar(&opts.Placements, "placement", nil, "placements to evaluate (default all)")

	return cmd
}

func runSelect(opts *SelectOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	raw, err := os.ReadFile(path)
	if err != nil {
		return f.Fail(ExitCommandError, CodeIO, "cannot read config", err)
	}
	camps, err := compiler.Compile(raw)
	if err != nil {
		return f.Fail(ExitFailure, CodeInvalidConfig, "config rejected", err)
	}

	snap := ir.CartSnapshot{Subtotal: ir.Money(opts.Subtotal)}
	if opts.CartFile != "" {
		data, err := os.ReadFile(opts.CartFile)
		if err != nil {
			return f.Fail(ExitCommandError, CodeIO, "cannot read cart", err)
		}
		if err := json.Unmarshal(data, &snap); err != nil {
			return f.Fail(ExitCommandError, CodeInvalidArgs, "cart is not valid JSON", err)
		}
	}

	placements := engine.DefaultPlacements
	if len(opts.Placements) > 0 {
		placements = nil
		for _, p := range opts.Placements {
			placements = append(placements, ir.Placement(strings.TrimSpace(p)))
		}
	}

	product := ir.ID(opts.Product)
	winners := selector.SelectAll(camps, snap, product, placements)

	res := SelectResult{Subtotal: snap.Subtotal, Product: product}
	for _, p := range placements {
		w := Winner{Placement: p, Candidates: []string{}}
		for _, c := range selector.Candidates(camps, snap, product, p) {
			w.Candidates = append(w.Candidates, c.ID)
		}
		if c := winners[p]; c != nil {
			s := summarize(*c)
			w.Campaign = &s
		}
		res.Winners = append(res.Winners, w)
	}
	return f.Success(res)
}
