package selector

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/salesboost/internal/ir"
)

// buildConfigs derives campaigns from generated primitives. Every third
// campaign is disabled and every other one carries a P1 trigger.
func buildConfigs(priorities []int, mins []int64) []ir.CampaignConfig {
	n := len(priorities)
	if len(mins) < n {
		n = len(mins)
	}
	configs := make([]ir.CampaignConfig, n)
	for i := 0; i < n; i++ {
		c := ir.CampaignConfig{
			ID:         fmt.Sprintf("c%d", i),
			Enabled:    i%3 != 2,
			Placements: ir.Placements{ir.PlacementProduct},
			Priority:   priorities[i],
			MinTotal:   ir.Money(mins[i]),
		}
		if i%2 == 1 {
			c.Triggers = []ir.ID{"P1"}
			c.Logic = ir.LogicOr
		}
		configs[i] = c
	}
	return configs
}

func TestSelect_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("select is referentially transparent", prop.ForAll(
		func(priorities []int, mins []int64, subtotal int64, withP1 bool) bool {
			configs := buildConfigs(priorities, mins)
			cart := cartWith(ir.Money(subtotal))
			if withP1 {
				cart = cartWith(ir.Money(subtotal), "P1")
			}

			first := Select(configs, cart, "", ir.PlacementProduct)
			for i := 0; i < 3; i++ {
				again := Select(configs, cart, "", ir.PlacementProduct)
				if (first == nil) != (again == nil) {
					return false
				}
				if first != nil && first.ID != again.ID {
					return false
				}
			}

			// A fresh copy of the same input gives the same winner.
			clone := append([]ir.CampaignConfig(nil), configs...)
			other := Select(clone, cart, "", ir.PlacementProduct)
			if (first == nil) != (other == nil) {
				return false
			}
			return first == nil || first.ID == other.ID
		},
		gen.SliceOfN(8, gen.IntRange(-3, 3)),
		gen.SliceOfN(8, gen.Int64Range(0, 10000)),
		gen.Int64Range(0, 10000),
		gen.Bool(),
	))

	properties.Property("winner has max priority, earliest among ties", prop.ForAll(
		func(priorities []int, mins []int64, subtotal int64) bool {
			configs := buildConfigs(priorities, mins)
			cart := cartWith(ir.Money(subtotal))

			winner := Select(configs, cart, "", ir.PlacementProduct)

			bestIdx := -1
			for i := range configs {
				c := &configs[i]
				if !c.Enabled || !Eligible(c, cart, "") {
					continue
				}
				if bestIdx < 0 || c.Priority > configs[bestIdx].Priority {
					bestIdx = i
				}
			}

			if bestIdx < 0 {
				return winner == nil
			}
			return winner != nil && winner.ID == configs[bestIdx].ID
		},
		gen.SliceOfN(8, gen.IntRange(-3, 3)),
		gen.SliceOfN(8, gen.Int64Range(0, 10000)),
		gen.Int64Range(0, 10000),
	))

	properties.Property("min total boundary is inclusive", prop.ForAll(
		func(minTotal int64) bool {
			c := ir.CampaignConfig{MinTotal: ir.Money(minTotal)}
			at := MinTotalMet(&c, cartWith(ir.Money(minTotal)))
			below := MinTotalMet(&c, cartWith(ir.Money(minTotal-1)))
			return at && !below
		},
		gen.Int64Range(1, 1_000_000),
	))

	properties.TestingRun(t)
}
