package costing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecipeInclusion is what BuildBreakdown needs to expand one product->recipe edge.
type RecipeInclusion struct {
	ProductRecipeLine
	YieldQtyG decimal.Decimal
	Lines     []RecipeLine
}

type ItemContribution struct {
	ItemID      uuid.UUID           `json:"item_id"`
	QtyG        decimal.Decimal     `json:"qty_g"`
	CostPerGram decimal.NullDecimal `json:"cost_per_gram"`
	Cost        decimal.Decimal     `json:"cost"`
	Known       bool                `json:"known"`
}

type RecipeContribution struct {
	RecipeID         uuid.UUID           `json:"recipe_id"`
	QtyG             decimal.Decimal     `json:"qty_g"`
	YieldQtyG        decimal.Decimal     `json:"yield_qty_g"`
	CostPerGram      decimal.NullDecimal `json:"cost_per_gram"`
	ConsumedFraction decimal.NullDecimal `json:"consumed_fraction"`
	Cost             decimal.Decimal     `json:"cost"`
	Incomplete       bool                `json:"incomplete"`
	Items            []ItemContribution  `json:"items"`
}

// Breakdown is a read-only projection of a product's cost; it is never stored.
type Breakdown struct {
	DirectItems     []ItemContribution   `json:"direct_items"`
	Recipes         []RecipeContribution `json:"recipes"`
	DirectItemsCost decimal.Decimal      `json:"direct_items_cost"`
	RecipesCost     decimal.Decimal      `json:"recipes_cost"`
	TotalCost       decimal.Decimal      `json:"total_cost"`
	Incomplete      bool                 `json:"incomplete"`
}

// BuildBreakdown expands a product into its direct lines and its recipe inclusions, each
// inclusion carrying the recipe's item lines scaled by productQtyG / yieldQtyG.
//
// Top-level costs sum to TotalCost exactly. Nested item costs of an inclusion sum to that
// inclusion's cost; the rounding residual is put on the last line with a known cost.
func BuildBreakdown(items []ProductItemLine, inclusions []RecipeInclusion) Breakdown {
	recipeLines := make([]ProductRecipeLine, 0, len(inclusions))
	for _, in := range inclusions {
		recipeLines = append(recipeLines, in.ProductRecipeLine)
	}
	total := AggregateProduct(items, recipeLines)

	b := Breakdown{
		DirectItems:     make([]ItemContribution, 0, len(items)),
		Recipes:         make([]RecipeContribution, 0, len(inclusions)),
		DirectItemsCost: total.DirectItemsCost,
		RecipesCost:     total.RecipesCost,
		TotalCost:       total.Total,
		Incomplete:      total.Incomplete,
	}

	for _, l := range items {
		c, ok := l.Contribution()
		b.DirectItems = append(b.DirectItems, ItemContribution{
			ItemID:      l.ItemID,
			QtyG:        l.QtyG,
			CostPerGram: l.Cost,
			Cost:        c,
			Known:       ok,
		})
	}

	for _, in := range inclusions {
		b.Recipes = append(b.Recipes, expandInclusion(in))
	}
	return b
}

func expandInclusion(in RecipeInclusion) RecipeContribution {
	cost, known := in.Contribution()
	rc := RecipeContribution{
		RecipeID:    in.RecipeID,
		QtyG:        in.QtyG,
		YieldQtyG:   in.YieldQtyG,
		CostPerGram: in.PerGram,
		Cost:        cost,
		Incomplete:  in.RecipeIncomplete || !known,
		Items:       make([]ItemContribution, 0, len(in.Lines)),
	}

	if !in.YieldQtyG.IsPositive() {
		rc.ConsumedFraction = Unknown()
		for _, l := range in.Lines {
			rc.Items = append(rc.Items, ItemContribution{ItemID: l.ItemID, CostPerGram: l.Cost, Cost: decimal.Zero})
		}
		return rc
	}

	fraction := in.QtyG.DivRound(in.YieldQtyG, divisionPrecision)
	rc.ConsumedFraction = Known(Round(fraction))

	sum := decimal.Zero
	last := -1
	for _, l := range in.Lines {
		ic := ItemContribution{
			ItemID:      l.ItemID,
			QtyG:        Round(l.EffectiveQty().Mul(fraction)),
			CostPerGram: l.Cost,
		}
		if l.Cost.Valid {
			ic.Cost = Round(l.EffectiveQty().Mul(l.Cost.Decimal).Mul(fraction))
			ic.Known = true
			sum = sum.Add(ic.Cost)
			last = len(rc.Items)
		}
		rc.Items = append(rc.Items, ic)
	}

	if last >= 0 {
		rc.Items[last].Cost = rc.Items[last].Cost.Add(rc.Cost.Sub(sum))
	}
	return rc
}
