package costing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductItemLine is a direct item consumed by a finished product.
type ProductItemLine struct {
	ItemID uuid.UUID
	QtyG   decimal.Decimal
	Cost   decimal.NullDecimal
}

// ProductRecipeLine is a recipe inclusion priced at the recipe's per-gram cost.
type ProductRecipeLine struct {
	RecipeID         uuid.UUID
	QtyG             decimal.Decimal
	PerGram          decimal.NullDecimal
	RecipeIncomplete bool
}

type ProductCost struct {
	DirectItemsCost decimal.Decimal
	RecipesCost     decimal.Decimal
	Total           decimal.Decimal
	Incomplete      bool
}

// AggregateProduct adds direct item costs and recipe contributions.
func AggregateProduct(items []ProductItemLine, recipes []ProductRecipeLine) ProductCost {
	var out ProductCost

	direct := decimal.Zero
	for _, l := range items {
		c, ok := l.Contribution()
		if !ok {
			out.Incomplete = true
			continue
		}
		direct = direct.Add(c)
	}

	viaRecipes := decimal.Zero
	for _, l := range recipes {
		if l.RecipeIncomplete {
			out.Incomplete = true
		}
		c, ok := l.Contribution()
		if !ok {
			out.Incomplete = true
			continue
		}
		viaRecipes = viaRecipes.Add(c)
	}

	out.DirectItemsCost = Round(direct)
	out.RecipesCost = Round(viaRecipes)
	out.Total = out.DirectItemsCost.Add(out.RecipesCost)
	return out
}

// Contribution is qty * cost, rounded; false when the item cost is unknown.
func (l ProductItemLine) Contribution() (decimal.Decimal, bool) {
	if !l.Cost.Valid {
		return decimal.Zero, false
	}
	return Round(l.QtyG.Mul(l.Cost.Decimal)), true
}

// Contribution is qty * per-gram cost, rounded; false when the recipe's per-gram cost is unknown.
func (l ProductRecipeLine) Contribution() (decimal.Decimal, bool) {
	if !l.PerGram.Valid {
		return decimal.Zero, false
	}
	return Round(l.QtyG.Mul(l.PerGram.Decimal)), true
}

// ValidateProductLine checks a direct item or recipe inclusion quantity.
func ValidateProductLine(qtyG decimal.Decimal) error {
	if !qtyG.IsPositive() {
		return Invalid("qty_g", "must be greater than zero")
	}
	return nil
}
