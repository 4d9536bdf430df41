package costing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecipeLine is one ingredient of a recipe together with the item's current cost.
type RecipeLine struct {
	ItemID   uuid.UUID
	QtyG     decimal.Decimal
	WastePct decimal.Decimal
	Cost     decimal.NullDecimal
}

// EffectiveQty inflates the nominal quantity by waste: qty * (1 + waste).
func (l RecipeLine) EffectiveQty() decimal.Decimal {
	return l.QtyG.Mul(decimal.NewFromInt(1).Add(l.WastePct))
}

type RecipeCost struct {
	Total      decimal.Decimal
	PerGram    decimal.NullDecimal
	Incomplete bool
}

// AggregateRecipe sums effective line costs and derives the per-gram cost of the yield.
func AggregateRecipe(yieldQtyG decimal.Decimal, lines []RecipeLine) RecipeCost {
	var out RecipeCost
	sum := decimal.Zero
	for _, l := range lines {
		if !l.Cost.Valid {
			out.Incomplete = true
			continue
		}
		sum = sum.Add(l.EffectiveQty().Mul(l.Cost.Decimal))
	}
	out.Total = Round(sum)

	if yieldQtyG.IsPositive() {
		out.PerGram = Known(divide(out.Total, yieldQtyG))
	} else {
		out.PerGram = Unknown()
		out.Incomplete = true
	}
	return out
}

// ValidateRecipeLine checks one ingredient's quantities.
func ValidateRecipeLine(qtyG, wastePct decimal.Decimal) error {
	if !qtyG.IsPositive() {
		return Invalid("qty_g", "must be greater than zero")
	}
	if wastePct.IsNegative() {
		return Invalid("waste_pct", "must not be negative")
	}
	return nil
}

// ValidateYield allows zero (cost per gram becomes unknown) but not negative yields.
func ValidateYield(yieldQtyG decimal.Decimal) error {
	if yieldQtyG.IsNegative() {
		return Invalid("yield_qty_g", "must not be negative")
	}
	return nil
}
