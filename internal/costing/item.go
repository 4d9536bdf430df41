package costing

import "github.com/shopspring/decimal"

// ResolveItemCost derives cost per base unit (gram) from purchase economics.
// A zero base quantity yields Unknown rather than an error.
func ResolveItemCost(purchaseCost, baseQtyPerPurchase decimal.Decimal) decimal.NullDecimal {
	if !baseQtyPerPurchase.IsPositive() {
		return Unknown()
	}
	return Known(divide(purchaseCost, baseQtyPerPurchase))
}

// ValidatePurchase checks the ranges ResolveItemCost relies on.
func ValidatePurchase(purchaseQty, purchaseCost, baseQtyPerPurchase decimal.Decimal) error {
	if !purchaseQty.IsPositive() {
		return Invalid("purchase_qty", "must be greater than zero")
	}
	if purchaseCost.IsNegative() {
		return Invalid("purchase_cost", "must not be negative")
	}
	if baseQtyPerPurchase.IsNegative() {
		return Invalid("base_qty_per_purchase", "must not be negative")
	}
	return nil
}
