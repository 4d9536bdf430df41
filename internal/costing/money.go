package costing

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits every derived cost is stored with.
const Scale int32 = 6

// divisionPrecision keeps enough digits before the final banker's rounding.
const divisionPrecision int32 = 16

// Round applies banker's rounding at Scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// Known wraps a value as a valid NullDecimal.
func Known(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Unknown is the "cost could not be derived" state.
func Unknown() decimal.NullDecimal {
	return decimal.NullDecimal{}
}

// SameCost reports whether two nullable costs are identical.
func SameCost(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func divide(num, den decimal.Decimal) decimal.Decimal {
	return Round(num.DivRound(den, divisionPrecision))
}
