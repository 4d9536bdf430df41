package models

import "github.com/shopspring/decimal"

// Unit is shared reference data; GramsPerUnit is nil for units with no fixed mass (e.g. "pcs").
type Unit struct {
	ID           uint                `gorm:"primaryKey"`
	Symbol       string              `gorm:"size:20;not null;uniqueIndex"`
	Name         string              `gorm:"size:50;not null"`
	GramsPerUnit decimal.NullDecimal `gorm:"type:numeric(20,6)"`
}
