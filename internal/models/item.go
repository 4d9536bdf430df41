package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item is a purchasable ingredient. CostPerBaseUnit is derived and only written by the engine.
type Item struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID      uint      `gorm:"not null;index"`
	Name       string    `gorm:"size:150;not null"`
	SKU        *string   `gorm:"column:sku;size:50;index"`
	CategoryID *uint     `gorm:"index"`
	Category   *Category

	PurchaseUnitID     uint `gorm:"not null"`
	PurchaseUnit       Unit
	PurchaseQty        decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	PurchaseCost       decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	BaseUnitID         uint            `gorm:"not null"`
	BaseUnit           Unit
	BaseQtyPerPurchase decimal.Decimal `gorm:"type:numeric(20,6);not null"`

	CostPerBaseUnit decimal.NullDecimal `gorm:"type:numeric(20,6)"`

	Active    bool `gorm:"not null"`
	CreatedBy *uint
	UpdatedBy *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
