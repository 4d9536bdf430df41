package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Recipe struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrgID       uint            `gorm:"not null;index"`
	Name        string          `gorm:"size:150;not null"`
	Description string          `gorm:"size:500"`
	YieldQtyG   decimal.Decimal `gorm:"column:yield_qty_g;type:numeric(20,6);not null"`

	// derived
	TotalRecipeCost   decimal.Decimal     `gorm:"type:numeric(20,6);not null;default:0"`
	RecipeCostPerGram decimal.NullDecimal `gorm:"type:numeric(20,6)"`
	CostIncomplete    bool                `gorm:"not null;default:false"`

	Items []RecipeItem

	CreatedBy *uint
	UpdatedBy *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// RecipeItem is the Recipe->Item edge. WastePct is a fraction: 0.10 means 10% extra consumption.
type RecipeItem struct {
	RecipeID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ItemID   uuid.UUID       `gorm:"type:uuid;primaryKey;index"`
	Item     Item            `gorm:"foreignKey:ItemID"`
	QtyG     decimal.Decimal `gorm:"column:qty_g;type:numeric(20,6);not null"`
	WastePct decimal.Decimal `gorm:"type:numeric(10,6);not null;default:0"`
}
