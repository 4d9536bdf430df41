package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type FinishedProduct struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID       uint      `gorm:"not null;index"`
	Name        string    `gorm:"size:150;not null"`
	Description string    `gorm:"size:500"`

	// derived
	DirectItemsCost decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	RecipesCost     decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	TotalCost       decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	CostIncomplete  bool            `gorm:"not null;default:false"`

	Items   []FinishedProductItem   `gorm:"foreignKey:ProductID"`
	Recipes []FinishedProductRecipe `gorm:"foreignKey:ProductID"`

	CreatedBy *uint
	UpdatedBy *uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *FinishedProduct) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type FinishedProductItem struct {
	ProductID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ItemID    uuid.UUID       `gorm:"type:uuid;primaryKey;index"`
	Item      Item            `gorm:"foreignKey:ItemID"`
	QtyG      decimal.Decimal `gorm:"column:qty_g;type:numeric(20,6);not null"`
}

type FinishedProductRecipe struct {
	ProductID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	RecipeID  uuid.UUID       `gorm:"type:uuid;primaryKey;index"`
	Recipe    Recipe          `gorm:"foreignKey:RecipeID"`
	QtyG      decimal.Decimal `gorm:"column:qty_g;type:numeric(20,6);not null"`
}
