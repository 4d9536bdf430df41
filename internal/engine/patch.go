package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemInput struct {
	Name               string
	SKU                *string
	CategoryID         *uint
	PurchaseUnitID     uint
	PurchaseQty        decimal.Decimal
	PurchaseCost       decimal.Decimal
	BaseUnitID         uint
	BaseQtyPerPurchase decimal.Decimal
	Active             *bool
}

// ItemPatch replaces only the fields that are non-nil.
type ItemPatch struct {
	Name               *string
	SKU                *string
	CategoryID         *uint
	ClearCategory      bool
	PurchaseUnitID     *uint
	PurchaseQty        *decimal.Decimal
	PurchaseCost       *decimal.Decimal
	BaseUnitID         *uint
	BaseQtyPerPurchase *decimal.Decimal
	Active             *bool
}

func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.SKU == nil && p.CategoryID == nil && !p.ClearCategory &&
		p.PurchaseUnitID == nil && p.PurchaseQty == nil && p.PurchaseCost == nil &&
		p.BaseUnitID == nil && p.BaseQtyPerPurchase == nil && p.Active == nil
}

// TouchesCost reports whether the patch can change the item's cost per base unit.
func (p ItemPatch) TouchesCost() bool {
	return p.PurchaseCost != nil || p.BaseQtyPerPurchase != nil ||
		p.PurchaseUnitID != nil || p.BaseUnitID != nil
}

type RecipeLineInput struct {
	ItemID   uuid.UUID
	QtyG     decimal.Decimal
	WastePct decimal.Decimal
}

type RecipeInput struct {
	Name        string
	Description string
	YieldQtyG   decimal.Decimal
	Items       []RecipeLineInput
}

// RecipePatch: Items, when non-nil, replaces the whole ingredient set.
type RecipePatch struct {
	Name        *string
	Description *string
	YieldQtyG   *decimal.Decimal
	Items       *[]RecipeLineInput
}

func (p RecipePatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.YieldQtyG == nil && p.Items == nil
}

func (p RecipePatch) TouchesCost() bool {
	return p.YieldQtyG != nil || p.Items != nil
}

type ProductItemInput struct {
	ItemID uuid.UUID
	QtyG   decimal.Decimal
}

type ProductRecipeInput struct {
	RecipeID uuid.UUID
	QtyG     decimal.Decimal
}

type ProductInput struct {
	Name        string
	Description string
	Items       []ProductItemInput
	Recipes     []ProductRecipeInput
}

// ProductPatch: Items and Recipes, when non-nil, each replace the whole set.
type ProductPatch struct {
	Name        *string
	Description *string
	Items       *[]ProductItemInput
	Recipes     *[]ProductRecipeInput
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Items == nil && p.Recipes == nil
}

func (p ProductPatch) TouchesCost() bool {
	return p.Items != nil || p.Recipes != nil
}
