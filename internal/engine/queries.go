package engine

import (
	"context"
	"errors"

	"shefa-backend/internal/costing"
	"shefa-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func notFound(err error, kind costing.EntityKind) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return costing.NotFound(kind)
	}
	return err
}

type ItemFilter struct {
	CategoryID *uint
	ActiveOnly bool
	Search     string
}

func (e *Engine) ListItems(ctx context.Context, orgID uint, f ItemFilter) ([]models.Item, error) {
	var out []models.Item
	err := e.store.Read(ctx, func(tx *gorm.DB) error {
		q := tx.Preload("PurchaseUnit").Preload("BaseUnit").Preload("Category").
			Where("org_id = ?", orgID)
		if f.CategoryID != nil {
			q = q.Where("category_id = ?", *f.CategoryID)
		}
		if f.ActiveOnly {
			q = q.Where("active = ?", true)
		}
		if f.Search != "" {
			q = q.Where("LOWER(name) LIKE ?", "%"+toLower(f.Search)+"%")
		}
		return q.Order("name ASC").Find(&out).Error
	})
	return out, err
}

func (e *Engine) GetItem(ctx context.Context, orgID uint, id uuid.UUID) (models.Item, error) {
	var out models.Item
	err := e.store.Read(ctx, func(tx *gorm.DB) error {
		return tx.Preload("PurchaseUnit").Preload("BaseUnit").Preload("Category").
			Where("org_id = ? AND id = ?", orgID, id).
			First(&out).Error
	})
	return out, notFound(err, costing.KindItem)
}

func (e *Engine) ListRecipes(ctx context.Context, orgID uint) ([]models.Recipe, error) {
	var out []models.Recipe
	err := e.store.Read(ctx, func(tx *gorm.DB) error {
		return tx.Where("org_id = ?", orgID).Order("name ASC").Find(&out).Error
	})
	return out, err
}

func (e *Engine) GetRecipe(ctx context.Context, orgID uint, id uuid.UUID) (models.Recipe, error) {
	var out models.Recipe
	err := e.store.Read(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_id") }).
			Preload("Items.Item").
			Where("org_id = ? AND id = ?", orgID, id).
			First(&out).Error
	})
	return out, notFound(err, costing.KindRecipe)
}

// RecipeItemView is an ingredient line with the item's name and current cost.
type RecipeItemView struct {
	ItemID          uuid.UUID           `json:"item_id"`
	ItemName        string              `json:"item_name"`
	QtyG            decimal.Decimal     `json:"qty_g"`
	WastePct        decimal.Decimal     `json:"waste_pct"`
	EffectiveQtyG   decimal.Decimal     `json:"effective_qty_g"`
	CostPerBaseUnit decimal.NullDecimal `json:"cost_per_base_unit"`
	LineCost        decimal.NullDecimal `json:"line_cost"`
}

func (e *Engine) ListRecipeItems(ctx context.Context, orgID uint, recipeID uuid.UUID) ([]RecipeItemView, error) {
	rec, err := e.GetRecipe(ctx, orgID, recipeID)
	if err != nil {
		return nil, err
	}

	out := make([]RecipeItemView, 0, len(rec.Items))
	for _, ri := range rec.Items {
		line := costing.RecipeLine{ItemID: ri.ItemID, QtyG: ri.QtyG, WastePct: ri.WastePct, Cost: ri.Item.CostPerBaseUnit}
		v := RecipeItemView{
			ItemID:          ri.ItemID,
			ItemName:        ri.Item.Name,
			QtyG:            ri.QtyG,
			WastePct:        ri.WastePct,
			EffectiveQtyG:   costing.Round(line.EffectiveQty()),
			CostPerBaseUnit: ri.Item.CostPerBaseUnit,
		}
		if line.Cost.Valid {
			v.LineCost = costing.Known(costing.Round(line.EffectiveQty().Mul(line.Cost.Decimal)))
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Engine) ListProducts(ctx context.Context, orgID uint) ([]models.FinishedProduct, error) {
	var out []models.FinishedProduct
	err := e.store.Read(ctx, func(tx *gorm.DB) error {
		return tx.Where("org_id = ?", orgID).Order("name ASC").Find(&out).Error
	})
	return out, err
}

func (e *Engine) GetProduct(ctx context.Context, orgID uint, id uuid.UUID) (models.FinishedProduct, error) {
	var out models.FinishedProduct
	err := e.store.Read(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_id") }).
			Preload("Items.Item").
			Preload("Recipes", func(db *gorm.DB) *gorm.DB { return db.Order("recipe_id") }).
			Preload("Recipes.Recipe").
			Where("org_id = ? AND id = ?", orgID, id).
			First(&out).Error
	})
	return out, notFound(err, costing.KindProduct)
}

// CostView is a product with its expanded breakdown and the names of every
// item and recipe the breakdown mentions.
type CostView struct {
	Product   models.FinishedProduct
	Breakdown costing.Breakdown
	Names     map[uuid.UUID]string
}

type nameRow struct {
	ID   uuid.UUID
	Name string
}

// ProductBreakdown reads the product, its edges and its recipes' lines from one
// snapshot and projects the fully expanded cost breakdown. Nothing is written.
func (e *Engine) ProductBreakdown(ctx context.Context, orgID uint, id uuid.UUID) (CostView, error) {
	var view CostView
	err := e.store.Read(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("org_id = ? AND id = ?", orgID, id).First(&view.Product).Error; err != nil {
			return notFound(err, costing.KindProduct)
		}
		itemLines, recipeRows, err := loadProductLines(tx, one(id))
		if err != nil {
			return err
		}

		rows := recipeRows[id]
		recipeIDs := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			recipeIDs = append(recipeIDs, r.RecipeID)
		}
		lines := map[uuid.UUID][]costing.RecipeLine{}
		if len(recipeIDs) > 0 {
			if lines, err = loadRecipeLines(tx, recipeIDs); err != nil {
				return err
			}
		}

		inclusions := make([]costing.RecipeInclusion, 0, len(rows))
		itemIDs := make([]uuid.UUID, 0, len(itemLines[id]))
		for _, l := range itemLines[id] {
			itemIDs = append(itemIDs, l.ItemID)
		}
		for _, r := range rows {
			inclusions = append(inclusions, costing.RecipeInclusion{
				ProductRecipeLine: r.line(),
				YieldQtyG:         r.YieldQtyG,
				Lines:             lines[r.RecipeID],
			})
			for _, l := range lines[r.RecipeID] {
				itemIDs = append(itemIDs, l.ItemID)
			}
		}
		view.Breakdown = costing.BuildBreakdown(itemLines[id], inclusions)

		view.Names = make(map[uuid.UUID]string, len(itemIDs)+len(recipeIDs))
		var names []nameRow
		if len(itemIDs) > 0 {
			if err := tx.Model(&models.Item{}).Where("id IN ?", itemIDs).Find(&names).Error; err != nil {
				return err
			}
		}
		var recipeNames []nameRow
		if len(recipeIDs) > 0 {
			if err := tx.Model(&models.Recipe{}).Where("id IN ?", recipeIDs).Find(&recipeNames).Error; err != nil {
				return err
			}
		}
		for _, n := range append(names, recipeNames...) {
			view.Names[n.ID] = n.Name
		}
		return nil
	})
	return view, err
}
