package engine

import (
	"fmt"

	"shefa-backend/internal/costing"
	"shefa-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func recomputeItems(tx *gorm.DB, orgID uint, itemIDs []uuid.UUID) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	var rows []models.Item
	if err := tx.Where("org_id = ? AND id IN ?", orgID, itemIDs).Order("id").Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("load items: %w", err)
	}

	changed := 0
	for _, it := range rows {
		cost := costing.ResolveItemCost(it.PurchaseCost, it.BaseQtyPerPurchase)
		if costing.SameCost(cost, it.CostPerBaseUnit) {
			continue
		}
		err := tx.Model(&models.Item{}).
			Where("id = ?", it.ID).
			UpdateColumn("cost_per_base_unit", cost).Error
		if err != nil {
			return changed, fmt.Errorf("store item cost: %w", err)
		}
		changed++
	}
	return changed, nil
}

type recipeLineRow struct {
	RecipeID        uuid.UUID           `gorm:"column:recipe_id"`
	ItemID          uuid.UUID           `gorm:"column:item_id"`
	QtyG            decimal.Decimal     `gorm:"column:qty_g"`
	WastePct        decimal.Decimal     `gorm:"column:waste_pct"`
	CostPerBaseUnit decimal.NullDecimal `gorm:"column:cost_per_base_unit"`
}

func loadRecipeLines(tx *gorm.DB, recipeIDs []uuid.UUID) (map[uuid.UUID][]costing.RecipeLine, error) {
	var rows []recipeLineRow
	err := tx.Table("recipe_items").
		Select("recipe_items.recipe_id, recipe_items.item_id, recipe_items.qty_g, recipe_items.waste_pct, items.cost_per_base_unit").
		Joins("JOIN items ON items.id = recipe_items.item_id").
		Where("recipe_items.recipe_id IN ?", recipeIDs).
		Order("recipe_items.recipe_id, recipe_items.item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load recipe lines: %w", err)
	}

	out := make(map[uuid.UUID][]costing.RecipeLine, len(recipeIDs))
	for _, r := range rows {
		out[r.RecipeID] = append(out[r.RecipeID], costing.RecipeLine{
			ItemID:   r.ItemID,
			QtyG:     r.QtyG,
			WastePct: r.WastePct,
			Cost:     r.CostPerBaseUnit,
		})
	}
	return out, nil
}

func recomputeRecipes(tx *gorm.DB, orgID uint, recipeIDs []uuid.UUID) (int, error) {
	if len(recipeIDs) == 0 {
		return 0, nil
	}
	var recipes []models.Recipe
	if err := tx.Where("org_id = ? AND id IN ?", orgID, recipeIDs).Order("id").Find(&recipes).Error; err != nil {
		return 0, fmt.Errorf("load recipes: %w", err)
	}
	lines, err := loadRecipeLines(tx, recipeIDs)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, rec := range recipes {
		cost := costing.AggregateRecipe(rec.YieldQtyG, lines[rec.ID])
		if cost.Total.Equal(rec.TotalRecipeCost) &&
			costing.SameCost(cost.PerGram, rec.RecipeCostPerGram) &&
			cost.Incomplete == rec.CostIncomplete {
			continue
		}
		err := tx.Model(&models.Recipe{}).
			Where("id = ?", rec.ID).
			UpdateColumns(map[string]any{
				"total_recipe_cost":    cost.Total,
				"recipe_cost_per_gram": cost.PerGram,
				"cost_incomplete":      cost.Incomplete,
			}).Error
		if err != nil {
			return changed, fmt.Errorf("store recipe cost: %w", err)
		}
		changed++
	}
	return changed, nil
}

type productItemRow struct {
	ProductID       uuid.UUID           `gorm:"column:product_id"`
	ItemID          uuid.UUID           `gorm:"column:item_id"`
	QtyG            decimal.Decimal     `gorm:"column:qty_g"`
	CostPerBaseUnit decimal.NullDecimal `gorm:"column:cost_per_base_unit"`
}

type productRecipeRow struct {
	ProductID         uuid.UUID           `gorm:"column:product_id"`
	RecipeID          uuid.UUID           `gorm:"column:recipe_id"`
	QtyG              decimal.Decimal     `gorm:"column:qty_g"`
	YieldQtyG         decimal.Decimal     `gorm:"column:yield_qty_g"`
	RecipeCostPerGram decimal.NullDecimal `gorm:"column:recipe_cost_per_gram"`
	CostIncomplete    bool                `gorm:"column:cost_incomplete"`
}

func loadProductLines(tx *gorm.DB, productIDs []uuid.UUID) (map[uuid.UUID][]costing.ProductItemLine, map[uuid.UUID][]productRecipeRow, error) {
	var itemRows []productItemRow
	err := tx.Table("finished_product_items").
		Select("finished_product_items.product_id, finished_product_items.item_id, finished_product_items.qty_g, items.cost_per_base_unit").
		Joins("JOIN items ON items.id = finished_product_items.item_id").
		Where("finished_product_items.product_id IN ?", productIDs).
		Order("finished_product_items.product_id, finished_product_items.item_id").
		Scan(&itemRows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("load product items: %w", err)
	}

	var recipeRows []productRecipeRow
	err = tx.Table("finished_product_recipes").
		Select("finished_product_recipes.product_id, finished_product_recipes.recipe_id, finished_product_recipes.qty_g, " +
			"recipes.yield_qty_g, recipes.recipe_cost_per_gram, recipes.cost_incomplete").
		Joins("JOIN recipes ON recipes.id = finished_product_recipes.recipe_id").
		Where("finished_product_recipes.product_id IN ?", productIDs).
		Order("finished_product_recipes.product_id, finished_product_recipes.recipe_id").
		Scan(&recipeRows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("load product recipes: %w", err)
	}

	items := make(map[uuid.UUID][]costing.ProductItemLine, len(productIDs))
	for _, r := range itemRows {
		items[r.ProductID] = append(items[r.ProductID], costing.ProductItemLine{
			ItemID: r.ItemID,
			QtyG:   r.QtyG,
			Cost:   r.CostPerBaseUnit,
		})
	}
	recipes := make(map[uuid.UUID][]productRecipeRow, len(productIDs))
	for _, r := range recipeRows {
		recipes[r.ProductID] = append(recipes[r.ProductID], r)
	}
	return items, recipes, nil
}

func (r productRecipeRow) line() costing.ProductRecipeLine {
	return costing.ProductRecipeLine{
		RecipeID:         r.RecipeID,
		QtyG:             r.QtyG,
		PerGram:          r.RecipeCostPerGram,
		RecipeIncomplete: r.CostIncomplete,
	}
}

func recomputeProducts(tx *gorm.DB, orgID uint, productIDs []uuid.UUID) (int, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	var products []models.FinishedProduct
	if err := tx.Where("org_id = ? AND id IN ?", orgID, productIDs).Order("id").Find(&products).Error; err != nil {
		return 0, fmt.Errorf("load products: %w", err)
	}
	itemLines, recipeRows, err := loadProductLines(tx, productIDs)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, p := range products {
		rl := make([]costing.ProductRecipeLine, 0, len(recipeRows[p.ID]))
		for _, row := range recipeRows[p.ID] {
			rl = append(rl, row.line())
		}
		cost := costing.AggregateProduct(itemLines[p.ID], rl)
		if cost.DirectItemsCost.Equal(p.DirectItemsCost) &&
			cost.RecipesCost.Equal(p.RecipesCost) &&
			cost.Total.Equal(p.TotalCost) &&
			cost.Incomplete == p.CostIncomplete {
			continue
		}
		err := tx.Model(&models.FinishedProduct{}).
			Where("id = ?", p.ID).
			UpdateColumns(map[string]any{
				"direct_items_cost": cost.DirectItemsCost,
				"recipes_cost":      cost.RecipesCost,
				"total_cost":        cost.Total,
				"cost_incomplete":   cost.Incomplete,
			}).Error
		if err != nil {
			return changed, fmt.Errorf("store product cost: %w", err)
		}
		changed++
	}
	return changed, nil
}
