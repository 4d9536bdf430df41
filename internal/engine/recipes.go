package engine

import (
	"context"
	"fmt"
	"strings"

	"shefa-backend/internal/costing"
	"shefa-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func validateRecipeLines(lines []RecipeLineInput) ([]uuid.UUID, error) {
	if err := costing.CheckEdge(costing.KindRecipe, costing.KindItem); err != nil {
		return nil, err
	}
	itemIDs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if err := costing.ValidateRecipeLine(l.QtyG, l.WastePct); err != nil {
			return nil, err
		}
		itemIDs = append(itemIDs, l.ItemID)
	}
	if err := distinct("items", itemIDs); err != nil {
		return nil, err
	}
	costing.SortIDs(itemIDs)
	return itemIDs, nil
}

// replaceRecipeLines is delete-all-then-insert-all; the caller recomputes once afterwards.
func replaceRecipeLines(tx *gorm.DB, recipeID uuid.UUID, lines []RecipeLineInput) error {
	if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.RecipeItem{}).Error; err != nil {
		return fmt.Errorf("clear recipe items: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}
	rows := make([]models.RecipeItem, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, models.RecipeItem{RecipeID: recipeID, ItemID: l.ItemID, QtyG: l.QtyG, WastePct: l.WastePct})
	}
	if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert recipe items: %w", err)
	}
	return nil
}

func (e *Engine) CreateRecipe(ctx context.Context, actor Actor, in RecipeInput) (models.Recipe, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.Recipe{}, costing.Invalid("name", "is required")
	}
	if err := costing.ValidateYield(in.YieldQtyG); err != nil {
		return models.Recipe{}, err
	}
	itemIDs, err := validateRecipeLines(in.Items)
	if err != nil {
		return models.Recipe{}, err
	}

	recipe := models.Recipe{
		ID:          uuid.New(),
		OrgID:       actor.OrgID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		YieldQtyG:   in.YieldQtyG,
		CreatedBy:   actor.UserID,
		UpdatedBy:   actor.UserID,
	}

	_, err = e.mutate(ctx, actor, "create_recipe", func(r *run) (costing.Seed, error) {
		if _, err := lockItems(r.tx, actor.OrgID, itemIDs, forShare); err != nil {
			return costing.Seed{}, err
		}
		if err := r.tx.Omit(clause.Associations).Create(&recipe).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("create recipe: %w", err)
		}
		if err := replaceRecipeLines(r.tx, recipe.ID, in.Items); err != nil {
			return costing.Seed{}, err
		}
		if err := r.audit(models.AuditActionCreate, costing.KindRecipe, recipe.ID, "recipe created: "+recipe.Name, nil, in); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Recipes: one(recipe.ID)}, nil
	})
	if err != nil {
		return models.Recipe{}, err
	}
	return e.GetRecipe(ctx, actor.OrgID, recipe.ID)
}

// UpdateRecipe applies scalar fields and, when present, replaces the whole ingredient set.
func (e *Engine) UpdateRecipe(ctx context.Context, actor Actor, id uuid.UUID, p RecipePatch) (models.Recipe, RecomputeReport, error) {
	if p.Empty() {
		return models.Recipe{}, RecomputeReport{}, costing.Invalid("", "no fields to update")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return models.Recipe{}, RecomputeReport{}, costing.Invalid("name", "must not be empty")
	}
	if p.YieldQtyG != nil {
		if err := costing.ValidateYield(*p.YieldQtyG); err != nil {
			return models.Recipe{}, RecomputeReport{}, err
		}
	}
	var itemIDs []uuid.UUID
	if p.Items != nil {
		var err error
		if itemIDs, err = validateRecipeLines(*p.Items); err != nil {
			return models.Recipe{}, RecomputeReport{}, err
		}
	}

	report, err := e.mutate(ctx, actor, "update_recipe", func(r *run) (costing.Seed, error) {
		if err := exists(r.tx, &models.Recipe{}, actor.OrgID, id, costing.KindRecipe); err != nil {
			return costing.Seed{}, err
		}
		if _, err := lockItems(r.tx, actor.OrgID, itemIDs, forShare); err != nil {
			return costing.Seed{}, err
		}
		locked, err := lockRecipes(r.tx, actor.OrgID, one(id), forUpdate)
		if err != nil {
			return costing.Seed{}, err
		}
		before := locked[0]

		updates := map[string]any{"updated_by": actor.UserID}
		if p.Name != nil {
			updates["name"] = strings.TrimSpace(*p.Name)
		}
		if p.Description != nil {
			updates["description"] = *p.Description
		}
		if p.YieldQtyG != nil {
			updates["yield_qty_g"] = *p.YieldQtyG
		}
		if err := r.tx.Model(&models.Recipe{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("update recipe: %w", err)
		}
		if p.Items != nil {
			if err := replaceRecipeLines(r.tx, id, *p.Items); err != nil {
				return costing.Seed{}, err
			}
		}
		if err := r.audit(models.AuditActionUpdate, costing.KindRecipe, id, "recipe updated: "+before.Name, before, updates); err != nil {
			return costing.Seed{}, err
		}

		if !p.TouchesCost() {
			return costing.Seed{}, nil
		}
		return costing.Seed{Recipes: one(id)}, nil
	})
	if err != nil {
		return models.Recipe{}, report, err
	}
	rec, err := e.GetRecipe(ctx, actor.OrgID, id)
	return rec, report, err
}

// DeleteRecipe removes the recipe with its edges and recomputes every product that included it.
func (e *Engine) DeleteRecipe(ctx context.Context, actor Actor, id uuid.UUID) (RecomputeReport, error) {
	return e.mutate(ctx, actor, "delete_recipe", func(r *run) (costing.Seed, error) {
		locked, err := lockRecipes(r.tx, actor.OrgID, one(id), forUpdate)
		if err != nil {
			return costing.Seed{}, err
		}

		affected, err := graph{tx: r.tx, orgID: actor.OrgID}.ProductsUsingRecipes(r.ctx, one(id))
		if err != nil {
			return costing.Seed{}, err
		}

		if err := r.tx.Where("recipe_id = ?", id).Delete(&models.FinishedProductRecipe{}).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("delete product inclusions: %w", err)
		}
		if err := r.tx.Where("recipe_id = ?", id).Delete(&models.RecipeItem{}).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("delete recipe items: %w", err)
		}
		if err := r.tx.Where("id = ?", id).Delete(&models.Recipe{}).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("delete recipe: %w", err)
		}
		if err := r.audit(models.AuditActionDelete, costing.KindRecipe, id, "recipe deleted: "+locked[0].Name, locked[0], nil); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Products: affected}, nil
	})
}

// UpsertRecipeItem sets one ingredient line and recomputes the recipe and its products.
func (e *Engine) UpsertRecipeItem(ctx context.Context, actor Actor, recipeID, itemID uuid.UUID, qtyG, wastePct decimal.Decimal) (RecomputeReport, error) {
	if _, err := validateRecipeLines([]RecipeLineInput{{ItemID: itemID, QtyG: qtyG, WastePct: wastePct}}); err != nil {
		return RecomputeReport{}, err
	}

	return e.mutate(ctx, actor, "upsert_recipe_item", func(r *run) (costing.Seed, error) {
		if err := exists(r.tx, &models.Recipe{}, actor.OrgID, recipeID, costing.KindRecipe); err != nil {
			return costing.Seed{}, err
		}
		if _, err := lockItems(r.tx, actor.OrgID, one(itemID), forShare); err != nil {
			return costing.Seed{}, err
		}
		if _, err := lockRecipes(r.tx, actor.OrgID, one(recipeID), forUpdate); err != nil {
			return costing.Seed{}, err
		}

		row := models.RecipeItem{RecipeID: recipeID, ItemID: itemID, QtyG: qtyG, WastePct: wastePct}
		err := r.tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipe_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty_g", "waste_pct"}),
		}).Create(&row).Error
		if err != nil {
			return costing.Seed{}, fmt.Errorf("upsert recipe item: %w", err)
		}
		if err := r.audit(models.AuditActionUpdate, costing.KindRecipe, recipeID, "recipe item set: "+itemID.String(), nil, row); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Recipes: one(recipeID)}, nil
	})
}

func (e *Engine) DeleteRecipeItem(ctx context.Context, actor Actor, recipeID, itemID uuid.UUID) (RecomputeReport, error) {
	return e.mutate(ctx, actor, "delete_recipe_item", func(r *run) (costing.Seed, error) {
		if _, err := lockRecipes(r.tx, actor.OrgID, one(recipeID), forUpdate); err != nil {
			return costing.Seed{}, err
		}
		res := r.tx.Where("recipe_id = ? AND item_id = ?", recipeID, itemID).Delete(&models.RecipeItem{})
		if res.Error != nil {
			return costing.Seed{}, fmt.Errorf("delete recipe item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return costing.Seed{}, costing.NotFound(costing.KindItem)
		}
		if err := r.audit(models.AuditActionDelete, costing.KindRecipe, recipeID, "recipe item removed: "+itemID.String(), nil, nil); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Recipes: one(recipeID)}, nil
	})
}
