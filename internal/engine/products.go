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

func validateProductItems(lines []ProductItemInput) ([]uuid.UUID, error) {
	if err := costing.CheckEdge(costing.KindProduct, costing.KindItem); err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if err := costing.ValidateProductLine(l.QtyG); err != nil {
			return nil, err
		}
		out = append(out, l.ItemID)
	}
	if err := distinct("items", out); err != nil {
		return nil, err
	}
	costing.SortIDs(out)
	return out, nil
}

func validateProductRecipes(lines []ProductRecipeInput) ([]uuid.UUID, error) {
	if err := costing.CheckEdge(costing.KindProduct, costing.KindRecipe); err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if err := costing.ValidateProductLine(l.QtyG); err != nil {
			return nil, err
		}
		out = append(out, l.RecipeID)
	}
	if err := distinct("recipes", out); err != nil {
		return nil, err
	}
	costing.SortIDs(out)
	return out, nil
}

func replaceProductItems(tx *gorm.DB, productID uuid.UUID, lines []ProductItemInput) error {
	if err := tx.Where("product_id = ?", productID).Delete(&models.FinishedProductItem{}).Error; err != nil {
		return fmt.Errorf("clear product items: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}
	rows := make([]models.FinishedProductItem, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, models.FinishedProductItem{ProductID: productID, ItemID: l.ItemID, QtyG: l.QtyG})
	}
	if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert product items: %w", err)
	}
	return nil
}

func replaceProductRecipes(tx *gorm.DB, productID uuid.UUID, lines []ProductRecipeInput) error {
	if err := tx.Where("product_id = ?", productID).Delete(&models.FinishedProductRecipe{}).Error; err != nil {
		return fmt.Errorf("clear product recipes: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}
	rows := make([]models.FinishedProductRecipe, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, models.FinishedProductRecipe{ProductID: productID, RecipeID: l.RecipeID, QtyG: l.QtyG})
	}
	if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert product recipes: %w", err)
	}
	return nil
}

// lockProductChildren share-locks the items and recipes a product will reference,
// so a concurrent cost change either sees the new edge or is seen by this recompute.
func lockProductChildren(tx *gorm.DB, orgID uint, itemIDs, recipeIDs []uuid.UUID) error {
	if _, err := lockItems(tx, orgID, itemIDs, forShare); err != nil {
		return err
	}
	_, err := lockRecipes(tx, orgID, recipeIDs, forShare)
	return err
}

func (e *Engine) CreateProduct(ctx context.Context, actor Actor, in ProductInput) (models.FinishedProduct, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.FinishedProduct{}, costing.Invalid("name", "is required")
	}
	itemIDs, err := validateProductItems(in.Items)
	if err != nil {
		return models.FinishedProduct{}, err
	}
	recipeIDs, err := validateProductRecipes(in.Recipes)
	if err != nil {
		return models.FinishedProduct{}, err
	}

	product := models.FinishedProduct{
		ID:          uuid.New(),
		OrgID:       actor.OrgID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		CreatedBy:   actor.UserID,
		UpdatedBy:   actor.UserID,
	}

	_, err = e.mutate(ctx, actor, "create_product", func(r *run) (costing.Seed, error) {
		if err := lockProductChildren(r.tx, actor.OrgID, itemIDs, recipeIDs); err != nil {
			return costing.Seed{}, err
		}
		if err := r.tx.Omit(clause.Associations).Create(&product).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("create product: %w", err)
		}
		if err := replaceProductItems(r.tx, product.ID, in.Items); err != nil {
			return costing.Seed{}, err
		}
		if err := replaceProductRecipes(r.tx, product.ID, in.Recipes); err != nil {
			return costing.Seed{}, err
		}
		if err := r.audit(models.AuditActionCreate, costing.KindProduct, product.ID, "product created: "+product.Name, nil, in); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Products: one(product.ID)}, nil
	})
	if err != nil {
		return models.FinishedProduct{}, err
	}
	return e.GetProduct(ctx, actor.OrgID, product.ID)
}

// UpdateProduct applies scalar fields and replaces the item and recipe sets that are present.
func (e *Engine) UpdateProduct(ctx context.Context, actor Actor, id uuid.UUID, p ProductPatch) (models.FinishedProduct, RecomputeReport, error) {
	if p.Empty() {
		return models.FinishedProduct{}, RecomputeReport{}, costing.Invalid("", "no fields to update")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return models.FinishedProduct{}, RecomputeReport{}, costing.Invalid("name", "must not be empty")
	}
	var itemIDs, recipeIDs []uuid.UUID
	var err error
	if p.Items != nil {
		if itemIDs, err = validateProductItems(*p.Items); err != nil {
			return models.FinishedProduct{}, RecomputeReport{}, err
		}
	}
	if p.Recipes != nil {
		if recipeIDs, err = validateProductRecipes(*p.Recipes); err != nil {
			return models.FinishedProduct{}, RecomputeReport{}, err
		}
	}

	report, err := e.mutate(ctx, actor, "update_product", func(r *run) (costing.Seed, error) {
		if err := exists(r.tx, &models.FinishedProduct{}, actor.OrgID, id, costing.KindProduct); err != nil {
			return costing.Seed{}, err
		}
		if err := lockProductChildren(r.tx, actor.OrgID, itemIDs, recipeIDs); err != nil {
			return costing.Seed{}, err
		}
		locked, err := lockProducts(r.tx, actor.OrgID, one(id), forUpdate)
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
		if err := r.tx.Model(&models.FinishedProduct{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("update product: %w", err)
		}
		if p.Items != nil {
			if err := replaceProductItems(r.tx, id, *p.Items); err != nil {
				return costing.Seed{}, err
			}
		}
		if p.Recipes != nil {
			if err := replaceProductRecipes(r.tx, id, *p.Recipes); err != nil {
				return costing.Seed{}, err
			}
		}
		if err := r.audit(models.AuditActionUpdate, costing.KindProduct, id, "product updated: "+before.Name, before, updates); err != nil {
			return costing.Seed{}, err
		}

		if !p.TouchesCost() {
			return costing.Seed{}, nil
		}
		return costing.Seed{Products: one(id)}, nil
	})
	if err != nil {
		return models.FinishedProduct{}, report, err
	}
	prod, err := e.GetProduct(ctx, actor.OrgID, id)
	return prod, report, err
}

func (e *Engine) DeleteProduct(ctx context.Context, actor Actor, id uuid.UUID) error {
	_, err := e.mutate(ctx, actor, "delete_product", func(r *run) (costing.Seed, error) {
		locked, err := lockProducts(r.tx, actor.OrgID, one(id), forUpdate)
		if err != nil {
			return costing.Seed{}, err
		}
		if err := r.tx.Where("product_id = ?", id).Delete(&models.FinishedProductItem{}).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("delete product items: %w", err)
		}
		if err := r.tx.Where("product_id = ?", id).Delete(&models.FinishedProductRecipe{}).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("delete product recipes: %w", err)
		}
		if err := r.tx.Where("id = ?", id).Delete(&models.FinishedProduct{}).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("delete product: %w", err)
		}
		return costing.Seed{}, r.audit(models.AuditActionDelete, costing.KindProduct, id, "product deleted: "+locked[0].Name, locked[0], nil)
	})
	return err
}

func (e *Engine) UpsertProductItem(ctx context.Context, actor Actor, productID, itemID uuid.UUID, qtyG decimal.Decimal) (RecomputeReport, error) {
	if _, err := validateProductItems([]ProductItemInput{{ItemID: itemID, QtyG: qtyG}}); err != nil {
		return RecomputeReport{}, err
	}
	return e.mutate(ctx, actor, "upsert_product_item", func(r *run) (costing.Seed, error) {
		if err := exists(r.tx, &models.FinishedProduct{}, actor.OrgID, productID, costing.KindProduct); err != nil {
			return costing.Seed{}, err
		}
		if err := lockProductChildren(r.tx, actor.OrgID, one(itemID), nil); err != nil {
			return costing.Seed{}, err
		}
		if _, err := lockProducts(r.tx, actor.OrgID, one(productID), forUpdate); err != nil {
			return costing.Seed{}, err
		}
		row := models.FinishedProductItem{ProductID: productID, ItemID: itemID, QtyG: qtyG}
		err := r.tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty_g"}),
		}).Create(&row).Error
		if err != nil {
			return costing.Seed{}, fmt.Errorf("upsert product item: %w", err)
		}
		if err := r.audit(models.AuditActionUpdate, costing.KindProduct, productID, "product item set: "+itemID.String(), nil, row); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Products: one(productID)}, nil
	})
}

func (e *Engine) DeleteProductItem(ctx context.Context, actor Actor, productID, itemID uuid.UUID) (RecomputeReport, error) {
	return e.mutate(ctx, actor, "delete_product_item", func(r *run) (costing.Seed, error) {
		if _, err := lockProducts(r.tx, actor.OrgID, one(productID), forUpdate); err != nil {
			return costing.Seed{}, err
		}
		res := r.tx.Where("product_id = ? AND item_id = ?", productID, itemID).Delete(&models.FinishedProductItem{})
		if res.Error != nil {
			return costing.Seed{}, fmt.Errorf("delete product item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return costing.Seed{}, costing.NotFound(costing.KindItem)
		}
		if err := r.audit(models.AuditActionDelete, costing.KindProduct, productID, "product item removed: "+itemID.String(), nil, nil); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Products: one(productID)}, nil
	})
}

func (e *Engine) UpsertProductRecipe(ctx context.Context, actor Actor, productID, recipeID uuid.UUID, qtyG decimal.Decimal) (RecomputeReport, error) {
	if _, err := validateProductRecipes([]ProductRecipeInput{{RecipeID: recipeID, QtyG: qtyG}}); err != nil {
		return RecomputeReport{}, err
	}
	return e.mutate(ctx, actor, "upsert_product_recipe", func(r *run) (costing.Seed, error) {
		if err := exists(r.tx, &models.FinishedProduct{}, actor.OrgID, productID, costing.KindProduct); err != nil {
			return costing.Seed{}, err
		}
		if err := lockProductChildren(r.tx, actor.OrgID, nil, one(recipeID)); err != nil {
			return costing.Seed{}, err
		}
		if _, err := lockProducts(r.tx, actor.OrgID, one(productID), forUpdate); err != nil {
			return costing.Seed{}, err
		}
		row := models.FinishedProductRecipe{ProductID: productID, RecipeID: recipeID, QtyG: qtyG}
		err := r.tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "recipe_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"qty_g"}),
		}).Create(&row).Error
		if err != nil {
			return costing.Seed{}, fmt.Errorf("upsert product recipe: %w", err)
		}
		if err := r.audit(models.AuditActionUpdate, costing.KindProduct, productID, "product recipe set: "+recipeID.String(), nil, row); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Products: one(productID)}, nil
	})
}

func (e *Engine) DeleteProductRecipe(ctx context.Context, actor Actor, productID, recipeID uuid.UUID) (RecomputeReport, error) {
	return e.mutate(ctx, actor, "delete_product_recipe", func(r *run) (costing.Seed, error) {
		if _, err := lockProducts(r.tx, actor.OrgID, one(productID), forUpdate); err != nil {
			return costing.Seed{}, err
		}
		res := r.tx.Where("product_id = ? AND recipe_id = ?", productID, recipeID).Delete(&models.FinishedProductRecipe{})
		if res.Error != nil {
			return costing.Seed{}, fmt.Errorf("delete product recipe: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return costing.Seed{}, costing.NotFound(costing.KindRecipe)
		}
		if err := r.audit(models.AuditActionDelete, costing.KindProduct, productID, "product recipe removed: "+recipeID.String(), nil, nil); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Products: one(productID)}, nil
	})
}
