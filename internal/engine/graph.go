package engine

import (
	"context"
	"fmt"

	"shefa-backend/internal/costing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// graph answers reverse-dependency lookups inside the mutation's transaction,
// scoped to one organization through the parent tables.
type graph struct {
	tx    *gorm.DB
	orgID uint
}

var _ costing.GraphReader = graph{}

func (g graph) RecipesUsingItems(ctx context.Context, itemIDs []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := g.tx.WithContext(ctx).
		Table("recipe_items").
		Joins("JOIN recipes ON recipes.id = recipe_items.recipe_id").
		Where("recipe_items.item_id IN ? AND recipes.org_id = ?", itemIDs, g.orgID).
		Distinct().
		Pluck("recipe_items.recipe_id", &out).Error
	return out, err
}

func (g graph) ProductsUsingItems(ctx context.Context, itemIDs []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := g.tx.WithContext(ctx).
		Table("finished_product_items").
		Joins("JOIN finished_products ON finished_products.id = finished_product_items.product_id").
		Where("finished_product_items.item_id IN ? AND finished_products.org_id = ?", itemIDs, g.orgID).
		Distinct().
		Pluck("finished_product_items.product_id", &out).Error
	return out, err
}

func (g graph) ProductsUsingRecipes(ctx context.Context, recipeIDs []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := g.tx.WithContext(ctx).
		Table("finished_product_recipes").
		Joins("JOIN finished_products ON finished_products.id = finished_product_recipes.product_id").
		Where("finished_product_recipes.recipe_id IN ? AND finished_products.org_id = ?", recipeIDs, g.orgID).
		Distinct().
		Pluck("finished_product_recipes.product_id", &out).Error
	return out, err
}

var _ costing.LayerLocker = graph{}

// LockLayer takes FOR UPDATE locks on one layer of the affected set.
func (g graph) LockLayer(ctx context.Context, kind costing.EntityKind, ids []uuid.UUID) error {
	tx := g.tx.WithContext(ctx)
	var err error
	switch kind {
	case costing.KindItem:
		_, err = lockItems(tx, g.orgID, ids, forUpdate)
	case costing.KindRecipe:
		_, err = lockRecipes(tx, g.orgID, ids, forUpdate)
	case costing.KindProduct:
		_, err = lockProducts(tx, g.orgID, ids, forUpdate)
	default:
		err = fmt.Errorf("unknown layer %q", kind)
	}
	return err
}
