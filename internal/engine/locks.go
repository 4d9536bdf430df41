package engine

import (
	"shefa-backend/internal/costing"
	"shefa-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lock strengths. Every transaction acquires row locks layer by layer
// (items, recipes, products) and in id order inside a layer.
const (
	forUpdate = "UPDATE"
	forShare  = "SHARE"
)

func locking(tx *gorm.DB, strength string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: strength})
}

// lockItems locks the org's items with the given ids and fails with NotFound
// if any of them is absent or owned by another organization.
func lockItems(tx *gorm.DB, orgID uint, itemIDs []uuid.UUID, strength string) ([]models.Item, error) {
	var rows []models.Item
	if len(itemIDs) == 0 {
		return rows, nil
	}
	err := locking(tx, strength).
		Where("org_id = ? AND id IN ?", orgID, itemIDs).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) != len(itemIDs) {
		return nil, costing.NotFound(costing.KindItem)
	}
	return rows, nil
}

func lockRecipes(tx *gorm.DB, orgID uint, recipeIDs []uuid.UUID, strength string) ([]models.Recipe, error) {
	var rows []models.Recipe
	if len(recipeIDs) == 0 {
		return rows, nil
	}
	err := locking(tx, strength).
		Where("org_id = ? AND id IN ?", orgID, recipeIDs).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) != len(recipeIDs) {
		return nil, costing.NotFound(costing.KindRecipe)
	}
	return rows, nil
}

func lockProducts(tx *gorm.DB, orgID uint, productIDs []uuid.UUID, strength string) ([]models.FinishedProduct, error) {
	var rows []models.FinishedProduct
	if len(productIDs) == 0 {
		return rows, nil
	}
	err := locking(tx, strength).
		Where("org_id = ? AND id IN ?", orgID, productIDs).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) != len(productIDs) {
		return nil, costing.NotFound(costing.KindProduct)
	}
	return rows, nil
}

// exists is the plain, lock-free parent check edge writers do before locking children.
func exists(tx *gorm.DB, model any, orgID uint, id uuid.UUID, kind costing.EntityKind) error {
	var n int64
	if err := tx.Model(model).Where("org_id = ? AND id = ?", orgID, id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return costing.NotFound(kind)
	}
	return nil
}

// distinct rejects duplicate ids inside a replacement set.
func distinct(field string, list []uuid.UUID) error {
	seen := make(map[uuid.UUID]struct{}, len(list))
	for _, id := range list {
		if id == uuid.Nil {
			return costing.Invalid(field, "id is required")
		}
		if _, dup := seen[id]; dup {
			return costing.Invalid(field, "duplicate id "+id.String())
		}
		seen[id] = struct{}{}
	}
	return nil
}
