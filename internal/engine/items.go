package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"shefa-backend/internal/audit"
	"shefa-backend/internal/costing"
	"shefa-backend/internal/database"
	"shefa-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func validateItemInput(in ItemInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return costing.Invalid("name", "is required")
	}
	if in.PurchaseUnitID == 0 {
		return costing.Invalid("purchase_unit_id", "is required")
	}
	if in.BaseUnitID == 0 {
		return costing.Invalid("base_unit_id", "is required")
	}
	return costing.ValidatePurchase(in.PurchaseQty, in.PurchaseCost, in.BaseQtyPerPurchase)
}

func checkUnits(tx *gorm.DB, unitIDs map[string]uint) error {
	for field, id := range unitIDs {
		var n int64
		if err := tx.Model(&models.Unit{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return costing.Invalid(field, "unknown unit")
		}
	}
	return nil
}

func checkCategory(tx *gorm.DB, orgID uint, categoryID *uint) error {
	if categoryID == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Category{}).Where("org_id = ? AND id = ?", orgID, *categoryID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return costing.NotFound(costing.KindCategory)
	}
	return nil
}

func normalizeSKU(sku *string) *string {
	if sku == nil {
		return nil
	}
	s := strings.TrimSpace(*sku)
	if s == "" {
		return nil
	}
	return &s
}

func checkSKU(tx *gorm.DB, orgID uint, sku *string, self uuid.UUID) error {
	if sku == nil {
		return nil
	}
	var n int64
	err := tx.Model(&models.Item{}).
		Where("org_id = ? AND sku = ? AND id <> ?", orgID, *sku, self).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: sku %q is used by another item", database.ErrDuplicate, *sku)
	}
	return nil
}

// CreateItem inserts an item and derives its cost per base unit.
func (e *Engine) CreateItem(ctx context.Context, actor Actor, in ItemInput) (models.Item, error) {
	if err := validateItemInput(in); err != nil {
		return models.Item{}, err
	}

	item := models.Item{
		ID:                 uuid.New(),
		OrgID:              actor.OrgID,
		Name:               strings.TrimSpace(in.Name),
		SKU:                normalizeSKU(in.SKU),
		CategoryID:         in.CategoryID,
		PurchaseUnitID:     in.PurchaseUnitID,
		PurchaseQty:        in.PurchaseQty,
		PurchaseCost:       in.PurchaseCost,
		BaseUnitID:         in.BaseUnitID,
		BaseQtyPerPurchase: in.BaseQtyPerPurchase,
		Active:             in.Active == nil || *in.Active,
		CreatedBy:          actor.UserID,
		UpdatedBy:          actor.UserID,
	}

	_, err := e.mutate(ctx, actor, "create_item", func(r *run) (costing.Seed, error) {
		if err := checkUnits(r.tx, map[string]uint{"purchase_unit_id": in.PurchaseUnitID, "base_unit_id": in.BaseUnitID}); err != nil {
			return costing.Seed{}, err
		}
		if err := checkCategory(r.tx, actor.OrgID, in.CategoryID); err != nil {
			return costing.Seed{}, err
		}
		if err := checkSKU(r.tx, actor.OrgID, item.SKU, item.ID); err != nil {
			return costing.Seed{}, err
		}
		if err := r.tx.Omit(clause.Associations).Create(&item).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("create item: %w", err)
		}
		if err := r.audit(models.AuditActionCreate, costing.KindItem, item.ID, "item created: "+item.Name, nil, item); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Items: one(item.ID)}, nil
	})
	if err != nil {
		return models.Item{}, err
	}
	return e.GetItem(ctx, actor.OrgID, item.ID)
}

// UpdateItem applies a patch. Cost-bearing fields cascade to every recipe and
// product that depends on the item, in the same transaction.
func (e *Engine) UpdateItem(ctx context.Context, actor Actor, id uuid.UUID, p ItemPatch) (models.Item, RecomputeReport, error) {
	if p.Empty() {
		return models.Item{}, RecomputeReport{}, costing.Invalid("", "no fields to update")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return models.Item{}, RecomputeReport{}, costing.Invalid("name", "must not be empty")
	}

	report, err := e.mutate(ctx, actor, "update_item", func(r *run) (costing.Seed, error) {
		locked, err := lockItems(r.tx, actor.OrgID, one(id), forUpdate)
		if err != nil {
			return costing.Seed{}, err
		}
		before := locked[0]
		after := before

		if p.Name != nil {
			after.Name = strings.TrimSpace(*p.Name)
		}
		if p.SKU != nil {
			after.SKU = normalizeSKU(p.SKU)
			if err := checkSKU(r.tx, actor.OrgID, after.SKU, id); err != nil {
				return costing.Seed{}, err
			}
		}
		if p.ClearCategory {
			after.CategoryID = nil
		} else if p.CategoryID != nil {
			if err := checkCategory(r.tx, actor.OrgID, p.CategoryID); err != nil {
				return costing.Seed{}, err
			}
			after.CategoryID = p.CategoryID
		}
		units := map[string]uint{}
		if p.PurchaseUnitID != nil {
			after.PurchaseUnitID = *p.PurchaseUnitID
			units["purchase_unit_id"] = *p.PurchaseUnitID
		}
		if p.BaseUnitID != nil {
			after.BaseUnitID = *p.BaseUnitID
			units["base_unit_id"] = *p.BaseUnitID
		}
		if err := checkUnits(r.tx, units); err != nil {
			return costing.Seed{}, err
		}
		if p.PurchaseQty != nil {
			after.PurchaseQty = *p.PurchaseQty
		}
		if p.PurchaseCost != nil {
			after.PurchaseCost = *p.PurchaseCost
		}
		if p.BaseQtyPerPurchase != nil {
			after.BaseQtyPerPurchase = *p.BaseQtyPerPurchase
		}
		if p.Active != nil {
			after.Active = *p.Active
		}
		if err := costing.ValidatePurchase(after.PurchaseQty, after.PurchaseCost, after.BaseQtyPerPurchase); err != nil {
			return costing.Seed{}, err
		}
		after.UpdatedBy = actor.UserID

		err = r.tx.Model(&models.Item{}).Where("id = ?", id).Updates(map[string]any{
			"name":                  after.Name,
			"sku":                   after.SKU,
			"category_id":           after.CategoryID,
			"purchase_unit_id":      after.PurchaseUnitID,
			"purchase_qty":          after.PurchaseQty,
			"purchase_cost":         after.PurchaseCost,
			"base_unit_id":          after.BaseUnitID,
			"base_qty_per_purchase": after.BaseQtyPerPurchase,
			"active":                after.Active,
			"updated_by":            after.UpdatedBy,
		}).Error
		if err != nil {
			return costing.Seed{}, fmt.Errorf("update item: %w", err)
		}
		if err := r.audit(models.AuditActionUpdate, costing.KindItem, id, "item updated: "+after.Name, before, after); err != nil {
			return costing.Seed{}, err
		}

		if !p.TouchesCost() {
			return costing.Seed{}, nil
		}
		return costing.Seed{Items: one(id)}, nil
	})
	if err != nil {
		return models.Item{}, report, err
	}
	item, err := e.GetItem(ctx, actor.OrgID, id)
	return item, report, err
}

// DeleteItem refuses while any recipe or product still references the item.
func (e *Engine) DeleteItem(ctx context.Context, actor Actor, id uuid.UUID) error {
	_, err := e.mutate(ctx, actor, "delete_item", func(r *run) (costing.Seed, error) {
		locked, err := lockItems(r.tx, actor.OrgID, one(id), forUpdate)
		if err != nil {
			return costing.Seed{}, err
		}

		var recipeRefs, productRefs int64
		if err := r.tx.Model(&models.RecipeItem{}).Where("item_id = ?", id).Count(&recipeRefs).Error; err != nil {
			return costing.Seed{}, err
		}
		if err := r.tx.Model(&models.FinishedProductItem{}).Where("item_id = ?", id).Count(&productRefs).Error; err != nil {
			return costing.Seed{}, err
		}
		if recipeRefs > 0 || productRefs > 0 {
			return costing.Seed{}, &costing.ReferentialConflictError{
				Kind:        costing.KindItem,
				ID:          id.String(),
				RecipeRefs:  recipeRefs,
				ProductRefs: productRefs,
			}
		}

		if err := r.tx.Where("id = ?", id).Delete(&models.Item{}).Error; err != nil {
			return costing.Seed{}, fmt.Errorf("delete item: %w", err)
		}
		return costing.Seed{}, r.audit(models.AuditActionDelete, costing.KindItem, id, "item deleted: "+locked[0].Name, locked[0], nil)
	})
	return err
}

func (r *run) audit(action models.AuditAction, kind costing.EntityKind, id uuid.UUID, desc string, before, after any) error {
	return audit.WriteLog(r.tx, audit.LogOptions{
		OrgID:       r.actor.OrgID,
		UserID:      r.actor.UserID,
		UserName:    r.actor.UserName,
		EntityType:  string(kind),
		EntityID:    id.String(),
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
}

// auditOrg records an organization-wide operation.
func (r *run) auditOrg(action models.AuditAction, desc string, after any) error {
	return audit.WriteLog(r.tx, audit.LogOptions{
		OrgID:       r.actor.OrgID,
		UserID:      r.actor.UserID,
		UserName:    r.actor.UserName,
		EntityType:  "organization",
		EntityID:    strconv.FormatUint(uint64(r.actor.OrgID), 10),
		Action:      action,
		Description: desc,
		After:       after,
	})
}

// IsNotFound reports whether err is a not-found of any entity kind.
func IsNotFound(err error) bool {
	return errors.Is(err, costing.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
