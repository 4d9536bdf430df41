package engine

import (
	"context"
	"fmt"
	"strings"

	"shefa-backend/internal/costing"
	"shefa-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceRow is one line of a purchase-price import. SKU wins over Name when both are set.
type PriceRow struct {
	Row                int
	SKU                string
	Name               string
	PurchaseCost       decimal.Decimal
	BaseQtyPerPurchase *decimal.Decimal
}

type ImportedItem struct {
	Row     int       `json:"row"`
	ItemID  uuid.UUID `json:"item_id"`
	Name    string    `json:"name"`
	OldCost string    `json:"old_purchase_cost"`
	NewCost string    `json:"new_purchase_cost"`
}

type UnmatchedRow struct {
	Row    int    `json:"row"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type ImportReport struct {
	Updated   []ImportedItem  `json:"updated"`
	Unmatched []UnmatchedRow  `json:"unmatched"`
	Recompute RecomputeReport `json:"recompute"`
}

func toLower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// ImportPrices updates purchase costs of many items in one transaction with a
// single deduplicated recompute of everything downstream.
func (e *Engine) ImportPrices(ctx context.Context, actor Actor, rows []PriceRow) (ImportReport, error) {
	var rep ImportReport

	for _, row := range rows {
		if row.PurchaseCost.IsNegative() {
			return ImportReport{}, costing.Invalid(fmt.Sprintf("row %d", row.Row), "purchase cost must not be negative")
		}
		if row.BaseQtyPerPurchase != nil && row.BaseQtyPerPurchase.IsNegative() {
			return ImportReport{}, costing.Invalid(fmt.Sprintf("row %d", row.Row), "base quantity must not be negative")
		}
	}

	report, err := e.mutate(ctx, actor, "import_prices", func(r *run) (costing.Seed, error) {
		rep = ImportReport{}

		var all []models.Item
		if err := r.tx.Where("org_id = ?", actor.OrgID).Find(&all).Error; err != nil {
			return costing.Seed{}, err
		}
		bySKU := map[string]models.Item{}
		byName := map[string][]models.Item{}
		for _, it := range all {
			if it.SKU != nil {
				bySKU[toLower(*it.SKU)] = it
			}
			byName[toLower(it.Name)] = append(byName[toLower(it.Name)], it)
		}

		matched := map[uuid.UUID]PriceRow{}
		for _, row := range rows {
			key := row.SKU
			it, ok := bySKU[toLower(row.SKU)]
			if row.SKU == "" || !ok {
				key = row.Name
				candidates := byName[toLower(row.Name)]
				switch {
				case row.Name == "" && row.SKU == "":
					rep.Unmatched = append(rep.Unmatched, UnmatchedRow{Row: row.Row, Reason: "empty sku and name"})
					continue
				case len(candidates) == 0:
					rep.Unmatched = append(rep.Unmatched, UnmatchedRow{Row: row.Row, Key: key, Reason: "no matching item"})
					continue
				case len(candidates) > 1:
					rep.Unmatched = append(rep.Unmatched, UnmatchedRow{Row: row.Row, Key: key, Reason: "name matches several items"})
					continue
				}
				it = candidates[0]
			}
			// last row for an item wins
			matched[it.ID] = row
		}

		itemIDs := make([]uuid.UUID, 0, len(matched))
		for id := range matched {
			itemIDs = append(itemIDs, id)
		}
		costing.SortIDs(itemIDs)

		locked, err := lockItems(r.tx, actor.OrgID, itemIDs, forUpdate)
		if err != nil {
			return costing.Seed{}, err
		}

		for _, it := range locked {
			row := matched[it.ID]
			updates := map[string]any{"purchase_cost": row.PurchaseCost, "updated_by": actor.UserID}
			if row.BaseQtyPerPurchase != nil {
				updates["base_qty_per_purchase"] = *row.BaseQtyPerPurchase
			}
			if err := r.tx.Model(&models.Item{}).Where("id = ?", it.ID).Updates(updates).Error; err != nil {
				return costing.Seed{}, fmt.Errorf("update item %s: %w", it.ID, err)
			}
			rep.Updated = append(rep.Updated, ImportedItem{
				Row:     row.Row,
				ItemID:  it.ID,
				Name:    it.Name,
				OldCost: it.PurchaseCost.String(),
				NewCost: row.PurchaseCost.String(),
			})
		}

		desc := fmt.Sprintf("price import: %d updated, %d unmatched", len(rep.Updated), len(rep.Unmatched))
		if err := r.auditOrg(models.AuditActionImport, desc, rep); err != nil {
			return costing.Seed{}, err
		}
		return costing.Seed{Items: itemIDs}, nil
	})
	if err != nil {
		return ImportReport{}, err
	}
	rep.Recompute = report
	return rep, nil
}

// RecomputeOrg rebuilds every derived cost of one organization.
func (e *Engine) RecomputeOrg(ctx context.Context, actor Actor) (RecomputeReport, error) {
	return e.mutate(ctx, actor, "recompute_org", func(r *run) (costing.Seed, error) {
		var seed costing.Seed
		if err := r.tx.Model(&models.Item{}).Where("org_id = ?", actor.OrgID).Pluck("id", &seed.Items).Error; err != nil {
			return costing.Seed{}, err
		}
		if err := r.tx.Model(&models.Recipe{}).Where("org_id = ?", actor.OrgID).Pluck("id", &seed.Recipes).Error; err != nil {
			return costing.Seed{}, err
		}
		if err := r.tx.Model(&models.FinishedProduct{}).Where("org_id = ?", actor.OrgID).Pluck("id", &seed.Products).Error; err != nil {
			return costing.Seed{}, err
		}
		return seed, r.auditOrg(models.AuditActionRecompute, "full recompute", nil)
	})
}
