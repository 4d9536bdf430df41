package inventory

import (
	"strings"

	"shefa-backend/internal/auth"
	"shefa-backend/internal/engine"
	"shefa-backend/internal/models"
	"shefa-backend/internal/request"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemResponse struct {
	ID                 uuid.UUID           `json:"id"`
	Name               string              `json:"name"`
	SKU                *string             `json:"sku"`
	CategoryID         *uint               `json:"category_id"`
	CategoryName       string              `json:"category_name,omitempty"`
	PurchaseUnitID     uint                `json:"purchase_unit_id"`
	PurchaseUnit       string              `json:"purchase_unit"`
	PurchaseQty        decimal.Decimal     `json:"purchase_qty"`
	PurchaseCost       decimal.Decimal     `json:"purchase_cost"`
	BaseUnitID         uint                `json:"base_unit_id"`
	BaseUnit           string              `json:"base_unit"`
	BaseQtyPerPurchase decimal.Decimal     `json:"base_qty_per_purchase"`
	CostPerBaseUnit    decimal.NullDecimal `json:"cost_per_base_unit"`
	Active             bool                `json:"active"`
	UpdatedAt          string              `json:"updated_at"`
}

type CreateItemRequest struct {
	Name               string           `json:"name" validate:"required,max=150"`
	SKU                *string          `json:"sku" validate:"omitempty,max=50"`
	CategoryID         *uint            `json:"category_id" validate:"omitempty,gt=0"`
	PurchaseUnitID     uint             `json:"purchase_unit_id" validate:"required"`
	PurchaseQty        *decimal.Decimal `json:"purchase_qty" validate:"required"`
	PurchaseCost       *decimal.Decimal `json:"purchase_cost" validate:"required"`
	BaseUnitID         uint             `json:"base_unit_id" validate:"required"`
	BaseQtyPerPurchase *decimal.Decimal `json:"base_qty_per_purchase" validate:"required"`
	Active             *bool            `json:"active"`
}

type UpdateItemRequest struct {
	Name               *string          `json:"name" validate:"omitempty,max=150"`
	SKU                *string          `json:"sku" validate:"omitempty,max=50"`
	CategoryID         *uint            `json:"category_id" validate:"omitempty,gt=0"`
	ClearCategory      bool             `json:"clear_category"`
	PurchaseUnitID     *uint            `json:"purchase_unit_id" validate:"omitempty,gt=0"`
	PurchaseQty        *decimal.Decimal `json:"purchase_qty"`
	PurchaseCost       *decimal.Decimal `json:"purchase_cost"`
	BaseUnitID         *uint            `json:"base_unit_id" validate:"omitempty,gt=0"`
	BaseQtyPerPurchase *decimal.Decimal `json:"base_qty_per_purchase"`
	Active             *bool            `json:"active"`
}

func (r UpdateItemRequest) patch() engine.ItemPatch {
	return engine.ItemPatch{
		Name:               r.Name,
		SKU:                r.SKU,
		CategoryID:         r.CategoryID,
		ClearCategory:      r.ClearCategory,
		PurchaseUnitID:     r.PurchaseUnitID,
		PurchaseQty:        r.PurchaseQty,
		PurchaseCost:       r.PurchaseCost,
		BaseUnitID:         r.BaseUnitID,
		BaseQtyPerPurchase: r.BaseQtyPerPurchase,
		Active:             r.Active,
	}
}

func toItemResponse(it models.Item) ItemResponse {
	res := ItemResponse{
		ID:                 it.ID,
		Name:               it.Name,
		SKU:                it.SKU,
		CategoryID:         it.CategoryID,
		PurchaseUnitID:     it.PurchaseUnitID,
		PurchaseUnit:       it.PurchaseUnit.Symbol,
		PurchaseQty:        it.PurchaseQty,
		PurchaseCost:       it.PurchaseCost,
		BaseUnitID:         it.BaseUnitID,
		BaseUnit:           it.BaseUnit.Symbol,
		BaseQtyPerPurchase: it.BaseQtyPerPurchase,
		CostPerBaseUnit:    it.CostPerBaseUnit,
		Active:             it.Active,
		UpdatedAt:          it.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
	if it.Category != nil {
		res.CategoryName = it.Category.Name
	}
	return res
}

// GET /api/orgs/:orgId/items?category_id=3&active=true&q=flour
func ListItemsHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := engine.ItemFilter{
			ActiveOnly: c.QueryBool("active", false),
			Search:     strings.TrimSpace(c.Query("q")),
		}
		if v := c.QueryInt("category_id", 0); v > 0 {
			id := uint(v)
			f.CategoryID = &id
		}

		items, err := eng.ListItems(c.UserContext(), auth.Actor(c).OrgID, f)
		if err != nil {
			return err
		}
		res := make([]ItemResponse, 0, len(items))
		for _, it := range items {
			res = append(res, toItemResponse(it))
		}
		return c.JSON(res)
	}
}

// GET /api/orgs/:orgId/items/:itemId
func GetItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "itemId")
		if err != nil {
			return err
		}
		it, err := eng.GetItem(c.UserContext(), auth.Actor(c).OrgID, id)
		if err != nil {
			return err
		}
		return c.JSON(toItemResponse(it))
	}
}

// POST /api/orgs/:orgId/items
func CreateItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateItemRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}

		it, err := eng.CreateItem(c.UserContext(), auth.Actor(c), engine.ItemInput{
			Name:               body.Name,
			SKU:                body.SKU,
			CategoryID:         body.CategoryID,
			PurchaseUnitID:     body.PurchaseUnitID,
			PurchaseQty:        *body.PurchaseQty,
			PurchaseCost:       *body.PurchaseCost,
			BaseUnitID:         body.BaseUnitID,
			BaseQtyPerPurchase: *body.BaseQtyPerPurchase,
			Active:             body.Active,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toItemResponse(it))
	}
}

// PATCH /api/orgs/:orgId/items/:itemId
// A cost change is propagated to every dependent recipe and product before the response.
func UpdateItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "itemId")
		if err != nil {
			return err
		}
		var body UpdateItemRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}

		it, report, err := eng.UpdateItem(c.UserContext(), auth.Actor(c), id, body.patch())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"item":      toItemResponse(it),
			"recompute": report,
		})
	}
}

// DELETE /api/orgs/:orgId/items/:itemId
func DeleteItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "itemId")
		if err != nil {
			return err
		}
		if err := eng.DeleteItem(c.UserContext(), auth.Actor(c), id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
