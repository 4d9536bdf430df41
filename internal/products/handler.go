// Package products exposes finished products, their cost breakdown and
// single-edge edits over HTTP.
package products

import (
	"shefa-backend/internal/auth"
	"shefa-backend/internal/costing"
	"shefa-backend/internal/engine"
	"shefa-backend/internal/models"
	"shefa-backend/internal/request"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductItemRequest struct {
	ItemID uuid.UUID       `json:"item_id" validate:"required"`
	QtyG   decimal.Decimal `json:"qty_g"`
}

type ProductRecipeRequest struct {
	RecipeID uuid.UUID       `json:"recipe_id" validate:"required"`
	QtyG     decimal.Decimal `json:"qty_g"`
}

type CreateProductRequest struct {
	Name        string                 `json:"name" validate:"required,max=150"`
	Description string                 `json:"description" validate:"max=500"`
	Items       []ProductItemRequest   `json:"items" validate:"dive"`
	Recipes     []ProductRecipeRequest `json:"recipes" validate:"dive"`
}

// UpdateProductRequest: a present "items" or "recipes" replaces that whole set.
type UpdateProductRequest struct {
	Name        *string                 `json:"name" validate:"omitempty,max=150"`
	Description *string                 `json:"description" validate:"omitempty,max=500"`
	Items       *[]ProductItemRequest   `json:"items" validate:"omitempty,dive"`
	Recipes     *[]ProductRecipeRequest `json:"recipes" validate:"omitempty,dive"`
}

type QtyRequest struct {
	QtyG decimal.Decimal `json:"qty_g"`
}

type ProductResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DirectItemsCost decimal.Decimal `json:"direct_items_cost"`
	RecipesCost     decimal.Decimal `json:"recipes_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	CostIncomplete  bool            `json:"cost_incomplete"`
	UpdatedAt       string          `json:"updated_at"`
}

// NamedItem and NamedRecipe decorate breakdown lines with display names.
type NamedItem struct {
	costing.ItemContribution
	Name string `json:"name"`
}

type NamedRecipe struct {
	costing.RecipeContribution
	Name  string      `json:"name"`
	Items []NamedItem `json:"items"`
}

type BreakdownResponse struct {
	ProductResponse
	DirectItems []NamedItem   `json:"direct_items"`
	Recipes     []NamedRecipe `json:"recipes"`
}

func toProductResponse(p models.FinishedProduct) ProductResponse {
	return ProductResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		DirectItemsCost: p.DirectItemsCost,
		RecipesCost:     p.RecipesCost,
		TotalCost:       p.TotalCost,
		CostIncomplete:  p.CostIncomplete,
		UpdatedAt:       p.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func nameItems(lines []costing.ItemContribution, names map[uuid.UUID]string) []NamedItem {
	out := make([]NamedItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, NamedItem{ItemContribution: l, Name: names[l.ItemID]})
	}
	return out
}

func toBreakdownResponse(v engine.CostView) BreakdownResponse {
	res := BreakdownResponse{
		ProductResponse: toProductResponse(v.Product),
		DirectItems:     nameItems(v.Breakdown.DirectItems, v.Names),
		Recipes:         make([]NamedRecipe, 0, len(v.Breakdown.Recipes)),
	}
	// the projection is computed from the same snapshot as the stored totals
	res.DirectItemsCost = v.Breakdown.DirectItemsCost
	res.RecipesCost = v.Breakdown.RecipesCost
	res.TotalCost = v.Breakdown.TotalCost
	res.CostIncomplete = v.Breakdown.Incomplete

	for _, r := range v.Breakdown.Recipes {
		res.Recipes = append(res.Recipes, NamedRecipe{
			RecipeContribution: r,
			Name:               v.Names[r.RecipeID],
			Items:              nameItems(r.Items, v.Names),
		})
	}
	return res
}

func itemInputs(in []ProductItemRequest) []engine.ProductItemInput {
	out := make([]engine.ProductItemInput, 0, len(in))
	for _, l := range in {
		out = append(out, engine.ProductItemInput{ItemID: l.ItemID, QtyG: l.QtyG})
	}
	return out
}

func recipeInputs(in []ProductRecipeRequest) []engine.ProductRecipeInput {
	out := make([]engine.ProductRecipeInput, 0, len(in))
	for _, l := range in {
		out = append(out, engine.ProductRecipeInput{RecipeID: l.RecipeID, QtyG: l.QtyG})
	}
	return out
}

// GET /api/orgs/:orgId/products
func ListProductsHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := eng.ListProducts(c.UserContext(), auth.Actor(c).OrgID)
		if err != nil {
			return err
		}
		res := make([]ProductResponse, 0, len(list))
		for _, p := range list {
			res = append(res, toProductResponse(p))
		}
		return c.JSON(res)
	}
}

// GET /api/orgs/:orgId/products/:productId
func GetProductHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "productId")
		if err != nil {
			return err
		}
		view, err := eng.ProductBreakdown(c.UserContext(), auth.Actor(c).OrgID, id)
		if err != nil {
			return err
		}
		return c.JSON(toBreakdownResponse(view))
	}
}

// POST /api/orgs/:orgId/products
func CreateProductHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		p, err := eng.CreateProduct(c.UserContext(), auth.Actor(c), engine.ProductInput{
			Name:        body.Name,
			Description: body.Description,
			Items:       itemInputs(body.Items),
			Recipes:     recipeInputs(body.Recipes),
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toProductResponse(p))
	}
}

// PATCH /api/orgs/:orgId/products/:productId
func UpdateProductHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "productId")
		if err != nil {
			return err
		}
		var body UpdateProductRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}

		patch := engine.ProductPatch{Name: body.Name, Description: body.Description}
		if body.Items != nil {
			items := itemInputs(*body.Items)
			patch.Items = &items
		}
		if body.Recipes != nil {
			recipes := recipeInputs(*body.Recipes)
			patch.Recipes = &recipes
		}

		p, report, err := eng.UpdateProduct(c.UserContext(), auth.Actor(c), id, patch)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"product":   toProductResponse(p),
			"recompute": report,
		})
	}
}

// DELETE /api/orgs/:orgId/products/:productId
func DeleteProductHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "productId")
		if err != nil {
			return err
		}
		if err := eng.DeleteProduct(c.UserContext(), auth.Actor(c), id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func edgeIDs(c *fiber.Ctx, child string) (uuid.UUID, uuid.UUID, error) {
	productID, err := request.UUIDParam(c, "productId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	childID, err := request.UUIDParam(c, child)
	return productID, childID, err
}

// PUT /api/orgs/:orgId/products/:productId/items/:itemId
func UpsertProductItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, itemID, err := edgeIDs(c, "itemId")
		if err != nil {
			return err
		}
		var body QtyRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		report, err := eng.UpsertProductItem(c.UserContext(), auth.Actor(c), productID, itemID, body.QtyG)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"recompute": report})
	}
}

// DELETE /api/orgs/:orgId/products/:productId/items/:itemId
func DeleteProductItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, itemID, err := edgeIDs(c, "itemId")
		if err != nil {
			return err
		}
		report, err := eng.DeleteProductItem(c.UserContext(), auth.Actor(c), productID, itemID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"recompute": report})
	}
}

// PUT /api/orgs/:orgId/products/:productId/recipes/:recipeId
func UpsertProductRecipeHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, recipeID, err := edgeIDs(c, "recipeId")
		if err != nil {
			return err
		}
		var body QtyRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		report, err := eng.UpsertProductRecipe(c.UserContext(), auth.Actor(c), productID, recipeID, body.QtyG)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"recompute": report})
	}
}

// DELETE /api/orgs/:orgId/products/:productId/recipes/:recipeId
func DeleteProductRecipeHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, recipeID, err := edgeIDs(c, "recipeId")
		if err != nil {
			return err
		}
		report, err := eng.DeleteProductRecipe(c.UserContext(), auth.Actor(c), productID, recipeID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"recompute": report})
	}
}

// POST /api/orgs/:orgId/recompute
func RecomputeOrgHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := eng.RecomputeOrg(c.UserContext(), auth.Actor(c))
		if err != nil {
			return err
		}
		return c.JSON(report)
	}
}
