// Package recipes exposes recipe CRUD and single-line ingredient edits over HTTP.
package recipes

import (
	"shefa-backend/internal/auth"
	"shefa-backend/internal/engine"
	"shefa-backend/internal/models"
	"shefa-backend/internal/request"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RecipeLineRequest struct {
	ItemID   uuid.UUID       `json:"item_id" validate:"required"`
	QtyG     decimal.Decimal `json:"qty_g"`
	WastePct decimal.Decimal `json:"waste_pct"`
}

type CreateRecipeRequest struct {
	Name        string              `json:"name" validate:"required,max=150"`
	Description string              `json:"description" validate:"max=500"`
	YieldQtyG   *decimal.Decimal    `json:"yield_qty_g" validate:"required"`
	Items       []RecipeLineRequest `json:"items" validate:"dive"`
}

// UpdateRecipeRequest: a present "items" replaces the whole ingredient set.
type UpdateRecipeRequest struct {
	Name        *string              `json:"name" validate:"omitempty,max=150"`
	Description *string              `json:"description" validate:"omitempty,max=500"`
	YieldQtyG   *decimal.Decimal     `json:"yield_qty_g"`
	Items       *[]RecipeLineRequest `json:"items" validate:"omitempty,dive"`
}

type RecipeItemRequest struct {
	QtyG     decimal.Decimal `json:"qty_g"`
	WastePct decimal.Decimal `json:"waste_pct"`
}

type RecipeResponse struct {
	ID                uuid.UUID            `json:"id"`
	Name              string               `json:"name"`
	Description       string               `json:"description"`
	YieldQtyG         decimal.Decimal      `json:"yield_qty_g"`
	TotalRecipeCost   decimal.Decimal      `json:"total_recipe_cost"`
	RecipeCostPerGram decimal.NullDecimal  `json:"recipe_cost_per_gram"`
	CostIncomplete    bool                 `json:"cost_incomplete"`
	Items             []RecipeLineResponse `json:"items,omitempty"`
	UpdatedAt         string               `json:"updated_at"`
}

type RecipeLineResponse struct {
	ItemID   uuid.UUID       `json:"item_id"`
	ItemName string          `json:"item_name"`
	QtyG     decimal.Decimal `json:"qty_g"`
	WastePct decimal.Decimal `json:"waste_pct"`
}

func toLines(in []RecipeLineRequest) []engine.RecipeLineInput {
	out := make([]engine.RecipeLineInput, 0, len(in))
	for _, l := range in {
		out = append(out, engine.RecipeLineInput{ItemID: l.ItemID, QtyG: l.QtyG, WastePct: l.WastePct})
	}
	return out
}

func toRecipeResponse(r models.Recipe) RecipeResponse {
	res := RecipeResponse{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		YieldQtyG:         r.YieldQtyG,
		TotalRecipeCost:   r.TotalRecipeCost,
		RecipeCostPerGram: r.RecipeCostPerGram,
		CostIncomplete:    r.CostIncomplete,
		UpdatedAt:         r.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
	for _, ri := range r.Items {
		res.Items = append(res.Items, RecipeLineResponse{
			ItemID:   ri.ItemID,
			ItemName: ri.Item.Name,
			QtyG:     ri.QtyG,
			WastePct: ri.WastePct,
		})
	}
	return res
}

// GET /api/orgs/:orgId/recipes
func ListRecipesHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := eng.ListRecipes(c.UserContext(), auth.Actor(c).OrgID)
		if err != nil {
			return err
		}
		res := make([]RecipeResponse, 0, len(list))
		for _, r := range list {
			res = append(res, toRecipeResponse(r))
		}
		return c.JSON(res)
	}
}

// GET /api/orgs/:orgId/recipes/:recipeId
func GetRecipeHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "recipeId")
		if err != nil {
			return err
		}
		r, err := eng.GetRecipe(c.UserContext(), auth.Actor(c).OrgID, id)
		if err != nil {
			return err
		}
		return c.JSON(toRecipeResponse(r))
	}
}

// POST /api/orgs/:orgId/recipes
func CreateRecipeHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateRecipeRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		r, err := eng.CreateRecipe(c.UserContext(), auth.Actor(c), engine.RecipeInput{
			Name:        body.Name,
			Description: body.Description,
			YieldQtyG:   *body.YieldQtyG,
			Items:       toLines(body.Items),
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toRecipeResponse(r))
	}
}

// PATCH /api/orgs/:orgId/recipes/:recipeId
func UpdateRecipeHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "recipeId")
		if err != nil {
			return err
		}
		var body UpdateRecipeRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}

		p := engine.RecipePatch{Name: body.Name, Description: body.Description, YieldQtyG: body.YieldQtyG}
		if body.Items != nil {
			lines := toLines(*body.Items)
			p.Items = &lines
		}
		r, report, err := eng.UpdateRecipe(c.UserContext(), auth.Actor(c), id, p)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"recipe":    toRecipeResponse(r),
			"recompute": report,
		})
	}
}

// DELETE /api/orgs/:orgId/recipes/:recipeId
// Products that included the recipe lose that inclusion and are recomputed.
func DeleteRecipeHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "recipeId")
		if err != nil {
			return err
		}
		report, err := eng.DeleteRecipe(c.UserContext(), auth.Actor(c), id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"recompute": report})
	}
}

// GET /api/orgs/:orgId/recipes/:recipeId/items
func ListRecipeItemsHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "recipeId")
		if err != nil {
			return err
		}
		lines, err := eng.ListRecipeItems(c.UserContext(), auth.Actor(c).OrgID, id)
		if err != nil {
			return err
		}
		return c.JSON(lines)
	}
}

// PUT /api/orgs/:orgId/recipes/:recipeId/items/:itemId
func UpsertRecipeItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		recipeID, err := request.UUIDParam(c, "recipeId")
		if err != nil {
			return err
		}
		itemID, err := request.UUIDParam(c, "itemId")
		if err != nil {
			return err
		}
		var body RecipeItemRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		report, err := eng.UpsertRecipeItem(c.UserContext(), auth.Actor(c), recipeID, itemID, body.QtyG, body.WastePct)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"recompute": report})
	}
}

// DELETE /api/orgs/:orgId/recipes/:recipeId/items/:itemId
func DeleteRecipeItemHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		recipeID, err := request.UUIDParam(c, "recipeId")
		if err != nil {
			return err
		}
		itemID, err := request.UUIDParam(c, "itemId")
		if err != nil {
			return err
		}
		report, err := eng.DeleteRecipeItem(c.UserContext(), auth.Actor(c), recipeID, itemID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"recompute": report})
	}
}
