// Package server assembles the fiber application and its routes.
package server

import (
	"strings"

	"shefa-backend/internal/apierr"
	"shefa-backend/internal/audit"
	"shefa-backend/internal/auth"
	"shefa-backend/internal/config"
	"shefa-backend/internal/database"
	"shefa-backend/internal/engine"
	"shefa-backend/internal/inventory"
	"shefa-backend/internal/models"
	"shefa-backend/internal/products"
	"shefa-backend/internal/recipes"
	"shefa-backend/internal/units"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// New builds the app. The caller owns Listen and Shutdown.
func New(cfg *config.Config, store *database.Store, eng *engine.Engine, log *logrus.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: apierr.Handler(log),
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Output: log.WriterLevel(logrus.InfoLevel),
		Format: "${status} ${method} ${path} ${latency}\n",
	}))

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/health", HealthHandler(store))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-owner", auth.RegisterOwnerHandler(cfg, store))
	api.Post("/auth/login", auth.LoginHandler(cfg, store))

	// Protected
	protected := api.Group("", auth.JWTMiddleware(cfg))
	protected.Get("/auth/me", auth.MeHandler(store))
	protected.Get("/auth/organizations", auth.OrganizationsHandler(store))
	protected.Get("/units", units.ListUnitsHandler(store))

	org := protected.Group("/orgs/:orgId", auth.OrgMember(store))
	writers := auth.RequireRole(models.RoleOwner, models.RoleManager)
	owners := auth.RequireRole(models.RoleOwner)

	// Employees
	org.Get("/employees", writers, auth.ListEmployeesHandler(store))
	org.Post("/employees", writers, auth.CreateEmployeeHandler(cfg, store))
	org.Get("/employees/:memberId", writers, auth.GetEmployeeHandler(store))
	org.Patch("/employees/:memberId", writers, auth.UpdateEmployeeHandler(store))
	org.Delete("/employees/:memberId", writers, auth.DeleteEmployeeHandler(store))

	// Categories
	org.Get("/categories", inventory.ListCategoriesHandler(store))
	org.Post("/categories", writers, inventory.CreateCategoryHandler(store))
	org.Put("/categories/:categoryId", writers, inventory.UpdateCategoryHandler(store))
	org.Delete("/categories/:categoryId", writers, inventory.DeleteCategoryHandler(store))

	// Items
	org.Get("/items", inventory.ListItemsHandler(eng))
	org.Post("/items", writers, inventory.CreateItemHandler(eng))
	org.Post("/items/price-import", writers, inventory.ImportPricesHandler(cfg, eng))
	org.Get("/items/:itemId", inventory.GetItemHandler(eng))
	org.Patch("/items/:itemId", writers, inventory.UpdateItemHandler(eng))
	org.Delete("/items/:itemId", writers, inventory.DeleteItemHandler(eng))

	// Recipes
	org.Get("/recipes", recipes.ListRecipesHandler(eng))
	org.Post("/recipes", writers, recipes.CreateRecipeHandler(eng))
	org.Get("/recipes/:recipeId", recipes.GetRecipeHandler(eng))
	org.Patch("/recipes/:recipeId", writers, recipes.UpdateRecipeHandler(eng))
	org.Delete("/recipes/:recipeId", writers, recipes.DeleteRecipeHandler(eng))
	org.Get("/recipes/:recipeId/items", recipes.ListRecipeItemsHandler(eng))
	org.Put("/recipes/:recipeId/items/:itemId", writers, recipes.UpsertRecipeItemHandler(eng))
	org.Delete("/recipes/:recipeId/items/:itemId", writers, recipes.DeleteRecipeItemHandler(eng))

	// Finished products
	org.Get("/products", products.ListProductsHandler(eng))
	org.Post("/products", writers, products.CreateProductHandler(eng))
	org.Get("/products/:productId", products.GetProductHandler(eng))
	org.Get("/products/:productId/breakdown.xlsx", products.ExportBreakdownHandler(eng))
	org.Patch("/products/:productId", writers, products.UpdateProductHandler(eng))
	org.Delete("/products/:productId", writers, products.DeleteProductHandler(eng))
	org.Put("/products/:productId/items/:itemId", writers, products.UpsertProductItemHandler(eng))
	org.Delete("/products/:productId/items/:itemId", writers, products.DeleteProductItemHandler(eng))
	org.Put("/products/:productId/recipes/:recipeId", writers, products.UpsertProductRecipeHandler(eng))
	org.Delete("/products/:productId/recipes/:recipeId", writers, products.DeleteProductRecipeHandler(eng))

	// Maintenance
	org.Post("/recompute", owners, products.RecomputeOrgHandler(eng))
	org.Get("/audit-logs", writers, audit.ListAuditLogsHandler(store))

	return app
}

// GET /health
func HealthHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sqlDB, err := store.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
