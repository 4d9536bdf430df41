package inventory

import (
	"errors"
	"strconv"
	"strings"

	"shefa-backend/internal/audit"
	"shefa-backend/internal/auth"
	"shefa-backend/internal/database"
	"shefa-backend/internal/models"
	"shefa-backend/internal/request"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CategoryResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func toCategoryResponse(cat models.Category) CategoryResponse {
	return CategoryResponse{
		ID:        cat.ID,
		Name:      cat.Name,
		CreatedAt: cat.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func categoryNameTaken(tx *gorm.DB, orgID uint, name string, self uint) error {
	var n int64
	err := tx.Model(&models.Category{}).
		Where("org_id = ? AND LOWER(name) = ? AND id <> ?", orgID, strings.ToLower(name), self).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, "a category with this name already exists")
	}
	return nil
}

func findCategory(tx *gorm.DB, orgID, id uint) (models.Category, error) {
	var cat models.Category
	err := tx.Where("org_id = ? AND id = ?", orgID, id).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cat, fiber.NewError(fiber.StatusNotFound, "category not found")
	}
	return cat, err
}

func auditCategory(c *fiber.Ctx, tx *gorm.DB, action models.AuditAction, cat models.Category, desc string, before, after any) error {
	actor := auth.Actor(c)
	return audit.WriteLog(tx, audit.LogOptions{
		OrgID:       actor.OrgID,
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		EntityType:  "category",
		EntityID:    strconv.FormatUint(uint64(cat.ID), 10),
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
}

// GET /api/orgs/:orgId/categories
func ListCategoriesHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var categories []models.Category
		err := store.Read(c.UserContext(), func(tx *gorm.DB) error {
			return tx.Where("org_id = ?", auth.Actor(c).OrgID).Order("name asc").Find(&categories).Error
		})
		if err != nil {
			return err
		}

		res := make([]CategoryResponse, 0, len(categories))
		for _, cat := range categories {
			res = append(res, toCategoryResponse(cat))
		}
		return c.JSON(res)
	}
}

// POST /api/orgs/:orgId/categories
func CreateCategoryHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CategoryRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "category name is required")
		}

		cat := models.Category{OrgID: auth.Actor(c).OrgID, Name: body.Name}
		err := store.Mutate(c.UserContext(), func(tx *gorm.DB) error {
			if err := categoryNameTaken(tx, cat.OrgID, cat.Name, 0); err != nil {
				return err
			}
			if err := tx.Create(&cat).Error; err != nil {
				return err
			}
			return auditCategory(c, tx, models.AuditActionCreate, cat, "category created: "+cat.Name, nil, cat)
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toCategoryResponse(cat))
	}
}

// PUT /api/orgs/:orgId/categories/:categoryId
func UpdateCategoryHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UintParam(c, "categoryId")
		if err != nil {
			return err
		}
		var body CategoryRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "category name must not be empty")
		}

		var cat models.Category
		err = store.Mutate(c.UserContext(), func(tx *gorm.DB) error {
			if cat, err = findCategory(tx, auth.Actor(c).OrgID, id); err != nil {
				return err
			}
			if err := categoryNameTaken(tx, cat.OrgID, name, cat.ID); err != nil {
				return err
			}
			before := cat
			cat.Name = name
			if err := tx.Save(&cat).Error; err != nil {
				return err
			}
			return auditCategory(c, tx, models.AuditActionUpdate, cat, "category renamed: "+cat.Name, before, cat)
		})
		if err != nil {
			return err
		}
		return c.JSON(toCategoryResponse(cat))
	}
}

// DELETE /api/orgs/:orgId/categories/:categoryId
// Refused while items still use the category.
func DeleteCategoryHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UintParam(c, "categoryId")
		if err != nil {
			return err
		}

		err = store.Mutate(c.UserContext(), func(tx *gorm.DB) error {
			cat, err := findCategory(tx, auth.Actor(c).OrgID, id)
			if err != nil {
				return err
			}
			var count int64
			if err := tx.Model(&models.Item{}).Where("category_id = ?", cat.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fiber.NewError(fiber.StatusConflict, "category still has items, move them first")
			}
			if err := tx.Delete(&models.Category{}, cat.ID).Error; err != nil {
				return err
			}
			return auditCategory(c, tx, models.AuditActionDelete, cat, "category deleted: "+cat.Name, cat, nil)
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
