package units

import (
	"shefa-backend/internal/database"
	"shefa-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UnitResponse struct {
	ID           uint                `json:"id"`
	Symbol       string              `json:"symbol"`
	Name         string              `json:"name"`
	GramsPerUnit decimal.NullDecimal `json:"grams_per_unit"`
}

// GET /api/units
func ListUnitsHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var list []models.Unit
		err := store.Read(c.UserContext(), func(tx *gorm.DB) error {
			return tx.Order("id ASC").Find(&list).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load units")
		}

		resp := make([]UnitResponse, 0, len(list))
		for _, u := range list {
			resp = append(resp, UnitResponse{
				ID:           u.ID,
				Symbol:       u.Symbol,
				Name:         u.Name,
				GramsPerUnit: u.GramsPerUnit,
			})
		}
		return c.JSON(resp)
	}
}
