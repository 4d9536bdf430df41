package audit

import (
	"strconv"

	"shefa-backend/internal/database"
	"shefa-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const maxPageSize = 500

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      *uint              `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	BeforeData  string             `json:"before_data,omitempty"`
	AfterData   string             `json:"after_data,omitempty"`
}

// GET /api/orgs/:orgId/audit-logs?entity_type=item&entity_id=...&user_id=1&limit=100&details=true
func ListAuditLogsHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := c.ParamsInt("orgId")
		if err != nil || orgID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid organization id")
		}

		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > maxPageSize {
			limit = maxPageSize
		}
		details := c.QueryBool("details", false)

		var logs []models.AuditLog
		err = store.Read(c.UserContext(), func(tx *gorm.DB) error {
			q := tx.Model(&models.AuditLog{}).Where("org_id = ?", orgID)
			if v := c.Query("entity_type"); v != "" {
				q = q.Where("entity_type = ?", v)
			}
			if v := c.Query("entity_id"); v != "" {
				q = q.Where("entity_id = ?", v)
			}
			if v := c.Query("user_id"); v != "" {
				if uid, err := strconv.ParseUint(v, 10, 64); err == nil {
					q = q.Where("user_id = ?", uid)
				}
			}
			return q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			r := AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
			}
			if details {
				r.BeforeData = l.BeforeData
				r.AfterData = l.AfterData
			}
			resp = append(resp, r)
		}
		return c.JSON(resp)
	}
}
