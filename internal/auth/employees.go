package auth

import (
	"errors"
	"strconv"
	"strings"

	"shefa-backend/internal/audit"
	"shefa-backend/internal/config"
	"shefa-backend/internal/database"
	"shefa-backend/internal/models"
	"shefa-backend/internal/request"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreateEmployeeRequest struct {
	FullName string            `json:"full_name" validate:"required,max=100"`
	Email    string            `json:"email" validate:"required,email,max=100"`
	Password string            `json:"password" validate:"required,min=8,max=72"`
	Role     models.MemberRole `json:"role" validate:"required,oneof=OWNER MANAGER STAFF"`
}

type UpdateEmployeeRequest struct {
	Role models.MemberRole `json:"role" validate:"required,oneof=OWNER MANAGER STAFF"`
}

type EmployeeResponse struct {
	ID       uint              `json:"id"`
	UserID   uint              `json:"user_id"`
	Email    string            `json:"email"`
	FullName string            `json:"full_name"`
	Role     models.MemberRole `json:"role"`
}

func toEmployeeResponse(m models.OrganizationMember) EmployeeResponse {
	return EmployeeResponse{ID: m.ID, UserID: m.UserID, Email: m.User.Email, FullName: m.User.FullName, Role: m.Role}
}

// only owners hand out or take away the owner role
func canAssign(caller, target models.MemberRole) bool {
	return target != models.RoleOwner || caller == models.RoleOwner
}

func memberID(c *fiber.Ctx) (uint, error) {
	return request.UintParam(c, "memberId")
}

func findMember(tx *gorm.DB, orgID, id uint) (models.OrganizationMember, error) {
	var m models.OrganizationMember
	err := tx.Preload("User").Where("org_id = ? AND id = ?", orgID, id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, fiber.NewError(fiber.StatusNotFound, "member not found in this organization")
	}
	return m, err
}

// lastOwner reports whether m is the only owner left in its organization.
func lastOwner(tx *gorm.DB, m models.OrganizationMember) (bool, error) {
	if m.Role != models.RoleOwner {
		return false, nil
	}
	var owners int64
	err := tx.Model(&models.OrganizationMember{}).
		Where("org_id = ? AND role = ?", m.OrgID, models.RoleOwner).
		Count(&owners).Error
	return owners <= 1, err
}

func auditMember(c *fiber.Ctx, tx *gorm.DB, action models.AuditAction, m models.OrganizationMember, desc string, before, after any) error {
	actor := Actor(c)
	return audit.WriteLog(tx, audit.LogOptions{
		OrgID:       actor.OrgID,
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		EntityType:  "member",
		EntityID:    strconv.FormatUint(uint64(m.ID), 10),
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
}

// GET /api/orgs/:orgId/employees
func ListEmployeesHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID := Actor(c).OrgID

		var members []models.OrganizationMember
		err := store.Read(c.UserContext(), func(tx *gorm.DB) error {
			return tx.Preload("User").Where("org_id = ?", orgID).Order("id ASC").Find(&members).Error
		})
		if err != nil {
			return err
		}

		resp := make([]EmployeeResponse, 0, len(members))
		for _, m := range members {
			resp = append(resp, toEmployeeResponse(m))
		}
		return c.JSON(resp)
	}
}

// GET /api/orgs/:orgId/employees/:memberId
func GetEmployeeHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := memberID(c)
		if err != nil {
			return err
		}
		var m models.OrganizationMember
		err = store.Read(c.UserContext(), func(tx *gorm.DB) error {
			m, err = findMember(tx, Actor(c).OrgID, id)
			return err
		})
		if err != nil {
			return err
		}
		return c.JSON(toEmployeeResponse(m))
	}
}

// POST /api/orgs/:orgId/employees
func CreateEmployeeHandler(cfg *config.Config, store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateEmployeeRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		if !canAssign(Role(c), body.Role) {
			return fiber.NewError(fiber.StatusForbidden, "only owners can add owners")
		}
		body.Email = normalizeEmail(body.Email)

		hash, err := hashPassword(cfg, body.Password)
		if err != nil {
			return err
		}

		user := models.User{Email: body.Email, FullName: strings.TrimSpace(body.FullName), PasswordHash: hash}
		var member models.OrganizationMember
		err = store.Mutate(c.UserContext(), func(tx *gorm.DB) error {
			if err := emailTaken(tx, user.Email); err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Create(&user).Error; err != nil {
				return err
			}
			member = models.OrganizationMember{UserID: user.ID, OrgID: Actor(c).OrgID, Role: body.Role, User: user}
			if err := tx.Omit(clause.Associations).Create(&member).Error; err != nil {
				return err
			}
			return auditMember(c, tx, models.AuditActionCreate, member, "employee added: "+user.Email, nil,
				fiber.Map{"email": user.Email, "role": member.Role})
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toEmployeeResponse(member))
	}
}

// PATCH /api/orgs/:orgId/employees/:memberId
func UpdateEmployeeHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := memberID(c)
		if err != nil {
			return err
		}
		var body UpdateEmployeeRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}

		var m models.OrganizationMember
		err = store.Mutate(c.UserContext(), func(tx *gorm.DB) error {
			m, err = findMember(tx, Actor(c).OrgID, id)
			if err != nil {
				return err
			}
			if !canAssign(Role(c), m.Role) || !canAssign(Role(c), body.Role) {
				return fiber.NewError(fiber.StatusForbidden, "only owners can change owner roles")
			}
			if body.Role != models.RoleOwner {
				last, err := lastOwner(tx, m)
				if err != nil {
					return err
				}
				if last {
					return fiber.NewError(fiber.StatusConflict, "an organization needs at least one owner")
				}
			}

			before := m.Role
			if err := tx.Model(&models.OrganizationMember{}).Where("id = ?", m.ID).Update("role", body.Role).Error; err != nil {
				return err
			}
			m.Role = body.Role
			return auditMember(c, tx, models.AuditActionUpdate, m, "employee role changed: "+m.User.Email,
				fiber.Map{"role": before}, fiber.Map{"role": m.Role})
		})
		if err != nil {
			return err
		}
		return c.JSON(toEmployeeResponse(m))
	}
}

// DELETE /api/orgs/:orgId/employees/:memberId
func DeleteEmployeeHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := memberID(c)
		if err != nil {
			return err
		}

		err = store.Mutate(c.UserContext(), func(tx *gorm.DB) error {
			m, err := findMember(tx, Actor(c).OrgID, id)
			if err != nil {
				return err
			}
			if !canAssign(Role(c), m.Role) {
				return fiber.NewError(fiber.StatusForbidden, "only owners can remove owners")
			}
			last, err := lastOwner(tx, m)
			if err != nil {
				return err
			}
			if last {
				return fiber.NewError(fiber.StatusConflict, "an organization needs at least one owner")
			}
			if err := tx.Delete(&models.OrganizationMember{}, m.ID).Error; err != nil {
				return err
			}
			return auditMember(c, tx, models.AuditActionDelete, m, "employee removed: "+m.User.Email,
				fiber.Map{"email": m.User.Email, "role": m.Role}, nil)
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
