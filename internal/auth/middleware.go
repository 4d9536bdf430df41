package auth

import (
	"errors"
	"strings"

	"shefa-backend/internal/config"
	"shefa-backend/internal/database"
	"shefa-backend/internal/engine"
	"shefa-backend/internal/models"
	"shefa-backend/internal/request"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxOrgIDKey    = "org_id"
	CtxRoleKey     = "member_role"
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserNameKey, claims.FullName)
		return c.Next()
	}
}

// OrgMember resolves the caller's membership in the :orgId organization.
// Callers outside the organization get 404 so its existence is not revealed.
func OrgMember(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orgID, err := request.UintParam(c, "orgId")
		if err != nil {
			return err
		}
		userID, ok := c.Locals(CtxUserIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
		}

		var member models.OrganizationMember
		err = store.Read(c.UserContext(), func(tx *gorm.DB) error {
			return tx.Where("user_id = ? AND org_id = ?", userID, orgID).First(&member).Error
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "organization not found")
		}
		if err != nil {
			return err
		}

		c.Locals(CtxOrgIDKey, member.OrgID)
		c.Locals(CtxRoleKey, member.Role)
		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.MemberRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxRoleKey).(models.MemberRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "no role for this organization")
		}
		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "insufficient role for this operation")
	}
}

// Actor is the engine caller for the current request. It must run after OrgMember.
func Actor(c *fiber.Ctx) engine.Actor {
	a := engine.Actor{}
	if id, ok := c.Locals(CtxUserIDKey).(uint); ok {
		a.UserID = &id
	}
	a.UserName, _ = c.Locals(CtxUserNameKey).(string)
	a.OrgID, _ = c.Locals(CtxOrgIDKey).(uint)
	return a
}

func Role(c *fiber.Ctx) models.MemberRole {
	r, _ := c.Locals(CtxRoleKey).(models.MemberRole)
	return r
}
