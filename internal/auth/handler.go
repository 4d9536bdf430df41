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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RegisterOwnerRequest struct {
	FullName         string `json:"full_name" validate:"required,max=100"`
	Email            string `json:"email" validate:"required,email,max=100"`
	Password         string `json:"password" validate:"required,min=8,max=72"`
	OrganizationName string `json:"organization_name" validate:"required,max=150"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserResponse struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type MembershipResponse struct {
	MemberID uint              `json:"member_id"`
	OrgID    uint              `json:"org_id"`
	OrgName  string            `json:"org_name"`
	Role     models.MemberRole `json:"role"`
}

type TokenResponse struct {
	Token         string               `json:"token"`
	User          UserResponse         `json:"user"`
	ActiveOrgID   uint                 `json:"active_org_id"`
	Organizations []MembershipResponse `json:"organizations"`
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func hashPassword(cfg *config.Config, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		return "", fiber.NewError(fiber.StatusInternalServerError, "could not hash password")
	}
	return string(hash), nil
}

func emailTaken(tx *gorm.DB, email string) error {
	var n int64
	if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, "email is already registered")
	}
	return nil
}

func loadMemberships(tx *gorm.DB, userID uint) ([]MembershipResponse, error) {
	var members []models.OrganizationMember
	err := tx.Preload("Org").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	out := make([]MembershipResponse, 0, len(members))
	for _, m := range members {
		out = append(out, MembershipResponse{MemberID: m.ID, OrgID: m.OrgID, OrgName: m.Org.Name, Role: m.Role})
	}
	return out, nil
}

// POST /api/auth/register-owner
func RegisterOwnerHandler(cfg *config.Config, store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterOwnerRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		body.Email = normalizeEmail(body.Email)

		hash, err := hashPassword(cfg, body.Password)
		if err != nil {
			return err
		}

		user := models.User{Email: body.Email, FullName: strings.TrimSpace(body.FullName), PasswordHash: hash}
		org := models.Organization{Name: strings.TrimSpace(body.OrganizationName)}
		var member models.OrganizationMember

		err = store.Mutate(c.UserContext(), func(tx *gorm.DB) error {
			if err := emailTaken(tx, user.Email); err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Create(&user).Error; err != nil {
				return err
			}
			if err := tx.Create(&org).Error; err != nil {
				return err
			}
			member = models.OrganizationMember{UserID: user.ID, OrgID: org.ID, Role: models.RoleOwner}
			if err := tx.Omit(clause.Associations).Create(&member).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				OrgID:       org.ID,
				UserID:      &user.ID,
				UserName:    user.FullName,
				EntityType:  "organization",
				EntityID:    strconv.FormatUint(uint64(org.ID), 10),
				Action:      models.AuditActionCreate,
				Description: "organization registered: " + org.Name,
				After:       fiber.Map{"name": org.Name, "owner": user.Email},
			})
		})
		if err != nil {
			return err
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not issue token")
		}

		return c.Status(fiber.StatusCreated).JSON(TokenResponse{
			Token:       token,
			User:        toUserResponse(user),
			ActiveOrgID: org.ID,
			Organizations: []MembershipResponse{
				{MemberID: member.ID, OrgID: org.ID, OrgName: org.Name, Role: member.Role},
			},
		})
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config, store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		body.Email = normalizeEmail(body.Email)

		var (
			user        models.User
			memberships []MembershipResponse
		)
		err := store.Read(c.UserContext(), func(tx *gorm.DB) error {
			if err := tx.Where("email = ?", body.Email).First(&user).Error; err != nil {
				return err
			}
			var err error
			memberships, err = loadMemberships(tx, user.ID)
			return err
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}
		if err != nil {
			return err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}
		if len(memberships) == 0 {
			return fiber.NewError(fiber.StatusForbidden, "user has no organization memberships")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not issue token")
		}

		return c.JSON(TokenResponse{
			Token:         token,
			User:          toUserResponse(user),
			ActiveOrgID:   memberships[0].OrgID,
			Organizations: memberships,
		})
	}
}

// GET /api/auth/me
func MeHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals(CtxUserIDKey).(uint)

		var user models.User
		err := store.Read(c.UserContext(), func(tx *gorm.DB) error {
			return tx.First(&user, userID).Error
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		if err != nil {
			return err
		}
		return c.JSON(toUserResponse(user))
	}
}

// GET /api/auth/organizations
func OrganizationsHandler(store *database.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals(CtxUserIDKey).(uint)

		var out []MembershipResponse
		err := store.Read(c.UserContext(), func(tx *gorm.DB) error {
			var err error
			out, err = loadMemberships(tx, userID)
			return err
		})
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}
