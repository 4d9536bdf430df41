package testutil

import (
	"fmt"
	"testing"

	"shefa-backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const Password = "correct horse battery staple"

func SeedOrg(tb testing.TB, db *gorm.DB, name string) models.Organization {
	tb.Helper()
	org := models.Organization{Name: name}
	if err := db.Create(&org).Error; err != nil {
		tb.Fatalf("seed org: %v", err)
	}
	return org
}

// SeedMember creates a user with Password and binds it to org with role.
func SeedMember(tb testing.TB, db *gorm.DB, org models.Organization, email string, role models.MemberRole) (models.User, models.OrganizationMember) {
	tb.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		tb.Fatalf("hash: %v", err)
	}
	user := models.User{Email: email, FullName: fmt.Sprintf("user %s", email), PasswordHash: string(hash)}
	if err := db.Create(&user).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	member := models.OrganizationMember{UserID: user.ID, OrgID: org.ID, Role: role}
	if err := db.Omit("User", "Org").Create(&member).Error; err != nil {
		tb.Fatalf("seed member: %v", err)
	}
	return user, member
}

func SeedCategory(tb testing.TB, db *gorm.DB, orgID uint, name string) models.Category {
	tb.Helper()
	cat := models.Category{OrgID: orgID, Name: name}
	if err := db.Create(&cat).Error; err != nil {
		tb.Fatalf("seed category: %v", err)
	}
	return cat
}
