package models

import "time"

type Organization struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:150;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MemberRole string

const (
	RoleOwner   MemberRole = "OWNER"
	RoleManager MemberRole = "MANAGER"
	RoleStaff   MemberRole = "STAFF"
)

// Valid reports whether r is one of the known roles.
func (r MemberRole) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleStaff:
		return true
	}
	return false
}

// OrganizationMember binds a user to an organization with a role.
type OrganizationMember struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_member_user_org"`
	User      User
	OrgID     uint       `gorm:"not null;uniqueIndex:idx_member_user_org;index"`
	Org       Organization
	Role      MemberRole `gorm:"size:20;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
