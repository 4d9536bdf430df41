package models

import "time"

type Category struct {
	ID        uint   `gorm:"primaryKey"`
	OrgID     uint   `gorm:"not null;uniqueIndex:idx_category_org_name"`
	Name      string `gorm:"size:100;not null;uniqueIndex:idx_category_org_name"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
