package audit

import (
	"encoding/json"
	"fmt"

	"shefa-backend/internal/models"

	"gorm.io/gorm"
)

type LogOptions struct {
	OrgID       uint
	UserID      *uint
	UserName    string
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog appends an audit row using tx, so the row commits or rolls back
// together with the mutation it describes.
func WriteLog(tx *gorm.DB, opts LogOptions) error {
	// jsonb rejects the empty string
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		b, err := json.Marshal(opts.Before)
		if err != nil {
			return fmt.Errorf("audit before snapshot: %w", err)
		}
		beforeStr = string(b)
	}
	if opts.After != nil {
		b, err := json.Marshal(opts.After)
		if err != nil {
			return fmt.Errorf("audit after snapshot: %w", err)
		}
		afterStr = string(b)
	}

	entry := models.AuditLog{
		OrgID:       opts.OrgID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
