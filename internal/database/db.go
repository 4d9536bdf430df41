package database

import (
	"fmt"
	"time"

	"shefa-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to postgres. Foreign keys are created by Migrate, not by AutoMigrate.
func Open(opts Options, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(log, gormLogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	return db, nil
}

// OpenSQLite opens a file-backed sqlite database for local runs and tests.
// sqlite serializes writers, so the pool is pinned to one connection.
func OpenSQLite(path string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(log, gormLogger.Config{
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AllModels lists every table in migration order.
func AllModels() []any {
	return []any{
		&models.Organization{},
		&models.User{},
		&models.OrganizationMember{},
		&models.Unit{},
		&models.Category{},
		&models.Item{},
		&models.Recipe{},
		&models.RecipeItem{},
		&models.FinishedProduct{},
		&models.FinishedProductItem{},
		&models.FinishedProductRecipe{},
		&models.AuditLog{},
	}
}

type foreignKey struct {
	table, name, column, refTable, onDelete string
}

// Edge rows die with their parent; items and recipes cannot vanish under a live edge.
var foreignKeys = []foreignKey{
	{"organization_members", "fk_members_user", "user_id", "users", "CASCADE"},
	{"organization_members", "fk_members_org", "org_id", "organizations", "CASCADE"},
	{"items", "fk_items_purchase_unit", "purchase_unit_id", "units", "RESTRICT"},
	{"items", "fk_items_base_unit", "base_unit_id", "units", "RESTRICT"},
	{"items", "fk_items_category", "category_id", "categories", "SET NULL"},
	{"recipe_items", "fk_recipe_items_recipe", "recipe_id", "recipes", "CASCADE"},
	{"recipe_items", "fk_recipe_items_item", "item_id", "items", "RESTRICT"},
	{"finished_product_items", "fk_product_items_product", "product_id", "finished_products", "CASCADE"},
	{"finished_product_items", "fk_product_items_item", "item_id", "items", "RESTRICT"},
	{"finished_product_recipes", "fk_product_recipes_product", "product_id", "finished_products", "CASCADE"},
	{"finished_product_recipes", "fk_product_recipes_recipe", "recipe_id", "recipes", "CASCADE"},
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB, log *logrus.Logger) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// sqlite cannot add constraints to an existing table; its tests rely on application checks
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	for _, fk := range foreignKeys {
		var exists bool
		db.Raw(`
			SELECT EXISTS (
				SELECT 1
				FROM information_schema.table_constraints
				WHERE table_name = ? AND constraint_name = ?
			)
		`, fk.table, fk.name).Scan(&exists)
		if exists {
			continue
		}

		stmt := fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(id) ON DELETE %s",
			fk.table, fk.name, fk.column, fk.refTable, fk.onDelete,
		)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add constraint %s: %w", fk.name, err)
		}
		log.WithField("constraint", fk.name).Info("foreign key added")
	}

	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_org_sku ON items (org_id, sku) WHERE sku IS NOT NULL`).Error; err != nil {
		return fmt.Errorf("items sku index: %w", err)
	}

	log.Info("database migration finished")
	return nil
}
