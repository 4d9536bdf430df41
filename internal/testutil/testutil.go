package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"shefa-backend/internal/config"
	"shefa-backend/internal/database"
	"shefa-backend/internal/models"
	"shefa-backend/internal/units"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Logger discards output so tests stay quiet.
func Logger(tb testing.TB) *logrus.Logger {
	tb.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DB opens a fresh migrated sqlite database in the test's temp dir.
// One connection only: sqlite serializes writers anyway and this keeps
// transactions from tripping over "database is locked".
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := database.OpenSQLite(filepath.Join(tb.TempDir(), "test.db"), Logger(tb))
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, Logger(tb)); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	if _, err := units.Seed(db); err != nil {
		tb.Fatalf("seed units: %v", err)
	}
	return db
}

// Store wraps DB in a Store with driver-default isolation.
func Store(tb testing.TB, db *gorm.DB) *database.Store {
	tb.Helper()
	s, err := database.NewStore(db, "default", "default")
	if err != nil {
		tb.Fatalf("store: %v", err)
	}
	return s
}

// Postgres opens TEST_POSTGRES_DSN, migrates it and seeds units; the test is
// skipped when the variable is unset. Data is not cleaned up, so callers seed
// their own organization and unique emails.
func Postgres(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("TEST_POSTGRES_DSN not set")
	}

	db, err := database.Open(database.Options{DSN: dsn, MaxOpenConns: 8}, Logger(tb))
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("postgres handle: %v", err)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db, Logger(tb)); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	if _, err := units.Seed(db); err != nil {
		tb.Fatalf("seed units: %v", err)
	}
	return db
}

// PostgresStore uses the server's default isolation levels.
func PostgresStore(tb testing.TB, db *gorm.DB) *database.Store {
	tb.Helper()
	s, err := database.NewStore(db, config.DefaultMutationIsolation, config.DefaultReadIsolation)
	if err != nil {
		tb.Fatalf("store: %v", err)
	}
	return s
}

// UnitID looks up a seeded unit by symbol.
func UnitID(tb testing.TB, db *gorm.DB, symbol string) uint {
	tb.Helper()
	var u models.Unit
	if err := db.Where("symbol = ?", symbol).First(&u).Error; err != nil {
		tb.Fatalf("unit %s: %v", symbol, err)
	}
	return u.ID
}
