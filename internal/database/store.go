package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shefa-backend/internal/costing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Store is the explicit storage handle passed to every component; it owns the
// transaction boundary so commit or rollback happens on every exit path.
type Store struct {
	db                *gorm.DB
	mutationIsolation sql.IsolationLevel
	readIsolation     sql.IsolationLevel
}

func NewStore(db *gorm.DB, mutationIsolation, readIsolation string) (*Store, error) {
	mi, err := ParseIsolation(mutationIsolation)
	if err != nil {
		return nil, err
	}
	ri, err := ParseIsolation(readIsolation)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, mutationIsolation: mi, readIsolation: ri}, nil
}

// DB is the raw handle, for work that needs no transaction (migrations, health checks).
func (s *Store) DB() *gorm.DB { return s.db }

// Mutate runs fn in a read-write transaction. Serialization and deadlock
// failures surface as costing.ErrConsistencyFailure.
func (s *Store) Mutate(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn, s.txOptions(s.mutationIsolation, false)...)
	return MapError(err)
}

// Read runs fn in a read-only transaction so multi-row reads see one snapshot.
func (s *Store) Read(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn, s.txOptions(s.readIsolation, true)...)
	return MapError(err)
}

func (s *Store) txOptions(level sql.IsolationLevel, readOnly bool) []*sql.TxOptions {
	// sqlite rejects explicit isolation levels and read-only transactions
	if level == sql.LevelDefault || s.db.Dialector.Name() != "postgres" {
		return nil
	}
	return []*sql.TxOptions{{Isolation: level, ReadOnly: readOnly}}
}

func ParseIsolation(s string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return sql.LevelDefault, nil
	case "read committed":
		return sql.LevelReadCommitted, nil
	case "repeatable read", "snapshot":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}

// ErrDuplicate is a unique-constraint violation that slipped past a pre-check.
var ErrDuplicate = errors.New("duplicate key")

// MapError converts driver failures that mean "retry the whole mutation",
// and unique violations, into sentinel errors.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", costing.ErrConsistencyFailure, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") {
		return fmt.Errorf("%w: %v", costing.ErrConsistencyFailure, err)
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
