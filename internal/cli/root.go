// Package cli implements costctl, the maintenance command line for the cost engine.
package cli

import (
	"fmt"
	"os"

	"shefa-backend/internal/config"
	"shefa-backend/internal/database"
	"shefa-backend/internal/logging"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DSN       string
	SQLite    string
	LogLevel  string
	LogFormat string
}

// NewRootCommand creates the costctl root command.
func NewRootCommand() *cobra.Command {
	// .env is optional outside local development
	_ = godotenv.Load()

	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "costctl",
		Short:         "Maintenance commands for the cost engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", os.Getenv("DATABASE_DSN"), "postgres DSN (defaults to DATABASE_DSN)")
	cmd.PersistentFlags().StringVar(&opts.SQLite, "sqlite", "", "use a sqlite file instead of postgres")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedUnitsCommand(opts))
	cmd.AddCommand(NewRecomputeCommand(opts))
	return cmd
}

func (o *RootOptions) logger(cmd *cobra.Command) *logrus.Logger {
	log := logging.New(o.LogLevel, o.LogFormat)
	log.SetOutput(cmd.ErrOrStderr())
	return log
}

// open connects to sqlite when --sqlite is set, postgres otherwise.
func (o *RootOptions) open(log *logrus.Logger) (*gorm.DB, func(), error) {
	var (
		db  *gorm.DB
		err error
	)
	switch {
	case o.SQLite != "":
		db, err = database.OpenSQLite(o.SQLite, log)
	case o.DSN != "":
		db, err = database.Open(database.Options{DSN: o.DSN, MaxOpenConns: 4}, log)
	default:
		return nil, nil, fmt.Errorf("no database: pass --dsn, --sqlite or set DATABASE_DSN")
	}
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closer, nil
}

// store wraps db with the isolation levels the server would use.
func (o *RootOptions) store(db *gorm.DB) (*database.Store, error) {
	if o.SQLite != "" {
		return database.NewStore(db, "default", "default")
	}
	return database.NewStore(db, config.DefaultMutationIsolation, config.DefaultReadIsolation)
}
