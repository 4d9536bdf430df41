package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shefa-backend/internal/config"
	"shefa-backend/internal/database"
	"shefa-backend/internal/engine"
	"shefa-backend/internal/logging"
	"shefa-backend/internal/server"
	"shefa-backend/internal/units"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(database.Options{
		DSN:          cfg.DatabaseDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	if err := database.Migrate(db, log); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	if n, err := units.Seed(db); err != nil {
		log.WithError(err).Fatal("seed units")
	} else {
		log.WithField("units", n).Info("unit catalog ready")
	}

	store, err := database.NewStore(db, cfg.MutationIsolation, cfg.ReadIsolation)
	if err != nil {
		log.WithError(err).Fatal("store")
	}
	app := server.New(cfg, store, engine.New(store, log), log)

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("server listening")
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			log.WithError(err).Fatal("listen")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Error("shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
