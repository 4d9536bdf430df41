package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=shefa port=5432 sslmode=disable"

const (
	DefaultMutationIsolation = "read committed"
	DefaultReadIsolation     = "repeatable read"
)

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	JWTTTL      time.Duration
	CORSOrigins string
	BcryptCost  int

	LogLevel  string
	LogFormat string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	MutationIsolation string
	ReadIsolation     string

	PriceImportMaxRows int
}

// Load reads the environment, after merging an optional .env file.
func Load() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:        getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSOrigins:        getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		MutationIsolation:  strings.ToLower(getEnv("DB_MUTATION_ISOLATION", DefaultMutationIsolation)),
		ReadIsolation:      strings.ToLower(getEnv("DB_READ_ISOLATION", DefaultReadIsolation)),
		BcryptCost:         getEnvInt("BCRYPT_COST", 10),
		DBMaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
		PriceImportMaxRows: getEnvInt("PRICE_IMPORT_MAX_ROWS", 5000),
	}

	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("JWT_TTL: %w", err)
	}
	cfg.JWTTTL = ttl

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.DatabaseDSN == defaultDSN {
		logrus.Warn("DATABASE_DSN is using the local default; set it for production")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		logrus.Warn("CORS_ALLOWED_ORIGINS is using the local default; set it for production")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid integer %q, using %d", v, def)
		return def
	}
	return n
}
