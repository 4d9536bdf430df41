package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("HTTP_PORT", "")
	t.Setenv("JWT_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "read committed", cfg.MutationIsolation)
	assert.Equal(t, "repeatable read", cfg.ReadIsolation)
}

func TestLoad_ShortSecretRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 40))
	t.Setenv("BCRYPT_COST", "abc")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BcryptCost)
}
