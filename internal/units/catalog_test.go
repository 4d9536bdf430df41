package units_test

import (
	"testing"

	"shefa-backend/internal/models"
	"shefa-backend/internal/testutil"
	"shefa-backend/internal/units"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	catalog, err := units.Catalog()
	require.NoError(t, err)

	bySymbol := map[string]models.Unit{}
	for _, u := range catalog {
		bySymbol[u.Symbol] = u
	}
	require.Contains(t, bySymbol, "g")
	require.Contains(t, bySymbol, "kg")
	assert.Equal(t, "1000", bySymbol["kg"].GramsPerUnit.Decimal.String())
	assert.True(t, bySymbol["g"].GramsPerUnit.Valid)
}

func TestSeed_Idempotent(t *testing.T) {
	// testutil.DB already seeds once
	db := testutil.DB(t)

	var before int64
	require.NoError(t, db.Model(&models.Unit{}).Count(&before).Error)

	n, err := units.Seed(db)
	require.NoError(t, err)
	assert.EqualValues(t, before, n)

	var after int64
	require.NoError(t, db.Model(&models.Unit{}).Count(&after).Error)
	assert.Equal(t, before, after)
}
