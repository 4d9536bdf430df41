package units

import (
	_ "embed"
	"fmt"

	"shefa-backend/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed units.yaml
var catalogYAML []byte

type entry struct {
	Symbol       string `yaml:"symbol"`
	Name         string `yaml:"name"`
	GramsPerUnit string `yaml:"grams_per_unit"`
}

// Catalog parses the embedded unit list.
func Catalog() ([]models.Unit, error) {
	var entries []entry
	if err := yaml.Unmarshal(catalogYAML, &entries); err != nil {
		return nil, fmt.Errorf("parse units.yaml: %w", err)
	}

	out := make([]models.Unit, 0, len(entries))
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Symbol == "" || e.Name == "" {
			return nil, fmt.Errorf("units.yaml: symbol and name are required")
		}
		if seen[e.Symbol] {
			return nil, fmt.Errorf("units.yaml: duplicate symbol %q", e.Symbol)
		}
		seen[e.Symbol] = true

		u := models.Unit{Symbol: e.Symbol, Name: e.Name}
		if e.GramsPerUnit != "" {
			g, err := decimal.NewFromString(e.GramsPerUnit)
			if err != nil {
				return nil, fmt.Errorf("units.yaml: %s: %w", e.Symbol, err)
			}
			u.GramsPerUnit = decimal.NullDecimal{Decimal: g, Valid: true}
		}
		out = append(out, u)
	}
	return out, nil
}

// Seed upserts the catalog by symbol; running it twice changes nothing.
func Seed(db *gorm.DB) (int, error) {
	catalog, err := Catalog()
	if err != nil {
		return 0, err
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "grams_per_unit"}),
	}).Create(&catalog).Error
	if err != nil {
		return 0, fmt.Errorf("seed units: %w", err)
	}
	return len(catalog), nil
}
