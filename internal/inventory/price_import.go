package inventory

import (
	"fmt"
	"io"
	"strings"

	"shefa-backend/internal/auth"
	"shefa-backend/internal/config"
	"shefa-backend/internal/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Accepted header spellings, compared after normalizeHeader.
var priceColumns = map[string]string{
	"sku":                   "sku",
	"code":                  "sku",
	"name":                  "name",
	"item":                  "name",
	"purchase_cost":         "purchase_cost",
	"cost":                  "purchase_cost",
	"price":                 "purchase_cost",
	"base_qty_per_purchase": "base_qty_per_purchase",
	"base_qty":              "base_qty_per_purchase",
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount accepts "1234.5", "1,234.5" and "1234,5".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}

// ParsePriceSheet reads the first sheet of an XLSX workbook. The first row is a
// header naming at least purchase_cost and one of sku or name. Empty rows are
// skipped; row numbers in the result are 1-based spreadsheet rows.
func ParsePriceSheet(r io.Reader, maxRows int) ([]engine.PriceRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "could not read spreadsheet: "+err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "could not read sheet: "+err.Error())
	}
	if len(rows) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "spreadsheet is empty")
	}

	cols := map[string]int{"sku": -1, "name": -1, "purchase_cost": -1, "base_qty_per_purchase": -1}
	for i, h := range rows[0] {
		if key, ok := priceColumns[normalizeHeader(h)]; ok && cols[key] < 0 {
			cols[key] = i
		}
	}
	if cols["purchase_cost"] < 0 || (cols["sku"] < 0 && cols["name"] < 0) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "header must contain purchase_cost and sku or name")
	}

	out := make([]engine.PriceRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		sku, name := cell(row, cols["sku"]), cell(row, cols["name"])
		rawCost := cell(row, cols["purchase_cost"])
		if sku == "" && name == "" && rawCost == "" {
			continue
		}
		if len(out) >= maxRows {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("too many rows, the limit is %d", maxRows))
		}

		pr := engine.PriceRow{Row: i + 1, SKU: sku, Name: name}
		if pr.PurchaseCost, err = parseAmount(rawCost); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("row %d: invalid purchase_cost %q", i+1, rawCost))
		}
		if raw := cell(row, cols["base_qty_per_purchase"]); raw != "" {
			q, err := parseAmount(raw)
			if err != nil {
				return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("row %d: invalid base_qty_per_purchase %q", i+1, raw))
			}
			pr.BaseQtyPerPurchase = &q
		}
		out = append(out, pr)
	}
	if len(out) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "spreadsheet has no data rows")
	}
	return out, nil
}

// POST /api/orgs/:orgId/items/price-import (multipart, field "file")
// Every matched item is updated and recomputed in one transaction.
func ImportPricesHandler(cfg *config.Config, eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files are accepted")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not open upload")
		}
		defer file.Close()

		rows, err := ParsePriceSheet(file, cfg.PriceImportMaxRows)
		if err != nil {
			return err
		}

		report, err := eng.ImportPrices(c.UserContext(), auth.Actor(c), rows)
		if err != nil {
			return err
		}
		return c.JSON(report)
	}
}
