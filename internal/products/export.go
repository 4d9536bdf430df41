package products

import (
	"bytes"
	"fmt"

	"shefa-backend/internal/auth"
	"shefa-backend/internal/costing"
	"shefa-backend/internal/engine"
	"shefa-backend/internal/request"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const breakdownSheet = "Breakdown"

var breakdownHeader = []interface{}{"Type", "Name", "Qty (g)", "Cost per gram", "Consumed fraction", "Cost", "Note"}

func num(d decimal.Decimal) interface{} { return d.InexactFloat64() }

func nullNum(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return ""
	}
	return num(d.Decimal)
}

func itemRow(kind string, l costing.ItemContribution, name string) []interface{} {
	note := ""
	if !l.Known {
		note = "cost unknown"
	}
	return []interface{}{kind, name, num(l.QtyG), nullNum(l.CostPerGram), "", num(l.Cost), note}
}

// BreakdownWorkbook lays the breakdown out on one sheet: direct items, then each
// recipe followed by its scaled ingredients, then the totals.
func BreakdownWorkbook(v engine.CostView) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", breakdownSheet); err != nil {
		f.Close()
		return nil, err
	}

	rows := [][]interface{}{
		{"Product", v.Product.Name},
		{},
		breakdownHeader,
	}
	for _, l := range v.Breakdown.DirectItems {
		rows = append(rows, itemRow("item", l, v.Names[l.ItemID]))
	}
	for _, r := range v.Breakdown.Recipes {
		note := ""
		if r.Incomplete {
			note = "incomplete"
		}
		rows = append(rows, []interface{}{
			"recipe", v.Names[r.RecipeID], num(r.QtyG), nullNum(r.CostPerGram), nullNum(r.ConsumedFraction), num(r.Cost), note,
		})
		for _, l := range r.Items {
			rows = append(rows, itemRow("ingredient", l, "  "+v.Names[l.ItemID]))
		}
	}
	rows = append(rows,
		[]interface{}{},
		[]interface{}{"Direct items cost", "", "", "", "", num(v.Breakdown.DirectItemsCost)},
		[]interface{}{"Recipes cost", "", "", "", "", num(v.Breakdown.RecipesCost)},
		[]interface{}{"Total cost", "", "", "", "", num(v.Breakdown.TotalCost)},
	)
	if v.Breakdown.Incomplete {
		rows = append(rows, []interface{}{"Warning", "some costs are unknown; the total is a lower bound"})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(breakdownSheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// GET /api/orgs/:orgId/products/:productId/breakdown.xlsx
func ExportBreakdownHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.UUIDParam(c, "productId")
		if err != nil {
			return err
		}
		view, err := eng.ProductBreakdown(c.UserContext(), auth.Actor(c).OrgID, id)
		if err != nil {
			return err
		}

		f, err := BreakdownWorkbook(view)
		if err != nil {
			return fmt.Errorf("build breakdown workbook: %w", err)
		}
		defer f.Close()

		var buf bytes.Buffer
		if err := f.Write(&buf); err != nil {
			return fmt.Errorf("write breakdown workbook: %w", err)
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=breakdown-%s.xlsx", id))
		return c.Send(buf.Bytes())
	}
}
