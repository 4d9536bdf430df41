package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shefa-backend/internal/costing"
	"shefa-backend/internal/database"
	"shefa-backend/internal/models"
	"shefa-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	eng   *Engine
	actor Actor
	gram  uint
	kg    uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	return newFixtureOn(t, db, testutil.Store(t, db), "owner@bakery.test")
}

// newFixtureOn seeds a fresh org with one owner on an existing database.
func newFixtureOn(t *testing.T, db *gorm.DB, store *database.Store, ownerEmail string) *fixture {
	t.Helper()
	org := testutil.SeedOrg(t, db, "Bakery")
	user, _ := testutil.SeedMember(t, db, org, ownerEmail, models.RoleOwner)

	return &fixture{
		t:     t,
		ctx:   context.Background(),
		db:    db,
		eng:   New(store, testutil.Logger(t)),
		actor: Actor{OrgID: org.ID, UserID: &user.ID, UserName: user.FullName},
		gram:  testutil.UnitID(t, db, "g"),
		kg:    testutil.UnitID(t, db, "kg"),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// item creates an item whose cost per gram is cost/baseQty.
func (f *fixture) item(name, cost, baseQty string) models.Item {
	f.t.Helper()
	it, err := f.eng.CreateItem(f.ctx, f.actor, ItemInput{
		Name:               name,
		PurchaseUnitID:     f.kg,
		PurchaseQty:        dec("1"),
		PurchaseCost:       dec(cost),
		BaseUnitID:         f.gram,
		BaseQtyPerPurchase: dec(baseQty),
	})
	require.NoError(f.t, err)
	return it
}

func (f *fixture) recipe(name, yield string, lines ...RecipeLineInput) models.Recipe {
	f.t.Helper()
	rec, err := f.eng.CreateRecipe(f.ctx, f.actor, RecipeInput{Name: name, YieldQtyG: dec(yield), Items: lines})
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) product(name string, items []ProductItemInput, recipes []ProductRecipeInput) models.FinishedProduct {
	f.t.Helper()
	p, err := f.eng.CreateProduct(f.ctx, f.actor, ProductInput{Name: name, Items: items, Recipes: recipes})
	require.NoError(f.t, err)
	return p
}

func (f *fixture) reloadRecipe(id uuid.UUID) models.Recipe {
	f.t.Helper()
	var r models.Recipe
	require.NoError(f.t, f.db.First(&r, "id = ?", id).Error)
	return r
}

func (f *fixture) reloadProduct(id uuid.UUID) models.FinishedProduct {
	f.t.Helper()
	var p models.FinishedProduct
	require.NoError(f.t, f.db.First(&p, "id = ?", id).Error)
	return p
}

func (f *fixture) auditCount() int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.AuditLog{}).Count(&n).Error)
	return n
}

// workedExample builds: A = 2.00/g, B = 1.00/g, R = 100g A at 10% waste yielding 100g,
// P = 50g R + 10g B.
func (f *fixture) workedExample() (a, b models.Item, r models.Recipe, p models.FinishedProduct) {
	a = f.item("Flour", "2000", "1000")
	b = f.item("Sugar", "1000", "1000")
	r = f.recipe("Dough", "100", RecipeLineInput{ItemID: a.ID, QtyG: dec("100"), WastePct: dec("0.10")})
	p = f.product("Bun",
		[]ProductItemInput{{ItemID: b.ID, QtyG: dec("10")}},
		[]ProductRecipeInput{{RecipeID: r.ID, QtyG: dec("50")}},
	)
	return a, b, r, p
}

func TestCreateItem_DerivesCost(t *testing.T) {
	f := newFixture(t)
	it := f.item("Butter", "12.50", "1000")

	require.True(t, it.CostPerBaseUnit.Valid)
	assertDec(t, "0.0125", it.CostPerBaseUnit.Decimal)
	assert.Equal(t, "kg", it.PurchaseUnit.Symbol)
	assert.Equal(t, "g", it.BaseUnit.Symbol)
	assert.True(t, it.Active)
}

func TestCreateItem_ZeroBaseQtyIsUnknown(t *testing.T) {
	f := newFixture(t)
	it := f.item("Mystery", "5", "0")
	assert.False(t, it.CostPerBaseUnit.Valid)
}

func TestCreateItem_Validation(t *testing.T) {
	f := newFixture(t)
	before := f.auditCount()

	_, err := f.eng.CreateItem(f.ctx, f.actor, ItemInput{
		Name: "Bad", PurchaseUnitID: f.kg, PurchaseQty: dec("1"),
		PurchaseCost: dec("-1"), BaseUnitID: f.gram, BaseQtyPerPurchase: dec("1"),
	})
	assert.True(t, costing.IsValidation(err))

	_, err = f.eng.CreateItem(f.ctx, f.actor, ItemInput{
		Name: "No unit", PurchaseUnitID: 9999, PurchaseQty: dec("1"),
		PurchaseCost: dec("1"), BaseUnitID: f.gram, BaseQtyPerPurchase: dec("1"),
	})
	assert.True(t, costing.IsValidation(err))
	assert.Equal(t, before, f.auditCount())
}

func TestWorkedExample_Propagates(t *testing.T) {
	f := newFixture(t)
	a, _, r, p := f.workedExample()

	rec := f.reloadRecipe(r.ID)
	assertDec(t, "220", rec.TotalRecipeCost)
	require.True(t, rec.RecipeCostPerGram.Valid)
	assertDec(t, "2.2", rec.RecipeCostPerGram.Decimal)

	prod := f.reloadProduct(p.ID)
	assertDec(t, "10", prod.DirectItemsCost)
	assertDec(t, "110", prod.RecipesCost)
	assertDec(t, "120", prod.TotalCost)
	assert.False(t, prod.CostIncomplete)

	_, report, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{PurchaseCost: decp("3000")})
	require.NoError(t, err)
	assert.Equal(t, costing.PhaseCommitted, report.Phase)
	assert.Equal(t, 1, report.Items)
	assert.Equal(t, 1, report.Recipes)
	assert.Equal(t, 1, report.Products)

	rec = f.reloadRecipe(r.ID)
	assertDec(t, "330", rec.TotalRecipeCost)
	assertDec(t, "3.3", rec.RecipeCostPerGram.Decimal)
	assertDec(t, "175", f.reloadProduct(p.ID).TotalCost)
}

func TestUpdateItem_UnrelatedUntouched(t *testing.T) {
	f := newFixture(t)
	a, b, _, _ := f.workedExample()

	r2 := f.recipe("Syrup", "50", RecipeLineInput{ItemID: b.ID, QtyG: dec("25")})
	p2 := f.product("Glaze", nil, []ProductRecipeInput{{RecipeID: r2.ID, QtyG: dec("10")}})
	r2Before := f.reloadRecipe(r2.ID)
	p2Before := f.reloadProduct(p2.ID)

	_, report, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{PurchaseCost: decp("5000")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recipes)
	assert.Equal(t, 1, report.Products)

	r2After := f.reloadRecipe(r2.ID)
	p2After := f.reloadProduct(p2.ID)
	assertDec(t, r2Before.TotalRecipeCost.String(), r2After.TotalRecipeCost)
	assertDec(t, p2Before.TotalCost.String(), p2After.TotalCost)
	assert.Equal(t, p2Before.UpdatedAt, p2After.UpdatedAt)
}

func TestUpdateItem_NameOnlyDoesNotRecompute(t *testing.T) {
	f := newFixture(t)
	a, _, _, _ := f.workedExample()

	name := "Bread flour"
	it, report, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Bread flour", it.Name)
	assert.Equal(t, 0, report.Recipes+report.Products+report.Items)
}

func TestUpdateItem_EmptyPatchRejected(t *testing.T) {
	f := newFixture(t)
	a := f.item("Salt", "1", "1000")
	_, _, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{})
	assert.True(t, costing.IsValidation(err))
}

func TestZeroBaseQty_MarksDependentsIncomplete(t *testing.T) {
	f := newFixture(t)
	a, _, r, p := f.workedExample()

	_, _, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{BaseQtyPerPurchase: decp("0")})
	require.NoError(t, err)

	rec := f.reloadRecipe(r.ID)
	assert.True(t, rec.CostIncomplete)
	assertDec(t, "0", rec.TotalRecipeCost)

	prod := f.reloadProduct(p.ID)
	assert.True(t, prod.CostIncomplete)
	assertDec(t, "10", prod.TotalCost)
}

func TestZeroYieldRecipe(t *testing.T) {
	f := newFixture(t)
	a := f.item("Oil", "10", "1000")
	r := f.recipe("Dressing", "0", RecipeLineInput{ItemID: a.ID, QtyG: dec("100")})

	rec := f.reloadRecipe(r.ID)
	assert.False(t, rec.RecipeCostPerGram.Valid)
	assert.True(t, rec.CostIncomplete)
	assertDec(t, "1", rec.TotalRecipeCost)
}

func TestEmptyRecipeIsZero(t *testing.T) {
	f := newFixture(t)
	r := f.recipe("Water", "100")
	rec := f.reloadRecipe(r.ID)
	assertDec(t, "0", rec.TotalRecipeCost)
	require.True(t, rec.RecipeCostPerGram.Valid)
	assert.False(t, rec.CostIncomplete)
}

func TestDeleteItem_ReferencedConflict(t *testing.T) {
	f := newFixture(t)
	a, b, _, p := f.workedExample()
	before := f.auditCount()

	err := f.eng.DeleteItem(f.ctx, f.actor, a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, costing.ErrReferentialConflict))
	var conflict *costing.ReferentialConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.RecipeRefs)

	err = f.eng.DeleteItem(f.ctx, f.actor, b.ID)
	assert.True(t, errors.Is(err, costing.ErrReferentialConflict))

	_, err = f.eng.GetItem(f.ctx, f.actor.OrgID, a.ID)
	assert.NoError(t, err)
	assertDec(t, "120", f.reloadProduct(p.ID).TotalCost)
	assert.Equal(t, before, f.auditCount())
}

func TestDeleteItem_Unreferenced(t *testing.T) {
	f := newFixture(t)
	a := f.item("Yeast", "3", "100")
	require.NoError(t, f.eng.DeleteItem(f.ctx, f.actor, a.ID))

	_, err := f.eng.GetItem(f.ctx, f.actor.OrgID, a.ID)
	assert.True(t, errors.Is(err, costing.ErrNotFound))
}

func TestDeleteRecipe_CascadesToProducts(t *testing.T) {
	f := newFixture(t)
	_, _, r, p := f.workedExample()

	report, err := f.eng.DeleteRecipe(f.ctx, f.actor, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Products)

	prod := f.reloadProduct(p.ID)
	assertDec(t, "0", prod.RecipesCost)
	assertDec(t, "10", prod.TotalCost)

	var edges int64
	require.NoError(t, f.db.Model(&models.FinishedProductRecipe{}).Where("recipe_id = ?", r.ID).Count(&edges).Error)
	assert.Zero(t, edges)
	require.NoError(t, f.db.Model(&models.RecipeItem{}).Where("recipe_id = ?", r.ID).Count(&edges).Error)
	assert.Zero(t, edges)
}

func TestCrossOrgReferenceIsNotFound(t *testing.T) {
	f := newFixture(t)
	a, _, r, p := f.workedExample()

	other := testutil.SeedOrg(t, f.db, "Competitor")
	stranger := Actor{OrgID: other.ID}

	_, err := f.eng.CreateRecipe(f.ctx, stranger, RecipeInput{
		Name: "Stolen", YieldQtyG: dec("10"),
		Items: []RecipeLineInput{{ItemID: a.ID, QtyG: dec("1")}},
	})
	assert.True(t, errors.Is(err, costing.ErrNotFound))

	_, _, err = f.eng.UpdateItem(f.ctx, stranger, a.ID, ItemPatch{PurchaseCost: decp("1")})
	assert.True(t, errors.Is(err, costing.ErrNotFound))

	_, err = f.eng.DeleteRecipe(f.ctx, stranger, r.ID)
	assert.True(t, errors.Is(err, costing.ErrNotFound))

	_, err = f.eng.GetProduct(f.ctx, other.ID, p.ID)
	assert.True(t, errors.Is(err, costing.ErrNotFound))

	assertDec(t, "120", f.reloadProduct(p.ID).TotalCost)
}

func TestRecipeValidation(t *testing.T) {
	f := newFixture(t)
	a := f.item("Milk", "1", "1000")

	_, err := f.eng.CreateRecipe(f.ctx, f.actor, RecipeInput{
		Name: "Dup", YieldQtyG: dec("10"),
		Items: []RecipeLineInput{{ItemID: a.ID, QtyG: dec("1")}, {ItemID: a.ID, QtyG: dec("2")}},
	})
	assert.True(t, costing.IsValidation(err))

	_, err = f.eng.CreateRecipe(f.ctx, f.actor, RecipeInput{
		Name: "Neg", YieldQtyG: dec("10"),
		Items: []RecipeLineInput{{ItemID: a.ID, QtyG: dec("1"), WastePct: dec("-0.1")}},
	})
	assert.True(t, costing.IsValidation(err))

	_, err = f.eng.CreateRecipe(f.ctx, f.actor, RecipeInput{Name: "Neg yield", YieldQtyG: dec("-1")})
	assert.True(t, costing.IsValidation(err))

	recipes, err := f.eng.ListRecipes(f.ctx, f.actor.OrgID)
	require.NoError(t, err)
	assert.Empty(t, recipes)
}

func TestUpdateRecipe_ReplacesItemsAndCascades(t *testing.T) {
	f := newFixture(t)
	a, b, r, p := f.workedExample()

	lines := []RecipeLineInput{
		{ItemID: a.ID, QtyG: dec("50")},
		{ItemID: b.ID, QtyG: dec("50")},
	}
	rec, report, err := f.eng.UpdateRecipe(f.ctx, f.actor, r.ID, RecipePatch{Items: &lines})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recipes)
	assert.Equal(t, 1, report.Products)
	require.Len(t, rec.Items, 2)

	// 50*2 + 50*1 = 150 over 100g
	assertDec(t, "150", rec.TotalRecipeCost)
	assertDec(t, "1.5", rec.RecipeCostPerGram.Decimal)
	// 10*1 + 50*1.5
	assertDec(t, "85", f.reloadProduct(p.ID).TotalCost)
}

func TestUpdateRecipe_YieldChangeCascades(t *testing.T) {
	f := newFixture(t)
	_, _, r, p := f.workedExample()

	_, _, err := f.eng.UpdateRecipe(f.ctx, f.actor, r.ID, RecipePatch{YieldQtyG: decp("200")})
	require.NoError(t, err)
	assertDec(t, "1.1", f.reloadRecipe(r.ID).RecipeCostPerGram.Decimal)
	assertDec(t, "65", f.reloadProduct(p.ID).TotalCost)
}

func TestRecipeItemUpsertAndDelete(t *testing.T) {
	f := newFixture(t)
	a, b, r, p := f.workedExample()

	_, err := f.eng.UpsertRecipeItem(f.ctx, f.actor, r.ID, b.ID, dec("20"), decimal.Zero)
	require.NoError(t, err)
	assertDec(t, "240", f.reloadRecipe(r.ID).TotalRecipeCost)
	assertDec(t, "130", f.reloadProduct(p.ID).TotalCost)

	_, err = f.eng.UpsertRecipeItem(f.ctx, f.actor, r.ID, a.ID, dec("100"), decimal.Zero)
	require.NoError(t, err)
	assertDec(t, "220", f.reloadRecipe(r.ID).TotalRecipeCost)

	_, err = f.eng.DeleteRecipeItem(f.ctx, f.actor, r.ID, b.ID)
	require.NoError(t, err)
	assertDec(t, "200", f.reloadRecipe(r.ID).TotalRecipeCost)

	_, err = f.eng.DeleteRecipeItem(f.ctx, f.actor, r.ID, b.ID)
	assert.True(t, errors.Is(err, costing.ErrNotFound))

	views, err := f.eng.ListRecipeItems(f.ctx, f.actor.OrgID, r.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Flour", views[0].ItemName)
	require.True(t, views[0].LineCost.Valid)
	assertDec(t, "200", views[0].LineCost.Decimal)
}

func TestProductEdges(t *testing.T) {
	f := newFixture(t)
	a, b, r, p := f.workedExample()

	_, err := f.eng.UpsertProductItem(f.ctx, f.actor, p.ID, a.ID, dec("5"))
	require.NoError(t, err)
	assertDec(t, "130", f.reloadProduct(p.ID).TotalCost)

	_, err = f.eng.DeleteProductItem(f.ctx, f.actor, p.ID, b.ID)
	require.NoError(t, err)
	assertDec(t, "120", f.reloadProduct(p.ID).TotalCost)

	_, err = f.eng.UpsertProductRecipe(f.ctx, f.actor, p.ID, r.ID, dec("10"))
	require.NoError(t, err)
	assertDec(t, "32", f.reloadProduct(p.ID).TotalCost)

	_, err = f.eng.DeleteProductRecipe(f.ctx, f.actor, p.ID, r.ID)
	require.NoError(t, err)
	prod := f.reloadProduct(p.ID)
	assertDec(t, "10", prod.TotalCost)
	assertDec(t, "0", prod.RecipesCost)
}

func TestUpdateProduct_ReplacesSets(t *testing.T) {
	f := newFixture(t)
	a, _, r, p := f.workedExample()

	items := []ProductItemInput{{ItemID: a.ID, QtyG: dec("1")}}
	recipes := []ProductRecipeInput{}
	prod, _, err := f.eng.UpdateProduct(f.ctx, f.actor, p.ID, ProductPatch{Items: &items, Recipes: &recipes})
	require.NoError(t, err)
	assert.Len(t, prod.Items, 1)
	assert.Empty(t, prod.Recipes)
	assertDec(t, "2", prod.TotalCost)

	dup := []ProductRecipeInput{{RecipeID: r.ID, QtyG: dec("1")}, {RecipeID: r.ID, QtyG: dec("1")}}
	_, _, err = f.eng.UpdateProduct(f.ctx, f.actor, p.ID, ProductPatch{Recipes: &dup})
	assert.True(t, costing.IsValidation(err))
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture(t)
	_, _, _, p := f.workedExample()
	require.NoError(t, f.eng.DeleteProduct(f.ctx, f.actor, p.ID))

	var n int64
	require.NoError(t, f.db.Model(&models.FinishedProductItem{}).Where("product_id = ?", p.ID).Count(&n).Error)
	assert.Zero(t, n)
	assert.True(t, errors.Is(f.eng.DeleteProduct(f.ctx, f.actor, p.ID), costing.ErrNotFound))
}

func TestProductBreakdown_SumsToTotal(t *testing.T) {
	f := newFixture(t)
	_, _, r, p := f.workedExample()
	c := f.item("Cardamom", "7", "3")
	_, err := f.eng.UpsertRecipeItem(f.ctx, f.actor, r.ID, c.ID, dec("1.3"), dec("0.05"))
	require.NoError(t, err)
	_, _, err = f.eng.UpdateRecipe(f.ctx, f.actor, r.ID, RecipePatch{YieldQtyG: decp("97")})
	require.NoError(t, err)
	_, err = f.eng.UpsertProductRecipe(f.ctx, f.actor, p.ID, r.ID, dec("33"))
	require.NoError(t, err)

	view, err := f.eng.ProductBreakdown(f.ctx, f.actor.OrgID, p.ID)
	require.NoError(t, err)
	bd := view.Breakdown
	assertDec(t, view.Product.TotalCost.String(), bd.TotalCost)
	assert.Equal(t, "Dough", view.Names[r.ID])
	assert.Equal(t, "Cardamom", view.Names[c.ID])

	sum := decimal.Zero
	for _, l := range bd.DirectItems {
		sum = sum.Add(l.Cost)
	}
	for _, rc := range bd.Recipes {
		sum = sum.Add(rc.Cost)
		nested := decimal.Zero
		for _, l := range rc.Items {
			nested = nested.Add(l.Cost)
		}
		assertDec(t, rc.Cost.String(), nested)
	}
	assertDec(t, bd.TotalCost.String(), sum)
}

func TestRecomputeOrg_Idempotent(t *testing.T) {
	f := newFixture(t)
	_, _, r, p := f.workedExample()

	first, err := f.eng.RecomputeOrg(f.ctx, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Changed)
	assert.Equal(t, 2, first.Items)

	// corrupt a derived value; the rebuild repairs it
	require.NoError(t, f.db.Model(&models.Recipe{}).Where("id = ?", r.ID).
		UpdateColumn("total_recipe_cost", dec("1")).Error)

	second, err := f.eng.RecomputeOrg(f.ctx, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Changed)
	assertDec(t, "220", f.reloadRecipe(r.ID).TotalRecipeCost)
	totalBefore := f.reloadProduct(p.ID).TotalCost

	third, err := f.eng.RecomputeOrg(f.ctx, f.actor)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Changed)
	assert.Equal(t, totalBefore.String(), f.reloadProduct(p.ID).TotalCost.String())
}

func TestImportPrices(t *testing.T) {
	f := newFixture(t)
	a, _, r, p := f.workedExample()
	sku := "FL-01"
	_, _, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{SKU: &sku})
	require.NoError(t, err)

	rep, err := f.eng.ImportPrices(f.ctx, f.actor, []PriceRow{
		{Row: 2, SKU: "fl-01", PurchaseCost: dec("3000")},
		{Row: 3, Name: "sugar", PurchaseCost: dec("2000")},
		{Row: 4, Name: "Saffron", PurchaseCost: dec("1")},
	})
	require.NoError(t, err)
	assert.Len(t, rep.Updated, 2)
	require.Len(t, rep.Unmatched, 1)
	assert.Equal(t, 4, rep.Unmatched[0].Row)
	assert.Equal(t, 1, rep.Recompute.Recipes)
	assert.Equal(t, 1, rep.Recompute.Products)

	assertDec(t, "3.3", f.reloadRecipe(r.ID).RecipeCostPerGram.Decimal)
	// 10*2 + 50*3.3
	assertDec(t, "185", f.reloadProduct(p.ID).TotalCost)
}

func TestImportPrices_NegativeRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.ImportPrices(f.ctx, f.actor, []PriceRow{{Row: 2, Name: "x", PurchaseCost: dec("-1")}})
	assert.True(t, costing.IsValidation(err))
}

func TestConcurrentUpdates_EndConsistent(t *testing.T) {
	f := newFixture(t)
	a, b, r, p := f.workedExample()

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := a
			if i%2 == 0 {
				target = b
			}
			cost := decimal.NewFromInt(int64(i * 1000))
			_, _, err := f.eng.UpdateItem(f.ctx, f.actor, target.ID, ItemPatch{PurchaseCost: &cost})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var fa, fb models.Item
	require.NoError(t, f.db.First(&fa, "id = ?", a.ID).Error)
	require.NoError(t, f.db.First(&fb, "id = ?", b.ID).Error)

	perGram := costing.AggregateRecipe(dec("100"), []costing.RecipeLine{
		{ItemID: a.ID, QtyG: dec("100"), WastePct: dec("0.10"), Cost: fa.CostPerBaseUnit},
	}).PerGram
	rec := f.reloadRecipe(r.ID)
	assertDec(t, perGram.Decimal.String(), rec.RecipeCostPerGram.Decimal)

	want := costing.AggregateProduct(
		[]costing.ProductItemLine{{ItemID: b.ID, QtyG: dec("10"), Cost: fb.CostPerBaseUnit}},
		[]costing.ProductRecipeLine{{RecipeID: r.ID, QtyG: dec("50"), PerGram: rec.RecipeCostPerGram}},
	)
	assertDec(t, want.Total.String(), f.reloadProduct(p.ID).TotalCost)
}

func TestMutationsAreAudited(t *testing.T) {
	f := newFixture(t)
	a, _, _, _ := f.workedExample()
	n := f.auditCount()

	_, _, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{PurchaseCost: decp("2500")})
	require.NoError(t, err)
	assert.Equal(t, n+1, f.auditCount())

	var last models.AuditLog
	require.NoError(t, f.db.Order("id DESC").First(&last).Error)
	assert.Equal(t, "item", last.EntityType)
	assert.Equal(t, a.ID.String(), last.EntityID)
	assert.Equal(t, models.AuditActionUpdate, last.Action)
	assert.Equal(t, f.actor.OrgID, last.OrgID)
}

func TestUpdateItem_DuplicateSKU(t *testing.T) {
	f := newFixture(t)
	a, b, _, _ := f.workedExample()
	sku := "FL-01"
	_, _, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{SKU: &sku})
	require.NoError(t, err)

	_, _, err = f.eng.UpdateItem(f.ctx, f.actor, b.ID, ItemPatch{SKU: &sku})
	assert.ErrorIs(t, err, database.ErrDuplicate)
	assert.False(t, costing.IsValidation(err))
}

func TestUpdateItem_FailedRecomputeRollsBack(t *testing.T) {
	f := newFixture(t)
	a, _, r, p := f.workedExample()
	audits := f.auditCount()

	errProducts := errors.New("product write failed")
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_products", func(tx *gorm.DB) {
		if tx.Statement.Table == "finished_products" {
			_ = tx.AddError(errProducts)
		}
	}))

	cost := dec("3000")
	_, _, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{PurchaseCost: &cost})
	require.ErrorIs(t, err, errProducts)

	var item models.Item
	require.NoError(t, f.db.First(&item, "id = ?", a.ID).Error)
	assertDec(t, "2000", item.PurchaseCost)
	require.True(t, item.CostPerBaseUnit.Valid)
	assertDec(t, "2", item.CostPerBaseUnit.Decimal)

	rec := f.reloadRecipe(r.ID)
	assertDec(t, "220", rec.TotalRecipeCost)
	assertDec(t, "2.2", rec.RecipeCostPerGram.Decimal)
	assertDec(t, "120", f.reloadProduct(p.ID).TotalCost)
	assert.Equal(t, audits, f.auditCount())
}

// A product->recipe edge written while an item update is in flight must be
// picked up by that update. Needs real row locks, so it runs on postgres only.
func TestUpdateItem_SeesConcurrentRecipeEdge(t *testing.T) {
	db := testutil.Postgres(t)
	f := newFixtureOn(t, db, testutil.PostgresStore(t, db), "owner-"+uuid.NewString()+"@bakery.test")
	a, _, r, _ := f.workedExample()
	roll := f.product("Roll", nil, nil)

	// the edge writer holds the recipe FOR SHARE, as product edge writes do
	writer := db.Begin()
	require.NoError(t, writer.Error)
	defer writer.Rollback()
	var held []models.Recipe
	require.NoError(t, writer.Clauses(clause.Locking{Strength: forShare}).Where("id = ?", r.ID).Find(&held).Error)
	require.NoError(t, writer.Omit(clause.Associations).Create(&models.FinishedProductRecipe{
		ProductID: roll.ID, RecipeID: r.ID, QtyG: dec("50"),
	}).Error)

	done := make(chan error, 1)
	go func() {
		cost := dec("3000")
		_, _, err := f.eng.UpdateItem(f.ctx, f.actor, a.ID, ItemPatch{PurchaseCost: &cost})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("item update did not wait for the recipe lock: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	require.NoError(t, writer.Commit().Error)
	require.NoError(t, <-done)

	// 50 * 3.3
	assertDec(t, "165", f.reloadProduct(roll.ID).TotalCost)
}
