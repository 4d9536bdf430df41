package costing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func known(s string) decimal.NullDecimal { return Known(d(s)) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestResolveItemCost_Divides(t *testing.T) {
	got := ResolveItemCost(d("12.50"), d("1000"))
	require.True(t, got.Valid)
	assertDec(t, "0.0125", got.Decimal)
}

func TestResolveItemCost_ZeroBaseQtyIsUnknown(t *testing.T) {
	got := ResolveItemCost(d("12.50"), decimal.Zero)
	assert.False(t, got.Valid)
}

func TestResolveItemCost_BankersRounding(t *testing.T) {
	// exact halves round to the even neighbour
	got := ResolveItemCost(d("5"), d("2000000"))
	require.True(t, got.Valid)
	assertDec(t, "0.000002", got.Decimal)

	got = ResolveItemCost(d("15"), d("10000000"))
	require.True(t, got.Valid)
	assertDec(t, "0.000002", got.Decimal)
}

func TestValidatePurchase(t *testing.T) {
	assert.NoError(t, ValidatePurchase(d("1"), d("0"), d("0")))
	assert.True(t, IsValidation(ValidatePurchase(d("0"), d("1"), d("1"))))
	assert.True(t, IsValidation(ValidatePurchase(d("1"), d("-1"), d("1"))))
	assert.True(t, IsValidation(ValidatePurchase(d("1"), d("1"), d("-0.5"))))
}

func TestAggregateRecipe_WorkedExample(t *testing.T) {
	a := uuid.New()
	lines := []RecipeLine{{ItemID: a, QtyG: d("100"), WastePct: d("0.10"), Cost: known("2.00")}}

	got := AggregateRecipe(d("100"), lines)
	assertDec(t, "220", got.Total)
	require.True(t, got.PerGram.Valid)
	assertDec(t, "2.2", got.PerGram.Decimal)
	assert.False(t, got.Incomplete)

	lines[0].Cost = known("3.00")
	got = AggregateRecipe(d("100"), lines)
	assertDec(t, "330", got.Total)
	assertDec(t, "3.3", got.PerGram.Decimal)
}

func TestAggregateRecipe_EmptyIsZeroNotUnknown(t *testing.T) {
	got := AggregateRecipe(d("250"), nil)
	assertDec(t, "0", got.Total)
	require.True(t, got.PerGram.Valid)
	assertDec(t, "0", got.PerGram.Decimal)
	assert.False(t, got.Incomplete)
}

func TestAggregateRecipe_ZeroYield(t *testing.T) {
	lines := []RecipeLine{{ItemID: uuid.New(), QtyG: d("10"), Cost: known("1")}}
	got := AggregateRecipe(decimal.Zero, lines)
	assertDec(t, "10", got.Total)
	assert.False(t, got.PerGram.Valid)
	assert.True(t, got.Incomplete)
}

func TestAggregateRecipe_UnknownLineExcludedAndFlagged(t *testing.T) {
	lines := []RecipeLine{
		{ItemID: uuid.New(), QtyG: d("10"), Cost: known("1.5")},
		{ItemID: uuid.New(), QtyG: d("500"), Cost: Unknown()},
	}
	got := AggregateRecipe(d("10"), lines)
	assertDec(t, "15", got.Total)
	assertDec(t, "1.5", got.PerGram.Decimal)
	assert.True(t, got.Incomplete)
}

func TestAggregateRecipe_Idempotent(t *testing.T) {
	lines := []RecipeLine{
		{ItemID: uuid.New(), QtyG: d("33.3"), WastePct: d("0.07"), Cost: known("0.012345")},
		{ItemID: uuid.New(), QtyG: d("7"), Cost: known("1.999999")},
	}
	first := AggregateRecipe(d("41"), lines)
	second := AggregateRecipe(d("41"), lines)
	assert.Equal(t, first.Total.String(), second.Total.String())
	assert.Equal(t, first.PerGram.Decimal.String(), second.PerGram.Decimal.String())
}

func TestValidateRecipeLine(t *testing.T) {
	assert.NoError(t, ValidateRecipeLine(d("1"), decimal.Zero))
	assert.True(t, IsValidation(ValidateRecipeLine(decimal.Zero, decimal.Zero)))
	assert.True(t, IsValidation(ValidateRecipeLine(d("1"), d("-0.1"))))
	assert.NoError(t, ValidateYield(decimal.Zero))
	assert.True(t, IsValidation(ValidateYield(d("-1"))))
}

func TestAggregateProduct_WorkedExample(t *testing.T) {
	items := []ProductItemLine{{ItemID: uuid.New(), QtyG: d("10"), Cost: known("1.00")}}
	recipes := []ProductRecipeLine{{RecipeID: uuid.New(), QtyG: d("50"), PerGram: known("2.20")}}

	got := AggregateProduct(items, recipes)
	assertDec(t, "10", got.DirectItemsCost)
	assertDec(t, "110", got.RecipesCost)
	assertDec(t, "120", got.Total)
	assert.False(t, got.Incomplete)

	recipes[0].PerGram = known("3.30")
	got = AggregateProduct(items, recipes)
	assertDec(t, "175", got.Total)
}

func TestAggregateProduct_IncompletePropagates(t *testing.T) {
	recipes := []ProductRecipeLine{{RecipeID: uuid.New(), QtyG: d("5"), PerGram: known("1"), RecipeIncomplete: true}}
	got := AggregateProduct(nil, recipes)
	assertDec(t, "5", got.Total)
	assert.True(t, got.Incomplete)

	got = AggregateProduct([]ProductItemLine{{ItemID: uuid.New(), QtyG: d("1"), Cost: Unknown()}}, nil)
	assertDec(t, "0", got.Total)
	assert.True(t, got.Incomplete)

	got = AggregateProduct(nil, []ProductRecipeLine{{RecipeID: uuid.New(), QtyG: d("1"), PerGram: Unknown()}})
	assert.True(t, got.Incomplete)
}

func TestBuildBreakdown_SumsToTotal(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	recipe := AggregateRecipe(d("7"), []RecipeLine{
		{ItemID: a, QtyG: d("1"), WastePct: d("0.05"), Cost: known("0.333333")},
		{ItemID: b, QtyG: d("2"), Cost: known("0.777777")},
	})

	inclusion := RecipeInclusion{
		ProductRecipeLine: ProductRecipeLine{RecipeID: uuid.New(), QtyG: d("3"), PerGram: recipe.PerGram},
		YieldQtyG:         d("7"),
		Lines: []RecipeLine{
			{ItemID: a, QtyG: d("1"), WastePct: d("0.05"), Cost: known("0.333333")},
			{ItemID: b, QtyG: d("2"), Cost: known("0.777777")},
		},
	}
	direct := []ProductItemLine{{ItemID: c, QtyG: d("1.5"), Cost: known("0.111111")}}

	bd := BuildBreakdown(direct, []RecipeInclusion{inclusion})
	require.Len(t, bd.DirectItems, 1)
	require.Len(t, bd.Recipes, 1)

	top := decimal.Zero
	for _, l := range bd.DirectItems {
		top = top.Add(l.Cost)
	}
	for _, r := range bd.Recipes {
		top = top.Add(r.Cost)
	}
	assertDec(t, bd.TotalCost.String(), top)
	assertDec(t, bd.DirectItemsCost.Add(bd.RecipesCost).String(), bd.TotalCost)

	nested := decimal.Zero
	for _, l := range bd.Recipes[0].Items {
		nested = nested.Add(l.Cost)
	}
	assertDec(t, bd.Recipes[0].Cost.String(), nested)
	require.True(t, bd.Recipes[0].ConsumedFraction.Valid)
	assertDec(t, "0.428571", bd.Recipes[0].ConsumedFraction.Decimal)
}

func TestBuildBreakdown_WorkedExampleScalesLines(t *testing.T) {
	a := uuid.New()
	inclusion := RecipeInclusion{
		ProductRecipeLine: ProductRecipeLine{RecipeID: uuid.New(), QtyG: d("50"), PerGram: known("2.2")},
		YieldQtyG:         d("100"),
		Lines:             []RecipeLine{{ItemID: a, QtyG: d("100"), WastePct: d("0.1"), Cost: known("2")}},
	}
	bd := BuildBreakdown(nil, []RecipeInclusion{inclusion})

	require.Len(t, bd.Recipes[0].Items, 1)
	line := bd.Recipes[0].Items[0]
	assertDec(t, "55", line.QtyG)
	assertDec(t, "110", line.Cost)
	assertDec(t, "110", bd.TotalCost)
}

func TestBuildBreakdown_ZeroYieldInclusion(t *testing.T) {
	inclusion := RecipeInclusion{
		ProductRecipeLine: ProductRecipeLine{RecipeID: uuid.New(), QtyG: d("5"), PerGram: Unknown(), RecipeIncomplete: true},
		YieldQtyG:         decimal.Zero,
		Lines:             []RecipeLine{{ItemID: uuid.New(), QtyG: d("1"), Cost: known("1")}},
	}
	bd := BuildBreakdown(nil, []RecipeInclusion{inclusion})
	assert.True(t, bd.Incomplete)
	assert.False(t, bd.Recipes[0].ConsumedFraction.Valid)
	assertDec(t, "0", bd.TotalCost)
}

func TestCheckEdge(t *testing.T) {
	assert.NoError(t, CheckEdge(KindRecipe, KindItem))
	assert.NoError(t, CheckEdge(KindProduct, KindItem))
	assert.NoError(t, CheckEdge(KindProduct, KindRecipe))

	for _, e := range [][2]EntityKind{
		{KindRecipe, KindRecipe},
		{KindItem, KindRecipe},
		{KindRecipe, KindProduct},
		{KindProduct, KindProduct},
		{KindItem, KindItem},
	} {
		assert.Truef(t, IsValidation(CheckEdge(e[0], e[1])), "%s -> %s", e[0], e[1])
	}
}

type fakeGraph struct {
	recipesByItem   map[uuid.UUID][]uuid.UUID
	productsByItem  map[uuid.UUID][]uuid.UUID
	productsByRecip map[uuid.UUID][]uuid.UUID
}

func collect(m map[uuid.UUID][]uuid.UUID, ids []uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range ids {
		out = append(out, m[id]...)
	}
	return out
}

func (f fakeGraph) RecipesUsingItems(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return collect(f.recipesByItem, ids), nil
}

func (f fakeGraph) ProductsUsingItems(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return collect(f.productsByItem, ids), nil
}

func (f fakeGraph) ProductsUsingRecipes(_ context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	return collect(f.productsByRecip, ids), nil
}

func TestResolve_ItemSeedCascades(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	r1, r2 := uuid.New(), uuid.New()
	p1, p2, unrelated := uuid.New(), uuid.New(), uuid.New()

	g := fakeGraph{
		recipesByItem:   map[uuid.UUID][]uuid.UUID{a: {r1}, b: {r2}},
		productsByItem:  map[uuid.UUID][]uuid.UUID{a: {p2}},
		productsByRecip: map[uuid.UUID][]uuid.UUID{r1: {p1, p2}, r2: {unrelated}},
	}

	plan, err := Resolve(context.Background(), g, Seed{Items: []uuid.UUID{a}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, plan.Items)
	assert.Equal(t, []uuid.UUID{r1}, plan.Recipes)
	assert.ElementsMatch(t, []uuid.UUID{p1, p2}, plan.Products)
	assert.Equal(t, 4, plan.Size())
}

func TestResolve_RecipeSeedAndProductSeed(t *testing.T) {
	r := uuid.New()
	p, q := uuid.New(), uuid.New()
	g := fakeGraph{productsByRecip: map[uuid.UUID][]uuid.UUID{r: {p}}}

	plan, err := Resolve(context.Background(), g, Seed{Recipes: []uuid.UUID{r}})
	require.NoError(t, err)
	assert.Empty(t, plan.Items)
	assert.Equal(t, []uuid.UUID{p}, plan.Products)

	plan, err = Resolve(context.Background(), g, Seed{Products: []uuid.UUID{q}})
	require.NoError(t, err)
	assert.Empty(t, plan.Recipes)
	assert.Equal(t, []uuid.UUID{q}, plan.Products)
}

func TestResolve_Dedupes(t *testing.T) {
	r := uuid.New()
	p := uuid.New()
	g := fakeGraph{productsByRecip: map[uuid.UUID][]uuid.UUID{r: {p, p}}}

	plan, err := Resolve(context.Background(), g, Seed{Recipes: []uuid.UUID{r, r}, Products: []uuid.UUID{p}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{r}, plan.Recipes)
	assert.Equal(t, []uuid.UUID{p}, plan.Products)
}

// edgeOnLock stands in for a concurrent edge writer that commits while the
// resolver waits for a layer lock.
type edgeOnLock struct {
	g      fakeGraph
	onLock map[EntityKind]func()
	order  []EntityKind
}

func (l *edgeOnLock) LockLayer(_ context.Context, kind EntityKind, _ []uuid.UUID) error {
	l.order = append(l.order, kind)
	if fn := l.onLock[kind]; fn != nil {
		fn()
	}
	return nil
}

func TestResolveLocked_ReadsDependentsAfterLayerLock(t *testing.T) {
	a, r := uuid.New(), uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	g := fakeGraph{
		recipesByItem:   map[uuid.UUID][]uuid.UUID{a: {r}},
		productsByItem:  map[uuid.UUID][]uuid.UUID{},
		productsByRecip: map[uuid.UUID][]uuid.UUID{r: {p1}},
	}
	l := &edgeOnLock{g: g, onLock: map[EntityKind]func(){
		// P2 -> R lands while the recipe lock is awaited
		KindRecipe: func() { g.productsByRecip[r] = append(g.productsByRecip[r], p2) },
	}}

	plan, err := ResolveLocked(context.Background(), g, l, Seed{Items: []uuid.UUID{a}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{p1, p2}, plan.Products)
	assert.Equal(t, []EntityKind{KindItem, KindRecipe, KindProduct}, l.order)
}

func TestResolveLocked_SkipsEmptyLayers(t *testing.T) {
	p := uuid.New()
	l := &edgeOnLock{}
	plan, err := ResolveLocked(context.Background(), fakeGraph{}, l, Seed{Products: []uuid.UUID{p}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{p}, plan.Products)
	assert.Equal(t, []EntityKind{KindProduct}, l.order)
}
