package costing

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type EntityKind string

const (
	KindItem    EntityKind = "item"
	KindRecipe  EntityKind = "recipe"
	KindProduct EntityKind = "product"

	// not part of the costing graph; used for reference lookups
	KindCategory EntityKind = "category"
	KindMember   EntityKind = "member"
)

// layer is the topological depth of a kind; lower layers are recomputed first.
func (k EntityKind) layer() int {
	switch k {
	case KindItem:
		return 0
	case KindRecipe:
		return 1
	case KindProduct:
		return 2
	}
	return -1
}

// CheckEdge rejects any composition edge outside Recipe->Item, Product->Item and Product->Recipe.
// Parents must sit strictly above their children, which keeps the graph acyclic.
func CheckEdge(parent, child EntityKind) error {
	switch {
	case parent == KindRecipe && child == KindItem,
		parent == KindProduct && child == KindItem,
		parent == KindProduct && child == KindRecipe:
		return nil
	}
	if parent.layer() <= child.layer() {
		return Invalid("edge", fmt.Sprintf("a %s cannot contain a %s", parent, child))
	}
	return Invalid("edge", fmt.Sprintf("unsupported edge %s -> %s", parent, child))
}

// Phase is the lifecycle of one recompute request.
type Phase string

const (
	PhasePending     Phase = "pending"
	PhaseResolving   Phase = "resolving"
	PhaseRecomputing Phase = "recomputing"
	PhaseCommitted   Phase = "committed"
	PhaseAborted     Phase = "aborted"
)

// Seed holds the nodes a mutation touched directly.
type Seed struct {
	Items    []uuid.UUID
	Recipes  []uuid.UUID
	Products []uuid.UUID
}

func (s Seed) Empty() bool {
	return len(s.Items) == 0 && len(s.Recipes) == 0 && len(s.Products) == 0
}

// Merge unions two seeds.
func (s Seed) Merge(o Seed) Seed {
	return Seed{
		Items:    append(append([]uuid.UUID{}, s.Items...), o.Items...),
		Recipes:  append(append([]uuid.UUID{}, s.Recipes...), o.Recipes...),
		Products: append(append([]uuid.UUID{}, s.Products...), o.Products...),
	}
}

// Plan is a deduplicated affected set in recompute order.
type Plan struct {
	Items    []uuid.UUID
	Recipes  []uuid.UUID
	Products []uuid.UUID
}

func (p Plan) Size() int {
	return len(p.Items) + len(p.Recipes) + len(p.Products)
}

// GraphReader answers reverse-dependency lookups within one organization.
type GraphReader interface {
	RecipesUsingItems(ctx context.Context, itemIDs []uuid.UUID) ([]uuid.UUID, error)
	ProductsUsingItems(ctx context.Context, itemIDs []uuid.UUID) ([]uuid.UUID, error)
	ProductsUsingRecipes(ctx context.Context, recipeIDs []uuid.UUID) ([]uuid.UUID, error)
}

// LayerLocker write-locks one layer of the affected set before the next layer is read.
// An edge writer share-locks the child it attaches to, so once a layer is locked every
// edge pointing at it is either committed and visible or waits for the caller.
type LayerLocker interface {
	LockLayer(ctx context.Context, kind EntityKind, ids []uuid.UUID) error
}

// Resolve expands a seed into the full affected set without locking.
func Resolve(ctx context.Context, g GraphReader, seed Seed) (Plan, error) {
	return ResolveLocked(ctx, g, nil, seed)
}

// ResolveLocked expands a seed into the full affected set, locking items, then recipes,
// then products, and reading each layer's dependents only after that layer is locked.
//
// Items propagate to the recipes that contain them and to products that use them directly;
// recipes (seeded or reached) propagate to the products that include them. Products are leaves
// of propagation. A node reachable via several paths appears once.
func ResolveLocked(ctx context.Context, g GraphReader, l LayerLocker, seed Seed) (Plan, error) {
	items := newIDSet(seed.Items...)
	recipes := newIDSet(seed.Recipes...)
	products := newIDSet(seed.Products...)

	lock := func(kind EntityKind, set idSet) error {
		if l == nil || set.len() == 0 {
			return nil
		}
		if err := l.LockLayer(ctx, kind, set.sorted()); err != nil {
			return fmt.Errorf("lock %s layer: %w", kind, err)
		}
		return nil
	}

	if err := lock(KindItem, items); err != nil {
		return Plan{}, err
	}

	if items.len() > 0 {
		viaItems, err := g.RecipesUsingItems(ctx, items.sorted())
		if err != nil {
			return Plan{}, fmt.Errorf("recipes using items: %w", err)
		}
		recipes.add(viaItems...)

		direct, err := g.ProductsUsingItems(ctx, items.sorted())
		if err != nil {
			return Plan{}, fmt.Errorf("products using items: %w", err)
		}
		products.add(direct...)
	}

	if err := lock(KindRecipe, recipes); err != nil {
		return Plan{}, err
	}

	if recipes.len() > 0 {
		viaRecipes, err := g.ProductsUsingRecipes(ctx, recipes.sorted())
		if err != nil {
			return Plan{}, fmt.Errorf("products using recipes: %w", err)
		}
		products.add(viaRecipes...)
	}

	if err := lock(KindProduct, products); err != nil {
		return Plan{}, err
	}

	return Plan{
		Items:    items.sorted(),
		Recipes:  recipes.sorted(),
		Products: products.sorted(),
	}, nil
}

type idSet map[uuid.UUID]struct{}

func newIDSet(ids ...uuid.UUID) idSet {
	s := idSet{}
	s.add(ids...)
	return s
}

func (s idSet) add(ids ...uuid.UUID) {
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		s[id] = struct{}{}
	}
}

func (s idSet) len() int { return len(s) }

func (s idSet) sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	SortIDs(out)
	return out
}

// SortIDs orders ids by their string form; every lock acquisition uses this order.
func SortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
