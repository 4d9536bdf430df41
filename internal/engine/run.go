package engine

import (
	"context"
	"time"

	"shefa-backend/internal/costing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecomputeReport describes one mutation's recompute pass.
type RecomputeReport struct {
	Operation string        `json:"operation"`
	Phase     costing.Phase `json:"phase"`
	Items     int           `json:"items"`
	Recipes   int           `json:"recipes"`
	Products  int           `json:"products"`
	Changed   int           `json:"changed"`
	Duration  time.Duration `json:"duration_ns"`
}

// run is the state of one mutation inside its transaction.
type run struct {
	ctx    context.Context
	tx     *gorm.DB
	actor  Actor
	log    *logrus.Entry
	report *RecomputeReport
}

func (r *run) advance(p costing.Phase) {
	r.report.Phase = p
	r.log.WithField("phase", p).Debug("recompute phase")
}

// mutate runs fn and the cascading recompute of the seed it returns as one
// atomic unit. On any error nothing fn or the recompute wrote survives.
func (e *Engine) mutate(ctx context.Context, actor Actor, op string, fn func(r *run) (costing.Seed, error)) (RecomputeReport, error) {
	start := time.Now()
	report := RecomputeReport{Operation: op, Phase: costing.PhasePending}
	log := e.log.WithFields(logrus.Fields{"org_id": actor.OrgID, "operation": op})

	err := e.store.Mutate(ctx, func(tx *gorm.DB) error {
		// a retried transaction starts again from pending
		report = RecomputeReport{Operation: op, Phase: costing.PhasePending}
		r := &run{ctx: ctx, tx: tx, actor: actor, log: log, report: &report}

		seed, err := fn(r)
		if err != nil {
			return err
		}

		r.advance(costing.PhaseResolving)
		g := graph{tx: tx, orgID: actor.OrgID}
		plan, err := costing.ResolveLocked(ctx, g, g, seed)
		if err != nil {
			return err
		}

		r.advance(costing.PhaseRecomputing)
		return r.recompute(plan)
	})

	report.Duration = time.Since(start)
	if err != nil {
		report.Phase = costing.PhaseAborted
		log.WithError(err).WithField("phase", report.Phase).Warn("mutation aborted")
		return report, err
	}

	report.Phase = costing.PhaseCommitted
	log.WithFields(logrus.Fields{
		"items":    report.Items,
		"recipes":  report.Recipes,
		"products": report.Products,
		"changed":  report.Changed,
		"duration": report.Duration,
	}).Info("mutation committed")
	return report, nil
}

// recompute walks the plan bottom-up: items, then recipes, then products.
func (r *run) recompute(plan costing.Plan) error {
	changed, err := recomputeItems(r.tx, r.actor.OrgID, plan.Items)
	if err != nil {
		return err
	}
	r.report.Items = len(plan.Items)
	r.report.Changed += changed

	changed, err = recomputeRecipes(r.tx, r.actor.OrgID, plan.Recipes)
	if err != nil {
		return err
	}
	r.report.Recipes = len(plan.Recipes)
	r.report.Changed += changed

	changed, err = recomputeProducts(r.tx, r.actor.OrgID, plan.Products)
	if err != nil {
		return err
	}
	r.report.Products = len(plan.Products)
	r.report.Changed += changed
	return nil
}

func one(id uuid.UUID) []uuid.UUID { return []uuid.UUID{id} }
