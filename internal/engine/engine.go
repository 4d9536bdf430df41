// Package engine applies costing mutations to the store and keeps every derived
// cost consistent: each mutation, its affected-set resolution and the bottom-up
// recompute run in one transaction.
package engine

import (
	"shefa-backend/internal/database"

	"github.com/sirupsen/logrus"
)

type Engine struct {
	store *database.Store
	log   *logrus.Entry
}

func New(store *database.Store, log *logrus.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log.WithField("component", "engine"),
	}
}

// Store exposes the underlying handle to handlers that only read reference data.
func (e *Engine) Store() *database.Store { return e.store }

// Actor is the authenticated, org-scoped caller of an engine operation.
type Actor struct {
	OrgID    uint
	UserID   *uint
	UserName string
}
