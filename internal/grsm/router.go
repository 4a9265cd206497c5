package grsm

import (
	"main/internal/batch"
	"main/internal/schema"
)

var _ batch.Processor = (*Router)(nil)

// Router is the admission seam between batch producers and the state
// manager. A halted manager short-circuits the whole batch to HALTED
// without touching the ledger.
type Router struct {
	manager *Manager
}

// NewRouter wraps the manager for batch admission.
func NewRouter(manager *Manager) *Router {
	return &Router{manager: manager}
}

// ProcessBatch admits the batch through the manager's batch policy.
func (r *Router) ProcessBatch(orders []schema.Order) ([]schema.Decision, error) {
	if r.manager.IsHalted() {
		decisions := make([]schema.Decision, len(orders))
		for i := range decisions {
			decisions[i] = schema.Halted()
		}
		return decisions, nil
	}
	return r.manager.ProcessOrdersBatch(orders)
}

// ProcessOrdersBatch implements batch.Processor.
func (r *Router) ProcessOrdersBatch(orders []schema.Order) ([]schema.Decision, error) {
	return r.ProcessBatch(orders)
}
