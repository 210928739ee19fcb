package persistence

import (
	"context"
	"log"

	"github.com/planrun/planrun/internal/graph"
)

// StoreReporter records every task transition of a run into a Store.
// Write failures are logged, not surfaced; reporting must never alter the
// run's outcome.
type StoreReporter struct {
	store Store
	runID string
}

// NewStoreReporter creates a reporter writing transitions for runID.
func NewStoreReporter(store Store, runID string) *StoreReporter {
	return &StoreReporter{store: store, runID: runID}
}

// OnTransition implements the coordinator's Reporter interface.
func (r *StoreReporter) OnTransition(taskID string, from, to graph.Status, reason string) {
	if err := r.store.RecordTransition(context.Background(), r.runID, taskID, from, to, reason); err != nil {
		log.Printf("WARNING: failed to record transition for task %q: %v", taskID, err)
	}
}
