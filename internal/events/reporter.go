package events

import (
	"time"

	"github.com/planrun/planrun/internal/graph"
)

// BusReporter publishes task transitions onto an event bus. It satisfies
// the coordinator's Reporter interface.
type BusReporter struct {
	bus *Bus
}

// NewBusReporter creates a reporter publishing to bus.
func NewBusReporter(bus *Bus) *BusReporter {
	return &BusReporter{bus: bus}
}

// OnTransition publishes the transition as a TaskTransitionEvent.
func (r *BusReporter) OnTransition(taskID string, from, to graph.Status, reason string) {
	r.bus.Publish(TaskTransitionEvent{
		ID:        taskID,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}
