package scheduler

import (
	"fmt"
	"strings"

	"github.com/planrun/planrun/internal/graph"
)

// Wave is an ordered set of task ids eligible to start together: no task in
// a wave depends on another in the same wave, and no two share a non-empty
// resource key. Order within a wave follows plan input order.
type Wave []string

// DeadlockError reports that tasks remain but none is eligible. With a
// validated graph this cannot happen; it indicates the planner was handed a
// graph that bypassed validation, and is an internal invariant violation
// rather than a user error.
type DeadlockError struct {
	Remaining []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("scheduling deadlock: no eligible tasks among remaining [%s]",
		strings.Join(e.Remaining, ", "))
}

// Plan computes the wave sequence for a graph: Kahn's algorithm with
// resource-aware admission.
//
// Each step admits the maximal subset of ready tasks (in-degree zero,
// unscheduled) holding at most one task per non-empty resource key. When
// several same-resource tasks are ready at once, plan input order decides
// who goes first; the rest stay ready and are admitted in later waves.
// The result is deterministic for a fixed input plan, and is identical
// whether execution is concurrent or sequential.
func Plan(g *graph.TaskGraph, ix *graph.ResourceIndex) ([]Wave, error) {
	order := g.Order()

	indegree := make(map[string]int, len(order))
	for _, id := range order {
		t, _ := g.Task(id)
		indegree[id] = len(t.DependsOn)
	}

	scheduled := make(map[string]bool, len(order))
	remaining := len(order)
	var waves []Wave

	for remaining > 0 {
		// Ready set in input order; deferred same-resource tasks
		// reappear here until admitted.
		var ready []string
		for _, id := range order {
			if !scheduled[id] && indegree[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			var left []string
			for _, id := range order {
				if !scheduled[id] {
					left = append(left, id)
				}
			}
			return nil, &DeadlockError{Remaining: left}
		}

		// Resource admission: first ready task per key wins.
		claimed := make(map[string]bool)
		var wave Wave
		for _, id := range ready {
			if key, ok := ix.ResourceOf(id); ok {
				if claimed[key] {
					continue
				}
				claimed[key] = true
			}
			wave = append(wave, id)
		}

		for _, id := range wave {
			scheduled[id] = true
			remaining--
			for _, depID := range g.DependentsOf(id) {
				indegree[depID]--
			}
		}

		waves = append(waves, wave)
	}

	return waves, nil
}
