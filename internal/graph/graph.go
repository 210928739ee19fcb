package graph

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// TaskGraph is an immutable, validated view of a plan: tasks indexed by id,
// plus precomputed reverse edges. Build is the only constructor; a graph
// that exists has unique ids, no dangling references, and no cycles.
type TaskGraph struct {
	tasks      map[string]*Task
	order      []string            // Task ids in plan input order
	dependents map[string][]string // taskID -> tasks that depend on it, input-ordered
}

// Build validates a plan's task list and constructs the graph.
//
// Validation order: duplicate ids, unresolved references, cycles. Cycle
// detection runs toposort over the dependency edges; when it fails, a
// three-color depth-first search recovers the actual cycle path so the
// error names every participant.
func Build(tasks []*Task) (*TaskGraph, error) {
	g := &TaskGraph{
		tasks:      make(map[string]*Task, len(tasks)),
		order:      make([]string, 0, len(tasks)),
		dependents: make(map[string][]string),
	}

	for _, t := range tasks {
		if _, exists := g.tasks[t.ID]; exists {
			return nil, &DuplicateIDError{ID: t.ID}
		}
		g.tasks[t.ID] = cloneTask(t)
		g.order = append(g.order, t.ID)
	}

	for _, id := range g.order {
		for _, depID := range g.tasks[id].DependsOn {
			if _, exists := g.tasks[depID]; !exists {
				return nil, &UnresolvedReferenceError{TaskID: id, Missing: depID}
			}
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	for _, id := range g.order {
		for _, depID := range g.tasks[id].DependsOn {
			g.dependents[depID] = append(g.dependents[depID], id)
		}
	}

	return g, nil
}

// checkAcyclic runs topological sort as the structural gate. The sort only
// reports that a cycle exists; the DFS names its members.
func (g *TaskGraph) checkAcyclic() error {
	var edges []toposort.Edge
	for _, id := range g.order {
		task := g.tasks[id]
		if len(task.DependsOn) == 0 {
			// Edge from nil keeps isolated tasks in the sort
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		if cycle := g.findCycle(); cycle != nil {
			return &CyclicDependencyError{Cycle: cycle}
		}
		return fmt.Errorf("graph contains cycle: %w", err)
	}
	return nil
}

// findCycle performs a three-color DFS over dependency edges and returns
// the first cycle found as a path with the entry id repeated at the end,
// or nil if the graph is acyclic.
func (g *TaskGraph) findCycle() []string {
	const (
		white = iota // unvisited
		gray         // on the current DFS stack
		black        // fully explored
	)

	color := make(map[string]int, len(g.tasks))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		for _, depID := range g.tasks[id].DependsOn {
			switch color[depID] {
			case white:
				if visit(depID) {
					return true
				}
			case gray:
				// depID is on the stack: everything from its stack
				// position down to here is the cycle
				for i, sid := range stack {
					if sid == depID {
						cycle = append(append([]string(nil), stack[i:]...), depID)
						return true
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// Task returns a copy of the task with the given id.
func (g *TaskGraph) Task(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// Tasks returns copies of all tasks in plan input order.
func (g *TaskGraph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, cloneTask(g.tasks[id]))
	}
	return out
}

// Order returns the task ids in plan input order.
func (g *TaskGraph) Order() []string {
	return append([]string(nil), g.order...)
}

// DependentsOf returns the ids of tasks that list id as a dependency,
// in plan input order.
func (g *TaskGraph) DependentsOf(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Roots returns the ids of tasks with no dependencies, in plan input order.
func (g *TaskGraph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.tasks[id].DependsOn) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Len returns the number of tasks in the graph.
func (g *TaskGraph) Len() int {
	return len(g.order)
}
