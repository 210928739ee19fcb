package graph

// ResourceIndex groups tasks by non-empty resource key. The per-key lists
// preserve plan input order, which is the deterministic tie-break when the
// scheduler must serialize same-resource tasks that have no explicit
// dependency between them.
//
// Resource exclusivity is an operational constraint ("cannot run at the
// same time"), kept separate from the dependency graph's semantic one
// ("must happen before"); the index lets the scheduler add the synthetic
// ordering without mutating the graph.
type ResourceIndex struct {
	byKey map[string][]string
	keyOf map[string]string
}

// BuildIndex constructs the resource index for a graph.
func BuildIndex(g *TaskGraph) *ResourceIndex {
	ix := &ResourceIndex{
		byKey: make(map[string][]string),
		keyOf: make(map[string]string),
	}
	for _, id := range g.order {
		key := g.tasks[id].ResourceKey
		if key == "" {
			continue
		}
		ix.byKey[key] = append(ix.byKey[key], id)
		ix.keyOf[id] = key
	}
	return ix
}

// ResourceOf returns the resource key of a task. ok is false when the task
// has no resource key (no exclusivity constraint).
func (ix *ResourceIndex) ResourceOf(taskID string) (key string, ok bool) {
	key, ok = ix.keyOf[taskID]
	return key, ok
}

// SiblingsOf returns all tasks sharing a resource key with taskID,
// including taskID itself, in plan input order. Returns nil for tasks
// without a resource key.
func (ix *ResourceIndex) SiblingsOf(taskID string) []string {
	key, ok := ix.keyOf[taskID]
	if !ok {
		return nil
	}
	return append([]string(nil), ix.byKey[key]...)
}
