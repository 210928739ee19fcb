package graph

import (
	"fmt"
	"strings"
)

// DuplicateIDError reports two tasks sharing the same id.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate task id %q", e.ID)
}

// UnresolvedReferenceError reports a dependency on a task that is not part
// of the plan.
type UnresolvedReferenceError struct {
	TaskID  string // The referencing task
	Missing string // The id it depends on
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.Missing)
}

// CyclicDependencyError reports a dependency cycle. Cycle holds the full
// path, first id repeated at the end (e.g. [A B A]).
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}
