package graph

import "fmt"

// Kind classifies a task. It is informational only; scheduling never
// looks at it.
type Kind int

const (
	KindFeature Kind = iota
	KindChore
	KindBug
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFeature:
		return "feature"
	case KindChore:
		return "chore"
	case KindBug:
		return "bug"
	}
	return "unknown"
}

// ParseKind converts a plan-file kind string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "feature":
		return KindFeature, nil
	case "chore":
		return KindChore, nil
	case "bug":
		return KindBug, nil
	}
	return KindFeature, fmt.Errorf("unknown task kind %q", s)
}

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusPending   Status = iota // Waiting for dependencies
	StatusReady                   // Dependencies satisfied, admitted to a wave
	StatusRunning                 // Currently executing
	StatusCompleted               // Finished successfully
	StatusFailed                  // Runner reported failure or timeout
	StatusBlocked                 // Will never run: failed ancestor or cancelled run
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	}
	return "unknown"
}

// Terminal reports whether a task in this status will never change state again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusBlocked
}

// Task represents one unit of work in a plan.
//
// Identity and edges are fixed at construction; only Status changes during a
// run, and only through the coordinator's transition function.
type Task struct {
	ID          string   // Unique identifier within the plan
	Kind        Kind     // Informational classification
	ResourceKey string   // Shared scope; equal non-empty keys never run concurrently
	DependsOn   []string // Task IDs that must complete before this task starts
	Optional    bool     // Tolerates upstream failure; own failure does not block dependents
	Status      Status
}

func cloneTask(t *Task) *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return &cp
}
