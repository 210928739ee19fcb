package coordinator

import (
	"context"

	"github.com/planrun/planrun/internal/graph"
)

// Outcome is the result classification a Runner reports for one task.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeTimeout
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	}
	return "unknown"
}

// Result is what a Runner returns for one task execution.
type Result struct {
	Outcome Outcome
	Detail  string // Runner-specific output excerpt, for reporting
	Err     error  // Underlying error for Failure/Timeout, may be nil
}

// Runner executes the actual work for a task. The coordinator treats it as
// a black box: it never inspects task content, only the returned Result.
// ws is the task's provisioned workspace, or nil when no provisioner is
// configured.
type Runner interface {
	Run(ctx context.Context, task *graph.Task, ws *Workspace) Result
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task *graph.Task, ws *Workspace) Result

func (f RunnerFunc) Run(ctx context.Context, task *graph.Task, ws *Workspace) Result {
	return f(ctx, task, ws)
}

// Reporter receives every status transition, synchronously, as it happens.
// Implementations must be safe for concurrent use; transitions for
// different tasks arrive from different goroutines.
type Reporter interface {
	OnTransition(taskID string, from, to graph.Status, reason string)
}

// MultiReporter fans a transition out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) OnTransition(taskID string, from, to graph.Status, reason string) {
	for _, r := range m {
		r.OnTransition(taskID, from, to, reason)
	}
}

// Workspace is an isolated execution context for one task.
type Workspace struct {
	TaskID string
	Path   string // Working directory the task executes in
	Branch string // Provisioner-specific handle (e.g. a git branch), may be empty
}

// WorkspaceProvisioner supplies isolated execution contexts. Release is
// told whether the task succeeded so the provisioner can decide between
// integrating and discarding the workspace.
type WorkspaceProvisioner interface {
	Provision(ctx context.Context, taskID string) (*Workspace, error)
	Release(ws *Workspace, success bool) error
}
