package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/planrun/planrun/internal/coordinator"
	"github.com/planrun/planrun/internal/graph"
)

// ExecRunner runs a configured shell command per task, in the task's
// workspace when one is provisioned. Exit status maps to the outcome: zero
// is Success, non-zero is Failure, a context deadline is Timeout.
type ExecRunner struct {
	commands map[string]string // task id -> command line
	shell    string
	procs    *ProcessManager
}

// NewExecRunner creates an ExecRunner. commands maps task ids to shell
// command lines; pm may be nil if subprocess tracking is not needed.
func NewExecRunner(commands map[string]string, pm *ProcessManager) *ExecRunner {
	return &ExecRunner{
		commands: commands,
		shell:    "sh",
		procs:    pm,
	}
}

// Run implements coordinator.Runner.
func (r *ExecRunner) Run(ctx context.Context, task *graph.Task, ws *coordinator.Workspace) coordinator.Result {
	cmdline, ok := r.commands[task.ID]
	if !ok || strings.TrimSpace(cmdline) == "" {
		return coordinator.Result{
			Outcome: coordinator.OutcomeFailure,
			Err:     fmt.Errorf("no command configured for task %q", task.ID),
		}
	}

	cmd := newCommand(ctx, r.shell, "-c", cmdline)
	if ws != nil {
		cmd.Dir = ws.Path
	}

	stdout, _, err := runCommand(cmd, r.procs)
	detail := lastLines(string(stdout), 10)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return coordinator.Result{
				Outcome: coordinator.OutcomeTimeout,
				Detail:  detail,
				Err:     ctx.Err(),
			}
		}
		return coordinator.Result{
			Outcome: coordinator.OutcomeFailure,
			Detail:  detail,
			Err:     err,
		}
	}

	return coordinator.Result{
		Outcome: coordinator.OutcomeSuccess,
		Detail:  detail,
	}
}

// lastLines returns at most n trailing non-empty lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
