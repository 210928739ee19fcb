package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/planrun/planrun/internal/graph"
	"github.com/planrun/planrun/internal/scheduler"
)

// ReasonRunCancelled is the Blocked reason for tasks that never ran because
// the run was cancelled. Distinguished from failure so callers can tell
// "stopped" from "broke".
const ReasonRunCancelled = "run cancelled"

// Config configures a Coordinator.
type Config struct {
	Concurrency int           // Max concurrently running tasks (default 4)
	TaskTimeout time.Duration // Per-task deadline; 0 disables
	Provisioner WorkspaceProvisioner // Optional workspace isolation
	Reporter    Reporter             // Optional transition observer
}

// taskState is the arena entry for one task: the task itself plus its
// mutable status, guarded by a per-task mutex so near-simultaneous runner
// callbacks never lose an update.
type taskState struct {
	mu     sync.Mutex
	task   *graph.Task
	status graph.Status
	reason string
}

func (s *taskState) get() (graph.Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.reason
}

// Coordinator drives tasks through the execution state machine:
//
//	Pending -> Ready -> Running -> {Completed | Failed}
//	Pending -> Blocked
//
// Waves execute in order; within a wave, tasks start in wave order up to
// the concurrency budget, and a freed slot goes to the next task of the
// same wave. Resource locks are held for the duration of Running.
type Coordinator struct {
	cfg    Config
	graph  *graph.TaskGraph
	waves  []scheduler.Wave
	locks  *scheduler.ResourceLockManager
	states map[string]*taskState

	mu      sync.Mutex
	started bool
}

// New creates a Coordinator for a validated graph and its wave plan.
// Every task starts Pending.
func New(g *graph.TaskGraph, waves []scheduler.Wave, cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	states := make(map[string]*taskState, g.Len())
	for _, t := range g.Tasks() {
		t.Status = graph.StatusPending
		states[t.ID] = &taskState{task: t, status: graph.StatusPending}
	}

	return &Coordinator{
		cfg:    cfg,
		graph:  g,
		waves:  waves,
		locks:  scheduler.NewResourceLockManager(),
		states: states,
	}
}

// Summary describes a finished run.
type Summary struct {
	Statuses  map[string]graph.Status
	Reasons   map[string]string // Non-empty reasons only (failures, blocks)
	Completed int
	Failed    int
	Blocked   int
	Cancelled bool
	Success   bool // True when every terminal state is Completed
}

// Run executes the wave plan with the given runner and returns the final
// per-task states. Task failures are not errors: they land in the Summary.
//
// Cancelling ctx stops admitting new tasks; tasks already running are
// waited on, never preempted, and everything not yet started goes to
// Blocked with reason ReasonRunCancelled.
func (c *Coordinator) Run(ctx context.Context, r Runner) (*Summary, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, errors.New("coordinator: run already started")
	}
	c.started = true
	c.mu.Unlock()

	cancelled := false

	for _, wave := range c.waves {
		var eg errgroup.Group
		eg.SetLimit(c.cfg.Concurrency)

		for _, id := range wave {
			if ctx.Err() != nil {
				cancelled = true
				break
			}

			st := c.states[id]
			if reason := c.blockReason(st.task); reason != "" {
				c.transition(id, graph.StatusBlocked, reason)
				continue
			}

			c.transition(id, graph.StatusReady, "")
			task := st.task
			// Go blocks while the budget is exhausted, so submission
			// order is start order within the wave.
			eg.Go(func() error {
				c.execute(ctx, r, task)
				return nil
			})
		}

		_ = eg.Wait()

		if cancelled || ctx.Err() != nil {
			cancelled = true
			break
		}
	}

	if cancelled {
		c.blockPending()
	}

	return c.summary(cancelled), nil
}

// blockReason returns a non-empty reason when some dependency of t is
// terminal but not tolerable. A dependency is satisfied when it completed,
// or when it is terminal in any state and either side of the edge is
// optional: an optional dependency's failure does not block dependents,
// and an optional dependent tolerates its dependencies' failures.
// Propagation therefore stops at tolerant tasks; their own outcome governs
// what happens further downstream.
func (c *Coordinator) blockReason(t *graph.Task) string {
	for _, depID := range t.DependsOn {
		dep := c.states[depID]
		status, _ := dep.get()

		if status == graph.StatusCompleted {
			continue
		}
		if status.Terminal() && (dep.task.Optional || t.Optional) {
			continue
		}
		return fmt.Sprintf("dependency %q %s", depID, status)
	}
	return ""
}

// execute runs one admitted task through Running to a terminal state.
func (c *Coordinator) execute(ctx context.Context, r Runner, task *graph.Task) {
	// Admission stops at cancellation, even for tasks already in the wave.
	if ctx.Err() != nil {
		c.transition(task.ID, graph.StatusBlocked, ReasonRunCancelled)
		return
	}

	c.locks.Acquire(task.ResourceKey)
	defer c.locks.Release(task.ResourceKey)

	c.transition(task.ID, graph.StatusRunning, "")

	var ws *Workspace
	if c.cfg.Provisioner != nil {
		var err error
		ws, err = c.cfg.Provisioner.Provision(ctx, task.ID)
		if err != nil {
			c.transition(task.ID, graph.StatusFailed, fmt.Sprintf("workspace: %v", err))
			return
		}
	}

	// Running tasks are waited on across cancellation, so the runner's
	// context is detached from the run's cancel signal and carries only
	// the per-task deadline.
	runCtx := context.WithoutCancel(ctx)
	cancel := func() {}
	if c.cfg.TaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, c.cfg.TaskTimeout)
	}
	res := r.Run(runCtx, task, ws)
	cancel()

	timedOut := res.Outcome == OutcomeTimeout || errors.Is(runCtx.Err(), context.DeadlineExceeded)
	success := res.Outcome == OutcomeSuccess && !timedOut

	if ws != nil {
		if err := c.cfg.Provisioner.Release(ws, success); err != nil {
			log.Printf("WARNING: releasing workspace for task %q: %v", task.ID, err)
		}
	}

	switch {
	case timedOut:
		c.transition(task.ID, graph.StatusFailed, failureReason(res, "timeout"))
	case success:
		c.transition(task.ID, graph.StatusCompleted, "")
	default:
		c.transition(task.ID, graph.StatusFailed, failureReason(res, "failure"))
	}
}

func failureReason(res Result, fallback string) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	if res.Detail != "" {
		return res.Detail
	}
	return fallback
}

// blockPending marks every task still Pending as Blocked. Called after the
// in-flight wave has drained on a cancelled run.
func (c *Coordinator) blockPending() {
	for _, id := range c.graph.Order() {
		if status, _ := c.states[id].get(); status == graph.StatusPending {
			c.transition(id, graph.StatusBlocked, ReasonRunCancelled)
		}
	}
}

// transition is the single writer for task status. Every change flows
// through here and is reported synchronously.
func (c *Coordinator) transition(id string, to graph.Status, reason string) {
	st := c.states[id]

	st.mu.Lock()
	from := st.status
	st.status = to
	st.reason = reason
	st.task.Status = to
	st.mu.Unlock()

	if c.cfg.Reporter != nil {
		c.cfg.Reporter.OnTransition(id, from, to, reason)
	}
}

// Status returns the current status of a task.
func (c *Coordinator) Status(id string) (graph.Status, bool) {
	st, ok := c.states[id]
	if !ok {
		return graph.StatusPending, false
	}
	status, _ := st.get()
	return status, true
}

func (c *Coordinator) summary(cancelled bool) *Summary {
	s := &Summary{
		Statuses:  make(map[string]graph.Status, len(c.states)),
		Reasons:   make(map[string]string),
		Cancelled: cancelled,
		Success:   true,
	}

	for id, st := range c.states {
		status, reason := st.get()
		s.Statuses[id] = status
		if reason != "" {
			s.Reasons[id] = reason
		}

		switch status {
		case graph.StatusCompleted:
			s.Completed++
		case graph.StatusFailed:
			s.Failed++
			s.Success = false
		case graph.StatusBlocked:
			s.Blocked++
			s.Success = false
		default:
			// Non-terminal after a run means the plan was interrupted.
			s.Success = false
		}
	}

	return s
}
