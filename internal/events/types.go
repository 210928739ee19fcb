package events

import (
	"time"

	"github.com/planrun/planrun/internal/graph"
)

// Event is the base interface for all events. The topic an event is
// published under is the segment of its type before the first dot.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicRun  = "run"
	TopicTask = "task"
)

// Event type constants
const (
	EventTypeRunStarted     = "run.started"
	EventTypeRunFinished    = "run.finished"
	EventTypeTaskTransition = "task.transition"
)

// RunStartedEvent is published when a run begins executing its wave plan.
type RunStartedEvent struct {
	RunID     string
	Total     int // Number of tasks in the plan
	Waves     int // Number of waves
	Timestamp time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) TaskID() string    { return "" }

// TaskTransitionEvent is published on every task status change.
type TaskTransitionEvent struct {
	ID        string
	From      graph.Status
	To        graph.Status
	Reason    string
	Timestamp time.Time
}

func (e TaskTransitionEvent) EventType() string { return EventTypeTaskTransition }
func (e TaskTransitionEvent) TaskID() string    { return e.ID }

// RunFinishedEvent is published when every task has reached a terminal
// state or the run was cancelled.
type RunFinishedEvent struct {
	RunID     string
	Completed int
	Failed    int
	Blocked   int
	Success   bool
	Cancelled bool
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) TaskID() string    { return "" }
