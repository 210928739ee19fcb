package events

import (
	"testing"
	"time"

	"github.com/planrun/planrun/internal/graph"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return nil
	}
}

func TestBusTopicRouting(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 4)
	runCh := bus.Subscribe(TopicRun, 4)

	bus.Publish(TaskTransitionEvent{ID: "A", To: graph.StatusRunning})
	bus.Publish(RunStartedEvent{RunID: "r1", Total: 3, Waves: 2})

	ev := recvEvent(t, taskCh)
	if ev.EventType() != EventTypeTaskTransition || ev.TaskID() != "A" {
		t.Errorf("Task subscriber got %s/%s", ev.EventType(), ev.TaskID())
	}

	ev = recvEvent(t, runCh)
	if ev.EventType() != EventTypeRunStarted {
		t.Errorf("Run subscriber got %s", ev.EventType())
	}

	// The task subscriber must not see run events.
	select {
	case ev := <-taskCh:
		t.Errorf("Task subscriber leaked %s", ev.EventType())
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(4)

	bus.Publish(RunStartedEvent{RunID: "r1"})
	bus.Publish(TaskTransitionEvent{ID: "A", To: graph.StatusCompleted})
	bus.Publish(RunFinishedEvent{RunID: "r1", Success: true})

	wantTypes := []string{EventTypeRunStarted, EventTypeTaskTransition, EventTypeRunFinished}
	for _, want := range wantTypes {
		if got := recvEvent(t, all).EventType(); got != want {
			t.Errorf("EventType = %s, want %s", got, want)
		}
	}
}

// TestBusFullSubscriberDrops verifies a slow subscriber never blocks Publish.
func TestBusFullSubscriberDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Publish(TaskTransitionEvent{ID: "first"})
		bus.Publish(TaskTransitionEvent{ID: "dropped"})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if ev := recvEvent(t, ch); ev.TaskID() != "first" {
		t.Errorf("Buffered event = %s, want first", ev.TaskID())
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicTask, 4)

	bus.Close()
	bus.Close() // Idempotent

	if _, open := <-ch; open {
		t.Error("Subscriber channel still open after Close")
	}

	// Publishing and subscribing after close are safe no-ops.
	bus.Publish(TaskTransitionEvent{ID: "A"})
	if _, open := <-bus.Subscribe(TopicTask, 1); open {
		t.Error("Subscribe after Close returned an open channel")
	}
}

func TestBusReporter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 4)
	rep := NewBusReporter(bus)

	rep.OnTransition("A", graph.StatusReady, graph.StatusRunning, "")

	ev := recvEvent(t, ch)
	tr, ok := ev.(TaskTransitionEvent)
	if !ok {
		t.Fatalf("Event type = %T, want TaskTransitionEvent", ev)
	}
	if tr.ID != "A" || tr.From != graph.StatusReady || tr.To != graph.StatusRunning {
		t.Errorf("Transition = %+v", tr)
	}
	if tr.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}
