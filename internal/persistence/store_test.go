package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/planrun/planrun/internal/graph"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// File-backed per test; shared in-memory stores would bleed rows
	// between tests running in the same process.
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testTasks() []*graph.Task {
	return []*graph.Task{
		{ID: "A", Kind: graph.KindFeature, ResourceKey: "db"},
		{ID: "B", Kind: graph.KindChore, DependsOn: []string{"A"}, Optional: true},
	}
}

func TestStoreRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, "r1", "plan.yaml", testTasks()); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns returned %d runs, want 1", len(runs))
	}
	if runs[0].ID != "r1" || runs[0].PlanPath != "plan.yaml" || runs[0].Total != 2 {
		t.Errorf("Run = %+v", runs[0])
	}
	if runs[0].FinishedAt != nil {
		t.Error("FinishedAt set before FinishRun")
	}

	if err := store.FinishRun(ctx, "r1", true, false); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err = store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if runs[0].FinishedAt == nil {
		t.Error("FinishedAt not set after FinishRun")
	}
	if !runs[0].Success || runs[0].Cancelled {
		t.Errorf("Run outcome = success=%v cancelled=%v, want success", runs[0].Success, runs[0].Cancelled)
	}
}

func TestStoreTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, "r1", "plan.yaml", testTasks()); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	steps := []struct {
		from, to graph.Status
		reason   string
	}{
		{graph.StatusPending, graph.StatusReady, ""},
		{graph.StatusReady, graph.StatusRunning, ""},
		{graph.StatusRunning, graph.StatusFailed, "exit status 1"},
	}
	for _, s := range steps {
		if err := store.RecordTransition(ctx, "r1", "A", s.from, s.to, s.reason); err != nil {
			t.Fatalf("RecordTransition failed: %v", err)
		}
	}

	tasks, err := store.RunTasks(ctx, "r1")
	if err != nil {
		t.Fatalf("RunTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("RunTasks returned %d tasks, want 2", len(tasks))
	}

	// Ordered by task id: A then B.
	a, b := tasks[0], tasks[1]
	if a.TaskID != "A" || a.Status != graph.StatusFailed || a.Reason != "exit status 1" {
		t.Errorf("Task A = %+v", a)
	}
	if a.Kind != graph.KindFeature || a.ResourceKey != "db" {
		t.Errorf("Task A metadata = %+v", a)
	}
	if b.TaskID != "B" || b.Status != graph.StatusPending || !b.Optional || b.Kind != graph.KindChore {
		t.Errorf("Task B = %+v", b)
	}
}

func TestStoreListRunsOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := store.CreateRun(ctx, id, "plan.yaml", testTasks()); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("ListRuns with limit 2 returned %d runs", len(runs))
	}
}

func TestStoreFinishUnknownRun(t *testing.T) {
	store := newTestStore(t)

	if err := store.FinishRun(context.Background(), "missing", true, false); err == nil {
		t.Error("FinishRun on unknown run must fail")
	}
}

func TestStoreDuplicateRunID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, "r1", "plan.yaml", testTasks()); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.CreateRun(ctx, "r1", "plan.yaml", testTasks()); err == nil {
		t.Error("Duplicate run id must fail")
	}
}

// TestMemoryStore exercises the shared-cache in-memory store: both pooled
// connections must see the same data. Kept to a single test; every memory
// store in a process shares one database, so rows would bleed between
// tests using it.
func TestMemoryStore(t *testing.T) {
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateRun(ctx, "mem-r1", "plan.yaml", testTasks()); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.RecordTransition(ctx, "mem-r1", "A", graph.StatusPending, graph.StatusCompleted, ""); err != nil {
		t.Fatalf("RecordTransition failed: %v", err)
	}

	tasks, err := store.RunTasks(ctx, "mem-r1")
	if err != nil {
		t.Fatalf("RunTasks failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Status != graph.StatusCompleted {
		t.Errorf("RunTasks = %+v", tasks)
	}
}

func TestStoreReporter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, "r1", "plan.yaml", testTasks()); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	rep := NewStoreReporter(store, "r1")
	rep.OnTransition("A", graph.StatusPending, graph.StatusReady, "")
	rep.OnTransition("A", graph.StatusReady, graph.StatusRunning, "")
	rep.OnTransition("A", graph.StatusRunning, graph.StatusCompleted, "")

	tasks, err := store.RunTasks(ctx, "r1")
	if err != nil {
		t.Fatalf("RunTasks failed: %v", err)
	}
	if tasks[0].TaskID != "A" || tasks[0].Status != graph.StatusCompleted {
		t.Errorf("Task A = %+v, want completed", tasks[0])
	}
}
