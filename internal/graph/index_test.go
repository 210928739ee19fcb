package graph

import (
	"reflect"
	"testing"
)

func buildTestGraph(t *testing.T, tasks []*Task) *TaskGraph {
	t.Helper()
	g, err := Build(tasks)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func TestResourceIndex(t *testing.T) {
	g := buildTestGraph(t, []*Task{
		{ID: "A", ResourceKey: "db"},
		{ID: "B", ResourceKey: "db"},
		{ID: "C", ResourceKey: "cache"},
		{ID: "D"},
	})
	ix := BuildIndex(g)

	tests := []struct {
		taskID   string
		wantKey  string
		wantOK   bool
		siblings []string
	}{
		{"A", "db", true, []string{"A", "B"}},
		{"B", "db", true, []string{"A", "B"}},
		{"C", "cache", true, []string{"C"}},
		{"D", "", false, nil},
		{"missing", "", false, nil},
	}

	for _, tt := range tests {
		key, ok := ix.ResourceOf(tt.taskID)
		if key != tt.wantKey || ok != tt.wantOK {
			t.Errorf("ResourceOf(%q) = (%q, %v), want (%q, %v)",
				tt.taskID, key, ok, tt.wantKey, tt.wantOK)
		}
		if got := ix.SiblingsOf(tt.taskID); !reflect.DeepEqual(got, tt.siblings) {
			t.Errorf("SiblingsOf(%q) = %v, want %v", tt.taskID, got, tt.siblings)
		}
	}
}

// TestResourceIndexInputOrder verifies sibling lists follow plan input
// order regardless of dependency structure.
func TestResourceIndexInputOrder(t *testing.T) {
	g := buildTestGraph(t, []*Task{
		{ID: "late", ResourceKey: "k", DependsOn: []string{"early"}},
		{ID: "early", ResourceKey: "k"},
	})
	ix := BuildIndex(g)

	if got := ix.SiblingsOf("early"); !reflect.DeepEqual(got, []string{"late", "early"}) {
		t.Errorf("SiblingsOf(early) = %v, want [late early]", got)
	}
}

func TestResourceIndexSiblingsCopy(t *testing.T) {
	g := buildTestGraph(t, []*Task{
		{ID: "A", ResourceKey: "k"},
		{ID: "B", ResourceKey: "k"},
	})
	ix := BuildIndex(g)

	s := ix.SiblingsOf("A")
	s[0] = "mutated"
	if got := ix.SiblingsOf("A"); got[0] != "A" {
		t.Error("SiblingsOf returned aliased slice")
	}
}
