package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/planrun/planrun/internal/events"
	"github.com/planrun/planrun/internal/graph"
)

func sizedModel(t *testing.T, bus *events.Bus, taskIDs []string) Model {
	t.Helper()
	m := New(bus, taskIDs)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func TestViewTitle(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	m := sizedModel(t, bus, []string{"A", "B"})
	updated, _ := m.Update(events.RunStartedEvent{RunID: "r1", Total: 2, Waves: 2})
	m = updated.(Model)

	view := m.View()
	if !strings.Contains(view, "planrun: 2 tasks, 2 waves") {
		t.Errorf("View missing title, got:\n%s", view)
	}
	for _, r := range view {
		if r > 0x2500 && r < 0x2580 {
			continue // lipgloss border runes
		}
		if r == '—' || r == '–' {
			t.Fatalf("View contains non-ASCII dash %q", r)
		}
	}
}

func TestViewTracksTransitions(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	m := sizedModel(t, bus, []string{"A", "B"})

	updated, _ := m.Update(events.TaskTransitionEvent{ID: "A", From: graph.StatusReady, To: graph.StatusRunning})
	m = updated.(Model)
	if !strings.Contains(m.View(), "Running:") {
		t.Error("View missing running count")
	}

	updated, _ = m.Update(events.TaskTransitionEvent{ID: "A", From: graph.StatusRunning, To: graph.StatusFailed, Reason: "exit status 1"})
	m = updated.(Model)
	view := m.View()
	if !strings.Contains(view, "x A") || !strings.Contains(view, "exit status 1") {
		t.Errorf("View missing failed task line, got:\n%s", view)
	}
}

func TestViewFinished(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	m := sizedModel(t, bus, []string{"A"})
	updated, cmd := m.Update(events.RunFinishedEvent{RunID: "r1", Completed: 1, Success: true})
	m = updated.(Model)

	if cmd == nil {
		t.Error("RunFinishedEvent must quit the program")
	}
	if !strings.Contains(m.View(), "Run completed") {
		t.Errorf("View missing verdict, got:\n%s", m.View())
	}
}
