package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/planrun/planrun/internal/events"
	"github.com/planrun/planrun/internal/graph"
)

// Model is the Bubble Tea model for the live run view. It consumes
// transition events from the bus and renders overall progress plus the
// tasks currently running.
type Model struct {
	eventSub <-chan events.Event
	spin     spinner.Model

	order    []string // Task ids in plan input order
	statuses map[string]graph.Status
	reasons  map[string]string

	total    int
	waves    int
	finished bool
	success  bool
	canceled bool

	width    int
	height   int
	quitting bool
}

// New creates the run view. taskIDs fixes the display order; events are
// consumed from the bus's all-topic subscription.
func New(bus *events.Bus, taskIDs []string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StyleRunning

	statuses := make(map[string]graph.Status, len(taskIDs))
	for _, id := range taskIDs {
		statuses[id] = graph.StatusPending
	}

	return Model{
		eventSub: bus.SubscribeAll(256),
		spin:     sp,
		order:    append([]string(nil), taskIDs...),
		statuses: statuses,
		reasons:  make(map[string]string),
		total:    len(taskIDs),
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.eventSub))
}

// waitForEvent returns a command waiting for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case events.RunStartedEvent:
		m.total = msg.Total
		m.waves = msg.Waves
		return m, waitForEvent(m.eventSub)

	case events.TaskTransitionEvent:
		m.statuses[msg.ID] = msg.To
		if msg.Reason != "" {
			m.reasons[msg.ID] = msg.Reason
		}
		return m, waitForEvent(m.eventSub)

	case events.RunFinishedEvent:
		m.finished = true
		m.success = msg.Success
		m.canceled = msg.Cancelled
		return m, tea.Quit
	}

	return m, nil
}

// View renders the run view.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}

	var b strings.Builder

	title := StyleTitle.Render(fmt.Sprintf("planrun: %d tasks, %d waves", m.total, m.waves))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	completed, failed, blocked, running := m.counts()

	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleCompleted.Render(fmt.Sprintf("%d", completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleRunning.Render(fmt.Sprintf("%d", running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleFailed.Render(fmt.Sprintf("%d", failed))))
	b.WriteString(fmt.Sprintf("Blocked:   %s\n", StyleBlocked.Render(fmt.Sprintf("%d", blocked))))
	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-6, 40)
		doneWidth := (completed * barWidth) / m.total
		failWidth := ((failed + blocked) * barWidth) / m.total
		runWidth := (running * barWidth) / m.total
		restWidth := barWidth - doneWidth - failWidth - runWidth

		bar := StyleCompleted.Render(strings.Repeat("=", max(0, doneWidth)))
		bar += StyleFailed.Render(strings.Repeat("!", max(0, failWidth)))
		bar += StyleRunning.Render(strings.Repeat("-", max(0, runWidth)))
		bar += StylePending.Render(strings.Repeat(".", max(0, restWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n\n", bar, completed, m.total))
	}

	for _, id := range m.order {
		switch m.statuses[id] {
		case graph.StatusRunning:
			b.WriteString(fmt.Sprintf("%s %s\n", m.spin.View(), id))
		case graph.StatusFailed:
			line := fmt.Sprintf("x %s", id)
			if reason := m.reasons[id]; reason != "" {
				line += fmt.Sprintf("  (%s)", firstLine(reason))
			}
			b.WriteString(StyleFailed.Render(line))
			b.WriteString("\n")
		}
	}

	if m.finished {
		b.WriteString("\n")
		switch {
		case m.canceled:
			b.WriteString(StyleBlocked.Render("Run cancelled"))
		case m.success:
			b.WriteString(StyleCompleted.Render("Run completed"))
		default:
			b.WriteString(StyleFailed.Render("Run finished with failures"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(StyleHelp.Render("q: quit"))

	return StyleBorder.Width(m.width - 2).Render(b.String())
}

func (m Model) counts() (completed, failed, blocked, running int) {
	for _, status := range m.statuses {
		switch status {
		case graph.StatusCompleted:
			completed++
		case graph.StatusFailed:
			failed++
		case graph.StatusBlocked:
			blocked++
		case graph.StatusRunning:
			running++
		}
	}
	return completed, failed, blocked, running
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
