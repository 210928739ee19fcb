package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/planrun/planrun/internal/coordinator"
	"github.com/planrun/planrun/internal/graph"
)

func TestExecRunnerSuccess(t *testing.T) {
	r := NewExecRunner(map[string]string{"hello": "echo hi"}, nil)

	res := r.Run(context.Background(), &graph.Task{ID: "hello"}, nil)
	if res.Outcome != coordinator.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want success (err: %v)", res.Outcome, res.Err)
	}
	if res.Detail != "hi" {
		t.Errorf("Detail = %q, want %q", res.Detail, "hi")
	}
}

func TestExecRunnerFailure(t *testing.T) {
	r := NewExecRunner(map[string]string{"bad": "exit 3"}, nil)

	res := r.Run(context.Background(), &graph.Task{ID: "bad"}, nil)
	if res.Outcome != coordinator.OutcomeFailure {
		t.Fatalf("Outcome = %v, want failure", res.Outcome)
	}
	if res.Err == nil {
		t.Error("Expected a non-nil error for exit 3")
	}
}

func TestExecRunnerMissingCommand(t *testing.T) {
	r := NewExecRunner(map[string]string{}, nil)

	res := r.Run(context.Background(), &graph.Task{ID: "ghost"}, nil)
	if res.Outcome != coordinator.OutcomeFailure {
		t.Fatalf("Outcome = %v, want failure", res.Outcome)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "ghost") {
		t.Errorf("Error = %v, want mention of the task id", res.Err)
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(map[string]string{"slow": "sleep 5"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := r.Run(ctx, &graph.Task{ID: "slow"}, nil)
	if res.Outcome != coordinator.OutcomeTimeout {
		t.Fatalf("Outcome = %v, want timeout", res.Outcome)
	}
}

func TestExecRunnerWorkspaceDir(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(map[string]string{"where": "pwd"}, nil)

	ws := &coordinator.Workspace{TaskID: "where", Path: dir}
	res := r.Run(context.Background(), &graph.Task{ID: "where"}, ws)
	if res.Outcome != coordinator.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want success (err: %v)", res.Outcome, res.Err)
	}
	// macOS tempdirs resolve through /private; suffix match is enough.
	if !strings.HasSuffix(res.Detail, strings.TrimPrefix(dir, "/private")) {
		t.Errorf("pwd = %q, want workspace dir %q", res.Detail, dir)
	}
}

func TestLastLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"empty", "", 3, ""},
		{"single", "one\n", 3, "one"},
		{"under limit", "a\nb\n", 3, "a\nb"},
		{"over limit", "a\nb\nc\nd\n", 2, "c\nd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastLines(tt.in, tt.n); got != tt.want {
				t.Errorf("lastLines(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
