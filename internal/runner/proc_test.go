package runner

import (
	"context"
	"testing"
	"time"
)

func TestProcessManagerTrackUntrack(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "sh", "-c", "sleep 30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer killProcessGroup(cmd)

	pm.Track(cmd)
	if pm.Count() != 1 {
		t.Errorf("Count = %d after Track, want 1", pm.Count())
	}

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("Count = %d after Untrack, want 0", pm.Count())
	}

	// Tracking an unstarted command is a no-op
	pm.Track(newCommand(context.Background(), "sh", "-c", "true"))
	if pm.Count() != 0 {
		t.Errorf("Count = %d after tracking unstarted command, want 0", pm.Count())
	}
}

// TestProcessManagerKillAll verifies KillAll terminates a tracked
// subprocess tree, children included.
func TestProcessManagerKillAll(t *testing.T) {
	pm := NewProcessManager()

	// The shell spawns a child sleep; killing the group must take out both.
	cmd := newCommand(context.Background(), "sh", "-c", "sleep 30 & wait")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pm.Track(cmd)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected a kill error from Wait")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Process survived KillAll")
	}

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("Count = %d after Untrack, want 0", pm.Count())
	}
}

func TestKillProcessGroupNotStarted(t *testing.T) {
	cmd := newCommand(context.Background(), "sh", "-c", "true")
	if err := killProcessGroup(cmd); err == nil {
		t.Error("killProcessGroup on an unstarted command must fail")
	}
}

// TestRunCommandTracksSubprocess verifies runCommand registers the
// subprocess for its lifetime and removes it afterwards.
func TestRunCommandTracksSubprocess(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "sh", "-c", "echo out")
	stdout, _, err := runCommand(cmd, pm)
	if err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}
	if string(stdout) != "out\n" {
		t.Errorf("stdout = %q, want %q", stdout, "out\n")
	}
	if pm.Count() != 0 {
		t.Errorf("Count = %d after runCommand returned, want 0", pm.Count())
	}
}
