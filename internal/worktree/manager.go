// Package worktree supplies git-worktree-backed execution workspaces: each
// task runs on its own branch in its own checkout, and a successful task's
// branch is merged back into the base branch on release.
package worktree

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/planrun/planrun/internal/coordinator"
)

// Config configures the worktree manager.
type Config struct {
	RepoPath   string // Absolute path to the git repository
	BaseBranch string // Branch to fork from and merge into (e.g. "main")
	Dir        string // Directory under the repo for worktrees (default ".worktrees")
}

// Manager creates and releases git worktrees. It implements the
// coordinator's WorkspaceProvisioner interface.
type Manager struct {
	cfg Config
	// Serializes merges; concurrent git operations on the main checkout
	// fight over the index lock.
	mergeMu sync.Mutex
}

// NewManager creates a worktree manager.
func NewManager(cfg Config) *Manager {
	if cfg.Dir == "" {
		cfg.Dir = ".worktrees"
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	return &Manager{cfg: cfg}
}

func (m *Manager) git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w (output: %s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Provision creates a worktree on a fresh task branch forked from the base
// branch.
func (m *Manager) Provision(ctx context.Context, taskID string) (*coordinator.Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	branch := fmt.Sprintf("task/%s", taskID)
	path := filepath.Join(m.cfg.RepoPath, m.cfg.Dir, taskID)

	if _, err := m.git(m.cfg.RepoPath, "worktree", "add", "-b", branch, path, m.cfg.BaseBranch); err != nil {
		return nil, fmt.Errorf("failed to create worktree: %w", err)
	}

	return &coordinator.Workspace{
		TaskID: taskID,
		Path:   path,
		Branch: branch,
	}, nil
}

// Release disposes of a workspace. On success the task branch is merged
// into the base branch first; a merge conflict keeps the branch around for
// inspection and is returned as an error. On failure the worktree and
// branch are discarded.
func (m *Manager) Release(ws *coordinator.Workspace, success bool) error {
	if !success {
		return m.forceRemove(ws)
	}

	if err := m.merge(ws); err != nil {
		// Keep the branch; remove only the checkout
		if _, rmErr := m.git(m.cfg.RepoPath, "worktree", "remove", "--force", ws.Path); rmErr != nil {
			return fmt.Errorf("%w (additionally failed to remove worktree: %v)", err, rmErr)
		}
		return err
	}

	return m.remove(ws)
}

// merge commits any outstanding work on the task branch and merges it into
// the base branch, probing for conflicts with merge-tree first.
func (m *Manager) merge(ws *coordinator.Workspace) error {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	// Commit whatever the task left in its worktree
	if out, _ := m.git(ws.Path, "status", "--porcelain"); strings.TrimSpace(out) != "" {
		if _, err := m.git(ws.Path, "add", "-A"); err != nil {
			return err
		}
		if _, err := m.git(ws.Path, "commit", "-m", fmt.Sprintf("task %s", ws.TaskID)); err != nil {
			return err
		}
	}

	if _, err := m.git(m.cfg.RepoPath, "checkout", m.cfg.BaseBranch); err != nil {
		return fmt.Errorf("failed to checkout base branch: %w", err)
	}

	// Dry-run merge; merge-tree exits non-zero or prints CONFLICT markers
	// when the branches collide
	out, err := m.git(m.cfg.RepoPath, "merge-tree", "--write-tree", m.cfg.BaseBranch, ws.Branch)
	if err != nil || strings.Contains(out, "CONFLICT") {
		files := parseConflictFiles(out)
		if len(files) > 0 {
			return fmt.Errorf("merge conflict on branch %q: %s", ws.Branch, strings.Join(files, ", "))
		}
		return fmt.Errorf("merge conflict on branch %q", ws.Branch)
	}

	if _, err := m.git(m.cfg.RepoPath, "merge", "--no-ff", ws.Branch); err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}
	return nil
}

// parseConflictFiles extracts conflicting paths from merge-tree output.
func parseConflictFiles(output string) []string {
	var files []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "CONFLICT") && strings.Contains(line, "in ") {
			parts := strings.Split(line, "in ")
			files = append(files, strings.TrimSpace(parts[len(parts)-1]))
		}
	}
	return files
}

// remove deletes the worktree and its branch, escalating to force flags
// only when the polite forms fail.
func (m *Manager) remove(ws *coordinator.Workspace) error {
	var errs []string

	if _, err := m.git(m.cfg.RepoPath, "worktree", "remove", ws.Path); err != nil {
		if _, ferr := m.git(m.cfg.RepoPath, "worktree", "remove", "--force", ws.Path); ferr != nil {
			errs = append(errs, ferr.Error())
		}
	}
	if _, err := m.git(m.cfg.RepoPath, "branch", "-d", ws.Branch); err != nil {
		if _, ferr := m.git(m.cfg.RepoPath, "branch", "-D", ws.Branch); ferr != nil {
			errs = append(errs, ferr.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m *Manager) forceRemove(ws *coordinator.Workspace) error {
	var errs []string

	if _, err := m.git(m.cfg.RepoPath, "worktree", "remove", "--force", ws.Path); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := m.git(m.cfg.RepoPath, "branch", "-D", ws.Branch); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("force cleanup errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Prune cleans up stale worktree metadata left by prior crashed runs.
func (m *Manager) Prune() error {
	if _, err := m.git(m.cfg.RepoPath, "worktree", "prune"); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}
	return nil
}
