package config

// WorktreeConfig controls git-worktree workspace isolation.
type WorktreeConfig struct {
	Enabled    bool   `json:"enabled"`
	BaseBranch string `json:"base_branch,omitempty"` // Branch to fork from and merge into
	Dir        string `json:"dir,omitempty"`         // Directory under the repo for worktrees
}

// RetryConfig controls the retry decorator wrapped around the runner.
// Intervals are Go duration strings ("500ms", "2m").
type RetryConfig struct {
	Enabled         bool   `json:"enabled"`
	InitialInterval string `json:"initial_interval,omitempty"`
	MaxInterval     string `json:"max_interval,omitempty"`
	MaxElapsedTime  string `json:"max_elapsed_time,omitempty"`
}

// Config is the top-level run configuration.
type Config struct {
	Concurrency int            `json:"concurrency"`            // Max concurrently running tasks
	TaskTimeout string         `json:"task_timeout,omitempty"` // Per-task deadline, duration string; empty disables
	DBPath      string         `json:"db_path,omitempty"`      // Run-history database location
	Worktrees   WorktreeConfig `json:"worktrees"`
	Retry       RetryConfig    `json:"retry"`
}
