package config

// DefaultConfig returns the built-in defaults: four concurrent tasks, no
// per-task timeout, worktrees and retry off until opted in.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 4,
		DBPath:      "", // Resolved to ~/.planrun/history.db by the CLI when empty
		Worktrees: WorktreeConfig{
			Enabled:    false,
			BaseBranch: "main",
			Dir:        ".worktrees",
		},
		Retry: RetryConfig{
			Enabled:         false,
			InitialInterval: "100ms",
			MaxInterval:     "10s",
			MaxElapsedTime:  "2m",
		},
	}
}
