package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/planrun/planrun/internal/config"
	"github.com/planrun/planrun/internal/coordinator"
	"github.com/planrun/planrun/internal/events"
	"github.com/planrun/planrun/internal/graph"
	"github.com/planrun/planrun/internal/persistence"
	"github.com/planrun/planrun/internal/plan"
	"github.com/planrun/planrun/internal/runner"
	"github.com/planrun/planrun/internal/scheduler"
	"github.com/planrun/planrun/internal/tui"
	"github.com/planrun/planrun/internal/worktree"
)

// runCmd executes a plan file.
func runCmd(cfg *config.Config) *cobra.Command {
	var (
		concurrency int
		timeout     time.Duration
		dbPath      string
		watch       bool
		worktrees   bool
		retry       bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planPath := args[0]

			p, err := plan.Load(planPath)
			if err != nil {
				return err
			}

			g, err := graph.Build(p.Tasks)
			if err != nil {
				return err
			}

			ix := graph.BuildIndex(g)
			waves, err := scheduler.Plan(g, ix)
			if err != nil {
				return err
			}

			// Flags override config, config overrides defaults
			if !cmd.Flags().Changed("concurrency") {
				concurrency = cfg.Concurrency
			}
			if !cmd.Flags().Changed("timeout") {
				timeout, err = config.ParseDuration(cfg.TaskTimeout)
				if err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("db") {
				dbPath = cfg.DBPath
			}
			if !cmd.Flags().Changed("worktrees") {
				worktrees = cfg.Worktrees.Enabled
			}
			if !cmd.Flags().Changed("retry") {
				retry = cfg.Retry.Enabled
			}

			if dbPath == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("getting home directory: %w", err)
				}
				dbPath = filepath.Join(home, ".planrun", "history.db")
			}

			ctx := cmd.Context()

			store, err := persistence.NewSQLiteStore(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("opening run history: %w", err)
			}
			defer store.Close()

			runID := uuid.NewString()
			if err := store.CreateRun(ctx, runID, planPath, g.Tasks()); err != nil {
				return fmt.Errorf("recording run: %w", err)
			}

			reporters := coordinator.MultiReporter{
				persistence.NewStoreReporter(store, runID),
			}

			var bus *events.Bus
			if watch {
				bus = events.NewBus()
				defer bus.Close()
				reporters = append(reporters, events.NewBusReporter(bus))
			}

			var provisioner coordinator.WorkspaceProvisioner
			if worktrees {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("getting working directory: %w", err)
				}
				mgr := worktree.NewManager(worktree.Config{
					RepoPath:   cwd,
					BaseBranch: cfg.Worktrees.BaseBranch,
					Dir:        cfg.Worktrees.Dir,
				})
				// Stale worktrees from a crashed run would collide with ours
				if err := mgr.Prune(); err != nil {
					log.Printf("WARNING: failed to prune stale worktrees: %v", err)
				}
				provisioner = mgr
			}

			pm := runner.NewProcessManager()

			// The first interrupt stops admitting tasks but waits for
			// running ones; a second interrupt kills their process groups
			// so a hung task cannot wedge the shutdown.
			runDone := make(chan struct{})
			defer close(runDone)
			go func() {
				select {
				case <-ctx.Done():
				case <-runDone:
					return
				}
				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sig)
				select {
				case <-sig:
					log.Println("Second interrupt received, killing running tasks...")
					if err := pm.KillAll(); err != nil {
						log.Printf("Error killing subprocesses: %v", err)
					}
				case <-runDone:
				}
			}()

			var r coordinator.Runner = runner.NewExecRunner(p.Commands, pm)
			if retry {
				policy, err := retryPolicy(cfg.Retry)
				if err != nil {
					return err
				}
				r = runner.NewRetryRunner(r, policy)
			}

			coord := coordinator.New(g, waves, coordinator.Config{
				Concurrency: concurrency,
				TaskTimeout: timeout,
				Provisioner: provisioner,
				Reporter:    reporters,
			})

			var progDone chan error
			if watch {
				prog := tea.NewProgram(tui.New(bus, g.Order()), tea.WithAltScreen())
				progDone = make(chan error, 1)
				go func() {
					_, err := prog.Run()
					progDone <- err
				}()
				bus.Publish(events.RunStartedEvent{
					RunID:     runID,
					Total:     g.Len(),
					Waves:     len(waves),
					Timestamp: time.Now(),
				})
			}

			summary, err := coord.Run(ctx, r)
			if err != nil {
				return err
			}

			if bus != nil {
				bus.Publish(events.RunFinishedEvent{
					RunID:     runID,
					Completed: summary.Completed,
					Failed:    summary.Failed,
					Blocked:   summary.Blocked,
					Success:   summary.Success,
					Cancelled: summary.Cancelled,
					Timestamp: time.Now(),
				})
			}
			if progDone != nil {
				if err := <-progDone; err != nil {
					log.Printf("WARNING: run view exited with error: %v", err)
				}
			}

			// Persist the outcome with a fresh context; ctx is already
			// cancelled when the run was interrupted
			if err := store.FinishRun(context.Background(), runID, summary.Success, summary.Cancelled); err != nil {
				log.Printf("WARNING: failed to finalize run record: %v", err)
			}

			printSummary(g, summary)

			switch {
			case summary.Cancelled:
				return fmt.Errorf("run cancelled")
			case !summary.Success:
				return fmt.Errorf("run finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "max concurrently running tasks")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-task timeout (0 disables)")
	cmd.Flags().StringVar(&dbPath, "db", "", "run-history database path")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "show live progress view")
	cmd.Flags().BoolVar(&worktrees, "worktrees", false, "run each task in its own git worktree")
	cmd.Flags().BoolVar(&retry, "retry", false, "retry failed tasks with exponential backoff")

	return cmd
}

func retryPolicy(rc config.RetryConfig) (runner.RetryPolicy, error) {
	policy := runner.DefaultRetryPolicy()

	var err error
	if policy.InitialInterval, err = overlayDuration(rc.InitialInterval, policy.InitialInterval); err != nil {
		return policy, err
	}
	if policy.MaxInterval, err = overlayDuration(rc.MaxInterval, policy.MaxInterval); err != nil {
		return policy, err
	}
	if policy.MaxElapsedTime, err = overlayDuration(rc.MaxElapsedTime, policy.MaxElapsedTime); err != nil {
		return policy, err
	}
	return policy, nil
}

func overlayDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return config.ParseDuration(s)
}

// printSummary prints the per-task outcome and the overall verdict.
func printSummary(g *graph.TaskGraph, s *coordinator.Summary) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	bold := color.New(color.Bold)

	fmt.Println()
	ids := g.Order()
	sort.SliceStable(ids, func(i, j int) bool {
		// Failures and blocks at the bottom where they are seen last
		return statusRank(s.Statuses[ids[i]]) < statusRank(s.Statuses[ids[j]])
	})

	for _, id := range ids {
		status := s.Statuses[id]
		line := fmt.Sprintf("  %-10s %s", status, id)
		if reason, ok := s.Reasons[id]; ok {
			line += fmt.Sprintf("  (%s)", reason)
		}

		switch status {
		case graph.StatusCompleted:
			green.Println(line)
		case graph.StatusFailed:
			red.Println(line)
		case graph.StatusBlocked:
			yellow.Println(line)
		default:
			fmt.Println(line)
		}
	}

	fmt.Println()
	switch {
	case s.Cancelled:
		yellow.Printf("Run cancelled: %d completed, %d failed, %d blocked\n", s.Completed, s.Failed, s.Blocked)
	case s.Success:
		bold.Printf("Run completed: all %d tasks succeeded\n", s.Completed)
	default:
		red.Printf("Run finished: %d completed, %d failed, %d blocked\n", s.Completed, s.Failed, s.Blocked)
	}
}

func statusRank(s graph.Status) int {
	switch s {
	case graph.StatusCompleted:
		return 0
	case graph.StatusBlocked:
		return 1
	case graph.StatusFailed:
		return 2
	}
	return 3
}
