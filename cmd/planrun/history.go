package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/planrun/planrun/internal/config"
	"github.com/planrun/planrun/internal/graph"
	"github.com/planrun/planrun/internal/persistence"
)

// historyCmd lists recorded runs, optionally with per-task detail.
func historyCmd(cfg *config.Config) *cobra.Command {
	var (
		dbPath string
		limit  int
		tasks  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				dbPath = cfg.DBPath
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

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}

			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)
			yellow := color.New(color.FgYellow)

			for _, r := range runs {
				verdict := "in flight"
				paint := fmt.Printf
				switch {
				case r.FinishedAt == nil:
				case r.Cancelled:
					verdict = "cancelled"
					paint = yellow.Printf
				case r.Success:
					verdict = "ok"
					paint = green.Printf
				default:
					verdict = "failed"
					paint = red.Printf
				}

				paint("%s  %s  %-9s  %d tasks  %s\n",
					r.ID[:8], r.StartedAt.Format("2006-01-02 15:04:05"), verdict, r.Total, r.PlanPath)

				if tasks {
					records, err := store.RunTasks(ctx, r.ID)
					if err != nil {
						return err
					}
					for _, t := range records {
						line := fmt.Sprintf("    %-10s %s", t.Status, t.TaskID)
						if t.Reason != "" {
							line += fmt.Sprintf("  (%s)", t.Reason)
						}
						switch t.Status {
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
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "run-history database path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max runs to list (0 for all)")
	cmd.Flags().BoolVarP(&tasks, "tasks", "t", false, "show per-task outcomes")

	return cmd
}
