// Package main provides the planrun CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planrun/planrun/internal/config"
)

var version = "0.1.0"

func main() {
	// Signal-aware context: first interrupt stops admitting tasks,
	// running tasks are waited on.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "planrun",
		Short: "Resource-aware task dependency scheduler",
		Long: `planrun executes plans of interdependent tasks.

A plan is a YAML file of tasks with blocking edges and resource keys.
planrun validates the graph, layers it into waves that respect both the
dependencies and resource exclusivity, and executes the waves with a
bounded concurrency budget.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(planCmd(cfg))
	rootCmd.AddCommand(runCmd(cfg))
	rootCmd.AddCommand(historyCmd(cfg))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
