package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/planrun/planrun/internal/config"
	"github.com/planrun/planrun/internal/graph"
	"github.com/planrun/planrun/internal/plan"
	"github.com/planrun/planrun/internal/scheduler"
)

// planCmd validates a plan file and prints its wave layering without
// executing anything.
func planCmd(_ *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Validate a plan and print its execution waves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.Load(args[0])
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

			bold := color.New(color.Bold)
			dim := color.New(color.Faint)

			bold.Printf("%d tasks, %d waves\n\n", g.Len(), len(waves))

			for i, wave := range waves {
				bold.Printf("wave %d:\n", i+1)
				for _, id := range wave {
					t, _ := g.Task(id)
					var notes []string
					if t.ResourceKey != "" {
						notes = append(notes, "resource="+t.ResourceKey)
					}
					if len(t.DependsOn) > 0 {
						notes = append(notes, "after "+strings.Join(t.DependsOn, ","))
					}
					if t.Optional {
						notes = append(notes, "optional")
					}

					fmt.Printf("  %s", id)
					if len(notes) > 0 {
						dim.Printf("  (%s)", strings.Join(notes, ", "))
					}
					fmt.Println()
				}
			}

			return nil
		},
	}
}
