// Package plan loads task plans from YAML files and turns them into the
// core task model. Graph-level validation (duplicates, dangling references,
// cycles) happens later in graph.Build; the loader only checks what the
// graph cannot see, like missing ids and unknown kinds.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/planrun/planrun/internal/graph"
)

// TaskSpec is one task entry in a plan file.
type TaskSpec struct {
	ID        string   `yaml:"id"`
	Kind      string   `yaml:"kind,omitempty"`     // feature (default), chore, bug
	Resource  string   `yaml:"resource,omitempty"` // Shared scope key; empty means unconstrained
	DependsOn []string `yaml:"depends_on,omitempty"`
	Optional  bool     `yaml:"optional,omitempty"`
	Command   string   `yaml:"command,omitempty"` // Shell command for the exec runner
}

// File is the top-level structure of a plan file.
type File struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// Plan is a loaded plan: core tasks in file order, plus the exec commands
// keyed by task id. Commands stay outside the Task because the core treats
// task content as opaque.
type Plan struct {
	Tasks    []*graph.Task
	Commands map[string]string
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	return p, nil
}

// Parse parses plan file contents.
func Parse(data []byte) (*Plan, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("plan contains no tasks")
	}

	p := &Plan{
		Tasks:    make([]*graph.Task, 0, len(f.Tasks)),
		Commands: make(map[string]string),
	}

	for i, spec := range f.Tasks {
		if spec.ID == "" {
			return nil, fmt.Errorf("task %d has no id", i)
		}

		kind, err := graph.ParseKind(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", spec.ID, err)
		}

		p.Tasks = append(p.Tasks, &graph.Task{
			ID:          spec.ID,
			Kind:        kind,
			ResourceKey: spec.Resource,
			DependsOn:   spec.DependsOn,
			Optional:    spec.Optional,
			Status:      graph.StatusPending,
		})

		if spec.Command != "" {
			p.Commands[spec.ID] = spec.Command
		}
	}

	return p, nil
}
