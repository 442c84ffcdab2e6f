package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/openclaw/taskforge/internal/graph"
	"github.com/openclaw/taskforge/internal/planner"
)

// Run decomposes the goal and prints the resulting plan. Nothing is
// executed and nothing is stored.
func (c *PlanCmd) Run(cli *CLI) error {
	goal := strings.TrimSpace(strings.Join(c.Goal, " "))
	if goal == "" {
		return fmt.Errorf("goal cannot be empty")
	}

	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	resolveWorkspace(cfg, c.Workspace)

	log := newLogger(cli.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := optionalProvider(cfg, cfg.Planner.Profile)
	if err != nil {
		return fmt.Errorf("planner profile: %w", err)
	}
	if provider == nil {
		provider, err = buildProvider(cfg, "")
		if err != nil {
			return err
		}
	}

	runner, err := newRunner(cfg)
	if err != nil {
		return fmt.Errorf("could not set up workspace: %w", err)
	}

	lib, err := openLibrary(cfg, log)
	if err != nil {
		return err
	}
	defer lib.Close()

	reg := buildRegistry(cfg, runner, log)

	env := planner.Environment{WorkingDir: runner.Workdir()}
	if entries, err := os.ReadDir(env.WorkingDir); err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			env.Listing = append(env.Listing, name)
		}
		sort.Strings(env.Listing)
	}
	if reg.Len() > 0 {
		env.Capabilities = reg.Describe()
	}

	g := graph.New()
	order, err := planner.New(provider, log).Decompose(ctx, g, goal, lib.Descriptions(), env)
	if err != nil {
		return err
	}
	return c.print(g, order)
}

type plannedTask struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Kind         string   `json:"kind"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func (c *PlanCmd) print(g *graph.Graph, order []string) error {
	tasks := make([]plannedTask, 0, len(order))
	for _, name := range order {
		node, _ := g.Node(name)
		tasks = append(tasks, plannedTask{
			Name:         name,
			Description:  node.Description,
			Kind:         node.Kind,
			Dependencies: g.Dependencies(name),
		})
	}

	if c.JSON {
		out, err := json.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	for i, task := range tasks {
		fmt.Printf("%2d. %s", i+1, task.Name)
		if task.Kind != "" && task.Kind != graph.KindShell {
			fmt.Printf(" [%s]", task.Kind)
		}
		fmt.Println()
		if task.Description != "" {
			fmt.Printf("    %s\n", task.Description)
		}
		if len(task.Dependencies) > 0 {
			fmt.Printf("    after: %s\n", strings.Join(task.Dependencies, ", "))
		}
	}
	return nil
}
