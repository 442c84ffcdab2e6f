package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openclaw/taskforge/internal/agent"
	"github.com/openclaw/taskforge/internal/session"
	"github.com/openclaw/taskforge/internal/telemetry"
)

// Run wires the full pipeline and executes the goal.
func (c *RunCmd) Run(cli *CLI) error {
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

	// Ctrl-C cancels the run; the session keeps what happened so far.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("could not set up telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	provider, err := buildProvider(cfg, "")
	if err != nil {
		return err
	}
	plannerProvider, err := optionalProvider(cfg, cfg.Planner.Profile)
	if err != nil {
		return fmt.Errorf("planner profile: %w", err)
	}
	retrieverProvider, err := optionalProvider(cfg, cfg.Retriever.Profile)
	if err != nil {
		return fmt.Errorf("retriever profile: %w", err)
	}
	judgeProvider, err := optionalProvider(cfg, cfg.Executor.JudgeProfile)
	if err != nil {
		return fmt.Errorf("judge profile: %w", err)
	}
	analyzeProvider, err := optionalProvider(cfg, cfg.Executor.AnalyzeProfile)
	if err != nil {
		return fmt.Errorf("analyze profile: %w", err)
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

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	sessions := session.NewManager(store)

	var publisher *session.Publisher
	if cfg.Events.Enabled {
		publisher, err = session.NewPublisher(session.PublisherConfig{
			URL:     cfg.Events.URL,
			Subject: cfg.Events.Subject,
			Logger:  log,
		})
		if err != nil {
			log.Warn("Event publishing disabled", map[string]interface{}{"error": err.Error()})
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	ag, err := agent.New(agent.Options{
		Config:            cfg,
		Provider:          provider,
		Runner:            runner,
		Library:           lib,
		Sessions:          sessions,
		PlannerProvider:   plannerProvider,
		RetrieverProvider: retrieverProvider,
		JudgeProvider:     judgeProvider,
		AnalyzeProvider:   analyzeProvider,
		Registry:          reg,
		Publisher:         publisher,
		Logger:            log,
	})
	if err != nil {
		return err
	}

	result, runErr := ag.Run(ctx, goal)
	if result != nil {
		if err := c.printResult(store, result); err != nil {
			return err
		}
	}
	return runErr
}

// printResult writes the run summary to stdout.
func (c *RunCmd) printResult(store session.Store, result *agent.Result) error {
	if c.JSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println()
	fmt.Printf("status:   %s\n", result.Status)
	if result.Output != "" {
		fmt.Printf("output:   %s\n", result.Output)
	}
	fmt.Printf("tasks:    %d (%d replans)\n", len(result.Tasks), result.Replans)
	fmt.Printf("duration: %s\n", result.Duration.Round(time.Millisecond))
	if fs, ok := store.(*session.FileStore); ok {
		fmt.Printf("replay:   taskforge replay %s\n", fs.Path(result.SessionID))
	} else {
		fmt.Printf("session:  %s\n", result.SessionID)
	}
	return nil
}

// Run clears the workspace scratch directory after confirmation.
func (c *ResetCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	resolveWorkspace(cfg, c.Workspace)

	entries, err := os.ReadDir(cfg.Agent.Workspace)
	if err != nil {
		return fmt.Errorf("could not read workspace: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("workspace %s is already empty\n", cfg.Agent.Workspace)
		return nil
	}

	if !c.Force {
		ok, err := confirm(fmt.Sprintf("Delete %d entries under %s?", len(entries), cfg.Agent.Workspace))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}

	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}
	if err := runner.Reset(); err != nil {
		return fmt.Errorf("could not reset workspace: %w", err)
	}
	fmt.Printf("workspace %s cleared\n", cfg.Agent.Workspace)
	return nil
}
