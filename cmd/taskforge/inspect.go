package main

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/taskforge/internal/llm"
)

// Run lists the registered capabilities, builtins plus manifests.
func (c *CapabilitiesCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	resolveWorkspace(cfg, "")

	runner, err := newRunner(cfg)
	if err != nil {
		return err
	}
	reg := buildRegistry(cfg, runner, newLogger(false))

	fmt.Println(reg.Describe())
	fmt.Printf("\n%d capability(ies)\n", reg.Len())
	return nil
}

// Run lists models from the catwalk catalog, optionally for one provider.
func (c *ModelsCmd) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models, err := llm.ListAllModels(ctx)
	if err != nil {
		return fmt.Errorf("could not fetch model catalog: %w", err)
	}

	shown := 0
	for _, m := range models {
		if c.Provider != "" && m.Provider != c.Provider {
			continue
		}
		fmt.Printf("%-45s %-12s ctx=%-8d $%.2f/$%.2f per 1M\n",
			m.ID, m.Provider, m.ContextWindow, m.CostPer1MIn, m.CostPer1MOut)
		shown++
	}
	if shown == 0 {
		if c.Provider != "" {
			return fmt.Errorf("no models found for provider %q", c.Provider)
		}
		fmt.Println("no models found")
	}
	return nil
}
