package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/taskforge/internal/library"
)

// withLibrary opens the configured library, runs fn, and closes it.
func withLibrary(configPath string, fn func(lib *library.Library) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lib, err := openLibrary(cfg, newLogger(false))
	if err != nil {
		return err
	}
	defer lib.Close()
	return fn(lib)
}

// Run lists all stored actions with their descriptions.
func (c *LibraryListCmd) Run() error {
	return withLibrary(c.Config, func(lib *library.Library) error {
		names := lib.Names()
		if len(names) == 0 {
			fmt.Println("library is empty")
			return nil
		}
		descriptions := lib.Descriptions()
		for _, name := range names {
			fmt.Printf("%-30s %s\n", name, descriptions[name])
		}
		fmt.Printf("\n%d action(s)\n", len(names))
		return nil
	})
}

// Run prints one stored action's description, args doc, and code.
func (c *LibraryShowCmd) Run() error {
	return withLibrary(c.Config, func(lib *library.Library) error {
		action, err := lib.Get(c.Name)
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n", action.Name)
		if action.Description != "" {
			fmt.Printf("# %s\n", action.Description)
		}
		if doc := lib.ArgsDoc(action.Name); doc != "" {
			fmt.Printf("# args: %s\n", strings.TrimSpace(doc))
		}
		fmt.Println()
		fmt.Println(action.Code)
		return nil
	})
}

// Run searches stored actions by description text.
func (c *LibrarySearchCmd) Run() error {
	query := strings.TrimSpace(strings.Join(c.Query, " "))
	if query == "" {
		return fmt.Errorf("search text cannot be empty")
	}
	return withLibrary(c.Config, func(lib *library.Library) error {
		matches, err := lib.Search(context.Background(), query, c.TopK)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(matches) == 0 {
			fmt.Println("no matches")
			return nil
		}
		descriptions := lib.Descriptions()
		for _, m := range matches {
			fmt.Printf("%6.3f  %-30s %s\n", m.Score, m.Name, descriptions[m.Name])
		}
		return nil
	})
}

// Run removes a stored action.
func (c *LibraryRmCmd) Run() error {
	return withLibrary(c.Config, func(lib *library.Library) error {
		if err := lib.Remove(c.Name); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", c.Name)
		return nil
	})
}
