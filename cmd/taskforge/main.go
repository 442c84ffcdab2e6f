// Package main is the entry point for the taskforge CLI.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Pick up API keys from a local .env if present.
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("taskforge"),
		kong.Description("An autonomous agent that plans, executes, and repairs shell tasks."),
		kong.UsageOnError(),
		kongVars(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("taskforge version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
