// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Run          RunCmd          `cmd:"" help:"Run a goal to completion"`
	Plan         PlanCmd         `cmd:"" help:"Decompose a goal and print the plan without executing it"`
	Reset        ResetCmd        `cmd:"" help:"Clear the workspace scratch directory"`
	Library      LibraryCmd      `cmd:"" help:"Manage the stored action library"`
	Capabilities CapabilitiesCmd `cmd:"" help:"List registered capabilities"`
	Models       ModelsCmd       `cmd:"" help:"List known models and their providers"`
	Sessions     SessionsCmd     `cmd:"" help:"List recorded sessions"`
	Replay       ReplayCmd       `cmd:"" help:"Replay a session for forensic analysis"`
	Version      VersionCmd      `cmd:"" help:"Show version information"`

	Debug bool `help:"Enable debug logging" env:"TASKFORGE_DEBUG"`
}

// RunCmd executes a goal.
type RunCmd struct {
	Goal      []string `arg:"" help:"Goal to accomplish, in plain language"`
	Config    string   `short:"c" help:"Config file path" type:"path"`
	Workspace string   `short:"w" help:"Working directory for task execution" type:"path"`
	JSON      bool     `help:"Print the final result as JSON"`
}

// PlanCmd decomposes a goal without executing it.
type PlanCmd struct {
	Goal      []string `arg:"" help:"Goal to accomplish, in plain language"`
	Config    string   `short:"c" help:"Config file path" type:"path"`
	Workspace string   `short:"w" help:"Working directory the plan should assume" type:"path"`
	JSON      bool     `help:"Print the plan as JSON"`
}

// ResetCmd clears the workspace scratch directory.
type ResetCmd struct {
	Config    string `short:"c" help:"Config file path" type:"path"`
	Workspace string `short:"w" help:"Working directory to clear" type:"path"`
	Force     bool   `short:"f" help:"Skip the confirmation prompt"`
}

// LibraryCmd groups action library management.
type LibraryCmd struct {
	List   LibraryListCmd   `cmd:"" default:"1" help:"List stored actions"`
	Show   LibraryShowCmd   `cmd:"" help:"Show a stored action's code"`
	Search LibrarySearchCmd `cmd:"" help:"Search stored actions by description"`
	Rm     LibraryRmCmd     `cmd:"" help:"Remove a stored action"`
}

// LibraryListCmd lists stored actions with their descriptions.
type LibraryListCmd struct {
	Config string `short:"c" help:"Config file path" type:"path"`
}

// LibraryShowCmd prints one stored action.
type LibraryShowCmd struct {
	Name   string `arg:"" help:"Action name"`
	Config string `short:"c" help:"Config file path" type:"path"`
}

// LibrarySearchCmd searches stored actions by description text.
type LibrarySearchCmd struct {
	Query  []string `arg:"" help:"Search text"`
	TopK   int      `short:"k" default:"10" help:"Number of matches to show"`
	Config string   `short:"c" help:"Config file path" type:"path"`
}

// LibraryRmCmd removes a stored action.
type LibraryRmCmd struct {
	Name   string `arg:"" help:"Action name"`
	Config string `short:"c" help:"Config file path" type:"path"`
}

// CapabilitiesCmd lists the registered capabilities.
type CapabilitiesCmd struct {
	Config string `short:"c" help:"Config file path" type:"path"`
}

// ModelsCmd lists models from the catwalk catalog.
type ModelsCmd struct {
	Provider string `arg:"" optional:"" help:"Restrict to one provider (e.g. anthropic, openai)"`
}

// SessionsCmd lists recorded sessions, newest first.
type SessionsCmd struct {
	Config string `short:"c" help:"Config file path" type:"path"`
	Limit  int    `short:"n" default:"20" help:"Number of sessions to show"`
}

// ReplayCmd replays sessions for analysis.
type ReplayCmd struct {
	Session []string `arg:"" help:"Session files, directories, or session IDs"`
	Config  string   `short:"c" help:"Config file path (resolves bare session IDs)" type:"path"`
	Verbose int      `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool     `help:"Disable the interactive pager"`
	Follow  bool     `short:"f" help:"Watch a single session file and reload on change"`
	Cost    []string `help:"Model pricing: model:input,output (per 1M tokens). Repeatable." placeholder:"MODEL:IN,OUT"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
