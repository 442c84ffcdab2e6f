// Package main is the entry point for the taskforge-replay CLI.
// A standalone tool for forensic analysis of recorded session logs.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openclaw/taskforge/internal/replay"
)

// Build-time variables
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	args := os.Args[1:]

	// Parse flags
	verbosity := 0 // 0=normal, 1=-v, 2=-vv
	noInteractive := false
	liveMode := false
	var costSpecs []string
	var paths []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-vv":
			verbosity = 2
		case args[i] == "-v" || args[i] == "--verbose":
			if verbosity < 1 {
				verbosity = 1
			}
		case args[i] == "--no-pager":
			noInteractive = true
		case args[i] == "-f" || args[i] == "--follow" || args[i] == "--live":
			liveMode = true
		case args[i] == "--cost":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "error: --cost requires a value (model:input,output)\n")
				os.Exit(1)
			}
			i++
			costSpecs = append(costSpecs, args[i])
		case strings.HasPrefix(args[i], "--cost="):
			costSpecs = append(costSpecs, strings.TrimPrefix(args[i], "--cost="))
		case args[i] == "-h" || args[i] == "--help":
			printUsage()
			os.Exit(0)
		case args[i] == "--version":
			fmt.Printf("taskforge-replay version %s (commit: %s, built: %s)\n", version, commit, buildTime)
			os.Exit(0)
		case !strings.HasPrefix(args[i], "-"):
			paths = append(paths, args[i])
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[i])
			os.Exit(1)
		}
	}

	if len(paths) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Parse cost specs into options
	opts, err := parseCostSpecs(costSpecs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Live mode only works with a single file
	if liveMode {
		if len(paths) != 1 {
			fmt.Fprintf(os.Stderr, "error: --follow only works with a single session file\n")
			os.Exit(1)
		}
		// Check it's a file, not a directory
		info, err := os.Stat(paths[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if info.IsDir() {
			fmt.Fprintf(os.Stderr, "error: --follow requires a file, not a directory\n")
			os.Exit(1)
		}

		r := replay.New(os.Stdout, verbosity, opts...)
		if err := r.ReplayFileLive(paths[0]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Expand directories to session files
	sessionFiles, err := expandPaths(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(sessionFiles) == 0 {
		fmt.Fprintf(os.Stderr, "error: no session files found\n")
		os.Exit(1)
	}

	// Create multi-session replayer
	r := replay.NewMulti(os.Stdout, verbosity, opts...)

	// Use interactive pager when stdout is a TTY and not disabled
	if !noInteractive && isTerminal(os.Stdout) {
		if err := r.ReplayFilesInteractive(sessionFiles); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := r.ReplayFiles(sessionFiles); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// parseCostSpecs parses cost specifications into replay options.
func parseCostSpecs(specs []string) ([]replay.Option, error) {
	var opts []replay.Option
	for _, spec := range specs {
		model, inPrice, outPrice, err := parseCostSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid --cost %q: %w", spec, err)
		}
		opts = append(opts, replay.WithModelPricing(model, inPrice, outPrice))
	}
	return opts, nil
}

// parseCostSpec parses "model:input,output" format.
func parseCostSpec(spec string) (string, float64, float64, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return "", 0, 0, fmt.Errorf("expected model:input,output format")
	}
	model := parts[0]
	if model == "" {
		return "", 0, 0, fmt.Errorf("model name cannot be empty")
	}

	prices := strings.Split(parts[1], ",")
	if len(prices) != 2 {
		return "", 0, 0, fmt.Errorf("expected input,output prices")
	}

	inPrice, err := strconv.ParseFloat(strings.TrimSpace(prices[0]), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid input price: %w", err)
	}
	outPrice, err := strconv.ParseFloat(strings.TrimSpace(prices[1]), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid output price: %w", err)
	}

	return model, inPrice, outPrice, nil
}

func printUsage() {
	fmt.Println(`taskforge-replay - Forensic analysis tool for session logs

Usage:
  taskforge-replay [options] <session.jsonl>...
  taskforge-replay [options] <directory>
  taskforge-replay -f <session.jsonl>     # Live mode

Arguments:
  <session.jsonl>   One or more session log files
  <directory>       Directory containing session logs (*.jsonl)

Options:
  -f, --follow      Live mode - watch file for changes and reload
  -v, --verbose     Show generated code, sandbox output, and judge verdicts
  -vv               Very verbose - show full prompts, responses, tokens
  --cost MODEL:IN,OUT  Model pricing (per 1M tokens). Repeatable.
                       Example: --cost claude-sonnet-4:3,15 --cost gpt-4o-mini:0.15,0.6
  --no-pager        Disable interactive pager (for piping)
  --version         Show version
  -h, --help        Show this help

Examples:
  taskforge-replay session.jsonl
  taskforge-replay -v session1.jsonl session2.jsonl
  taskforge-replay -vv session.jsonl     # Full LLM details
  taskforge-replay ~/.taskforge/sessions/   # All .jsonl files in directory
  taskforge-replay --no-pager session.jsonl | grep escalate
  taskforge-replay -f session.jsonl      # Watch a running session
  taskforge-replay --cost claude-sonnet-4:3,15 session.jsonl
  taskforge-replay --cost=claude-sonnet-4:3,15 --cost=gpt-4o-mini:0.15,0.6 session.jsonl

Navigation (interactive mode):
  ↑/↓, j/k          Scroll line by line
  PgUp/PgDn         Scroll by page
  g/G               Jump to top/bottom
  f                 Follow (jump to bottom, useful in live mode)
  q, Esc            Quit`)
}

// expandPaths takes file paths and directories and returns all session log files.
func expandPaths(paths []string) ([]string, error) {
	var files []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}

		if info.IsDir() {
			// Find all .jsonl files in directory
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, fmt.Errorf("cannot read directory %s: %w", p, err)
			}
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
					files = append(files, filepath.Join(p, entry.Name()))
				}
			}
		} else {
			files = append(files, p)
		}
	}

	return files, nil
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
