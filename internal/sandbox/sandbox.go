// Package sandbox executes generated shell snippets and reports what
// happened as an observation: output, failure state, and the shape of
// the working directory afterwards.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Observation is what the runner saw after executing a snippet.
// A non-empty Error means the snippet failed; Result still carries
// whatever was printed before the failure.
type Observation struct {
	Result    string        // stdout, with [stderr] lines appended on success
	Error     string        // failure description, empty on success
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
	Cwd       string   // working directory after the run
	Listing   []string // sorted names in the working directory after the run
}

// Failed reports whether the observed run should be treated as a failure.
func (o Observation) Failed() bool {
	return o.Error != ""
}

// Runner executes shell snippets. Execution problems are folded into
// the returned observation so callers can judge them like any other
// outcome.
type Runner interface {
	// Run executes a snippet and returns the observation.
	Run(ctx context.Context, code string) Observation

	// Reset clears the working directory.
	Reset() error

	// Workdir returns the directory snippets run in.
	Workdir() string
}

// LocalConfig configures a local runner.
type LocalConfig struct {
	// Workdir is the directory snippets run in. Created if missing.
	Workdir string

	// Timeout bounds a single run. Zero means 120 seconds.
	Timeout time.Duration

	// MaxOutputBytes bounds captured output. Zero means 100000.
	MaxOutputBytes int
}

// Local runs snippets directly on the host via sh -c.
type Local struct {
	workdir        string
	timeout        time.Duration
	maxOutputBytes int
}

// NewLocal creates a local runner rooted at cfg.Workdir.
func NewLocal(cfg LocalConfig) (*Local, error) {
	workdir := cfg.Workdir
	if workdir == "" {
		workdir, _ = os.Getwd()
		if workdir == "" {
			workdir = os.TempDir()
		}
	}
	if !filepath.IsAbs(workdir) {
		abs, err := filepath.Abs(workdir)
		if err == nil {
			workdir = abs
		}
	}
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workdir: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	maxOutputBytes := cfg.MaxOutputBytes
	if maxOutputBytes == 0 {
		maxOutputBytes = 100_000
	}

	return &Local{
		workdir:        workdir,
		timeout:        timeout,
		maxOutputBytes: maxOutputBytes,
	}, nil
}

// Workdir returns the directory snippets run in.
func (r *Local) Workdir() string { return r.workdir }

// Run executes a snippet via sh -c inside the working directory.
func (r *Local) Run(ctx context.Context, code string) Observation {
	if strings.TrimSpace(code) == "" {
		return r.observe(Observation{
			Error:    "empty command",
			ExitCode: 1,
		})
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", code)
	cmd.Dir = r.workdir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	obs := r.buildObservation(stdout.String(), stderr.String(), err, runCtx)
	obs.Duration = duration
	return r.observe(obs)
}

// buildObservation folds command results and failures into one record.
func (r *Local) buildObservation(stdoutStr, stderrStr string, err error, ctx context.Context) Observation {
	obs := Observation{Result: stdoutStr}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			obs.Error = fmt.Sprintf("command timed out after %.0f seconds", r.timeout.Seconds())
			obs.ExitCode = 124
			obs.TimedOut = true
			return r.truncate(obs)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			obs.ExitCode = exitErr.ExitCode()
			obs.Error = strings.TrimSpace(stderrStr)
			if obs.Error == "" {
				obs.Error = fmt.Sprintf("exit code %d", obs.ExitCode)
			}
			return r.truncate(obs)
		}
		obs.Error = "failed to execute command: " + err.Error()
		obs.ExitCode = 1
		return r.truncate(obs)
	}

	// Warnings on stderr from a successful run stay visible.
	if stderrStr != "" {
		var parts []string
		if obs.Result != "" {
			parts = append(parts, obs.Result)
		}
		for _, line := range strings.Split(strings.TrimSpace(stderrStr), "\n") {
			parts = append(parts, "[stderr] "+line)
		}
		obs.Result = strings.Join(parts, "\n")
	}

	return r.truncate(obs)
}

// truncate bounds the captured output.
func (r *Local) truncate(obs Observation) Observation {
	if len(obs.Result) > r.maxOutputBytes {
		obs.Result = obs.Result[:r.maxOutputBytes] +
			fmt.Sprintf("\n\n... Output truncated at %d bytes.", r.maxOutputBytes)
		obs.Truncated = true
	}
	if len(obs.Error) > r.maxOutputBytes {
		obs.Error = obs.Error[:r.maxOutputBytes] +
			fmt.Sprintf("\n\n... Output truncated at %d bytes.", r.maxOutputBytes)
		obs.Truncated = true
	}
	return obs
}

// observe fills in the post-run state of the working directory.
func (r *Local) observe(obs Observation) Observation {
	obs.Cwd = r.workdir
	entries, err := os.ReadDir(r.workdir)
	if err != nil {
		return obs
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	obs.Listing = names
	return obs
}

// Reset removes everything inside the working directory, keeping the
// directory itself.
func (r *Local) Reset() error {
	entries, err := os.ReadDir(r.workdir)
	if err != nil {
		return fmt.Errorf("failed to read workdir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(r.workdir, e.Name())); err != nil {
			return fmt.Errorf("failed to clear workdir: %w", err)
		}
	}
	return nil
}
