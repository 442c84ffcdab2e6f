// Package agent wires the planner, retriever, executor, and stores
// into the goal-to-completion run loop: decompose the goal into a
// task graph, execute tasks in dependency order, and replan around
// tasks the executor escalates.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/openclaw/taskforge/internal/config"
	"github.com/openclaw/taskforge/internal/executor"
	"github.com/openclaw/taskforge/internal/graph"
	"github.com/openclaw/taskforge/internal/library"
	"github.com/openclaw/taskforge/internal/llm"
	"github.com/openclaw/taskforge/internal/logging"
	"github.com/openclaw/taskforge/internal/planner"
	"github.com/openclaw/taskforge/internal/registry"
	"github.com/openclaw/taskforge/internal/retriever"
	"github.com/openclaw/taskforge/internal/sandbox"
	"github.com/openclaw/taskforge/internal/session"
)

const defaultMaxReplans = 3

// Options assembles an Agent. Provider, Runner, Library, and Sessions
// are required; per-stage providers default to Provider.
type Options struct {
	Config   *config.Config
	Provider llm.Provider
	Runner   sandbox.Runner
	Library  *library.Library
	Sessions *session.Manager

	// Optional per-stage providers, for running planning or judgment
	// against a different profile.
	PlannerProvider   llm.Provider
	RetrieverProvider llm.Provider
	JudgeProvider     llm.Provider
	AnalyzeProvider   llm.Provider

	Registry  *registry.Registry
	Publisher *session.Publisher
	Logger    *logging.Logger
}

// Agent owns one goal-execution pipeline. Safe for sequential runs;
// the action library is the only state shared across them.
type Agent struct {
	cfg       *config.Config
	runner    sandbox.Runner
	lib       *library.Library
	reg       *registry.Registry
	planner   *planner.Planner
	retriever *retriever.Retriever
	executor  *executor.Executor
	sessions  *session.Manager
	publisher *session.Publisher
	log       *logging.Logger

	maxReplans int
}

func New(opts Options) (*Agent, error) {
	if opts.Provider == nil {
		return nil, errors.New("agent requires a chat provider")
	}
	if opts.Runner == nil {
		return nil, errors.New("agent requires a sandbox runner")
	}
	if opts.Library == nil {
		return nil, errors.New("agent requires an action library")
	}
	if opts.Sessions == nil {
		return nil, errors.New("agent requires a session manager")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	log := opts.Logger
	if log == nil {
		log = logging.New()
	}

	p := planner.New(orDefault(opts.PlannerProvider, opts.Provider), log)
	r := retriever.New(opts.Library, orDefault(opts.RetrieverProvider, opts.Provider), log, cfg.Retriever.TopK)

	e := executor.New(opts.Provider, opts.Runner, opts.Library, log)
	e.SetMaxAttempts(cfg.Executor.MaxAttempts)
	e.SetScoreThreshold(cfg.Executor.ScoreThreshold)
	if opts.Registry != nil {
		e.SetRegistry(opts.Registry)
	}
	if opts.JudgeProvider != nil {
		e.SetJudgeProvider(opts.JudgeProvider)
	}
	if opts.AnalyzeProvider != nil {
		e.SetAnalyzeProvider(opts.AnalyzeProvider)
	}
	if opts.Publisher != nil {
		e.SetPublisher(opts.Publisher)
	}

	maxReplans := cfg.Agent.MaxReplans
	if maxReplans <= 0 {
		maxReplans = defaultMaxReplans
	}

	return &Agent{
		cfg:        cfg,
		runner:     opts.Runner,
		lib:        opts.Library,
		reg:        opts.Registry,
		planner:    p,
		retriever:  r,
		executor:   e,
		sessions:   opts.Sessions,
		publisher:  opts.Publisher,
		log:        log.WithComponent("agent"),
		maxReplans: maxReplans,
	}, nil
}

func orDefault(p, fallback llm.Provider) llm.Provider {
	if p != nil {
		return p
	}
	return fallback
}

// TaskResult records one terminal executor outcome, in the order the
// run produced them. A task that escalates and later succeeds appears
// twice.
type TaskResult struct {
	Name        string          `json:"name"`
	Status      executor.Status `json:"status"`
	Attempts    int             `json:"attempts"`
	ReturnValue string          `json:"return_value,omitempty"`
}

// Result summarizes a run.
type Result struct {
	SessionID string        `json:"session_id"`
	Status    string        `json:"status"`
	Output    string        `json:"output,omitempty"` // return value of the last completed task
	Tasks     []TaskResult  `json:"tasks"`
	Replans   int           `json:"replans"`
	Duration  time.Duration `json:"duration"`
}

// Run executes goal to completion. The returned error is non-nil for
// every ending other than full completion and names what stopped the
// run; Result is always populated for reporting.
func (a *Agent) Run(ctx context.Context, goal string) (*Result, error) {
	start := time.Now()
	sess, err := a.sessions.Create(goal)
	if err != nil {
		return nil, fmt.Errorf("could not create session: %w", err)
	}

	log := a.log.WithRunID(sess.ID[:8])
	log.RunStart(goal)
	a.executor.SetSession(sess, a.sessions)
	a.record(sess, session.Event{Type: session.EventRunStart, Content: goal})

	result := &Result{SessionID: sess.ID}
	g := graph.New()

	order, err := a.planner.Decompose(ctx, g, goal, a.lib.Descriptions(), a.environment())
	if err != nil {
		return a.finish(log, sess, result, start, session.StatusFailed, fmt.Errorf("planning failed: %w", err))
	}
	a.record(sess, session.Event{
		Type:    session.EventPlan,
		Content: goal,
		Meta:    &session.EventMeta{Tasks: order},
	})

	for len(order) > 0 {
		if err := ctx.Err(); err != nil {
			return a.finish(log, sess, result, start, session.StatusFailed, err)
		}

		var escalated *executor.Outcome
		var escalatedTask string
		for _, name := range order {
			node, ok := g.Node(name)
			if !ok {
				return a.finish(log, sess, result, start, session.StatusFailed, fmt.Errorf("scheduled task %q missing from graph", name))
			}
			a.retrieve(ctx, sess, node)

			outcome, err := a.executor.RunNode(ctx, g, name)
			if err != nil {
				return a.finish(log, sess, result, start, session.StatusFailed, err)
			}
			result.Tasks = append(result.Tasks, TaskResult{
				Name:        name,
				Status:      outcome.Status,
				Attempts:    outcome.Attempts,
				ReturnValue: outcome.ReturnValue,
			})

			if outcome.Status == executor.StatusDone {
				continue
			}
			if outcome.Status == executor.StatusFailed {
				return a.finish(log, sess, result, start, session.StatusFailed,
					fmt.Errorf("task %q exhausted its attempt budget (%d attempts)", name, outcome.Attempts))
			}
			escalated, escalatedTask = outcome, name
			break
		}
		if escalated == nil {
			break
		}

		if result.Replans >= a.maxReplans {
			return a.finish(log, sess, result, start, session.StatusEscalated,
				fmt.Errorf("task %q still blocked after %d replans: %s", escalatedTask, result.Replans, escalated.Diagnosis))
		}
		result.Replans++

		candidates := a.candidateDescriptions(ctx, escalated.Diagnosis)
		order, err = a.planner.Replan(ctx, g, escalated.Diagnosis, escalatedTask, candidates, a.environment())
		if err != nil {
			return a.finish(log, sess, result, start, session.StatusFailed, fmt.Errorf("replanning failed: %w", err))
		}
		a.record(sess, session.Event{
			Type:    session.EventReplan,
			Node:    escalatedTask,
			Content: escalated.Diagnosis,
			Meta:    &session.EventMeta{Tasks: order, Anchor: escalatedTask},
		})
	}

	result.Output = finalReturnValue(result)
	sess.Result = result.Output
	return a.finish(log, sess, result, start, session.StatusComplete, nil)
}

// Reset clears the sandbox workspace between independent runs.
func (a *Agent) Reset() error {
	if err := a.runner.Reset(); err != nil {
		return fmt.Errorf("could not reset workspace: %w", err)
	}
	a.log.Info("workspace reset", map[string]interface{}{
		"workdir": a.runner.Workdir(),
	})
	return nil
}

// retrieve attaches reusable library code to the node. Retrieval is an
// optimization; any failure degrades to generating from scratch.
// Capability-backed nodes take no code, so there is nothing to reuse.
func (a *Agent) retrieve(ctx context.Context, sess *session.Session, node *graph.Node) {
	if a.lib.Count() == 0 {
		return
	}
	if node.Kind != "" && node.Kind != graph.KindShell {
		return
	}

	candidates, err := a.retriever.FindCandidates(ctx, node.Description)
	if err != nil {
		a.log.Warn("candidate search failed", map[string]interface{}{
			"task":  node.Name,
			"error": err.Error(),
		})
		return
	}
	if len(candidates) == 0 {
		return
	}

	code, err := a.retriever.SelectBest(ctx, node.Description, candidates)
	if err != nil {
		a.log.Warn("candidate selection failed", map[string]interface{}{
			"task":  node.Name,
			"error": err.Error(),
		})
		return
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	var selected string
	if code != "" {
		for _, c := range candidates {
			if c.Code == code {
				selected = c.Name
				node.RelevantCode = map[string]string{c.Name: code}
				break
			}
		}
	}
	a.record(sess, session.Event{
		Type: session.EventRetrieve,
		Node: node.Name,
		Meta: &session.EventMeta{Candidates: names, Selected: selected},
	})
}

// candidateDescriptions surfaces library actions relevant to a
// diagnosis so the repair plan can lean on stored work.
func (a *Agent) candidateDescriptions(ctx context.Context, diagnosis string) map[string]string {
	if a.lib.Count() == 0 {
		return nil
	}
	candidates, err := a.retriever.FindCandidates(ctx, diagnosis)
	if err != nil {
		a.log.Warn("candidate search failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	out := make(map[string]string, len(candidates))
	for _, c := range candidates {
		out[c.Name] = c.Description
	}
	return out
}

// environment snapshots the sandbox workspace for planning prompts.
func (a *Agent) environment() planner.Environment {
	env := planner.Environment{WorkingDir: a.runner.Workdir()}
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
	if a.reg != nil && a.reg.Len() > 0 {
		env.Capabilities = a.reg.Describe()
	}
	return env
}

func (a *Agent) finish(log *logging.Logger, sess *session.Session, result *Result, start time.Time, status string, err error) (*Result, error) {
	result.Status = status
	result.Duration = time.Since(start)

	sess.Status = status
	if err != nil {
		sess.Error = err.Error()
	}
	event := session.Event{
		Type:       session.EventRunEnd,
		Content:    status,
		DurationMs: result.Duration.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	a.record(sess, event)
	log.RunComplete(sess.Goal, result.Duration, status)
	return result, err
}

// record appends an event, persists the session, and publishes. All
// best effort; the run never stops over bookkeeping.
func (a *Agent) record(sess *session.Session, event session.Event) {
	sess.AddEvent(event)
	if err := a.sessions.Update(sess); err != nil {
		a.log.Warn("failed to persist session", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if a.publisher != nil {
		a.publisher.Publish(sess, sess.Events[len(sess.Events)-1])
	}
}

func finalReturnValue(result *Result) string {
	for i := len(result.Tasks) - 1; i >= 0; i-- {
		if result.Tasks[i].Status == executor.StatusDone {
			return result.Tasks[i].ReturnValue
		}
	}
	return ""
}
