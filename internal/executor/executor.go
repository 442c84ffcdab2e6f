// Package executor drives one task at a time through a bounded
// generate, execute, judge, repair loop. Every collaborator failure
// consumes attempt budget; the loop always terminates in done,
// escalate, or failed.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openclaw/taskforge/internal/graph"
	"github.com/openclaw/taskforge/internal/library"
	"github.com/openclaw/taskforge/internal/llm"
	"github.com/openclaw/taskforge/internal/logging"
	"github.com/openclaw/taskforge/internal/protocol"
	"github.com/openclaw/taskforge/internal/registry"
	"github.com/openclaw/taskforge/internal/sandbox"
	"github.com/openclaw/taskforge/internal/session"
)

const defaultMaxAttempts = 3

// Status is the terminal state of one task execution.
type Status string

const (
	StatusDone     Status = "done"     // judged successful
	StatusEscalate Status = "escalate" // environment insufficiency, needs replanning
	StatusFailed   Status = "failed"   // attempt budget exhausted
)

// Outcome reports how a task execution ended.
type Outcome struct {
	Status      Status
	Attempts    int
	ReturnValue string
	Code        string
	Diagnosis   string // set on escalate, feeds the replan
}

// ClassifyFunc decides whether a failed attempt is a local code defect
// or a missing environment prerequisite. Injectable so tests can force
// either route deterministically.
type ClassifyFunc func(ctx context.Context, name, description, code string, obs sandbox.Observation, critique string) (protocol.Classification, error)

// Executor owns the per-task state machine. It talks to the model for
// generation and judgment, to the sandbox for execution, and to the
// action library for storing successful results.
type Executor struct {
	provider llm.Provider
	runner   sandbox.Runner
	lib      *library.Library
	reg      *registry.Registry
	log      *logging.Logger

	// Optional per-stage providers; nil falls back to provider.
	judgeProvider   llm.Provider
	analyzeProvider llm.Provider

	maxAttempts    int
	scoreThreshold float64

	Classify ClassifyFunc

	session   *session.Session
	sessions  *session.Manager
	publisher *session.Publisher
}

func New(provider llm.Provider, runner sandbox.Runner, lib *library.Library, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.New()
	}
	e := &Executor{
		provider:    provider,
		runner:      runner,
		lib:         lib,
		log:         log.WithComponent("executor"),
		maxAttempts: defaultMaxAttempts,
	}
	e.Classify = e.classifyWithModel
	return e
}

// SetMaxAttempts bounds the repair loop. Values below 1 are ignored.
func (e *Executor) SetMaxAttempts(n int) {
	if n > 0 {
		e.maxAttempts = n
	}
}

// SetScoreThreshold raises the bar a passing verdict must also clear.
func (e *Executor) SetScoreThreshold(v float64) {
	e.scoreThreshold = v
}

// SetJudgeProvider routes judge calls to a separate provider, letting
// a different profile evaluate results than produced them.
func (e *Executor) SetJudgeProvider(p llm.Provider) {
	e.judgeProvider = p
}

// SetAnalyzeProvider routes failure classification to a separate
// provider.
func (e *Executor) SetAnalyzeProvider(p llm.Provider) {
	e.analyzeProvider = p
}

// SetRegistry makes registered capabilities callable: a node whose
// kind names one runs through it instead of the sandbox.
func (e *Executor) SetRegistry(reg *registry.Registry) {
	e.reg = reg
}

// SetSession attaches a session for event logging.
func (e *Executor) SetSession(sess *session.Session, mgr *session.Manager) {
	e.session = sess
	e.sessions = mgr
}

// SetPublisher attaches a best-effort event publisher.
func (e *Executor) SetPublisher(pub *session.Publisher) {
	e.publisher = pub
}

// RunNode executes the named task to a terminal state. On success the
// node is marked done and its action is offered to the library. A
// non-nil error is reserved for faults that must abort the run, such
// as library corruption; ordinary failures come back as an Outcome.
func (e *Executor) RunNode(ctx context.Context, g *graph.Graph, name string) (*Outcome, error) {
	node, ok := g.Node(name)
	if !ok {
		return nil, fmt.Errorf("unknown task %q", name)
	}

	ctx, span := startNodeSpan(ctx, node.Name, node.Kind)
	start := time.Now()
	e.log.NodeStart(node.Name, node.Kind)
	e.logNodeStart(node)

	outcome, err := e.runNode(ctx, g, node)
	if err != nil {
		endNodeSpan(span, "error", 0, err)
		return nil, err
	}

	duration := time.Since(start)
	e.log.NodeComplete(node.Name, duration, string(outcome.Status))
	e.logNodeEnd(node, outcome, duration)
	endNodeSpan(span, string(outcome.Status), outcome.Attempts, nil)
	return outcome, nil
}

func (e *Executor) runNode(ctx context.Context, g *graph.Graph, node *graph.Node) (*Outcome, error) {
	if c := e.capability(node); c != nil {
		return e.runCapability(ctx, g, node, c)
	}

	attempts := 0

	// GENERATE. Unusable responses consume budget like any other
	// failed attempt.
	code, invocation, err := e.generate(ctx, g, node, attempts+1)
	for err != nil {
		attempts++
		e.log.Warn("generation attempt unusable", map[string]interface{}{
			"task":    node.Name,
			"attempt": attempts,
			"error":   err.Error(),
		})
		if attempts >= e.maxAttempts {
			return &Outcome{Status: StatusFailed, Attempts: attempts}, nil
		}
		code, invocation, err = e.generate(ctx, g, node, attempts+1)
	}

	for {
		// EXECUTE
		obs := e.execute(ctx, node, code, invocation, attempts+1)
		returnValue := protocol.ExtractReturn(obs.Result)

		// JUDGE
		verdict, jerr := e.judge(ctx, node, code, obs, returnValue, attempts+1)
		if jerr == nil && verdict.Pass && verdict.Score >= e.scoreThreshold {
			node.MarkDone(returnValue)
			outcome := &Outcome{
				Status:      StatusDone,
				Attempts:    attempts + 1,
				ReturnValue: returnValue,
				Code:        code,
			}
			if err := e.store(node, code); err != nil {
				if errors.Is(err, library.ErrCorrupt) {
					return nil, err
				}
				e.log.Warn("could not store action", map[string]interface{}{
					"task":  node.Name,
					"error": err.Error(),
				})
			}
			return outcome, nil
		}

		attempts++
		var critique string
		if jerr != nil {
			critique = "the result could not be evaluated: " + jerr.Error()
		} else {
			critique = verdict.Reasoning
		}

		// ANALYZE. Environment insufficiency escalates immediately
		// instead of burning the remaining budget on rewrites.
		class := e.analyze(ctx, node, code, obs, critique, attempts)
		if class.Type == protocol.ClassReplan {
			e.log.Escalation(node.Name, class.Reasoning)
			e.logEscalate(node, attempts, class)
			return &Outcome{
				Status:    StatusEscalate,
				Attempts:  attempts,
				Code:      code,
				Diagnosis: class.Reasoning,
			}, nil
		}

		if attempts >= e.maxAttempts {
			return &Outcome{Status: StatusFailed, Attempts: attempts, Code: code}, nil
		}

		// AMEND
		newCode, newInvocation, aerr := e.amend(ctx, node, code, obs, critique, attempts+1)
		for aerr != nil {
			attempts++
			e.log.Warn("amendment attempt unusable", map[string]interface{}{
				"task":    node.Name,
				"attempt": attempts,
				"error":   aerr.Error(),
			})
			if attempts >= e.maxAttempts {
				return &Outcome{Status: StatusFailed, Attempts: attempts, Code: code}, nil
			}
			newCode, newInvocation, aerr = e.amend(ctx, node, code, obs, critique, attempts+1)
		}
		code, invocation = newCode, newInvocation
	}
}

// capability resolves the registered capability a node's kind names.
// Shell nodes, and kinds nothing is registered under, stay on the
// sandbox path.
func (e *Executor) capability(node *graph.Node) registry.Capability {
	if e.reg == nil || node.Kind == "" || node.Kind == graph.KindShell {
		return nil
	}
	c := e.reg.Get(node.Kind)
	if c == nil {
		e.log.Warn("kind names no registered capability, running as shell", map[string]interface{}{
			"task": node.Name,
			"kind": node.Kind,
		})
	}
	return c
}

// runCapability drives a capability-backed node: the model supplies
// argument values, the registry runs the call, and the judge decides
// from the returned output. Rejected calls are regenerated with the
// critique folded in; nothing is stored in the library.
func (e *Executor) runCapability(ctx context.Context, g *graph.Graph, node *graph.Node, c registry.Capability) (*Outcome, error) {
	attempts := 0
	critique := ""
	call := ""

	for {
		rawArgs, args, err := e.generateArgs(ctx, g, node, c, critique, attempts+1)
		if err != nil {
			attempts++
			e.log.Warn("argument generation unusable", map[string]interface{}{
				"task":    node.Name,
				"attempt": attempts,
				"error":   err.Error(),
			})
			if attempts >= e.maxAttempts {
				return &Outcome{Status: StatusFailed, Attempts: attempts, Code: call}, nil
			}
			continue
		}
		call = node.Kind + " " + rawArgs

		obs := e.invoke(ctx, node, call, args, attempts+1)
		returnValue := strings.TrimSpace(obs.Result)

		verdict, jerr := e.judge(ctx, node, call, obs, returnValue, attempts+1)
		if jerr == nil && verdict.Pass && verdict.Score >= e.scoreThreshold {
			node.MarkDone(returnValue)
			return &Outcome{
				Status:      StatusDone,
				Attempts:    attempts + 1,
				ReturnValue: returnValue,
				Code:        call,
			}, nil
		}

		attempts++
		if jerr != nil {
			critique = "the result could not be evaluated: " + jerr.Error()
		} else {
			critique = verdict.Reasoning
		}

		class := e.analyze(ctx, node, call, obs, critique, attempts)
		if class.Type == protocol.ClassReplan {
			e.log.Escalation(node.Name, class.Reasoning)
			e.logEscalate(node, attempts, class)
			return &Outcome{
				Status:    StatusEscalate,
				Attempts:  attempts,
				Code:      call,
				Diagnosis: class.Reasoning,
			}, nil
		}

		if attempts >= e.maxAttempts {
			return &Outcome{Status: StatusFailed, Attempts: attempts, Code: call}, nil
		}
	}
}

// generateArgs asks the model for the argument object of a capability
// call. The invocation must be a JSON object to count.
func (e *Executor) generateArgs(ctx context.Context, g *graph.Graph, node *graph.Node, c registry.Capability, critique string, attempt int) (string, map[string]interface{}, error) {
	system, user := CapabilityPrompt(node.Name, node.Description, node.Kind, c.Describe(), dependencyResults(g, node), critique)

	start := time.Now()
	resp, err := e.chat(ctx, system, user)
	if err != nil {
		return "", nil, err
	}

	raw := strings.TrimSpace(protocol.ExtractTag(resp.Content, protocol.TagInvoke))
	var args map[string]interface{}
	if raw == "" {
		err = errors.New("response contains no invocation")
	} else if uerr := json.Unmarshal([]byte(raw), &args); uerr != nil {
		err = fmt.Errorf("invocation is not a JSON object: %v", uerr)
	}
	e.logGenerate(node, attempt, raw, user, resp, time.Since(start), err)
	if err != nil {
		return "", nil, err
	}
	return raw, args, nil
}

// invoke runs the capability and shapes the result like a sandbox
// observation so judgment and classification see one format.
func (e *Executor) invoke(ctx context.Context, node *graph.Node, call string, args map[string]interface{}, attempt int) sandbox.Observation {
	start := time.Now()
	result, err := e.reg.Invoke(ctx, node.Kind, args)

	obs := sandbox.Observation{Duration: time.Since(start)}
	if e.runner != nil {
		obs.Cwd = e.runner.Workdir()
	}
	if err != nil {
		obs.Error = err.Error()
		obs.ExitCode = 1
	} else if result != nil {
		obs.Result = fmt.Sprintf("%v", result)
	}
	e.logExecute(node, attempt, call, obs, obs.Duration)
	return obs
}

// generate asks the model for code and an invocation. Both must be
// present for the response to count.
func (e *Executor) generate(ctx context.Context, g *graph.Graph, node *graph.Node, attempt int) (string, string, error) {
	system, user := GeneratePrompt(node.Name, node.Description, dependencyResults(g, node), node.RelevantCode)

	start := time.Now()
	resp, err := e.chat(ctx, system, user)
	if err != nil {
		return "", "", err
	}

	code := protocol.ExtractCode(resp.Content)
	invocation := strings.TrimSpace(protocol.ExtractTag(resp.Content, protocol.TagInvoke))
	switch {
	case code == "":
		err = errors.New("response contains no code block")
	case invocation == "":
		err = errors.New("response contains no invocation")
	}
	e.logGenerate(node, attempt, code, user, resp, time.Since(start), err)
	if err != nil {
		return "", "", err
	}
	return code, invocation, nil
}

// execute runs code plus its sentinel-wrapped invocation through the
// sandbox. Runtime failures are data for the next step, not errors.
func (e *Executor) execute(ctx context.Context, node *graph.Node, code, invocation string, attempt int) sandbox.Observation {
	source := protocol.WrapInvocation(code, invocation)

	start := time.Now()
	obs := e.runner.Run(ctx, source)
	e.logExecute(node, attempt, invocation, obs, time.Since(start))
	return obs
}

func (e *Executor) judge(ctx context.Context, node *graph.Node, code string, obs sandbox.Observation, returnValue string, attempt int) (protocol.Verdict, error) {
	system, user := JudgePrompt(node.Name, node.Description, code, obs, returnValue)

	start := time.Now()
	resp, err := e.chatWith(ctx, e.judgeProvider, system, user)
	if err != nil {
		return protocol.Verdict{}, err
	}

	verdict, err := protocol.ParseVerdict(resp.Content)
	e.logJudge(node, attempt, verdict, resp, time.Since(start), err)
	if err != nil {
		return protocol.Verdict{}, err
	}
	e.log.Verdict(node.Name, verdict.Pass, verdict.Score)
	return verdict, nil
}

func (e *Executor) amend(ctx context.Context, node *graph.Node, code string, obs sandbox.Observation, critique string, attempt int) (string, string, error) {
	system, user := AmendPrompt(node.Name, node.Description, code, obs, critique)

	start := time.Now()
	resp, err := e.chat(ctx, system, user)
	if err != nil {
		return "", "", err
	}

	newCode := protocol.ExtractCode(resp.Content)
	newInvocation := strings.TrimSpace(protocol.ExtractTag(resp.Content, protocol.TagInvoke))
	switch {
	case newCode == "":
		err = errors.New("response contains no code block")
	case newInvocation == "":
		err = errors.New("response contains no invocation")
	}
	e.logAmend(node, attempt, newCode, resp, time.Since(start), err)
	if err != nil {
		return "", "", err
	}
	return newCode, newInvocation, nil
}

// analyze classifies a failed attempt. Anything unusable from the
// classifier is treated as a code defect so the failure stays local.
func (e *Executor) analyze(ctx context.Context, node *graph.Node, code string, obs sandbox.Observation, critique string, attempt int) protocol.Classification {
	start := time.Now()
	class, err := e.Classify(ctx, node.Name, node.Description, code, obs, critique)
	if err != nil {
		e.log.Warn("failure analysis unusable, treating as code defect", map[string]interface{}{
			"task":  node.Name,
			"error": err.Error(),
		})
		class = protocol.Classification{Type: protocol.ClassAmend, Reasoning: critique}
	}
	e.logAnalyze(node, attempt, class, time.Since(start))
	return class
}

func (e *Executor) classifyWithModel(ctx context.Context, name, description, code string, obs sandbox.Observation, critique string) (protocol.Classification, error) {
	system, user := AnalyzePrompt(name, description, code, obs, critique)
	resp, err := e.chatWith(ctx, e.analyzeProvider, system, user)
	if err != nil {
		return protocol.Classification{}, err
	}
	return protocol.ParseClassification(resp.Content)
}

// store registers a finished action in the library unless its name is
// already taken. The description comes from the annotation inside the
// code, falling back to the task description.
func (e *Executor) store(node *graph.Node, code string) error {
	if e.lib == nil || e.lib.Contains(node.Name) {
		return nil
	}

	description := protocol.ExtractDescription(code)
	if description == "" {
		description = node.Description
	}
	if err := e.lib.Add(node.Name, code, description); err != nil {
		return err
	}
	if argsDoc := protocol.ExtractArgsDoc(code); argsDoc != "" {
		if err := e.lib.SetArgsDoc(node.Name, argsDoc); err != nil {
			e.log.Warn("could not write args doc", map[string]interface{}{
				"action": node.Name,
				"error":  err.Error(),
			})
		}
	}
	e.logStore(node, description)
	return nil
}

func (e *Executor) chat(ctx context.Context, system, user string) (*llm.ChatResponse, error) {
	return e.chatWith(ctx, nil, system, user)
}

func (e *Executor) chatWith(ctx context.Context, p llm.Provider, system, user string) (*llm.ChatResponse, error) {
	if p == nil {
		p = e.provider
	}
	return p.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(system),
			llm.NewUserMessage(user),
		},
	})
}

// dependencyResults collects the completed prerequisites of node in a
// stable order for prompting.
func dependencyResults(g *graph.Graph, node *graph.Node) []DependencyResult {
	var out []DependencyResult
	for _, dep := range g.Dependencies(node.Name) {
		d, ok := g.Node(dep)
		if !ok || !d.Done {
			continue
		}
		out = append(out, DependencyResult{
			Name:        d.Name,
			Description: d.Description,
			ReturnValue: d.ReturnValue,
		})
	}
	return out
}
