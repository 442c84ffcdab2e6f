// Package planner turns a goal into a task graph and repairs the graph
// when execution hits an obstacle local fixes cannot clear. Both
// operations mutate the shared graph and return the execution order
// derived fresh from the graph afterwards; order is never cached across
// mutations.
package planner

import (
	"context"
	"fmt"

	"github.com/openclaw/taskforge/internal/graph"
	"github.com/openclaw/taskforge/internal/llm"
	"github.com/openclaw/taskforge/internal/logging"
	"github.com/openclaw/taskforge/internal/protocol"
)

// Environment describes the sandbox state the model plans against.
type Environment struct {
	WorkingDir   string
	Listing      []string
	Capabilities string
}

// Planner drives decomposition and replanning through a chat provider.
type Planner struct {
	provider llm.Provider
	log      *logging.Logger
}

func New(provider llm.Provider, log *logging.Logger) *Planner {
	if log == nil {
		log = logging.New()
	}
	return &Planner{
		provider: provider,
		log:      log.WithComponent("planner"),
	}
}

// Decompose asks the model to break goal into subtasks and installs
// them in g. Returns the resulting execution order. When the response
// cannot be parsed the graph is left untouched and an error is
// returned; the caller decides whether to retry or give up.
func (p *Planner) Decompose(ctx context.Context, g *graph.Graph, goal string, actions map[string]string, env Environment) ([]string, error) {
	system, user := DecomposePrompt(goal, actions, env)
	specs, err := p.request(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	if err := g.AddSubgraph(toNodeSpecs(specs)); err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	p.log.PlanApplied(goal, len(specs))
	return g.TopologicalOrder()
}

// Replan asks the model for corrective subtasks and splices them in
// front of failingTask, which gains a dependency on the last subtask of
// the response. Returns the execution order recomputed from the mutated
// graph.
func (p *Planner) Replan(ctx context.Context, g *graph.Graph, diagnosis, failingTask string, candidates map[string]string, env Environment) ([]string, error) {
	system, user := ReplanPrompt(diagnosis, failingTask, candidates, env)
	specs, err := p.request(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("replan %s: %w", failingTask, err)
	}
	if err := g.ExtendFrom(failingTask, toNodeSpecs(specs)); err != nil {
		return nil, fmt.Errorf("replan %s: %w", failingTask, err)
	}
	p.log.Replan(failingTask, len(specs))
	return g.TopologicalOrder()
}

func (p *Planner) request(ctx context.Context, system, user string) ([]protocol.TaskSpec, error) {
	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(system),
			llm.NewUserMessage(user),
		},
	})
	if err != nil {
		return nil, err
	}
	specs, err := protocol.ParseTaskSpecs(resp.Content)
	if err != nil {
		p.log.Warn("unusable planning response", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}
	return specs, nil
}

func toNodeSpecs(specs []protocol.TaskSpec) []graph.NodeSpec {
	out := make([]graph.NodeSpec, len(specs))
	for i, s := range specs {
		out[i] = graph.NodeSpec{
			Name:         s.Name,
			Description:  s.Description,
			Kind:         s.Kind,
			Dependencies: s.Dependencies,
		}
	}
	return out
}
