// Session event logging for the executor.
package executor

import (
	"time"

	"github.com/openclaw/taskforge/internal/graph"
	"github.com/openclaw/taskforge/internal/llm"
	"github.com/openclaw/taskforge/internal/protocol"
	"github.com/openclaw/taskforge/internal/sandbox"
	"github.com/openclaw/taskforge/internal/session"
)

// record appends an event to the session, persists it, and publishes
// it. All three are best effort; execution never blocks on logging.
func (e *Executor) record(event session.Event) {
	if e.session == nil {
		return
	}
	e.session.AddEvent(event)
	if e.sessions != nil {
		if err := e.sessions.Update(e.session); err != nil {
			e.log.Warn("failed to persist session", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if e.publisher != nil {
		e.publisher.Publish(e.session, e.session.Events[len(e.session.Events)-1])
	}
}

func (e *Executor) logNodeStart(node *graph.Node) {
	e.record(session.Event{
		Type:    session.EventNodeStart,
		Node:    node.Name,
		Content: node.Description,
		Meta:    &session.EventMeta{Kind: node.Kind},
	})
}

func (e *Executor) logNodeEnd(node *graph.Node, outcome *Outcome, duration time.Duration) {
	e.record(session.Event{
		Type:       session.EventNodeEnd,
		Node:       node.Name,
		Attempt:    outcome.Attempts,
		Content:    string(outcome.Status),
		DurationMs: duration.Milliseconds(),
		Meta: &session.EventMeta{
			ReturnValue: outcome.ReturnValue,
		},
	})
}

func (e *Executor) logGenerate(node *graph.Node, attempt int, code, prompt string, resp *llm.ChatResponse, duration time.Duration, err error) {
	event := session.Event{
		Type:       session.EventGenerate,
		Node:       node.Name,
		Attempt:    attempt,
		DurationMs: duration.Milliseconds(),
		Meta: &session.EventMeta{
			Code:      code,
			Model:     resp.Model,
			LatencyMs: duration.Milliseconds(),
			TokensIn:  resp.InputTokens,
			TokensOut: resp.OutputTokens,
			Prompt:    truncateForLog(prompt, 2000),
			Response:  truncateForLog(resp.Content, 2000),
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.record(event)
}

func (e *Executor) logExecute(node *graph.Node, attempt int, invocation string, obs sandbox.Observation, duration time.Duration) {
	event := session.Event{
		Type:       session.EventExecute,
		Node:       node.Name,
		Attempt:    attempt,
		Content:    invocation,
		DurationMs: duration.Milliseconds(),
		Meta: &session.EventMeta{
			ExitCode:    obs.ExitCode,
			Output:      truncateForLog(obs.Result, 2000),
			ReturnValue: protocol.ExtractReturn(obs.Result),
		},
	}
	if obs.Error != "" {
		event.Error = truncateForLog(obs.Error, 2000)
	}
	e.record(event)
}

func (e *Executor) logJudge(node *graph.Node, attempt int, verdict protocol.Verdict, resp *llm.ChatResponse, duration time.Duration, err error) {
	event := session.Event{
		Type:       session.EventJudge,
		Node:       node.Name,
		Attempt:    attempt,
		DurationMs: duration.Milliseconds(),
		Meta: &session.EventMeta{
			Pass:      verdict.Pass,
			Score:     verdict.Score,
			Reasoning: verdict.Reasoning,
			Model:     resp.Model,
			LatencyMs: duration.Milliseconds(),
			TokensIn:  resp.InputTokens,
			TokensOut: resp.OutputTokens,
			Response:  truncateForLog(resp.Content, 2000),
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.record(event)
}

func (e *Executor) logAmend(node *graph.Node, attempt int, code string, resp *llm.ChatResponse, duration time.Duration, err error) {
	event := session.Event{
		Type:       session.EventAmend,
		Node:       node.Name,
		Attempt:    attempt,
		DurationMs: duration.Milliseconds(),
		Meta: &session.EventMeta{
			Code:      code,
			Model:     resp.Model,
			LatencyMs: duration.Milliseconds(),
			TokensIn:  resp.InputTokens,
			TokensOut: resp.OutputTokens,
			Response:  truncateForLog(resp.Content, 2000),
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.record(event)
}

func (e *Executor) logAnalyze(node *graph.Node, attempt int, class protocol.Classification, duration time.Duration) {
	e.record(session.Event{
		Type:       session.EventAnalyze,
		Node:       node.Name,
		Attempt:    attempt,
		Content:    class.Reasoning,
		DurationMs: duration.Milliseconds(),
		Meta: &session.EventMeta{
			Route:     class.Type,
			Reasoning: class.Reasoning,
		},
	})
}

func (e *Executor) logEscalate(node *graph.Node, attempt int, class protocol.Classification) {
	e.record(session.Event{
		Type:    session.EventEscalate,
		Node:    node.Name,
		Attempt: attempt,
		Content: class.Reasoning,
		Meta: &session.EventMeta{
			Route: class.Type,
		},
	})
}

func (e *Executor) logStore(node *graph.Node, description string) {
	e.record(session.Event{
		Type:    session.EventStore,
		Node:    node.Name,
		Content: description,
		Meta: &session.EventMeta{
			Action: node.Name,
		},
	})
}

// truncateForLog caps string length for event payloads.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
