// Package retriever finds stored actions worth reusing for a subtask.
// Retrieval is two stage: a similarity search over the action library
// proposes candidates, then the model filters them down to at most one.
// The model's verdict is final; candidates are never reused on score
// alone.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/taskforge/internal/library"
	"github.com/openclaw/taskforge/internal/llm"
	"github.com/openclaw/taskforge/internal/logging"
	"github.com/openclaw/taskforge/internal/protocol"
)

const defaultTopK = 10

// noneAnswer is what the model responds with when no candidate fits.
const noneAnswer = "none"

const selectSystemPrompt = `You review stored shell actions and decide whether one of them already does what a subtask needs. Reuse is only correct when the action's behavior matches the subtask; a partial or thematic match does not count.

Respond with the chosen action's name wrapped in <action></action>. If no action fits, respond with <action>none</action>. Provide nothing else.`

// Candidate is a stored action proposed for reuse.
type Candidate struct {
	Name        string
	Description string
	Code        string
	Score       float64
}

// Retriever pairs the action library with a chat provider.
type Retriever struct {
	lib      *library.Library
	provider llm.Provider
	log      *logging.Logger
	topK     int
}

func New(lib *library.Library, provider llm.Provider, log *logging.Logger, topK int) *Retriever {
	if log == nil {
		log = logging.New()
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Retriever{
		lib:      lib,
		provider: provider,
		log:      log.WithComponent("retriever"),
		topK:     topK,
	}
}

// FindCandidates queries the similarity index for the stored actions
// closest to task. Returns at most topK candidates, fewer when the
// library holds fewer entries, and an empty slice for an empty library.
func (r *Retriever) FindCandidates(ctx context.Context, task string) ([]Candidate, error) {
	matches, err := r.lib.Search(ctx, task, r.topK)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		action, err := r.lib.Get(m.Name)
		if err != nil {
			// Index and metadata are kept consistent by the library;
			// a miss here means it was mutated underneath us.
			return nil, fmt.Errorf("candidate %s: %w", m.Name, err)
		}
		candidates = append(candidates, Candidate{
			Name:        action.Name,
			Description: action.Description,
			Code:        action.Code,
			Score:       m.Score,
		})
	}
	return candidates, nil
}

// SelectBest asks the model to pick at most one candidate for task and
// returns that candidate's code. Returns empty when the candidate set
// is empty, when the model declines all of them, or when its answer
// names something outside the candidate set.
func (r *Retriever) SelectBest(ctx context.Context, task string, candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	resp, err := r.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(selectSystemPrompt),
			llm.NewUserMessage(selectPrompt(task, candidates)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("candidate selection: %w", err)
	}

	name := strings.TrimSpace(protocol.ExtractTag(resp.Content, protocol.TagAction))
	if name == "" || strings.EqualFold(name, noneAnswer) {
		r.log.Debug("no stored action selected", map[string]interface{}{
			"task": task,
		})
		return "", nil
	}
	for _, c := range candidates {
		if c.Name == name {
			r.log.Info("reusing stored action", map[string]interface{}{
				"action": name,
			})
			return c.Code, nil
		}
	}
	r.log.Warn("selection named an unknown action", map[string]interface{}{
		"answer": name,
	})
	return "", nil
}

func selectPrompt(task string, candidates []Candidate) string {
	var sb strings.Builder
	sb.WriteString("Subtask: " + task + "\n\nStored actions:\n")
	for i, c := range candidates {
		sb.WriteString(fmt.Sprintf("\n%d. %s: %s\n", i+1, c.Name, c.Description))
		sb.WriteString("```sh\n" + strings.TrimRight(c.Code, "\n") + "\n```\n")
	}
	return sb.String()
}
