// Package llm provides the language-model collaborator interface and
// its provider implementations.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a blocking chat call.
type ChatRequest struct {
	Messages  []Message
	MaxTokens int
}

// ChatResponse is the collaborator's reply.
type ChatResponse struct {
	Content      string
	Thinking     string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Provider is the language-model collaborator: one synchronous chat
// operation. Any error is a hard failure of the current step.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// RetryConfig controls retry behavior for transient provider errors.
type RetryConfig struct {
	MaxRetries  int
	InitBackoff time.Duration
	MaxBackoff  time.Duration
}

// FantasyConfig configures a fantasy-backed provider.
type FantasyConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Retry     RetryConfig
}

// Validate checks that required fields are present.
func (c *FantasyConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	return nil
}

// ApplyDefaults fills in defaults for unset fields.
func (c *FantasyConfig) ApplyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
}

// NewSystemMessage builds a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// NewUserMessage builds a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
