package llm

import (
	"context"
	"sync"
)

// MockProvider is a scriptable Provider for tests. Responses are served
// from a FIFO queue when one is present, otherwise from the fixed
// response. ChatFunc, when set, overrides both.
type MockProvider struct {
	mu       sync.Mutex
	response string
	queue    []string
	err      error
	requests []ChatRequest

	// ChatFunc, when non-nil, handles calls directly.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates a mock provider that returns empty responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// SetResponse sets the fixed response returned by every call.
func (m *MockProvider) SetResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = content
}

// SetError makes every call fail with err.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// EnqueueResponse appends a response to the FIFO queue. Queued
// responses are consumed before the fixed response applies.
func (m *MockProvider) EnqueueResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, content)
}

// Chat implements the Provider interface.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.mu.Unlock()
		return m.ChatFunc(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.err != nil {
		return nil, m.err
	}

	content := m.response
	if len(m.queue) > 0 {
		content = m.queue[0]
		m.queue = m.queue[1:]
	}

	return &ChatResponse{
		Content: content,
		Model:   "mock",
	}, nil
}

// LastRequest returns the most recent request, or nil before any call.
func (m *MockProvider) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

// Requests returns a copy of all requests seen so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// CallCount returns the number of Chat calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
