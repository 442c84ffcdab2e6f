package sandbox

import (
	"context"
	"sync"
)

// MockRunner is a scripted runner for testing. Queued observations are
// returned one per run, then the fixed observation applies.
type MockRunner struct {
	mu          sync.Mutex
	observation Observation
	queue       []Observation
	runs        []string
	resets      int
	workdir     string
}

// NewMockRunner creates a mock runner.
func NewMockRunner() *MockRunner {
	return &MockRunner{workdir: "/mock/workdir"}
}

// SetObservation sets the fixed observation returned once the queue is
// drained.
func (m *MockRunner) SetObservation(obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observation = obs
}

// EnqueueObservation appends an observation returned by exactly one run.
func (m *MockRunner) EnqueueObservation(obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, obs)
}

// Run records the snippet and replays the scripted observation.
func (m *MockRunner) Run(ctx context.Context, code string) Observation {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, code)
	if len(m.queue) > 0 {
		obs := m.queue[0]
		m.queue = m.queue[1:]
		return obs
	}
	return m.observation
}

// Reset counts resets.
func (m *MockRunner) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

// Workdir returns the configured fake working directory.
func (m *MockRunner) Workdir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workdir
}

// Runs returns all snippets passed to Run, in order.
func (m *MockRunner) Runs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.runs...)
}

// LastRun returns the most recent snippet, or the empty string.
func (m *MockRunner) LastRun() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return ""
	}
	return m.runs[len(m.runs)-1]
}

// Resets returns how many times Reset was called.
func (m *MockRunner) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}
