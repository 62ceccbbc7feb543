package agent

import (
	"context"
	"sync"
)

// MockResponse is what MockAgent returns when no response is forced: a clean
// verdict in the requested JSON shape.
const MockResponse = `{"riskLevel":"low","findings":[],"summary":"Mock analysis: no issues reported.","recommendations":[],"confidence":80}`

// MockAgent returns predefined responses without making API calls. It is
// used by tests and by the "mock" provider for offline runs.
type MockAgent struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	last     Request
}

// NewMockAgent creates a new mock agent
func NewMockAgent() *MockAgent {
	return &MockAgent{response: MockResponse}
}

// SetResponse forces a specific response from the agent
func (m *MockAgent) SetResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	m.err = nil
}

// SetError makes every call fail with err.
func (m *MockAgent) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Analyze ran.
func (m *MockAgent) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent prompt pair.
func (m *MockAgent) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Analyze implements Agent. It honors ctx cancellation like a real client.
func (m *MockAgent) Analyze(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.calls++
	m.last = Request{System: systemPrompt, User: userPrompt, MaxTokens: maxTokens}
	resp, err := m.response, m.err
	m.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}
