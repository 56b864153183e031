package llm

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a scriptable Provider for tests and offline demos.
type MockProvider struct {
	mu sync.Mutex

	// Reply is returned by Chat when Err is nil. ReplyFunc takes precedence.
	Reply     string
	ReplyFunc func(req *ChatRequest) (string, error)
	Err       error
	// Delay is waited before answering, honoring ctx cancellation.
	Delay time.Duration
	// NoKey makes Available report false.
	NoKey bool

	calls    int
	requests []*ChatRequest
}

// NewMockProvider returns a mock that answers reply.
func NewMockProvider(reply string) *MockProvider {
	return &MockProvider{Reply: reply}
}

// Chat records the request and returns the scripted answer.
func (m *MockProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	delay, err, reply, fn := m.Delay, m.Err, m.Reply, m.ReplyFunc
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		reply, err = fn(req)
	}
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Content: reply, Model: "mock"}, nil
}

// Name returns "mock".
func (m *MockProvider) Name() string {
	return "mock"
}

// Available reports whether a key is "configured".
func (m *MockProvider) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.NoKey
}

// Set replaces the scripted reply and error.
func (m *MockProvider) Set(reply string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reply, m.Err = reply, err
}

// Calls returns how many times Chat was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, nil if none.
func (m *MockProvider) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}
