package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockResponse is a canned reply for MockProvider.
type MockResponse struct {
	Text  string
	Usage Usage
	Err   error
}

// MockProvider is a deterministic Provider for tests and local development.
// It returns canned replies in FIFO order and records all requests. When the
// queue is empty it uses Fallback, or reports the backend as unavailable.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request

	Fallback func(req Request) (string, error)
}

// NewMockProvider creates a MockProvider with the given canned replies.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// NewEchoProvider answers free-text prompts by echoing the student's last
// message. Structured requests fail, so callers take their fallback path.
func NewEchoProvider() *MockProvider {
	m := &MockProvider{}
	m.Fallback = func(req Request) (string, error) {
		if req.Schema != nil {
			return "", &ErrProviderUnavailable{Err: fmt.Errorf("mock provider has no structured output")}
		}
		last := ""
		if n := len(req.Messages); n > 0 {
			last = req.Messages[n-1].Content
		}
		return fmt.Sprintf("Let's work through it together. You asked: %q", last), nil
	}
	return m
}

func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)

	var next *MockResponse
	if len(m.responses) > 0 {
		next = &m.responses[0]
		m.responses = m.responses[1:]
	}
	fallback := m.Fallback
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if next == nil {
		if fallback == nil {
			return nil, &ErrProviderUnavailable{}
		}
		text, err := fallback(req)
		if err != nil {
			return nil, err
		}
		return &Response{Text: text, Model: "mock", StopReason: "end"}, nil
	}
	if next.Err != nil {
		return nil, next.Err
	}
	if req.Schema != nil {
		if err := validateResponse(req.Schema, next.Text); err != nil {
			return nil, err
		}
	}
	return &Response{Text: next.Text, Usage: next.Usage, Model: "mock", StopReason: "end"}, nil
}

func (m *MockProvider) ModelID() string { return "mock" }

// AddResponse appends a canned reply to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of Generate calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request.
func (m *MockProvider) LastCall() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}
