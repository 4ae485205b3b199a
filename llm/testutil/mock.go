// Package testutil provides test doubles for code that calls the llm client.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/taskjournal/llm"
)

// MockLLMClient is a thread-safe stand-in for *llm.Client. It records every
// request and replays configured responses in order.
//
//	mock := &testutil.MockLLMClient{
//	    Responses: []*llm.Response{{Content: `{"name": "Call John"}`}},
//	}
type MockLLMClient struct {
	mu        sync.Mutex
	Responses []*llm.Response // returned in sequence
	Err       error           // takes precedence over Responses
	requests  []llm.Request
	next      int
}

// Complete returns the next configured response, or Err if set. Once the
// responses run out an empty response is returned.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.next < len(m.Responses) {
		resp := m.Responses[m.next]
		m.next++
		return resp, nil
	}
	return &llm.Response{Model: "test-model"}, nil
}

// Requests returns a copy of every request seen so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// CallCount returns the number of times Complete was called.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears recorded requests and rewinds the response sequence.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.next = 0
}
