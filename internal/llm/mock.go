package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MockResponse is one scripted reply.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error
}

// MockProvider replays scripted responses in order and records requests.
// When the script is empty it answers from Fallback, or fails with
// ErrProviderUnavailable if Fallback is nil.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request

	Fallback func(Request) MockResponse
}

func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// NewStubProvider returns a mock that answers every request with the
// smallest document satisfying its schema. It backs the "mock" provider.
func NewStubProvider() *MockProvider {
	return &MockProvider{Fallback: func(req Request) MockResponse {
		if req.Schema == nil {
			return MockResponse{Content: json.RawMessage(`"stub"`)}
		}
		b, err := json.Marshal(stubValue(req.Schema.Definition, req.Schema.Name))
		if err != nil {
			return MockResponse{Err: fmt.Errorf("stub %s: %w", req.Schema.Name, err)}
		}
		return MockResponse{Content: b}
	}}
}

func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)

	var next MockResponse
	switch {
	case len(m.responses) > 0:
		next = m.responses[0]
		m.responses = m.responses[1:]
	case m.Fallback != nil:
		next = m.Fallback(req)
	default:
		return nil, &ErrProviderUnavailable{}
	}
	if next.Err != nil {
		return nil, next.Err
	}
	if err := validateResponse(req.Schema, next.Content); err != nil {
		return nil, err
	}
	return &Response{Content: next.Content, Usage: next.Usage, Model: "mock", StopReason: "end"}, nil
}

func (m *MockProvider) ModelID() string { return "mock" }

func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// stubValue builds a value for def. Strings are labelled with their path
// so stub lessons stay readable.
func stubValue(def map[string]any, path string) any {
	if enum := stringList(def["enum"]); len(enum) > 0 {
		return enum[0]
	}
	switch def["type"] {
	case "object":
		out := map[string]any{}
		props, _ := def["properties"].(map[string]any)
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if sub, ok := props[name].(map[string]any); ok {
				out[name] = stubValue(sub, path+"."+name)
			}
		}
		return out
	case "array":
		items, _ := def["items"].(map[string]any)
		return []any{stubValue(items, path+"[0]")}
	case "integer", "number":
		return 0
	case "boolean":
		return false
	default:
		return "stub " + path
	}
}
