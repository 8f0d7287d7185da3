package agent

import (
	"context"
	"sync"

	"github.com/bashme-ai/bashme/pkg/providers"
)

// mockProvider replays scripted responses in sequence, repeating the last
// one once the script runs out. A non-nil err makes every call fail.
type mockProvider struct {
	mu            sync.Mutex
	callCount     int
	responses     []providers.LLMResponse
	responseIndex int
	err           error

	lastMessages []providers.Message
	lastTools    []providers.ToolDefinition
	lastModel    string
	lastOptions  map[string]any
}

func (m *mockProvider) Chat(
	_ context.Context,
	messages []providers.Message,
	tools []providers.ToolDefinition,
	model string,
	options map[string]any,
) (*providers.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.lastMessages = append([]providers.Message(nil), messages...)
	m.lastTools = tools
	m.lastModel = model
	m.lastOptions = options

	if m.err != nil {
		return nil, m.err
	}

	if len(m.responses) > 0 {
		if m.responseIndex >= len(m.responses) {
			m.responseIndex = len(m.responses) - 1
		}
		resp := m.responses[m.responseIndex]
		m.responseIndex++
		return &resp, nil
	}

	return &providers.LLMResponse{Content: "mock response"}, nil
}

func (m *mockProvider) GetDefaultModel() string {
	return "mock-model"
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
