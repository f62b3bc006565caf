package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/mediagen/internal/generation"
)

// ProviderCall records the arguments of one Generate call.
type ProviderCall struct {
	Prompt string
	Model  string
	Input  *generation.Media
}

// MockProvider implements generation.Provider for testing
type MockProvider struct {
	// GenerateFn allows test cases to mock the Generate behavior
	GenerateFn func(ctx context.Context, prompt, model string, input *generation.Media) (*generation.RawResponse, error)

	// Default response values
	Response *generation.RawResponse
	Err      error

	mu    sync.Mutex
	calls []ProviderCall
}

// Generate implements the generation.Provider interface
func (m *MockProvider) Generate(
	ctx context.Context,
	prompt, model string,
	input *generation.Media,
) (*generation.RawResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ProviderCall{Prompt: prompt, Model: model, Input: input})
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, prompt, model, input)
	}
	return m.Response, m.Err
}

// Calls returns a copy of the recorded calls.
func (m *MockProvider) Calls() []ProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ProviderCall(nil), m.calls...)
}

// CallCount returns how many times Generate was called.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// NewMockProviderWithImage returns a provider answering with one inline
// image part.
func NewMockProviderWithImage(data []byte, mimeType string) *MockProvider {
	return &MockProvider{
		Response: &generation.RawResponse{
			Parts:        []generation.Part{{InlineData: &generation.Media{Data: data, MIMEType: mimeType}}},
			FinishReason: "STOP",
		},
	}
}

// NewMockProviderWithError returns a provider that always fails with err.
func NewMockProviderWithError(err error) *MockProvider {
	return &MockProvider{Err: err}
}
