package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/phrazzld/mediagen/internal/generation"
)

// PublishCall records the arguments of one Publish call.
type PublishCall struct {
	Data       []byte
	MIMEType   string
	FolderHint string
}

// MockPublisher implements generation.Publisher for testing. Without a
// PublishFn or Err it returns BaseURL/<folder>/object-<n><ext>.
type MockPublisher struct {
	// PublishFn allows test cases to mock the Publish behavior
	PublishFn func(ctx context.Context, data []byte, mimeType, folderHint string) (string, error)

	BaseURL string
	Err     error

	mu    sync.Mutex
	calls []PublishCall
}

// Publish implements the generation.Publisher interface
func (m *MockPublisher) Publish(ctx context.Context, data []byte, mimeType, folderHint string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, PublishCall{Data: data, MIMEType: mimeType, FolderHint: folderHint})
	n := len(m.calls)
	m.mu.Unlock()

	if m.PublishFn != nil {
		return m.PublishFn(ctx, data, mimeType, folderHint)
	}
	if m.Err != nil {
		return "", m.Err
	}

	folder := folderHint
	if folder == "" {
		folder = "generations"
	}
	return fmt.Sprintf("%s/%s/object-%d%s", m.BaseURL, folder, n, generation.Extension(mimeType)), nil
}

// Calls returns a copy of the recorded calls.
func (m *MockPublisher) Calls() []PublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishCall(nil), m.calls...)
}

// CallCount returns how many times Publish was called.
func (m *MockPublisher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
