package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/mediagen/internal/generation"
)

// MockFetcher implements generation.Fetcher for testing
type MockFetcher struct {
	// FetchFn allows test cases to mock the Fetch behavior
	FetchFn func(ctx context.Context, uri string) (generation.Media, error)

	// Default response values
	Media generation.Media
	Err   error

	mu   sync.Mutex
	uris []string
}

// Fetch implements the generation.Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context, uri string) (generation.Media, error) {
	m.mu.Lock()
	m.uris = append(m.uris, uri)
	m.mu.Unlock()

	if m.FetchFn != nil {
		return m.FetchFn(ctx, uri)
	}
	return m.Media, m.Err
}

// URIs returns the URIs passed to Fetch, in call order.
func (m *MockFetcher) URIs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uris...)
}

// CallCount returns how many times Fetch was called.
func (m *MockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uris)
}
