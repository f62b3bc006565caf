package generation

import (
	"context"
)

// Provider calls the external generation model. Implementations own the
// throttling retry policy and never touch task state.
type Provider interface {
	Generate(ctx context.Context, prompt, model string, input *Media) (*RawResponse, error)
}

// Fetcher downloads media referenced by URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (Media, error)
}

// Publisher stores media durably and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, data []byte, mimeType, folderHint string) (string, error)
}

// RawResponse is a provider response flattened to its content parts, in the
// order the provider returned them.
type RawResponse struct {
	Parts []Part

	// FinishReason is the provider's finish reason for the first candidate,
	// kept for diagnostics when no media came back.
	FinishReason string
}

// Part is one content part of a provider response. At most one of
// InlineData, FileURI and Text is set.
type Part struct {
	InlineData   *Media
	FileURI      string
	FileMIMEType string
	Text         string
}
