// Package httpfetch downloads media over HTTP for the generation pipeline:
// input images referenced by URL, and provider output handles fetched with
// the provider's bearer credential.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/auth"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/phrazzld/mediagen/internal/generation"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 20 << 20

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTokenProvider attaches a bearer credential to every request.
func WithTokenProvider(tp auth.TokenProvider) Option {
	return func(f *Fetcher) { f.tokens = tp }
}

// WithHTTPClient replaces the pooled client. Mostly useful in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBytes sets the download size limit.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// Fetcher implements generation.Fetcher.
type Fetcher struct {
	client   *http.Client
	tokens   auth.TokenProvider
	maxBytes int64
	logger   *slog.Logger
}

var _ generation.Fetcher = (*Fetcher)(nil)

// NewFetcher creates a Fetcher on a pooled cleanhttp client.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   cleanhttp.DefaultPooledClient(),
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.tokens != nil {
		f.client = WithBearer(f.client, f.tokens)
	}
	return f
}

// Fetch GETs uri and returns its bytes and MIME type. gs:// URIs are read
// through the public storage endpoint. Non-2xx answers are returned as
// *generation.HTTPStatusError.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (generation.Media, error) {
	target, err := resolveURI(uri)
	if err != nil {
		return generation.Media{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return generation.Media{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return generation.Media{}, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		f.logger.WarnContext(ctx, "media fetch returned non-success status",
			"status", resp.StatusCode,
			"host", req.URL.Host)
		return generation.Media{}, &generation.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return generation.Media{}, fmt.Errorf("failed to read media body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return generation.Media{}, fmt.Errorf("media exceeds %d bytes", f.maxBytes)
	}

	return generation.Media{
		Data:     data,
		MIMEType: generation.DetectMIMEType(resp.Header.Get("Content-Type"), data),
	}, nil
}

func resolveURI(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri, nil
	case strings.HasPrefix(uri, "gs://"):
		return "https://storage.googleapis.com/" + strings.TrimPrefix(uri, "gs://"), nil
	case uri == "":
		return "", errors.New("empty media URI")
	default:
		return "", fmt.Errorf("unsupported media URI scheme: %q", uri)
	}
}
