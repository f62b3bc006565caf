package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/auth"
	"google.golang.org/genai"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/generation"
	"github.com/phrazzld/mediagen/internal/platform/httpfetch"
)

// DefaultRetryDelays are the fixed waits before the second and third attempt
// of a throttled call.
var DefaultRetryDelays = []time.Duration{2 * time.Second, 5 * time.Second}

// Attempt outcomes reported to the AttemptObserver.
const (
	OutcomeSuccess   = "success"
	OutcomeThrottled = "throttled"
	OutcomeError     = "error"
)

// AttemptObserver is notified after every provider attempt.
type AttemptObserver interface {
	ProviderAttempt(outcome string)
}

// contentGenerator is the subset of *genai.Models used by Client.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Option configures a Client.
type Option func(*Client)

// WithRetryDelays replaces the waits between throttled attempts. The number
// of attempts is len(delays)+1.
func WithRetryDelays(delays []time.Duration) Option {
	return func(c *Client) { c.retryDelays = append([]time.Duration(nil), delays...) }
}

// WithAttemptObserver registers an observer for provider attempts.
func WithAttemptObserver(o AttemptObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient sets the base HTTP client. The bearer credential is added
// on top of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client implements generation.Provider on the Vertex AI generateContent API.
type Client struct {
	logger      *slog.Logger
	models      contentGenerator
	httpClient  *http.Client
	genConfig   *genai.GenerateContentConfig
	retryDelays []time.Duration
	observer    AttemptObserver
	sleep       func(ctx context.Context, d time.Duration) error
}

var _ generation.Provider = (*Client)(nil)

// NewClient creates a provider client authenticated by tokens.
//
// Returns generation.ErrInvalidConfig when project or location is missing.
func NewClient(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.ProviderConfig,
	tokens auth.TokenProvider,
	opts ...Option,
) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("%w: provider project cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Location == "" {
		return nil, fmt.Errorf("%w: provider location cannot be empty", generation.ErrInvalidConfig)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token provider cannot be nil", generation.ErrInvalidConfig)
	}

	c := &Client{
		logger:      logger.With("component", "provider"),
		genConfig:   defaultGenerateConfig(),
		retryDelays: DefaultRetryDelays,
		sleep:       sleepContext,
	}
	if len(cfg.RetryDelays) > 0 {
		c.retryDelays = append([]time.Duration(nil), cfg.RetryDelays...)
	}
	for _, o := range opts {
		o(c)
	}

	clientConfig := &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     cfg.Project,
		Location:    cfg.Location,
		Credentials: auth.NewCredentials(&auth.CredentialsOptions{TokenProvider: tokens}),
		HTTPClient:  httpfetch.WithBearer(c.httpClient, tokens),
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create provider client: %v", generation.ErrInvalidConfig, err)
	}
	c.models = client.Models

	return c, nil
}

// defaultGenerateConfig holds the fixed generation and safety settings sent
// with every request.
func defaultGenerateConfig() *genai.GenerateContentConfig {
	threshold := genai.HarmBlockThresholdBlockOnlyHigh
	return &genai.GenerateContentConfig{
		Temperature:        genai.Ptr[float32](1),
		TopP:               genai.Ptr[float32](0.95),
		ResponseModalities: []string{"TEXT", "IMAGE"},
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHateSpeech, Threshold: threshold},
			{Category: genai.HarmCategoryDangerousContent, Threshold: threshold},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: threshold},
			{Category: genai.HarmCategoryHarassment, Threshold: threshold},
		},
	}
}

// buildContents orders the request parts: optional input media first, then
// the text prompt.
func buildContents(prompt string, input *generation.Media) []*genai.Content {
	parts := make([]*genai.Part, 0, 2)
	if input != nil && len(input.Data) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: input.Data, MIMEType: input.MIMEType}})
	}
	parts = append(parts, &genai.Part{Text: prompt})

	return []*genai.Content{{Role: "user", Parts: parts}}
}

// Generate calls the model once, retrying only HTTP 429 after each of the
// configured fixed waits. Any other failure is returned immediately.
func (c *Client) Generate(
	ctx context.Context,
	prompt, model string,
	input *generation.Media,
) (*generation.RawResponse, error) {
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", generation.ErrInvalidConfig)
	}

	contents := buildContents(prompt, input)
	maxAttempts := len(c.retryDelays) + 1

	for attempt := 1; ; attempt++ {
		c.logger.InfoContext(ctx, "calling provider",
			"model", model,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"has_input", input != nil)

		resp, err := c.models.GenerateContent(ctx, model, contents, c.genConfig)
		if err == nil {
			c.observe(OutcomeSuccess)
			c.logger.InfoContext(ctx, "provider call succeeded", "attempt", attempt)
			return toRawResponse(resp), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.observe(OutcomeError)
			return nil, ctxErr
		}

		status := statusCode(err)
		if status != http.StatusTooManyRequests {
			c.observe(OutcomeError)
			c.logger.ErrorContext(ctx, "provider call failed",
				"attempt", attempt,
				"status", status,
				"error", err)
			if status == 0 {
				return nil, fmt.Errorf("%w: %w", generation.ErrProviderFailed, err)
			}
			return nil, fmt.Errorf("%w: %w", generation.ErrProviderFailed,
				&generation.HTTPStatusError{StatusCode: status, Body: err.Error()})
		}

		c.observe(OutcomeThrottled)
		if attempt >= maxAttempts {
			c.logger.WarnContext(ctx, "provider still throttling after final attempt",
				"attempts", attempt)
			return nil, fmt.Errorf("%w after %d attempts: %w", generation.ErrThrottled, attempt,
				&generation.HTTPStatusError{StatusCode: status, Body: err.Error()})
		}

		delay := c.retryDelays[attempt-1]
		c.logger.InfoContext(ctx, "provider throttled, retrying after delay",
			"attempt", attempt,
			"delay", delay.String())

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ProviderAttempt(outcome)
	}
}

// statusCode extracts the HTTP status carried by a genai error, or 0.
func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	var statusErr *generation.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// toRawResponse flattens the parts of every candidate in order.
func toRawResponse(resp *genai.GenerateContentResponse) *generation.RawResponse {
	raw := &generation.RawResponse{}
	if resp == nil {
		return raw
	}

	for i, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if i == 0 {
			raw.FinishReason = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p == nil {
				continue
			}
			var part generation.Part
			switch {
			case p.InlineData != nil:
				part.InlineData = &generation.Media{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}
			case p.FileData != nil:
				part.FileURI = p.FileData.FileURI
				part.FileMIMEType = p.FileData.MIMEType
			default:
				part.Text = p.Text
			}
			raw.Parts = append(raw.Parts, part)
		}
	}

	return raw
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
