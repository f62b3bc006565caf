// Package gcs publishes generated media to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/generation"
)

// Publisher implements generation.Publisher on a GCS bucket.
type Publisher struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	defaultFolder string
	logger        *slog.Logger
}

var _ generation.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher. The caller owns the storage client.
func NewPublisher(client *storage.Client, cfg config.StorageConfig, logger *slog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("storage client cannot be nil")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: storage bucket cannot be empty", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		defaultFolder: cfg.DefaultFolder,
		logger:        logger.With("component", "gcs_publisher"),
	}, nil
}

// Publish uploads data under a fresh key and returns its public URL.
func (p *Publisher) Publish(ctx context.Context, data []byte, mimeType, folderHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := generation.ObjectKey(folderHint, p.defaultFolder, mimeType)

	w := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	w.ContentType = mimeType
	// Single request upload; outputs are bounded by the download limit.
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("%w: write object %s: %w", generation.ErrPublishFailed, key, err)
	}
	if err := w.Close(); err != nil {
		p.logger.ErrorContext(ctx, "failed to upload object",
			"bucket", p.bucket,
			"key", key,
			"error", err)
		return "", fmt.Errorf("%w: upload object %s: %w", generation.ErrPublishFailed, key, err)
	}

	p.logger.InfoContext(ctx, "published media",
		"bucket", p.bucket,
		"key", key,
		"bytes", len(data),
		"mime_type", mimeType)

	return p.publicBaseURL + "/" + p.bucket + "/" + key, nil
}
