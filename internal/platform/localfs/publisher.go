// Package localfs publishes generated media to a directory on an afero
// filesystem and serves it back over HTTP. It backs local development,
// where no bucket is available.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/generation"
)

// Publisher implements generation.Publisher on an afero.Fs.
type Publisher struct {
	fs            afero.Fs
	baseDir       string
	publicBaseURL string
	defaultFolder string
	logger        *slog.Logger
}

var _ generation.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher writing below cfg.LocalDir on fs.
func NewPublisher(fs afero.Fs, cfg config.StorageConfig, logger *slog.Logger) (*Publisher, error) {
	if fs == nil {
		return nil, errors.New("filesystem cannot be nil")
	}
	if cfg.LocalDir == "" {
		return nil, fmt.Errorf("%w: local storage directory cannot be empty", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := fs.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", generation.ErrInvalidConfig, cfg.LocalDir, err)
	}

	return &Publisher{
		fs:            fs,
		baseDir:       cfg.LocalDir,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		defaultFolder: cfg.DefaultFolder,
		logger:        logger.With("component", "local_publisher"),
	}, nil
}

// Publish writes data under a fresh key and returns its URL below the
// public base URL.
func (p *Publisher) Publish(ctx context.Context, data []byte, mimeType, folderHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := generation.ObjectKey(folderHint, p.defaultFolder, mimeType)
	full := path.Join(p.baseDir, key)

	if err := p.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("%w: create folder: %v", generation.ErrPublishFailed, err)
	}
	if err := afero.WriteFile(p.fs, full, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", generation.ErrPublishFailed, key, err)
	}

	p.logger.InfoContext(ctx, "published media",
		"key", key,
		"bytes", len(data),
		"mime_type", mimeType)

	return p.publicBaseURL + "/" + key, nil
}

// Handler serves published files. Mount it under the path of the public
// base URL with the prefix stripped.
func (p *Publisher) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(p.fs).Dir(p.baseDir))
}
