package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/spf13/afero"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/generation"
	"github.com/phrazzld/mediagen/internal/platform/gcs"
	"github.com/phrazzld/mediagen/internal/platform/gemini"
	"github.com/phrazzld/mediagen/internal/platform/httpfetch"
	"github.com/phrazzld/mediagen/internal/platform/localfs"
	"github.com/phrazzld/mediagen/internal/platform/metrics"
	"github.com/phrazzld/mediagen/internal/service/auth"
	"github.com/phrazzld/mediagen/internal/store"
	"github.com/phrazzld/mediagen/internal/task"
)

const metricsNamespace = "mediagen"

// application holds the wired components of the server.
type application struct {
	config *config.Config
	logger *slog.Logger

	store        store.TaskStore
	orchestrator *task.Orchestrator
	verifier     auth.TokenVerifier
	metrics      *metrics.Collector

	// media serves published files when storage is local, nil otherwise.
	media http.Handler

	closers []func() error
}

// components are the external collaborators of the orchestrator. Tests
// substitute them.
type components struct {
	store     store.TaskStore
	provider  generation.Provider
	inputs    generation.Fetcher
	outputs   generation.Fetcher
	publisher generation.Publisher
	media     http.Handler
	closers   []func() error
}

// newApplication connects every external dependency named in cfg and wires
// the application. Configuration errors are fatal here, never per task.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	collector := metrics.NewCollector(metricsNamespace)

	comps, err := connectComponents(ctx, cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	app, err := assemble(cfg, logger, collector, comps)
	if err != nil {
		app.cleanup()
		return nil, err
	}
	return app, nil
}

func connectComponents(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	collector *metrics.Collector,
) (components, error) {
	var comps components
	fail := func(err error) (components, error) {
		for _, c := range comps.closers {
			_ = c()
		}
		return components{}, err
	}

	taskStore, closeStore, err := newTaskStore(ctx, cfg.Store, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to set up task store: %w", err))
	}
	comps.store = taskStore
	comps.closers = append(comps.closers, closeStore)

	tokens, err := httpfetch.NewTokenProvider(cfg.Provider.AccessToken)
	if err != nil {
		return fail(fmt.Errorf("failed to set up provider credentials: %w", err))
	}

	comps.provider, err = gemini.NewClient(ctx, logger, cfg.Provider, tokens,
		gemini.WithAttemptObserver(collector))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize provider client: %w", err))
	}
	logger.Info("provider client initialized",
		"location", cfg.Provider.Location,
		"default_model", cfg.Provider.DefaultModel)

	fetchLogger := logger.With("component", "fetcher")
	comps.inputs = httpfetch.NewFetcher(httpfetch.WithLogger(fetchLogger))
	comps.outputs = httpfetch.NewFetcher(httpfetch.WithLogger(fetchLogger), httpfetch.WithTokenProvider(tokens))

	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to create storage client: %w", err))
		}
		comps.closers = append(comps.closers, client.Close)
		comps.publisher, err = gcs.NewPublisher(client, cfg.Storage, logger)
		if err != nil {
			return fail(err)
		}

	case "local":
		p, err := localfs.NewPublisher(afero.NewOsFs(), cfg.Storage, logger)
		if err != nil {
			return fail(err)
		}
		comps.publisher = p
		comps.media = p.Handler()

	default:
		return fail(fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend))
	}

	return comps, nil
}

// assemble builds the application from already connected components.
func assemble(
	cfg *config.Config,
	logger *slog.Logger,
	collector *metrics.Collector,
	comps components,
) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		store:   comps.store,
		metrics: collector,
		media:   comps.media,
		closers: comps.closers,
	}

	var err error
	app.verifier, err = auth.NewTokenVerifier(cfg.Auth)
	if err != nil {
		return app, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	app.orchestrator, err = task.NewOrchestrator(task.Deps{
		Store:      comps.store,
		Provider:   comps.provider,
		Normalizer: generation.Normalizer{ExpectedMedia: cfg.Provider.ExpectedMedia},
		Inputs:     comps.inputs,
		Outputs:    comps.outputs,
		Publisher:  comps.publisher,
		Metrics:    collector,
	}, task.Config{
		ClaimLease:   cfg.Store.ClaimLease,
		DefaultModel: cfg.Provider.DefaultModel,
	}, logger)
	if err != nil {
		return app, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// Run serves HTTP until ctx is done.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.serve(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases store and storage connections.
func (app *application) cleanup() {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil

	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error releasing resources", "error", err)
	}
	app.logger.Info("application shutdown completed")
}
