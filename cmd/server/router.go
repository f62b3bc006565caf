package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/mediagen/internal/api"
	apiMiddleware "github.com/phrazzld/mediagen/internal/api/middleware"
)

func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)
	r.Use(apiMiddleware.Metrics(app.metrics))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.verifier)
	generationHandler := api.NewGenerationHandler(app.orchestrator, app.config.Server.PollTimeout, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.With(apiMiddleware.RateLimit(app.config.Server.SubmitRatePerSecond, app.config.Server.SubmitBurst)).
			Post("/generations", generationHandler.Submit)
		r.Get("/generations/{taskID}", generationHandler.Poll)
		r.Get("/canvases/{canvasID}/generations", generationHandler.List)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())

	if app.media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", app.media))
	}

	return r
}
