package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/currents-app/currents/internal/api"
	apiMiddleware "github.com/currents-app/currents/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
// It accepts the application dependencies to create handlers and register routes.
// Returns the configured router.
func (app *application) setupRouter() http.Handler {
	// Create a router
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware) // Add trace IDs for improved error handling

	// Create API handlers using the application's services
	itemHandler := api.NewItemHandler(app.itemStore, app.pipeline)
	sourceHandler := api.NewSourceHandler(app.sourceStore, app.pipeline)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		// Source endpoints
		r.Post("/sources", sourceHandler.CreateSource)
		r.Get("/sources/{id}", sourceHandler.GetSource)
		r.Post("/sources/{id}/poll", sourceHandler.PollSource)

		// Item endpoints
		r.Get("/items/{id}", itemHandler.GetItem)
		r.Post("/items/{id}/process", itemHandler.ProcessItem)
	})

	// Health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
