package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/dispatch/internal/api"
	apiMiddleware "github.com/phrazzld/dispatch/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	api.RegisterRoutes(r, api.Handlers{
		Health:   api.NewHealthHandler(app.storage),
		Commands: api.NewCommandHandler(app.commands, app.logger),
		Worker:   api.NewWorkerHandler(app.worker),
		Memos:    api.NewMemosHandler(app.memos),
	})
	return r
}
