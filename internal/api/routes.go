package api

import "github.com/go-chi/chi/v5"

// Handlers groups the handlers mounted by RegisterRoutes.
type Handlers struct {
	Health   *HealthHandler
	Commands *CommandHandler
	Worker   *WorkerHandler
	Memos    *MemosHandler
}

// RegisterRoutes mounts the HTTP surface on r.
func RegisterRoutes(r chi.Router, h Handlers) {
	r.Get("/health", h.Health.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/agent", func(r chi.Router) {
			r.Get("/commands", h.Commands.List)
			r.Post("/commands", h.Commands.Create)
			r.Route("/commands/{id}", func(r chi.Router) {
				r.Post("/confirm", h.Commands.Confirm)
				r.Post("/reject", h.Commands.Reject)
				r.Post("/start", h.Commands.Start)
				r.Post("/complete", h.Commands.Complete)
				r.Post("/fail", h.Commands.Fail)
				r.Patch("/context", h.Commands.UpdateContext)
				r.Post("/context/refresh", h.Commands.RefreshContext)
			})

			r.Get("/worker", h.Worker.Status)
			r.Post("/worker/run-once", h.Worker.RunOnce)
		})

		r.Get("/memos/status", h.Memos.Status)
		r.Post("/memos/search", h.Memos.Search)
	})
}
