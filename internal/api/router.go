package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/ws/events", app.WebSocketHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", app.StatusHandler)
		r.Get("/health", app.BoxHealthHandler)
		r.Get("/frame.jpg", app.FrameHandler)

		r.Route("/people", func(r chi.Router) {
			r.Get("/", app.ListPeopleHandler)
			r.Post("/", app.AddPersonHandler)
			r.Delete("/{name}", app.RemovePersonHandler)
			r.Put("/{name}/relationship", app.SetRelationshipHandler)
		})

		r.Get("/guard", app.GuardHandler)
		r.Put("/guard", app.SetGuardHandler)

		r.Get("/events", app.EventsHandler)
		r.Get("/events/stream", app.EventStreamHandler)

		r.Route("/labels", func(r chi.Router) {
			r.Get("/", app.LabelsHandler)
			r.Post("/register", app.RegisterHandler)
			r.Post("/reload", app.ReloadHandler)
			r.Delete("/{name}", app.DeleteLabelHandler)
		})
	})

	return r
}
