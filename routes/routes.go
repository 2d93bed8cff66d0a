package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbolis/quick-funnel/app"
	"github.com/mbolis/quick-funnel/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))
	root.Mount("/uploads", http.StripPrefix("/uploads", http.FileServer(http.Dir(app.UploadDir))))

	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// public chat API
	api.Get("/funnels/{slug}", PublicGetFunnel(app))
	api.Post("/funnels/{slug}/conversations", StartConversation(app))
	api.Get("/conversations/{id}/messages", GetMessages(app))
	api.Post("/conversations/{id}/messages", PostMessage(app))
	api.Post("/conversations/{id}/attachments", PostAttachment(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD funnels
		r.Post("/funnels", CreateFunnel(app))
		r.Get("/funnels", ListFunnels(app))
		r.Get("/funnels/{id}", GetFunnelById(app))
		r.Put("/funnels/{id}", UpdateFunnel(app))
		r.Delete("/funnels/{id}", DeleteFunnel(app))

		// script authoring
		r.Get("/funnels/{id}/blocks", GetFunnelGraph(app))
		r.Put("/funnels/{id}/blocks", SaveFunnelGraph(app))

		// lead review
		r.Get("/funnels/{id}/conversations", ListConversations(app))
		r.Get("/conversations/{id}/responses", GetConversationResponses(app))
		r.Post("/conversations/sweep", SweepConversations(app))

		// external capture hand-off
		r.Post("/tickets", CreateTicket(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}
