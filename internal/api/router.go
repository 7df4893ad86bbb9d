package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/feathernotes/internal/index"
	"github.com/starford/feathernotes/internal/session"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// lib may be nil when the library index is disabled.
func NewRouter(sess *session.Session, lib index.LibraryIndex, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(sess, lib)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Document.
	r.Get("/document", h.GetDocument)
	r.Post("/document/open", h.OpenDocument)
	r.Post("/document/save", h.SaveDocument)
	r.Put("/document/password", h.SetPassword)
	r.Put("/document/fonts", h.SetFonts)

	// Nodes.
	r.Post("/nodes", h.CreateNode)
	r.Route("/nodes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNode)
		r.Patch("/", h.UpdateNode)
		r.Delete("/", h.DeleteNode)
		r.Put("/text", h.SetText)
		r.Post("/undo", h.history(false))
		r.Post("/redo", h.history(true))
		r.Post("/move/{dir}", h.MoveNode)
		r.Post("/images", h.UploadImage)
		r.Get("/images/{i}", h.ServeImage)
		r.Post("/images/{i}/scale", h.ScaleImage)
	})

	// Search and replace.
	r.Get("/search", h.Find)
	r.Get("/tags", h.Tags)
	r.Post("/replace", h.Replace)
	r.Get("/library/search", h.LibrarySearch)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
