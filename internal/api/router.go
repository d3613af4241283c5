package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted. Auth is
// enforced whenever token is non-empty. broker may be nil; when set, the
// SSE stream is served at GET /events behind the same auth middleware.
func NewRouter(svc *library.Service, broker *sse.Broker, token string) chi.Router {
	h := NewHandler(svc, broker)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(token != "", token))

	// Items.
	r.Get("/items", h.SearchItems)
	r.Get("/items/{key}", h.GetItem)

	// Notes.
	r.Get("/items/{key}/notes", h.GetNotes)
	r.Post("/items/{key}/notes", h.AddNote)

	// Derived content.
	r.Get("/items/{key}/summary-source", h.GetSummarySource)
	r.Get("/items/{key}/pdf-content", h.GetPDFContent)

	// SSE endpoint (protected by same auth middleware).
	if broker != nil {
		r.Get("/events", broker.ServeHTTP)
	}

	return r
}
