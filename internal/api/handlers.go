package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/swairshah/zotero-mcp-server/internal/apperr"
	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/sse"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *library.Service
	broker *sse.Broker
}

// NewHandler creates a new Handler. broker may be nil when no event fan-out
// is wanted.
func NewHandler(svc *library.Service, broker *sse.Broker) *Handler {
	return &Handler{svc: svc, broker: broker}
}

// itemKey extracts the item key path parameter.
func itemKey(r *http.Request) string {
	return chi.URLParam(r, "key")
}

// limitParam parses the optional limit query parameter. A nil result means
// no limit was requested; malformed or non-positive values are passed along
// so the domain layer rejects them uniformly.
func limitParam(r *http.Request) (*int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	return &n, true
}

// SearchItems handles GET /api/items.
//
//	@Summary		Search library items by tags and free text
//	@Tags			items
//	@Produce		json
//	@Param			tag		query		string	false	"Tag filter, repeatable; all tags must match"
//	@Param			q		query		string	false	"Free-text fragment matched against title and abstract"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	ItemListResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [get]
func (h *Handler) SearchItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := limitParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("limit must be an integer"))
		return
	}

	items, err := h.svc.Search(r.Context(), q["tag"], q.Get("q"), limit)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInvalidQuery):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		default:
			slog.Error("search failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items, Count: len(items)})
}

// GetItem handles GET /api/items/{key}.
//
//	@Summary		Get a single item by key
//	@Tags			items
//	@Produce		json
//	@Param			key	path		string	true	"Item key"
//	@Success		200	{object}	Item
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	key := itemKey(r)
	item, err := h.svc.GetItem(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		default:
			slog.Error("get item failed", slog.String("key", key), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// GetNotes handles GET /api/items/{key}/notes.
//
//	@Summary		List the notes attached to an item
//	@Tags			notes
//	@Produce		json
//	@Param			key	path		string	true	"Parent item key"
//	@Success		200	{object}	NoteListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key}/notes [get]
func (h *Handler) GetNotes(w http.ResponseWriter, r *http.Request) {
	key := itemKey(r)
	notes, err := h.svc.GetNotes(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		default:
			slog.Error("get notes failed", slog.String("key", key), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Count: len(notes)})
}

// AddNote handles POST /api/items/{key}/notes.
//
//	@Summary		Attach a note to an item
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string			true	"Parent item key"
//	@Param			body	body		AddNoteRequest	true	"Note to create"
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key}/notes [post]
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	key := itemKey(r)

	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	note, err := h.svc.AddNote(r.Context(), key, req.Content, req.Tags)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrUnsupported):
			writeJSON(w, http.StatusForbidden, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrInvalidQuery):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("parent item not found"))
		case errors.Is(err, apperr.ErrWriteRejected):
			writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		default:
			slog.Error("add note failed", slog.String("key", key), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	if h.broker != nil {
		h.broker.PublishNoteCreated(key, note.Key)
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetSummarySource handles GET /api/items/{key}/summary-source.
//
//	@Summary		Resolve the best text to summarize for an item
//	@Tags			items
//	@Produce		json
//	@Param			key	path		string	true	"Item key"
//	@Success		200	{object}	SummarySourceResponse
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key}/summary-source [get]
func (h *Handler) GetSummarySource(w http.ResponseWriter, r *http.Request) {
	key := itemKey(r)
	src, err := h.svc.GetSummarySource(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNoSummarySource):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		default:
			slog.Error("summary source failed", slog.String("key", key), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// GetPDFContent handles GET /api/items/{key}/pdf-content.
//
//	@Summary		Extract the text of an item's PDF attachment
//	@Tags			items
//	@Produce		json
//	@Param			key	path		string	true	"Item key"
//	@Success		200	{object}	PDFContentResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key}/pdf-content [get]
func (h *Handler) GetPDFContent(w http.ResponseWriter, r *http.Request) {
	key := itemKey(r)
	content, err := h.svc.GetPDFContent(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("no PDF attachment found"))
		case errors.Is(err, apperr.ErrUnsupported):
			writeJSON(w, http.StatusForbidden, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
		default:
			slog.Error("pdf content failed", slog.String("key", key), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, content)
}
