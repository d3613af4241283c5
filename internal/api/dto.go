package api

import (
	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/models"
)

// AddNoteRequest is the request body for attaching a note to an item.
type AddNoteRequest struct {
	Content string   `json:"content" example:"<p>Key findings...</p>" validate:"required"`
	Tags    []string `json:"tags" example:"summary,llm"`
}

// Item is the canonical item shape (aliased from the domain layer).
type Item = models.Item

// Note is the canonical note shape (aliased from the domain layer).
type Note = models.Note

// ItemListResponse wraps item search results.
type ItemListResponse struct {
	Items []Item `json:"items" validate:"required"`
	Count int    `json:"count" example:"12" validate:"required"`
}

// NoteListResponse wraps the notes attached to one item.
type NoteListResponse struct {
	Notes []Note `json:"notes" validate:"required"`
	Count int    `json:"count" example:"3" validate:"required"`
}

// SummarySourceResponse carries the text an LLM should summarize for an
// item, plus where that text came from.
type SummarySourceResponse = library.SummarySource

// PDFContentResponse carries extracted PDF text (aliased from the domain layer).
type PDFContentResponse = library.PDFContent
