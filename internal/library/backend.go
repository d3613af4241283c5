// Package library exposes the uniform operation set over whichever backend
// is configured: search, item and note retrieval, note creation, and summary
// source resolution. Backend selection is a tagged choice made once at
// startup, not per call.
package library

import (
	"context"

	"github.com/swairshah/zotero-mcp-server/internal/models"
	"github.com/swairshah/zotero-mcp-server/internal/query"
)

// Backend kinds.
const (
	KindAPI      = "api"
	KindDatabase = "database"
)

// PDF is a fetched PDF attachment with the key it was resolved from.
type PDF struct {
	AttachmentKey string
	Data          []byte
}

// Backend is the contract both data sources implement. Implementations
// translate their native failures into the apperr taxonomy; callers never
// see HTTP statuses or SQLite error codes.
type Backend interface {
	// Search returns canonical items matching the filter: every filter tag
	// present (conjunctive), text fragment matched case-insensitively
	// against title/abstract when set. Results are deduplicated by key and
	// truncated to filter.Limit. Ordering is backend-native and not
	// guaranteed to agree across backends.
	Search(ctx context.Context, f query.Filter) ([]models.Item, error)

	// GetItem fetches one item by key; apperr.ErrNotFound if it does not
	// resolve.
	GetItem(ctx context.Context, key string) (models.Item, error)

	// GetNotes returns all notes attached to key, in note order. An empty
	// slice is not an error.
	GetNotes(ctx context.Context, key string) ([]models.Note, error)

	// AddNote creates a note under parentKey. apperr.ErrUnsupported on a
	// read-only backend, apperr.ErrNotFound when the parent is missing,
	// apperr.ErrWriteRejected when the service refuses the write.
	AddNote(ctx context.Context, parentKey, content string, tags []string) (models.Note, error)

	// GetPDF locates the item's first PDF attachment and returns its bytes;
	// apperr.ErrNotFound when the item has none.
	GetPDF(ctx context.Context, itemKey string) (PDF, error)

	// SupportsWrite reports whether AddNote can succeed at all. The note
	// manager consults this before issuing any backend call.
	SupportsWrite() bool

	// Kind returns KindAPI or KindDatabase.
	Kind() string
}
