package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/swairshah/zotero-mcp-server/internal/apperr"
	"github.com/swairshah/zotero-mcp-server/internal/htmltext"
	"github.com/swairshah/zotero-mcp-server/internal/models"
	"github.com/swairshah/zotero-mcp-server/internal/pdftext"
	"github.com/swairshah/zotero-mcp-server/internal/query"
)

// pdfSnippetMax caps how much extracted PDF text a summary source carries.
const pdfSnippetMax = 8000

// SummarySource is the best available text for downstream summarization.
type SummarySource struct {
	Origin string `json:"origin"` // "abstract", "notes", or "pdf"
	Text   string `json:"text"`
}

// PDFContent is the extracted text of an item's PDF attachment.
type PDFContent struct {
	AttachmentKey string `json:"attachment_key"`
	Text          string `json:"text_content"`
	Pages         int    `json:"page_count"`
}

// Service is the caller-facing facade over one configured backend.
type Service struct {
	backend Backend
}

// NewService wraps the chosen backend.
func NewService(b Backend) *Service {
	return &Service{backend: b}
}

// Kind reports the configured backend kind.
func (s *Service) Kind() string { return s.backend.Kind() }

// Search normalizes the raw request and executes it against the backend.
func (s *Service) Search(ctx context.Context, tags []string, text string, limit *int) ([]models.Item, error) {
	f, err := query.Normalize(tags, text, limit)
	if err != nil {
		return nil, err
	}
	return s.backend.Search(ctx, f)
}

// GetItem fetches one item by key.
func (s *Service) GetItem(ctx context.Context, key string) (models.Item, error) {
	return s.backend.GetItem(ctx, key)
}

// GetNotes returns all notes attached to key.
func (s *Service) GetNotes(ctx context.Context, key string) ([]models.Note, error) {
	return s.backend.GetNotes(ctx, key)
}

// AddNote creates a note under parentKey. The capability check runs before
// any backend call: a read-only backend fails here with ErrUnsupported,
// which is distinct from a remote rejection and costs no round trip.
func (s *Service) AddNote(ctx context.Context, parentKey, content string, tags []string) (models.Note, error) {
	if !s.backend.SupportsWrite() {
		return models.Note{}, fmt.Errorf("%w: %s backend is read-only, close Zotero and use the api backend to write",
			apperr.ErrUnsupported, s.backend.Kind())
	}
	if strings.TrimSpace(content) == "" {
		return models.Note{}, fmt.Errorf("%w: note content is empty", apperr.ErrInvalidQuery)
	}
	return s.backend.AddNote(ctx, parentKey, content, tags)
}

// GetPDFContent locates the item's PDF attachment and extracts its text.
func (s *Service) GetPDFContent(ctx context.Context, key string) (PDFContent, error) {
	pdf, err := s.backend.GetPDF(ctx, key)
	if err != nil {
		return PDFContent{}, err
	}
	res, err := pdftext.Extract(pdf.Data)
	if err != nil {
		return PDFContent{}, err
	}
	return PDFContent{
		AttachmentKey: pdf.AttachmentKey,
		Text:          res.Text,
		Pages:         res.Pages,
	}, nil
}

// GetSummarySource fetches the item and resolves the best summarizable text
// for it: abstract, then attached notes, then a PDF-extracted snippet.
// ErrNoSummarySource when none of the three yields text.
func (s *Service) GetSummarySource(ctx context.Context, key string) (SummarySource, error) {
	item, err := s.backend.GetItem(ctx, key)
	if err != nil {
		return SummarySource{}, err
	}
	notes, err := s.backend.GetNotes(ctx, key)
	if err != nil {
		return SummarySource{}, err
	}

	src, err := ResolveSummarySource(item, notes)
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, apperr.ErrNoSummarySource) {
		return SummarySource{}, err
	}

	// Last resort: a snippet of the attached PDF, when there is one.
	pdf, pdfErr := s.backend.GetPDF(ctx, key)
	if pdfErr != nil {
		if errors.Is(pdfErr, apperr.ErrNotFound) || errors.Is(pdfErr, apperr.ErrUnsupported) {
			return SummarySource{}, err
		}
		return SummarySource{}, pdfErr
	}
	res, extractErr := pdftext.Extract(pdf.Data)
	if extractErr != nil || strings.TrimSpace(res.Text) == "" {
		return SummarySource{}, err
	}
	return SummarySource{Origin: "pdf", Text: pdftext.Snippet(strings.TrimSpace(res.Text), pdfSnippetMax)}, nil
}

// ResolveSummarySource picks text from what is already in hand: the item's
// abstract when non-empty, otherwise the concatenated note contents in note
// order (HTML flattened to plain text). ErrNoSummarySource otherwise —
// callers are never handed an empty string to summarize.
func ResolveSummarySource(item models.Item, notes []models.Note) (SummarySource, error) {
	if abstract := strings.TrimSpace(item.Abstract); abstract != "" {
		return SummarySource{Origin: "abstract", Text: abstract}, nil
	}

	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		if t := htmltext.Flatten(n.Content); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) > 0 {
		return SummarySource{Origin: "notes", Text: strings.Join(parts, "\n\n")}, nil
	}

	return SummarySource{}, fmt.Errorf("%w: item %s has no abstract and no notes", apperr.ErrNoSummarySource, item.Key)
}
