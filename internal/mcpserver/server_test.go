package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/swairshah/zotero-mcp-server/internal/apperr"
	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/models"
	"github.com/swairshah/zotero-mcp-server/internal/query"
)

type stubBackend struct {
	items    map[string]models.Item
	notes    map[string][]models.Note
	writable bool
}

func (b *stubBackend) Search(ctx context.Context, f query.Filter) ([]models.Item, error) {
	var out []models.Item
	for _, it := range b.items {
		match := true
		for _, tag := range f.Tags {
			found := false
			for _, have := range it.Tags {
				if strings.EqualFold(have, tag) {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			out = append(out, it)
		}
	}
	if out == nil {
		out = []models.Item{}
	}
	return out, nil
}

func (b *stubBackend) GetItem(ctx context.Context, key string) (models.Item, error) {
	it, ok := b.items[key]
	if !ok {
		return models.Item{}, fmt.Errorf("%w: item %s", apperr.ErrNotFound, key)
	}
	return it, nil
}

func (b *stubBackend) GetNotes(ctx context.Context, key string) ([]models.Note, error) {
	if _, ok := b.items[key]; !ok {
		return nil, fmt.Errorf("%w: item %s", apperr.ErrNotFound, key)
	}
	notes := b.notes[key]
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

func (b *stubBackend) AddNote(ctx context.Context, parentKey, content string, tags []string) (models.Note, error) {
	if _, ok := b.items[parentKey]; !ok {
		return models.Note{}, fmt.Errorf("%w: item %s", apperr.ErrNotFound, parentKey)
	}
	note := models.Note{Key: "NEWNOTE1", ParentKey: parentKey, Content: content, Tags: tags}
	b.notes[parentKey] = append(b.notes[parentKey], note)
	return note, nil
}

func (b *stubBackend) GetPDF(ctx context.Context, itemKey string) (library.PDF, error) {
	return library.PDF{}, fmt.Errorf("%w: no PDF attachment for item %s", apperr.ErrNotFound, itemKey)
}

func (b *stubBackend) SupportsWrite() bool { return b.writable }

func (b *stubBackend) Kind() string {
	if b.writable {
		return library.KindAPI
	}
	return library.KindDatabase
}

func testServer(t *testing.T) (*Server, *stubBackend) {
	t.Helper()

	backend := &stubBackend{
		items: map[string]models.Item{
			"ITEM1AAA": {
				Key:      "ITEM1AAA",
				Title:    "Attention Is All You Need",
				ItemType: "journalArticle",
				Abstract: "The dominant sequence transduction models...",
				Tags:     []string{"ml", "transformers"},
			},
			"ITEM2BBB": {
				Key:      "ITEM2BBB",
				Title:    "A Survey of Deep Learning",
				ItemType: "journalArticle",
				Tags:     []string{"ml", "survey"},
			},
		},
		notes: map[string][]models.Note{
			"ITEM2BBB": {
				{Key: "NOTE1AAA", ParentKey: "ITEM2BBB", Content: "<p>Dense but useful.</p>"},
			},
		},
		writable: true,
	}

	srv := New(library.NewService(backend), nil)
	return srv, backend
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call
	// the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_papers":
		result, err = srv.searchPapers(ctx, req)
	case "get_paper":
		result, err = srv.getPaper(ctx, req)
	case "get_paper_notes":
		result, err = srv.getPaperNotes(ctx, req)
	case "add_note":
		result, err = srv.addNote(ctx, req)
	case "get_summary_source":
		result, err = srv.getSummarySource(ctx, req)
	case "get_pdf_content":
		result, err = srv.getPDFContent(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchPapersByTag(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_papers", map[string]interface{}{
		"tags": []interface{}{"survey"},
	})
	if r.IsError {
		t.Fatalf("search failed: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, "ITEM2BBB") {
		t.Errorf("expected ITEM2BBB in results, got %s", text)
	}
	if strings.Contains(text, "ITEM1AAA") {
		t.Errorf("did not expect ITEM1AAA in results, got %s", text)
	}
}

func TestSearchPapersInvalidLimit(t *testing.T) {
	srv, _ := testServer(t)

	for _, limit := range []int{-1, 0} {
		r := callTool(t, srv, "search_papers", map[string]interface{}{
			"limit": limit,
		})
		if !r.IsError {
			t.Fatalf("limit=%d: expected error result", limit)
		}
		if !strings.Contains(resultText(r), "limit") {
			t.Errorf("limit=%d: unexpected error text: %s", limit, resultText(r))
		}
	}
}

func TestSearchPapersAbsentLimitIsUnbounded(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_papers", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("search without limit failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"count": 2`) {
		t.Errorf("expected all items, got %s", resultText(r))
	}
}

func TestGetPaper(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_paper", map[string]interface{}{"item_key": "ITEM1AAA"})
	if r.IsError {
		t.Fatalf("get_paper failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "Attention Is All You Need") {
		t.Errorf("unexpected result: %s", resultText(r))
	}
}

func TestGetPaperMissingKey(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_paper", map[string]interface{}{})
	if !r.IsError {
		t.Fatal("expected error for missing item_key")
	}
}

func TestGetPaperNotFound(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_paper", map[string]interface{}{"item_key": "MISSING1"})
	if !r.IsError {
		t.Fatal("expected error result for unknown key")
	}
}

func TestGetPaperNotes(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_paper_notes", map[string]interface{}{"item_key": "ITEM2BBB"})
	if r.IsError {
		t.Fatalf("get_paper_notes failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "Dense but useful") {
		t.Errorf("unexpected result: %s", resultText(r))
	}
}

func TestAddNote(t *testing.T) {
	srv, backend := testServer(t)

	r := callTool(t, srv, "add_note", map[string]interface{}{
		"item_key":  "ITEM1AAA",
		"note_text": "<p>Read this twice.</p>",
		"tags":      []interface{}{"todo"},
	})
	if r.IsError {
		t.Fatalf("add_note failed: %s", resultText(r))
	}
	if len(backend.notes["ITEM1AAA"]) != 1 {
		t.Errorf("backend note count = %d, want 1", len(backend.notes["ITEM1AAA"]))
	}
}

func TestAddNoteReadOnlyBackend(t *testing.T) {
	srv, backend := testServer(t)
	backend.writable = false

	r := callTool(t, srv, "add_note", map[string]interface{}{
		"item_key":  "ITEM1AAA",
		"note_text": "<p>x</p>",
	})
	if !r.IsError {
		t.Fatal("expected error result on read-only backend")
	}
	if !strings.Contains(resultText(r), "read-only") {
		t.Errorf("unexpected error text: %s", resultText(r))
	}
	if len(backend.notes["ITEM1AAA"]) != 0 {
		t.Error("read-only backend must not receive the note")
	}
}

func TestGetSummarySource(t *testing.T) {
	srv, _ := testServer(t)

	// Abstract wins when present.
	r := callTool(t, srv, "get_summary_source", map[string]interface{}{"item_key": "ITEM1AAA"})
	if r.IsError {
		t.Fatalf("get_summary_source failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"origin": "abstract"`) {
		t.Errorf("unexpected result: %s", resultText(r))
	}

	// Notes otherwise.
	r = callTool(t, srv, "get_summary_source", map[string]interface{}{"item_key": "ITEM2BBB"})
	if r.IsError {
		t.Fatalf("get_summary_source failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"origin": "notes"`) {
		t.Errorf("unexpected result: %s", resultText(r))
	}
}

func TestGetSummarySourceNothingAvailable(t *testing.T) {
	srv, backend := testServer(t)
	backend.items["BARE1111"] = models.Item{Key: "BARE1111", Title: "No Text Here"}

	r := callTool(t, srv, "get_summary_source", map[string]interface{}{"item_key": "BARE1111"})
	if !r.IsError {
		t.Fatal("expected error result when nothing to summarize")
	}
}

func TestGetPDFContentNoAttachment(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_pdf_content", map[string]interface{}{"item_key": "ITEM1AAA"})
	if !r.IsError {
		t.Fatal("expected error result when no PDF attachment exists")
	}
}

func TestGetNoteContract(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_note_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "add_note") {
		t.Errorf("contract text looks wrong: %s", resultText(r))
	}
}

func TestNoteFormatResource(t *testing.T) {
	srv, _ := testServer(t)

	contents, err := srv.readNoteFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("resource read failed: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("unexpected contents type %T", contents[0])
	}
	if tc.URI != "zotero://note-format" {
		t.Errorf("uri = %q", tc.URI)
	}
}
