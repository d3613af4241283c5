// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the reference library tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/sse"
)

// Server wraps the MCP server with the library tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *library.Service
	broker *sse.Broker
}

// New creates a new MCP server with all library tools registered. broker may
// be nil when no event fan-out is wanted.
func New(svc *library.Service, broker *sse.Broker) *Server {
	s := &Server{svc: svc, broker: broker}

	s.mcp = server.NewMCPServer(
		"Zotero Library",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_papers",
		mcp.WithDescription("Search library items by tags and free text. "+
			"All given tags must match (case-insensitive); the query string is "+
			"matched against title and abstract. Attachments and standalone "+
			"notes never appear in results."),
		mcp.WithArray("tags", mcp.Description("Tags that must all be present on a matching item"), mcp.WithStringItems()),
		mcp.WithString("query", mcp.Description("Free-text fragment matched against title and abstract")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of items to return (positive)")),
	), s.searchPapers)

	s.mcp.AddTool(mcp.NewTool("get_paper",
		mcp.WithDescription("Fetch one library item by its key, including creators, tags, and attachments."),
		mcp.WithString("item_key", mcp.Required(), mcp.Description("Zotero item key (e.g. ABCD2345)")),
	), s.getPaper)

	s.mcp.AddTool(mcp.NewTool("get_paper_notes",
		mcp.WithDescription("List the notes attached to an item, oldest first."),
		mcp.WithString("item_key", mcp.Required(), mcp.Description("Parent item key")),
	), s.getPaperNotes)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Attach a note to an item. Note content is a Zotero "+
			"HTML fragment; read the zotero://note-format resource or call "+
			"get_note_contract before writing one. Only available when the "+
			"server runs against the Zotero Web API."),
		mcp.WithString("item_key", mcp.Required(), mcp.Description("Parent item key")),
		mcp.WithString("note_text", mcp.Required(), mcp.Description("Note content as a Zotero HTML fragment")),
		mcp.WithArray("tags", mcp.Description("Optional tags to set on the note"), mcp.WithStringItems()),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("get_summary_source",
		mcp.WithDescription("Resolve the best text to summarize for an item: "+
			"its abstract when present, otherwise its notes, otherwise a snippet "+
			"of its PDF attachment."),
		mcp.WithString("item_key", mcp.Required(), mcp.Description("Item key")),
	), s.getSummarySource)

	s.mcp.AddTool(mcp.NewTool("get_pdf_content",
		mcp.WithDescription("Locate an item's PDF attachment and extract its full text."),
		mcp.WithString("item_key", mcp.Required(), mcp.Description("Item key")),
	), s.getPDFContent)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format that add_note content must follow."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("zotero://note-format", "Note Format",
			mcp.WithResourceDescription("Zotero HTML note format that add_note content must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError renders a failed operation for the LLM. Taxonomy errors carry
// actionable messages already; everything else is passed through verbatim.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchPapers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags := req.GetStringSlice("tags", nil)
	text := req.GetString("query", "")

	// Presence check before defaulting: an explicit limit of 0 must reach
	// the normalizer and fail there, not be mistaken for "no limit".
	var limit *int
	if _, ok := req.GetArguments()["limit"]; ok {
		n := req.GetInt("limit", 0)
		limit = &n
	}

	items, err := s.svc.Search(ctx, tags, text, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"items": items,
		"count": len(items),
	}), nil
}

func (s *Server) getPaper(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("item_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.svc.GetItem(ctx, key)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(item), nil
}

func (s *Server) getPaperNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("item_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.svc.GetNotes(ctx, key)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"notes": notes,
		"count": len(notes),
	}), nil
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("item_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("note_text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tags := req.GetStringSlice("tags", nil)

	note, err := s.svc.AddNote(ctx, key, content, tags)
	if err != nil {
		return toolError(err), nil
	}

	if s.broker != nil {
		s.broker.PublishNoteCreated(key, note.Key)
	}
	return jsonResult(note), nil
}

func (s *Server) getSummarySource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("item_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := s.svc.GetSummarySource(ctx, key)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(src), nil
}

func (s *Server) getPDFContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("item_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := s.svc.GetPDFContent(ctx, key)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(content), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "zotero://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
