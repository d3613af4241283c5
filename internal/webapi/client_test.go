package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/swairshah/zotero-mcp-server/internal/apperr"
	"github.com/swairshah/zotero-mcp-server/internal/query"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "12345", "secret", WithRetryBase(5*time.Millisecond))
}

func itemJSON(key, itemType, title string, tags ...string) map[string]any {
	tagObjs := make([]map[string]string, len(tags))
	for i, tg := range tags {
		tagObjs[i] = map[string]string{"tag": tg}
	}
	return map[string]any{
		"key": key,
		"data": map[string]any{
			"key":      key,
			"itemType": itemType,
			"title":    title,
			"tags":     tagObjs,
		},
	}
}

func TestSearch_PaginatesUntilExhausted(t *testing.T) {
	pages := [][]map[string]any{
		{itemJSON("K1", "book", "one"), itemJSON("K2", "book", "two")},
		{itemJSON("K3", "book", "three")},
	}
	var requests int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.Header.Get("Zotero-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		w.Header().Set("Total-Results", "3")
		page := 0
		if start >= 2 {
			page = 1
		}
		json.NewEncoder(w).Encode(pages[page])
	}))

	items, err := c.Search(context.Background(), query.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestSearch_StopsOnceLimitAssembled(t *testing.T) {
	var requests int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Total-Results", "500")
		// Every page returns two fresh items; with limit=2 a single page
		// must be enough.
		start := r.URL.Query().Get("start")
		json.NewEncoder(w).Encode([]map[string]any{
			itemJSON("A"+start, "book", "a"),
			itemJSON("B"+start, "book", "b"),
		})
	}))

	items, err := c.Search(context.Background(), query.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("requests = %d, want 1 (must stop once limit is assembled)", n)
	}
}

func TestSearch_TagsSentConjunctively(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tags := r.URL.Query()["tag"]
		if len(tags) != 2 || tags[0] != "ml" || tags[1] != "survey" {
			t.Errorf("tag params = %v", tags)
		}
		w.Header().Set("Total-Results", "0")
		fmt.Fprint(w, "[]")
	}))

	if _, err := c.Search(context.Background(), query.Filter{Tags: []string{"ml", "survey"}}); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var requests int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Total-Results", "1")
		json.NewEncoder(w).Encode([]map[string]any{itemJSON("K1", "book", "one")})
	}))

	items, err := c.Search(context.Background(), query.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestSearch_ExhaustedRetriesReportUnavailable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Search(context.Background(), query.Filter{})
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestGetItem_NotFoundNotRetried(t *testing.T) {
	var requests int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetItem(context.Background(), "NOPE")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("requests = %d, want 1 (not-found must not retry)", n)
	}
}

func TestGetItem_AuthFailureNotRetried(t *testing.T) {
	var requests int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.GetItem(context.Background(), "K1")
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("requests = %d, want 1 (auth errors must not retry)", n)
	}
}

func TestRequest_RateLimitHonorsRetryAfter(t *testing.T) {
	var requests int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Total-Results", "0")
		fmt.Fprint(w, "[]")
	}))

	start := time.Now()
	if _, err := c.Search(context.Background(), query.Filter{}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("elapsed = %v, want >= 1s (Retry-After not honored)", elapsed)
	}
}

func TestGetNotes_FiltersNoteChildren(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"key": "N1", "data": map[string]any{"key": "N1", "itemType": "note", "parentItem": "P1", "note": "<p>hi</p>"}},
			{"key": "A1", "data": map[string]any{"key": "A1", "itemType": "attachment", "parentItem": "P1", "contentType": "application/pdf"}},
		})
	}))

	notes, err := c.GetNotes(context.Background(), "P1")
	if err != nil {
		t.Fatalf("GetNotes: %v", err)
	}
	if len(notes) != 1 || notes[0].Key != "N1" || notes[0].ParentKey != "P1" {
		t.Fatalf("notes = %+v", notes)
	}
}

func TestAddNote_RoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/12345/items/P1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemJSON("P1", "journalArticle", "Parent"))
	})
	var posted []byte
	mux.HandleFunc("POST /users/12345/items", func(w http.ResponseWriter, r *http.Request) {
		var body []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 1 {
			t.Errorf("bad write payload: %v", err)
		}
		posted, _ = json.Marshal(body)
		json.NewEncoder(w).Encode(map[string]any{
			"successful": map[string]any{
				"0": map[string]any{
					"key": "NOTE1",
					"data": map[string]any{
						"key": "NOTE1", "itemType": "note", "parentItem": "P1", "note": body[0]["note"],
					},
				},
			},
		})
	})
	c := testClient(t, mux)

	note, err := c.AddNote(context.Background(), "P1", "<p>new finding</p>", []string{"Todo"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if note.Key != "NOTE1" || note.ParentKey != "P1" {
		t.Errorf("note = %+v", note)
	}
	if note.Content != "<p>new finding</p>" {
		t.Errorf("content = %q", note.Content)
	}
	if posted == nil {
		t.Fatal("nothing was posted")
	}
}

func TestAddNote_MissingParentIsNotFound(t *testing.T) {
	var writes int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/12345/items/GONE", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /users/12345/items", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&writes, 1)
	})
	c := testClient(t, mux)

	_, err := c.AddNote(context.Background(), "GONE", "<p>x</p>", nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if atomic.LoadInt32(&writes) != 0 {
		t.Error("write was issued for a missing parent")
	}
}

func TestAddNote_ServiceRefusalIsWriteRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/12345/items/P1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(itemJSON("P1", "book", "Parent"))
	})
	mux.HandleFunc("POST /users/12345/items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"failed": map[string]any{
				"0": map[string]any{"code": 400, "message": "Invalid note"},
			},
		})
	})
	c := testClient(t, mux)

	_, err := c.AddNote(context.Background(), "P1", "<p>x</p>", nil)
	if !errors.Is(err, apperr.ErrWriteRejected) {
		t.Fatalf("err = %v, want ErrWriteRejected", err)
	}
}

func TestGetPDF_DownloadsFirstPDFAttachment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/12345/items/P1/children", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"key": "N1", "data": map[string]any{"key": "N1", "itemType": "note", "parentItem": "P1"}},
			{"key": "ATT1", "data": map[string]any{"key": "ATT1", "itemType": "attachment", "contentType": "application/pdf", "parentItem": "P1"}},
		})
	})
	mux.HandleFunc("GET /users/12345/items/ATT1/file", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-bytes"))
	})
	c := testClient(t, mux)

	pdf, err := c.GetPDF(context.Background(), "P1")
	if err != nil {
		t.Fatalf("GetPDF: %v", err)
	}
	if pdf.AttachmentKey != "ATT1" || string(pdf.Data) != "%PDF-bytes" {
		t.Errorf("pdf = %+v", pdf)
	}
}

func TestGetPDF_NoAttachmentIsNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))

	_, err := c.GetPDF(context.Background(), "P1")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
