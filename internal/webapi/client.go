// Package webapi implements the library backend that talks to the Zotero
// Web API v3. It is the write-capable backend: reads paginate through the
// service in its native order, writes create notes server-side.
package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/swairshah/zotero-mcp-server/internal/apperr"
	"github.com/swairshah/zotero-mcp-server/internal/assemble"
	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/models"
	"github.com/swairshah/zotero-mcp-server/internal/query"
)

const (
	// DefaultBaseURL is the public Zotero API endpoint.
	DefaultBaseURL = "https://api.zotero.org"

	apiVersion = "3"
	pageSize   = 100

	defaultMaxAttempts = 4
	defaultRetryBase   = 500 * time.Millisecond
	defaultRateWait    = 10 * time.Second
)

// Client is a Zotero Web API backend for one user library.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userID      string
	apiKey      string
	maxAttempts int
	retryBase   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxAttempts sets the retry ceiling for transient failures.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryBase sets the initial backoff interval.
func WithRetryBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBase = d
		}
	}
}

// New creates a client for the given user library. baseURL may be empty to
// use the public endpoint.
func New(baseURL, userID, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		userID:      userID,
		apiKey:      apiKey,
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SupportsWrite reports that the web API accepts note writes.
func (c *Client) SupportsWrite() bool { return true }

// Kind identifies this backend.
func (c *Client) Kind() string { return library.KindAPI }

// Compile-time contract check.
var _ library.Backend = (*Client)(nil)

// Search pages through /users/{id}/items in the service's native order
// (dateAdded descending) and stops as soon as filter.Limit distinct items
// have been assembled, or every page is consumed. Conjunctive tag matching
// is pushed to the service via repeated tag parameters; dedupe and the
// final truncation live in the assembler.
func (c *Client) Search(ctx context.Context, f query.Filter) ([]models.Item, error) {
	params := url.Values{}
	if f.Text != "" {
		params.Set("q", f.Text)
		params.Set("qmode", "titleCreatorYear")
	}
	for _, tag := range f.Tags {
		params.Add("tag", tag)
	}
	params.Set("sort", "dateAdded")
	params.Set("direction", "desc")
	params.Set("limit", strconv.Itoa(pageSize))

	var raw []assemble.APIItem
	start := 0
	for {
		params.Set("start", strconv.Itoa(start))
		data, header, status, err := c.request(ctx, http.MethodGet, c.userPath("items"), params, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, c.readError(status, data)
		}

		var page []assemble.APIItem
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("webapi: decode items page: %w", err)
		}
		raw = append(raw, page...)

		if f.Limit > 0 {
			if items := assemble.ItemsFromAPI(raw, f.Limit); len(items) == f.Limit {
				return items, nil
			}
		}

		total, _ := strconv.Atoi(header.Get("Total-Results"))
		start += len(page)
		if len(page) == 0 || start >= total {
			break
		}
	}

	return assemble.ItemsFromAPI(raw, f.Limit), nil
}

// GetItem fetches a single item by key.
func (c *Client) GetItem(ctx context.Context, key string) (models.Item, error) {
	data, _, status, err := c.request(ctx, http.MethodGet, c.userPath("items/"+key), nil, nil)
	if err != nil {
		return models.Item{}, err
	}
	if status == http.StatusNotFound {
		return models.Item{}, fmt.Errorf("%w: item %s", apperr.ErrNotFound, key)
	}
	if status != http.StatusOK {
		return models.Item{}, c.readError(status, data)
	}

	var raw assemble.APIItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Item{}, fmt.Errorf("webapi: decode item %s: %w", key, err)
	}
	return assemble.ItemFromAPI(raw), nil
}

// GetNotes returns all note children of key, in the service's order.
func (c *Client) GetNotes(ctx context.Context, key string) ([]models.Note, error) {
	raw, err := c.children(ctx, key)
	if err != nil {
		return nil, err
	}
	return assemble.NotesFromAPI(key, raw)
}

// noteTemplate is the Web API create payload for a child note.
type noteTemplate struct {
	ItemType   string            `json:"itemType"`
	ParentItem string            `json:"parentItem"`
	Note       string            `json:"note"`
	Tags       []assemble.APITag `json:"tags"`
}

// writeResponse is the envelope the Web API returns for item writes.
type writeResponse struct {
	Successful map[string]assemble.APIItem `json:"successful"`
	Failed     map[string]struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

// AddNote verifies the parent exists, then creates a note under it.
func (c *Client) AddNote(ctx context.Context, parentKey, content string, tags []string) (models.Note, error) {
	if _, err := c.GetItem(ctx, parentKey); err != nil {
		return models.Note{}, err
	}

	tmpl := noteTemplate{
		ItemType:   "note",
		ParentItem: parentKey,
		Note:       content,
		Tags:       make([]assemble.APITag, 0, len(tags)),
	}
	for _, t := range assemble.NormalizeTags(tags) {
		tmpl.Tags = append(tmpl.Tags, assemble.APITag{Tag: t})
	}
	body, err := json.Marshal([]noteTemplate{tmpl})
	if err != nil {
		return models.Note{}, fmt.Errorf("webapi: encode note: %w", err)
	}

	data, _, status, err := c.request(ctx, http.MethodPost, c.userPath("items"), nil, body)
	if err != nil {
		return models.Note{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return models.Note{}, fmt.Errorf("%w: HTTP %d: %s", apperr.ErrWriteRejected, status, truncateBody(data))
	}

	var resp writeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.Note{}, fmt.Errorf("webapi: decode write response: %w", err)
	}
	if created, ok := resp.Successful["0"]; ok {
		notes, err := assemble.NotesFromAPI(parentKey, []assemble.APIItem{created})
		if err != nil || len(notes) == 0 {
			// Service accepted the write but echoed an unexpected shape;
			// fall back to what we know we sent.
			return models.Note{Key: created.Key, ParentKey: parentKey, Content: content, Tags: assemble.NormalizeTags(tags)}, nil
		}
		return notes[0], nil
	}
	if failure, ok := resp.Failed["0"]; ok {
		return models.Note{}, fmt.Errorf("%w: %s (code %d)", apperr.ErrWriteRejected, failure.Message, failure.Code)
	}
	return models.Note{}, fmt.Errorf("%w: unrecognized write response", apperr.ErrWriteRejected)
}

// GetPDF finds the item's first PDF attachment among its children and
// downloads its bytes via the file endpoint.
func (c *Client) GetPDF(ctx context.Context, itemKey string) (library.PDF, error) {
	children, err := c.children(ctx, itemKey)
	if err != nil {
		return library.PDF{}, err
	}

	var attKey string
	for _, child := range children {
		if child.Data.ItemType == "attachment" && child.Data.ContentType == "application/pdf" {
			attKey = child.Key
			break
		}
	}
	if attKey == "" {
		return library.PDF{}, fmt.Errorf("%w: no pdf attachment for item %s", apperr.ErrNotFound, itemKey)
	}

	data, _, status, err := c.request(ctx, http.MethodGet, c.userPath("items/"+attKey+"/file"), nil, nil)
	if err != nil {
		return library.PDF{}, err
	}
	if status == http.StatusNotFound {
		return library.PDF{}, fmt.Errorf("%w: attachment file %s", apperr.ErrNotFound, attKey)
	}
	if status != http.StatusOK {
		return library.PDF{}, c.readError(status, data)
	}
	return library.PDF{AttachmentKey: attKey, Data: data}, nil
}

func (c *Client) children(ctx context.Context, key string) ([]assemble.APIItem, error) {
	data, _, status, err := c.request(ctx, http.MethodGet, c.userPath("items/"+key+"/children"), nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: item %s", apperr.ErrNotFound, key)
	}
	if status != http.StatusOK {
		return nil, c.readError(status, data)
	}
	var raw []assemble.APIItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("webapi: decode children of %s: %w", key, err)
	}
	return raw, nil
}

func (c *Client) userPath(suffix string) string {
	return "/users/" + c.userID + "/" + suffix
}

// readError maps a non-retryable read status into the error taxonomy.
func (c *Client) readError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: authentication failed (HTTP %d), check the API key and user ID", apperr.ErrUnavailable, status)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: service rejected the query: %s", apperr.ErrInvalidQuery, truncateBody(body))
	default:
		return fmt.Errorf("%w: unexpected HTTP %d: %s", apperr.ErrUnavailable, status, truncateBody(body))
	}
}

// request performs one logical HTTP call with bounded retries. Transient
// failures (network errors, 5xx) back off exponentially; rate limiting
// (429, or a Backoff header) waits for the interval the service indicates,
// or a default when none is given. Authentication and not-found statuses
// are returned to the caller without retrying. When the attempt ceiling is
// reached the error is ErrUnavailable: whether retrying later helps is at
// the caller's discretion.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, http.Header, int, error) {
	delay := c.retryBase
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, nil, 0, fmt.Errorf("%w: %v", apperr.ErrUnavailable, ctx.Err())
			}
			delay *= 2
		}

		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("webapi: build request: %w", err)
		}
		req.Header.Set("Zotero-API-Version", apiVersion)
		if c.apiKey != "" {
			req.Header.Set("Zotero-API-Key", c.apiKey)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, 0, fmt.Errorf("%w: %v", apperr.ErrUnavailable, ctx.Err())
			}
			lastErr = err
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			delay = rateLimitWait(resp.Header)
			lastErr = fmt.Errorf("rate limited (HTTP 429)")
			continue
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
			continue
		}

		// The service may ask well-behaved clients to slow down even on
		// success; honor it before the next call goes out.
		if wait := backoffHeader(resp.Header); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}

		return data, resp.Header, resp.StatusCode, nil
	}

	return nil, nil, 0, fmt.Errorf("%w: service unreachable after %d attempts: %v", apperr.ErrUnavailable, c.maxAttempts, lastErr)
}

// rateLimitWait returns how long a 429 asks us to wait.
func rateLimitWait(h http.Header) time.Duration {
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if wait := backoffHeader(h); wait > 0 {
		return wait
	}
	return defaultRateWait
}

func backoffHeader(h http.Header) time.Duration {
	if secs, err := strconv.Atoi(h.Get("Backoff")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncateBody(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
