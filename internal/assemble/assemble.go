// Package assemble translates backend-specific raw shapes into the canonical
// Item/Note entities. All knowledge of the Zotero Web API JSON layout and of
// the zotero.sqlite row layout lives here, so schema drift on either side is
// contained in one package.
package assemble

import (
	"fmt"
	"strings"

	"github.com/swairshah/zotero-mcp-server/internal/models"
)

// APITag is one entry of the "tags" array in Web API item JSON.
type APITag struct {
	Tag string `json:"tag"`
}

// APIItemData is the "data" object of a Web API item response. The same
// shape covers regular items, notes, and attachments; unused fields decode
// to their zero values.
type APIItemData struct {
	Key          string           `json:"key"`
	ItemType     string           `json:"itemType"`
	Title        string           `json:"title"`
	AbstractNote string           `json:"abstractNote"`
	URL          string           `json:"url"`
	Date         string           `json:"date"`
	DateAdded    string           `json:"dateAdded"`
	DateModified string           `json:"dateModified"`
	Creators     []models.Creator `json:"creators"`
	Tags         []APITag         `json:"tags"`
	ParentItem   string           `json:"parentItem"`
	Note         string           `json:"note"`
	ContentType  string           `json:"contentType"`
	Filename     string           `json:"filename"`
}

// APIItem is one element of a Web API /items response.
type APIItem struct {
	Key  string      `json:"key"`
	Data APIItemData `json:"data"`
}

// ItemRow is the raw result of the database backend's item query, creators
// and tags already gathered from their join tables.
type ItemRow struct {
	Key          string
	ItemType     string
	Title        string
	Abstract     string
	URL          string
	Date         string
	DateAdded    string
	DateModified string
	Creators     []models.Creator
	Tags         []string
	Attachments  []models.Attachment
}

// NoteRow is the raw result of the database backend's note query.
type NoteRow struct {
	Key       string
	ParentKey string
	Content   string
	DateAdded string
	Tags      []string
}

// ItemsFromAPI builds canonical items from raw Web API responses, in the
// order the service delivered them. Attachment and note entries are skipped,
// duplicates (by key) keep their first occurrence, and when limit > 0 the
// result is truncated to at most that many items.
func ItemsFromAPI(raw []APIItem, limit int) []models.Item {
	items := make([]models.Item, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if r.Data.ItemType == "attachment" || r.Data.ItemType == "note" {
			continue
		}
		key := r.Key
		if key == "" {
			key = r.Data.Key
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, ItemFromAPI(r))
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items
}

// ItemFromAPI converts a single raw Web API item.
func ItemFromAPI(r APIItem) models.Item {
	d := r.Data
	key := r.Key
	if key == "" {
		key = d.Key
	}
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, t.Tag)
	}
	return models.Item{
		Key:          key,
		Title:        titleOrUnknown(d.Title),
		Creators:     nonNil(d.Creators),
		ItemType:     d.ItemType,
		Year:         yearFromDate(d.Date),
		Abstract:     d.AbstractNote,
		URL:          d.URL,
		Tags:         NormalizeTags(tags),
		DateAdded:    d.DateAdded,
		DateModified: d.DateModified,
	}
}

// NotesFromAPI builds canonical notes from the children of parentKey,
// keeping only entries whose itemType is "note". A note child without a
// resolvable parent is a data-integrity error and is surfaced, not dropped.
func NotesFromAPI(parentKey string, raw []APIItem) ([]models.Note, error) {
	notes := make([]models.Note, 0, len(raw))
	for _, r := range raw {
		if r.Data.ItemType != "note" {
			continue
		}
		parent := r.Data.ParentItem
		if parent == "" {
			return nil, fmt.Errorf("assemble: orphan note %s has no parent item", r.Key)
		}
		if parent != parentKey {
			continue
		}
		tags := make([]string, 0, len(r.Data.Tags))
		for _, t := range r.Data.Tags {
			tags = append(tags, t.Tag)
		}
		notes = append(notes, models.Note{
			Key:       r.Key,
			ParentKey: parent,
			Content:   r.Data.Note,
			Tags:      NormalizeTags(tags),
			DateAdded: r.Data.DateAdded,
		})
	}
	return notes, nil
}

// ItemsFromRows builds canonical items from database rows, preserving the
// database's stable row order. Dedupe and limit truncation mirror
// ItemsFromAPI: the conjunctive tag filter is evaluated post-join and may
// overshoot, so the final cut happens here.
func ItemsFromRows(rows []ItemRow, limit int) []models.Item {
	items := make([]models.Item, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.Key]; dup {
			continue
		}
		seen[r.Key] = struct{}{}
		items = append(items, ItemFromRow(r))
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items
}

// ItemFromRow converts a single raw database row.
func ItemFromRow(r ItemRow) models.Item {
	return models.Item{
		Key:          r.Key,
		Title:        titleOrUnknown(r.Title),
		Creators:     nonNil(r.Creators),
		ItemType:     r.ItemType,
		Year:         yearFromDate(r.Date),
		Abstract:     r.Abstract,
		URL:          r.URL,
		Tags:         NormalizeTags(r.Tags),
		Attachments:  r.Attachments,
		DateAdded:    r.DateAdded,
		DateModified: r.DateModified,
	}
}

// NotesFromRows converts raw note rows. A row without a parent key is a
// data-integrity error.
func NotesFromRows(rows []NoteRow) ([]models.Note, error) {
	notes := make([]models.Note, 0, len(rows))
	for _, r := range rows {
		if r.ParentKey == "" {
			return nil, fmt.Errorf("assemble: orphan note %s has no parent item", r.Key)
		}
		notes = append(notes, models.Note{
			Key:       r.Key,
			ParentKey: r.ParentKey,
			Content:   r.Content,
			Tags:      NormalizeTags(r.Tags),
			DateAdded: r.DateAdded,
		})
	}
	return notes, nil
}

// NormalizeTags lower-cases, trims, and deduplicates tags in first-seen
// order. Canonical items never carry mixed-case or duplicate tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// yearFromDate extracts the leading year from a Zotero date value
// ("2023-05-01" or "2023"). Empty input yields empty output.
func yearFromDate(date string) string {
	if date == "" {
		return ""
	}
	year, _, _ := strings.Cut(date, "-")
	return year
}

func titleOrUnknown(title string) string {
	if title == "" {
		return "Unknown Title"
	}
	return title
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
