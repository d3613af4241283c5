package models

// Note is a free-text annotation attached to exactly one parent item.
// Content is Zotero note HTML; use htmltext to flatten it for display.
type Note struct {
	Key       string   `json:"key"`
	ParentKey string   `json:"parent_key"`
	Content   string   `json:"text"`
	Tags      []string `json:"tags"`
	DateAdded string   `json:"date_added,omitempty"`
}
