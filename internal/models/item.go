// Package models defines the canonical backend-independent entities.
package models

// Creator is one author/editor entry, in the order the library stores them.
type Creator struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CreatorType string `json:"creatorType,omitempty"`
}

// Attachment references a file attached to an item.
type Attachment struct {
	Key         string `json:"key"`
	Title       string `json:"title,omitempty"`
	Path        string `json:"path,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Item is a bibliographic entry in its canonical shape. The same logical
// entry carries the same Key on both backends.
type Item struct {
	Key          string       `json:"key"`
	Title        string       `json:"title"`
	Creators     []Creator    `json:"authors"`
	ItemType     string       `json:"item_type"`
	Year         string       `json:"year,omitempty"`
	Abstract     string       `json:"abstract,omitempty"`
	URL          string       `json:"url,omitempty"`
	Tags         []string     `json:"tags"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	DateAdded    string       `json:"date_added,omitempty"`
	DateModified string       `json:"date_modified,omitempty"`
}
