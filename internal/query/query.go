// Package query turns raw caller search input into a canonical filter.
package query

import (
	"fmt"
	"strings"

	"github.com/swairshah/zotero-mcp-server/internal/apperr"
)

// Filter is the normalized, ephemeral search request handed to a backend.
// Tags are lower-cased and deduplicated; Text is trimmed ("" means no text
// filter); Limit of 0 means unbounded.
type Filter struct {
	Tags  []string
	Text  string
	Limit int
}

// Normalize builds a Filter from raw caller input.
//
// Tags are lower-cased, trimmed, and deduplicated in first-seen order;
// blank tags are dropped. The text fragment is trimmed. A limit, when
// supplied (non-nil), must be positive; anything else fails with
// ErrInvalidQuery rather than being silently clamped.
func Normalize(rawTags []string, rawText string, limit *int) (Filter, error) {
	f := Filter{Text: strings.TrimSpace(rawText)}

	seen := make(map[string]struct{}, len(rawTags))
	for _, t := range rawTags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		f.Tags = append(f.Tags, t)
	}

	if limit != nil {
		if *limit <= 0 {
			return Filter{}, fmt.Errorf("%w: limit must be positive, got %d", apperr.ErrInvalidQuery, *limit)
		}
		f.Limit = *limit
	}

	return f, nil
}
