// Package apperr defines the error taxonomy shared by both backends.
// Backend-native failures (HTTP statuses, SQLite error codes) are translated
// into these sentinels before they leave the backend packages, so callers
// only ever match against this set with errors.Is.
package apperr

import "errors"

var (
	// ErrInvalidQuery marks malformed caller input, rejected before any
	// backend call is made.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound means the item or note key does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported marks an operation that is impossible on the selected
	// backend, e.g. a note write against the read-only database snapshot.
	ErrUnsupported = errors.New("operation not supported by backend")

	// ErrUnavailable means the backend cannot be reached right now: the
	// database file is locked by the Zotero desktop app, or the web API
	// stayed unreachable after retries were exhausted. The wrapping message
	// states whether retrying later is reasonable.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrWriteRejected means the remote service refused a write
	// (permissions, malformed content). Carries whatever detail the
	// service provided.
	ErrWriteRejected = errors.New("write rejected")

	// ErrNoSummarySource means an item has no abstract, no notes, and no
	// extractable PDF text. Callers must not be handed an empty string to
	// summarize.
	ErrNoSummarySource = errors.New("no summary source available")
)
