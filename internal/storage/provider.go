// Package storage provides read-only access to the Zotero storage
// directory, where each attachment lives under a subdirectory named after
// its key.
package storage

// Provider resolves attachment files on disk.
type Provider interface {
	// FindPDF returns the bytes and filename of the first PDF inside the
	// attachment directory for key. A missing directory or a directory
	// without a PDF yields an error wrapping fs.ErrNotExist.
	FindPDF(attachmentKey string) ([]byte, string, error)
}
