package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Provider over the local file system. It never writes: the
// storage directory belongs to the Zotero desktop app.
type FS struct {
	root string // absolute path to the Zotero storage directory
}

// NewFS creates a provider rooted at the given directory. The directory
// must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// attachmentDir resolves an attachment key against the storage root and
// rejects any result that escapes it (directory traversal).
func (f *FS) attachmentDir(key string) (string, error) {
	cleaned := filepath.Clean(key)
	if cleaned == "." || filepath.IsAbs(cleaned) || strings.Contains(cleaned, string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: invalid attachment key: %s", key)
	}
	return filepath.Join(f.root, cleaned), nil
}

// FindPDF returns the first PDF file stored under the attachment key's
// directory.
func (f *FS) FindPDF(attachmentKey string) ([]byte, string, error) {
	dir, err := f.attachmentDir(attachmentKey)
	if err != nil {
		return nil, "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("storage: attachment dir %s: %w", attachmentKey, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, "", fmt.Errorf("storage: read %s: %w", e.Name(), err)
		}
		return data, e.Name(), nil
	}
	return nil, "", fmt.Errorf("storage: no pdf in attachment dir %s: %w", attachmentKey, fs.ErrNotExist)
}
