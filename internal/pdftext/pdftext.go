// Package pdftext extracts plain text from PDF attachments.
package pdftext

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Result holds the extracted text of a whole document.
type Result struct {
	Text  string
	Pages int
}

// Extract parses a PDF from memory and returns its plain text and page
// count. The underlying parser panics on some malformed files, so the panic
// is converted into an error here.
func Extract(data []byte) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdftext: malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("pdftext: open: %w", err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("pdftext: extract text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return Result{}, fmt.Errorf("pdftext: read text: %w", err)
	}

	return Result{Text: buf.String(), Pages: r.NumPage()}, nil
}

// Snippet truncates text to at most max runes, appending an ellipsis when
// something was cut.
func Snippet(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
