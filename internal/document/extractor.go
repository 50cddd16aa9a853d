// Package document converts uploaded document bytes into chunked text.
//
// Extractor parses PDF bytes into linear text; Chunker splits that text
// into bounded, overlapping segments suitable for embedding. Both are
// pure CPU-bound components with no I/O.
package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractionError indicates the input could not be parsed as a
// well-formed PDF. An empty extraction result is not an error; callers
// decide how to treat empty documents.
type ExtractionError struct {
	Filename string
	Reason   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %s", e.Filename, e.Reason)
}

// Extractor extracts plain text from PDF documents.
type Extractor struct{}

// NewExtractor creates a new PDF text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses data as a PDF and returns the concatenated page text.
// Pages are walked in order; pages yielding no text are skipped; the
// remaining page texts are joined with a blank line.
//
// Returns *ExtractionError when the bytes are not a parseable PDF.
func (e *Extractor) Extract(data []byte, filename string) (text string, err error) {
	// The underlying parser panics on some malformed inputs instead of
	// returning an error; treat both as structural corruption.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Filename: filename, Reason: fmt.Sprintf("%v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Filename: filename, Reason: err.Error()}
	}

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is not structural corruption
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		parts = append(parts, pageText)
	}

	return strings.Join(parts, "\n\n"), nil
}
