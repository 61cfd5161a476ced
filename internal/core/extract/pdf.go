package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"

	cerrors "github.com/readstack/readstack/internal/core/errors"
)

// PDFStrategy extracts plain text from PDF documents.
type PDFStrategy struct{}

func NewPDFStrategy() *PDFStrategy {
	return &PDFStrategy{}
}

func (s *PDFStrategy) Name() string {
	return "pdf"
}

// CanHandle matches on the .pdf extension or the application/pdf content
// type.
func (s *PDFStrategy) CanHandle(rawURL string, headers http.Header) bool {
	if strings.HasSuffix(strings.ToLower(strings.SplitN(rawURL, "?", 2)[0]), ".pdf") {
		return true
	}

	if headers == nil {
		return false
	}

	return strings.Contains(strings.ToLower(headers.Get("Content-Type")), "application/pdf")
}

// Process reads the whole PDF text stream. PDFs carry no DOM metadata, so
// only the body and word count are populated; the title stays whatever
// the row already has.
func (s *PDFStrategy) Process(rawURL string, content []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	raw, err := io.ReadAll(textReader)
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	body := normalizeText(string(raw))
	if body == "" {
		return nil, fmt.Errorf("%w: no text in %s", cerrors.ErrEmptyDocument, rawURL)
	}

	return &Result{
		Body:      body,
		WordCount: len(strings.Fields(body)),
	}, nil
}
