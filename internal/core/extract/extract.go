// Package extract turns fetched bytes into structured content. Each
// Strategy handles one document family; the Registry picks the first
// strategy that claims a URL and its response headers.
package extract

import (
	"net/http"
	"time"
)

// Result is the outcome of a single extraction.
type Result struct {
	Title            string
	Author           string
	PublishedAt      time.Time
	Body             string
	BodyHTML         string
	Markdown         string
	CanonicalURL     string
	GatePageDetected bool
	GateReason       string
	WordCount        int
}

// Strategy extracts content from one family of documents.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// CanHandle reports whether this strategy should process the document.
	// Headers may be nil when the fetch did not reach the server.
	CanHandle(url string, headers http.Header) bool

	// Process extracts structured content from the raw document bytes.
	Process(url string, content []byte) (*Result, error)
}

// Registry holds strategies in priority order.
type Registry struct {
	strategies []Strategy
}

// NewRegistry builds a registry. Order matters: the first strategy whose
// CanHandle returns true wins.
func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: strategies}
}

// Select returns the first strategy that can handle the document, or nil
// when none matches.
func (r *Registry) Select(url string, headers http.Header) Strategy {
	for _, s := range r.strategies {
		if s.CanHandle(url, headers) {
			return s
		}
	}

	return nil
}
