// Package llm adapts chat-completion providers to the pipeline's
// structured summarization contract.
package llm

import (
	"context"
	"strings"
)

// Classification values the summarizer may assign.
const (
	ClassificationToRead = "to_read"
	ClassificationSkip   = "skip"
)

// StructuredSummary is the JSON shape the summarization prompt asks for.
type StructuredSummary struct {
	Title          string   `json:"title"`
	Overview       string   `json:"overview"`
	BulletPoints   []string `json:"bullet_points"`
	Quotes         []string `json:"quotes,omitempty"`
	Topics         []string `json:"topics,omitempty"`
	Classification string   `json:"classification,omitempty"`
}

// Client summarizes extracted content. A nil summary with a nil error
// means the provider answered but the answer was unusable; the caller
// treats that as an empty-summary failure, not a transport error.
type Client interface {
	SummarizeContent(ctx context.Context, title, text string) (*StructuredSummary, error)
}

// Transcriber converts downloaded audio into text.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, filename string, audio []byte) (string, error)
}

// Valid reports whether the summary carries enough substance to persist.
func (s *StructuredSummary) Valid() bool {
	if s == nil {
		return false
	}

	return strings.TrimSpace(s.Overview) != "" || len(s.BulletPoints) > 0
}

// normalizeClassification maps free-form model output onto the two
// allowed values, defaulting to to_read.
func normalizeClassification(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ClassificationSkip, "skipped", "ignore":
		return ClassificationSkip
	default:
		return ClassificationToRead
	}
}
