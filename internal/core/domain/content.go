// Package domain defines the core content entities shared across the
// pipeline, storage, and worker packages.
package domain

import "time"

// ContentType identifies the kind of content an item holds.
type ContentType string

const (
	ContentTypeArticle ContentType = "article"
	ContentTypePodcast ContentType = "podcast"
	ContentTypeNews    ContentType = "news"
	ContentTypeUnknown ContentType = "unknown"
)

// Status is the pipeline state of a content item.
//
// Transitions move forward only: new -> processing -> completed/failed/skipped.
// processing may re-enter itself while a podcast waits on an async
// transcription sub-task. skipped is reached through canonical-duplicate
// resolution or explicit classification.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Terminal reports whether the status ends pipeline processing for the item.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Classification is the reading recommendation produced by summarization.
type Classification string

const (
	ClassificationToRead Classification = "to_read"
	ClassificationSkip   Classification = "skip"
)

// Content is a single content item. Identity is the (URL, Type) pair,
// which is globally unique; a violation at commit time is a recoverable
// race, not a bug.
type Content struct {
	ID             string
	Type           ContentType
	URL            string
	SourceURL      string
	Title          string
	Status         Status
	Classification Classification
	ErrorMessage   string
	RetryCount     int

	// Metadata is an open JSON map. Keys are a loose per-type convention,
	// not a fixed schema; unknown keys must be passed through untouched.
	Metadata map[string]any

	CreatedAt    time.Time
	ProcessedAt  *time.Time
	CheckedOutBy string
	CheckedOutAt *time.Time
}

// EnsureMetadata initializes the metadata map if it is nil.
func (c *Content) EnsureMetadata() map[string]any {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}

	return c.Metadata
}
