// Package content implements the pipeline worker that drives a content
// item from new to a terminal state: fetch, extract, summarize, merge
// and commit.
package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/readstack/readstack/internal/core/domain"
	cerrors "github.com/readstack/readstack/internal/core/errors"
	"github.com/readstack/readstack/internal/core/extract"
	"github.com/readstack/readstack/internal/core/llm"
	"github.com/readstack/readstack/internal/core/metadata"
	"github.com/readstack/readstack/internal/platform/observability"
	db "github.com/readstack/readstack/internal/storage"
)

// maxConflictRetries bounds how many times a commit may hit a canonical
// conflict before the item is declared unprocessable. A second conflict
// after skip-resolution means the URL space is churning faster than we
// can resolve it.
const maxConflictRetries = 3

// Repository is the storage surface the worker needs.
type Repository interface {
	GetContentByID(ctx context.Context, id string) (*domain.Content, error)
	GetContentByURL(ctx context.Context, url string, contentType domain.ContentType) (*domain.Content, error)
	UpdateContent(ctx context.Context, c *domain.Content) error
	RefreshMergeContentMetadata(ctx context.Context, id string, base, updated map[string]any, preserveLatest ...string) (map[string]any, error)
	CheckoutContent(ctx context.Context, id, workerID string) error
}

// Queue enqueues follow-up tasks.
type Queue interface {
	Enqueue(ctx context.Context, taskType, contentID string, payload map[string]any) (string, error)
}

// Fetcher downloads raw content.
type Fetcher interface {
	FetchContent(ctx context.Context, url string) ([]byte, http.Header, error)
}

// ErrorLogger records processing failures out of band.
type ErrorLogger interface {
	LogProcessingError(ctx context.Context, contentID string, procErr error, errContext map[string]any) error
}

// Deps holds the worker's collaborators. All of them are injected; the
// worker constructs nothing itself.
type Deps struct {
	Repo       Repository
	Queue      Queue
	Fetcher    Fetcher
	Registry   *extract.Registry
	Aggregate  *extract.AggregateStrategy
	Summarizer llm.Client
	Errors     ErrorLogger
	Logger     *zerolog.Logger

	// MaxContentChars caps the extracted text stored in metadata and fed
	// to summarization. Zero means unlimited.
	MaxContentChars int
}

// Worker processes one content item per ProcessContent call.
type Worker struct {
	repo            Repository
	queue           Queue
	fetcher         Fetcher
	registry        *extract.Registry
	aggregate       *extract.AggregateStrategy
	summarizer      llm.Client
	errs            ErrorLogger
	logger          *zerolog.Logger
	maxContentChars int
}

// NewWorker builds a worker from its dependencies.
func NewWorker(deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Worker{
		repo:            deps.Repo,
		queue:           deps.Queue,
		fetcher:         deps.Fetcher,
		registry:        deps.Registry,
		aggregate:       deps.Aggregate,
		summarizer:      deps.Summarizer,
		errs:            deps.Errors,
		logger:          logger,
		maxContentChars: deps.MaxContentChars,
	}
}

// ProcessContent drives one item to a committed state. Returns true when
// a state was committed, including "handled as failure"; false when the
// row is missing or the commit itself could not be performed.
func (w *Worker) ProcessContent(ctx context.Context, contentID, workerID string) bool {
	c, err := w.repo.GetContentByID(ctx, contentID)
	if err != nil {
		if errors.Is(err, cerrors.ErrContentNotFound) {
			w.logger.Warn().Str("content_id", contentID).Msg("content not found, dropping task")
		} else {
			w.logger.Error().Err(err).Str("content_id", contentID).Msg("load content")
		}

		return false
	}

	// Base snapshot for the merge-on-commit. Everything the worker writes
	// into c.Metadata from here on is replayed onto the then-current
	// persisted state, never blindly overwritten.
	base := metadata.Clone(c.Metadata)
	c.EnsureMetadata()

	if err := w.repo.CheckoutContent(ctx, contentID, workerID); err != nil {
		w.logger.Warn().Err(err).Str("content_id", contentID).Msg("checkout content")
	}

	c.Status = domain.StatusProcessing

	terminal, procErr := w.dispatch(ctx, c)
	if procErr != nil {
		return w.handleFailure(ctx, c, base, procErr)
	}

	if terminal && !c.Status.Terminal() {
		now := time.Now().UTC()
		c.Status = domain.StatusCompleted
		c.ProcessedAt = &now
	}

	c.CheckedOutBy = ""
	c.CheckedOutAt = nil

	if err := w.commit(ctx, c, base); err != nil {
		w.logger.Error().Err(err).Str("content_id", contentID).Msg("commit content")

		return false
	}

	if c.Status.Terminal() {
		observability.ContentProcessed.WithLabelValues(string(c.Type), string(c.Status)).Inc()
	}

	w.logger.Info().
		Str("content_id", contentID).
		Str("type", string(c.Type)).
		Str("status", string(c.Status)).
		Msg("content processed")

	return true
}

// dispatch routes by content type. terminal=false means the item stays
// in processing awaiting an async continuation.
func (w *Worker) dispatch(ctx context.Context, c *domain.Content) (terminal bool, err error) {
	switch c.Type {
	case domain.ContentTypePodcast:
		return w.processPodcast(ctx, c)
	case domain.ContentTypeNews:
		return true, w.processNews(ctx, c)
	default:
		// article is the default treatment for unknown types as well.
		return true, w.processArticle(ctx, c)
	}
}

// processArticle fetches, extracts, and summarizes a single page.
func (w *Worker) processArticle(ctx context.Context, c *domain.Content) error {
	body, headers, err := w.fetcher.FetchContent(ctx, c.URL)
	if err != nil {
		return fmt.Errorf("fetch content: %w", err)
	}

	strategy := w.registry.Select(c.URL, headers)
	if strategy == nil {
		return fmt.Errorf("%w: %s", cerrors.ErrNoStrategy, c.URL)
	}

	result, err := strategy.Process(c.URL, body)
	if err != nil {
		c.Metadata[domain.MetaKeyExtractionFailed] = true
		observability.ExtractionResults.WithLabelValues(strategy.Name(), "error").Inc()

		return fmt.Errorf("extract content: %w", err)
	}

	observability.ExtractionResults.WithLabelValues(strategy.Name(), "ok").Inc()

	text := result.Body

	if result.GatePageDetected {
		text, err = w.applyGateFallback(c, result)
		if err != nil {
			return err
		}
	}

	text = capContent(text, w.maxContentChars)

	w.applyExtraction(c, result, text)

	if result.CanonicalURL != "" && result.CanonicalURL != c.URL {
		if err := w.updateCanonicalURL(ctx, c, result.CanonicalURL); err != nil {
			return err
		}
	}

	// A row demoted to a canonical duplicate is done; never summarize it.
	if c.Status == domain.StatusSkipped {
		return nil
	}

	return w.summarize(ctx, c, text)
}

// applyGateFallback substitutes the pre-fetched RSS body when a gate page
// was served. Without a fallback the gate reason becomes the failure.
func (w *Worker) applyGateFallback(c *domain.Content, result *extract.Result) (string, error) {
	c.Metadata[domain.MetaKeyGatePageReason] = result.GateReason

	meta := domain.ArticleMetaFrom(c.Metadata)
	if meta.RSSContent == "" {
		c.Metadata[domain.MetaKeyExtractionFailed] = true
		observability.GatePagesDetected.WithLabelValues("false").Inc()

		return "", errors.New(result.GateReason)
	}

	c.Metadata[domain.MetaKeyUsedRSSFallback] = true
	observability.GatePagesDetected.WithLabelValues("true").Inc()

	w.logger.Info().
		Str("content_id", c.ID).
		Str("reason", result.GateReason).
		Msg("gate page detected, using RSS fallback body")

	return meta.RSSContent, nil
}

func (w *Worker) applyExtraction(c *domain.Content, result *extract.Result, text string) {
	if result.Title != "" {
		c.Title = result.Title
	}

	c.Metadata[domain.MetaKeyContent] = text

	if result.BodyHTML != "" {
		c.Metadata[domain.MetaKeyContentHTML] = result.BodyHTML
	}

	if result.Author != "" {
		c.Metadata[domain.MetaKeyAuthor] = result.Author
	}

	if !result.PublishedAt.IsZero() {
		c.Metadata[domain.MetaKeyPublishedAt] = result.PublishedAt.UTC().Format(time.RFC3339)
	}

	if result.WordCount > 0 {
		c.Metadata[domain.MetaKeyWordCount] = result.WordCount
	}
}

// processPodcast summarizes the transcript when present; otherwise it
// enqueues the async transcription sub-task and leaves the item in
// processing for a later pass.
func (w *Worker) processPodcast(ctx context.Context, c *domain.Content) (terminal bool, err error) {
	meta := domain.PodcastMetaFrom(c.Metadata)

	if meta.Transcript != "" {
		return true, w.summarize(ctx, c, meta.Transcript)
	}

	if meta.AudioURL == "" {
		return true, fmt.Errorf("%w: podcast %s has no audio url", cerrors.ErrEmptyDocument, c.ID)
	}

	if _, err := w.queue.Enqueue(ctx, db.TaskTypeTranscribe, c.ID, nil); err != nil {
		return true, fmt.Errorf("enqueue transcription: %w", err)
	}

	w.logger.Info().Str("content_id", c.ID).Msg("transcript absent, transcription enqueued")

	return false, nil
}

// processNews renders the aggregate's item list to markdown. Aggregates
// bypass the LLM stage entirely.
func (w *Worker) processNews(ctx context.Context, c *domain.Content) error {
	body, _, err := w.fetcher.FetchContent(ctx, c.URL)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}

	result, err := w.aggregate.Process(c.URL, body)
	if err != nil {
		c.Metadata[domain.MetaKeyExtractionFailed] = true
		observability.ExtractionResults.WithLabelValues(w.aggregate.Name(), "error").Inc()

		return fmt.Errorf("extract feed: %w", err)
	}

	observability.ExtractionResults.WithLabelValues(w.aggregate.Name(), "ok").Inc()

	if result.Title != "" && c.Title == "" {
		c.Title = result.Title
	}

	if items, err := w.aggregate.Items(body); err == nil {
		c.Metadata[domain.MetaKeyItems] = items
	}

	c.Metadata[domain.MetaKeyRenderedMarkdown] = result.Markdown

	return nil
}

// summarize invokes the LLM and persists the structured result. A nil
// summary from the client means the answer was unusable; that is an
// empty-summary failure, not a transport error.
func (w *Worker) summarize(ctx context.Context, c *domain.Content, text string) error {
	summary, err := w.summarizer.SummarizeContent(ctx, c.Title, capContent(text, w.maxContentChars))
	if err != nil {
		return fmt.Errorf("summarize content: %w", err)
	}

	if !summary.Valid() {
		return fmt.Errorf("%w: content %s", cerrors.ErrEmptySummary, c.ID)
	}

	c.Metadata[domain.MetaKeySummary] = summary
	c.Metadata[domain.MetaKeySummarizationDate] = time.Now().UTC().Format(time.RFC3339)

	if summary.Classification != "" {
		c.Classification = domain.Classification(summary.Classification)
	}

	return nil
}

// capContent bounds a text payload at maxChars characters, cutting on
// rune boundaries. Zero or negative maxChars disables the cap.
func capContent(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	return string(runes[:maxChars])
}

// handleFailure commits a failed state with an incremented retry count.
// Returns true because the failure itself was handled; false only when
// even the failure commit did not stick.
func (w *Worker) handleFailure(ctx context.Context, c *domain.Content, base map[string]any, procErr error) bool {
	c.Status = domain.StatusFailed
	c.RetryCount++
	c.ErrorMessage = procErr.Error()
	c.CheckedOutBy = ""
	c.CheckedOutAt = nil

	if logErr := w.errs.LogProcessingError(ctx, c.ID, procErr, map[string]any{
		"content_type": string(c.Type),
		"url":          c.URL,
		"retry_count":  c.RetryCount,
	}); logErr != nil {
		w.logger.Warn().Err(logErr).Str("content_id", c.ID).Msg("log processing error")
	}

	if err := w.commit(ctx, c, base); err != nil {
		w.logger.Error().Err(err).Str("content_id", c.ID).Msg("commit failed state")

		return false
	}

	observability.ContentProcessed.WithLabelValues(string(c.Type), string(c.Status)).Inc()

	w.logger.Warn().
		Err(procErr).
		Str("content_id", c.ID).
		Int("retry_count", c.RetryCount).
		Msg("content failed")

	return true
}

// commit merges the worker's metadata changes onto the current persisted
// state and writes the row. A unique-constraint conflict on
// (url, content_type) is an expected outcome: the item is demoted to a
// skipped duplicate and the commit retried, a bounded number of times.
func (w *Worker) commit(ctx context.Context, c *domain.Content, base map[string]any) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		merged, err := w.repo.RefreshMergeContentMetadata(ctx, c.ID, base, c.Metadata, domain.MetaKeyTopComment)
		if err != nil {
			return err
		}

		c.Metadata = merged

		observability.MetadataMerges.Inc()

		err = w.repo.UpdateContent(ctx, c)
		if err == nil {
			return nil
		}

		var conflict *db.ConflictError
		if !errors.As(err, &conflict) {
			return err
		}

		if err := w.resolveCanonicalConflict(ctx, c, conflict); err != nil {
			observability.CanonicalConflicts.WithLabelValues("unresolved").Inc()

			return err
		}

		observability.CanonicalConflicts.WithLabelValues("skipped").Inc()
	}

	return fmt.Errorf("canonical conflict on %s unresolved after %d attempts", c.URL, maxConflictRetries)
}
