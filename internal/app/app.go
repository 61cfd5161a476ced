// Package app provides the application bootstrap and runtime
// orchestration.
//
// The App type wires together all dependencies and exposes methods to
// run the operational modes:
//
//   - Worker mode: content pipeline workers plus the transcription and
//     discussion sub-workers
//   - Submit: one-shot content submission from the command line
//
// The health and metrics server runs alongside every mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/readstack/readstack/internal/core/domain"
	"github.com/readstack/readstack/internal/core/extract"
	"github.com/readstack/readstack/internal/core/fetch"
	"github.com/readstack/readstack/internal/core/llm"
	"github.com/readstack/readstack/internal/platform/config"
	"github.com/readstack/readstack/internal/platform/observability"
	"github.com/readstack/readstack/internal/process/content"
	"github.com/readstack/readstack/internal/process/discussion"
	"github.com/readstack/readstack/internal/process/transcribe"
	db "github.com/readstack/readstack/internal/storage"
)

const (
	llmAPIKeyMock = "mock"

	// audioFetchTimeout bounds a single audio download. Episodes are far
	// larger than article pages, so the article fetch timeout does not
	// apply here.
	audioFetchTimeout = 10 * time.Minute
)

// App holds the application dependencies.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates an App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunWorkers runs the content pipeline worker pool. The transcription and
// discussion sub-workers run alongside it; the pool blocks until ctx is
// canceled.
func (a *App) RunWorkers(ctx context.Context) error {
	a.logger.Info().Int("workers", a.cfg.WorkerCount).Msg("Starting worker mode")

	fetcher := a.newFetcher()
	registry := extract.NewRegistry(
		extract.NewPDFStrategy(),
		extract.NewAggregateStrategy(),
		extract.NewHTMLStrategy(),
	)

	pipelineWorker := content.NewWorker(content.Deps{
		Repo:            a.database,
		Queue:           a.database,
		Fetcher:         fetcher,
		Registry:        registry,
		Aggregate:       extract.NewAggregateStrategy(),
		Summarizer:      a.newLLMClient(),
		Errors:          a.database,
		Logger:          a.logger,
		MaxContentChars: a.cfg.MaxContentLength,
	})

	if a.cfg.TranscribeEnabled {
		go a.runTranscribeWorker(ctx)
	}

	if a.cfg.DiscussionEnabled {
		go a.runDiscussionWorker(ctx)
	}

	done := make(chan error, a.cfg.WorkerCount)

	for i := 0; i < a.cfg.WorkerCount; i++ {
		runner := content.NewRunner(
			pipelineWorker,
			a.database,
			"worker-"+strconv.Itoa(i),
			a.cfg.WorkerPollInterval,
			a.cfg.ItemTimeout,
			a.logger,
		)

		go func() {
			done <- runner.Run(ctx)
		}()
	}

	for i := 0; i < a.cfg.WorkerCount; i++ {
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("content runner: %w", err)
		}
	}

	return ctx.Err()
}

func (a *App) runTranscribeWorker(ctx context.Context) {
	transcriber := a.newTranscriber()

	w := transcribe.NewWorker(a.database, a.database, a.newAudioFetcher(), transcriber, transcribe.Config{
		WorkerID:       "transcribe-0",
		PollInterval:   a.cfg.WorkerPollInterval,
		MaxAudioSizeMB: a.cfg.MaxAudioSizeMB,
	}, a.logger)

	if err := w.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info().Msg("transcribe worker stopped")

			return
		}

		a.logger.Warn().Err(err).Msg("transcribe worker stopped")
	}
}

func (a *App) runDiscussionWorker(ctx context.Context) {
	w := discussion.NewWorker(a.database, discussion.Config{
		APIURL:   a.cfg.DiscussionAPIURL,
		Interval: a.cfg.DiscussionInterval,
	}, a.logger)

	if err := w.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info().Msg("discussion worker stopped")

			return
		}

		a.logger.Warn().Err(err).Msg("discussion worker stopped")
	}
}

// SubmitContent creates a content row in new status and enqueues it for
// processing. Submitting a URL that already exists for the same type
// reports the existing row instead of failing.
func (a *App) SubmitContent(ctx context.Context, rawURL, contentType string) (string, error) {
	ct := domain.ContentType(contentType)

	switch ct {
	case domain.ContentTypeArticle, domain.ContentTypePodcast, domain.ContentTypeNews, domain.ContentTypeUnknown:
	case "":
		ct = domain.ContentTypeArticle
	default:
		return "", fmt.Errorf("unknown content type %q", contentType)
	}

	c := &domain.Content{
		Type:   ct,
		URL:    rawURL,
		Status: domain.StatusNew,
	}

	err := a.database.CreateContent(ctx, c)
	if err != nil {
		var conflict *db.ConflictError
		if errors.As(err, &conflict) {
			existing, lookupErr := a.database.GetContentByURL(ctx, rawURL, ct)
			if lookupErr == nil && existing != nil {
				a.logger.Info().Str("content_id", existing.ID).Msg("content already submitted")

				return existing.ID, nil
			}
		}

		return "", fmt.Errorf("create content: %w", err)
	}

	if _, err := a.database.Enqueue(ctx, db.TaskTypeProcessContent, c.ID, nil); err != nil {
		return "", fmt.Errorf("enqueue content: %w", err)
	}

	a.logger.Info().Str("content_id", c.ID).Str("url", rawURL).Msg("content submitted")

	return c.ID, nil
}

func (a *App) newFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{
		RPS:       a.cfg.FetchRPS,
		Timeout:   a.cfg.FetchTimeout,
		MaxBodyMB: a.cfg.FetchMaxBodyMB,
		UserAgent: a.cfg.FetchUserAgent,
	})
}

// newAudioFetcher builds the fetcher for podcast audio downloads. Its
// body cap follows the audio size limit, not the article page limit,
// so large episodes are not rejected before the worker's own check.
func (a *App) newAudioFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{
		RPS:       a.cfg.FetchRPS,
		Timeout:   audioFetchTimeout,
		MaxBodyMB: a.cfg.MaxAudioSizeMB,
		UserAgent: a.cfg.FetchUserAgent,
	})
}

func (a *App) newLLMClient() llm.Client {
	if a.cfg.LLMAPIKey == llmAPIKeyMock {
		a.logger.Warn().Msg("Using mock LLM client")

		return llm.NewMock()
	}

	return llm.NewOpenAI(llm.Options{
		APIKey:         a.cfg.LLMAPIKey,
		Model:          a.cfg.LLMModel,
		RateLimitRPS:   a.cfg.LLMRateLimitRPS,
		MaxInputChars:  a.cfg.LLMMaxInputChars,
		RequestTimeout: a.cfg.LLMRequestTimeout,
	}, a.logger)
}

func (a *App) newTranscriber() llm.Transcriber {
	if a.cfg.LLMAPIKey == llmAPIKeyMock {
		return llm.NewMockTranscriber()
	}

	return llm.NewOpenAITranscriber(a.cfg.LLMAPIKey, a.cfg.TranscriptionModel, a.logger)
}
