// Package transcribe runs the async podcast sub-pipeline: download the
// audio, transcribe it, merge the transcript into the parent content's
// metadata, and re-enqueue the parent for another processing pass.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/readstack/readstack/internal/core/domain"
	cerrors "github.com/readstack/readstack/internal/core/errors"
	"github.com/readstack/readstack/internal/core/llm"
	"github.com/readstack/readstack/internal/core/metadata"
	"github.com/readstack/readstack/internal/platform/observability"
	"github.com/readstack/readstack/internal/platform/worker"
	db "github.com/readstack/readstack/internal/storage"
)

// Repository is the storage surface the transcription worker needs.
type Repository interface {
	GetContentByID(ctx context.Context, id string) (*domain.Content, error)
	RefreshMergeContentMetadata(ctx context.Context, id string, base, updated map[string]any, preserveLatest ...string) (map[string]any, error)
	UpdateContentMetadata(ctx context.Context, id string, meta map[string]any) error
}

// Queue is the task queue surface.
type Queue interface {
	Dequeue(ctx context.Context, workerID string, taskTypes ...string) (*db.Task, error)
	CompleteTask(ctx context.Context, taskID string, success bool) error
	Enqueue(ctx context.Context, taskType, contentID string, payload map[string]any) (string, error)
}

// Fetcher downloads the audio payload.
type Fetcher interface {
	FetchContent(ctx context.Context, url string) ([]byte, http.Header, error)
}

// Config configures the worker.
type Config struct {
	WorkerID       string
	PollInterval   time.Duration
	MaxAudioSizeMB int
	TaskTimeout    time.Duration
}

// Worker consumes transcribe tasks.
type Worker struct {
	repo        Repository
	queue       Queue
	fetcher     Fetcher
	transcriber llm.Transcriber
	cfg         Config
	logger      *zerolog.Logger
}

// NewWorker builds a transcription worker.
func NewWorker(repo Repository, queue Queue, fetcher Fetcher, transcriber llm.Transcriber, cfg Config, logger *zerolog.Logger) *Worker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.MaxAudioSizeMB <= 0 {
		cfg.MaxAudioSizeMB = 25
	}

	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Minute
	}

	return &Worker{
		repo:        repo,
		queue:       queue,
		fetcher:     fetcher,
		transcriber: transcriber,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "transcribe-" + w.cfg.WorkerID,
		PollInterval: w.cfg.PollInterval,
		Process:      w.processNext,
		Logger:       w.logger,
	})
}

func (w *Worker) processNext(ctx context.Context) error {
	defer worker.RecoverPanic(w.logger, "process transcribe task")

	task, err := w.queue.Dequeue(ctx, w.cfg.WorkerID, db.TaskTypeTranscribe)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}

	if task == nil {
		return nil
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	procErr := w.transcribeContent(taskCtx, task.ContentID)

	cancel()

	result := "ok"
	if procErr != nil {
		result = "error"

		w.logger.Error().Err(procErr).Str("content_id", task.ContentID).Msg("transcription failed")
	}

	observability.Transcriptions.WithLabelValues(result).Inc()

	if err := w.queue.CompleteTask(ctx, task.ID, procErr == nil); err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}

	return nil
}

// transcribeContent downloads and transcribes the parent content's audio,
// merges the transcript, and re-enqueues the parent.
func (w *Worker) transcribeContent(ctx context.Context, contentID string) error {
	c, err := w.repo.GetContentByID(ctx, contentID)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	base := metadata.Clone(c.Metadata)
	meta := domain.PodcastMetaFrom(c.Metadata)

	if meta.Transcript != "" {
		// Another worker already got here; just nudge the parent along.
		return w.reenqueueParent(ctx, contentID)
	}

	if meta.AudioURL == "" {
		return fmt.Errorf("%w: podcast %s has no audio url", cerrors.ErrEmptyDocument, contentID)
	}

	audio, _, err := w.fetcher.FetchContent(ctx, meta.AudioURL)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}

	if len(audio) > w.cfg.MaxAudioSizeMB*1024*1024 {
		return fmt.Errorf("%w: audio is %d bytes", cerrors.ErrResponseTooLarge, len(audio))
	}

	transcript, err := w.transcriber.TranscribeAudio(ctx, audioFilename(meta.AudioURL), audio)
	if err != nil {
		return fmt.Errorf("transcribe audio: %w", err)
	}

	if strings.TrimSpace(transcript) == "" {
		return fmt.Errorf("%w: empty transcript for %s", cerrors.ErrEmptyDocument, contentID)
	}

	updated := metadata.Clone(c.Metadata)
	if updated == nil {
		updated = make(map[string]any)
	}

	updated[domain.MetaKeyTranscript] = transcript

	merged, err := w.repo.RefreshMergeContentMetadata(ctx, contentID, base, updated, domain.MetaKeyTopComment)
	if err != nil {
		return fmt.Errorf("merge transcript: %w", err)
	}

	if err := w.repo.UpdateContentMetadata(ctx, contentID, merged); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}

	w.logger.Info().
		Str("content_id", contentID).
		Int("transcript_chars", len(transcript)).
		Msg("transcript persisted")

	return w.reenqueueParent(ctx, contentID)
}

func (w *Worker) reenqueueParent(ctx context.Context, contentID string) error {
	if _, err := w.queue.Enqueue(ctx, db.TaskTypeProcessContent, contentID, nil); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		return fmt.Errorf("re-enqueue parent content: %w", err)
	}

	return nil
}

// audioFilename derives a filename with extension from the audio URL; the
// transcription API uses it to sniff the container format.
func audioFilename(audioURL string) string {
	name := path.Base(strings.SplitN(audioURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		return "audio.mp3"
	}

	return name
}
