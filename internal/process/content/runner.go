package content

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/readstack/readstack/internal/platform/observability"
	"github.com/readstack/readstack/internal/platform/worker"
	db "github.com/readstack/readstack/internal/storage"
)

// TaskSource is the queue surface the runner polls.
type TaskSource interface {
	Dequeue(ctx context.Context, workerID string, taskTypes ...string) (*db.Task, error)
	CompleteTask(ctx context.Context, taskID string, success bool) error
	PendingTaskCount(ctx context.Context) (int64, error)
}

// Runner polls the task queue and feeds process_content tasks to a
// Worker. Several runners share one queue; SKIP LOCKED dequeue keeps
// them from colliding.
type Runner struct {
	worker       *Worker
	tasks        TaskSource
	workerID     string
	pollInterval time.Duration
	itemTimeout  time.Duration
	logger       *zerolog.Logger
}

// NewRunner builds a runner identified by workerID.
func NewRunner(w *Worker, tasks TaskSource, workerID string, pollInterval, itemTimeout time.Duration, logger *zerolog.Logger) *Runner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Runner{
		worker:       w,
		tasks:        tasks,
		workerID:     workerID,
		pollInterval: pollInterval,
		itemTimeout:  itemTimeout,
		logger:       logger,
	}
}

// Run blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "content-" + r.workerID,
		PollInterval: r.pollInterval,
		Process:      r.processNext,
		Logger:       r.logger,
	})
}

// processNext claims and processes at most one task per invocation.
func (r *Runner) processNext(ctx context.Context) error {
	defer worker.RecoverPanic(r.logger, "process content task")

	task, err := r.tasks.Dequeue(ctx, r.workerID, db.TaskTypeProcessContent)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}

	if task == nil {
		if depth, err := r.tasks.PendingTaskCount(ctx); err == nil {
			observability.QueueDepth.Set(float64(depth))
		}

		return nil
	}

	itemCtx, cancel := context.WithTimeout(ctx, r.itemTimeout)
	ok := r.worker.ProcessContent(itemCtx, task.ContentID, r.workerID)

	cancel()

	result := "ok"
	if !ok {
		result = "error"
	}

	observability.TasksProcessed.WithLabelValues(task.Type, result).Inc()

	if err := r.tasks.CompleteTask(ctx, task.ID, ok); err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}

	return nil
}
