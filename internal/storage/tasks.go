package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	cerrors "github.com/readstack/readstack/internal/core/errors"
)

// Task types handled by the pipeline workers.
const (
	TaskTypeProcessContent = "process_content"
	TaskTypeTranscribe     = "transcribe"
)

// Task statuses.
const (
	TaskStatusPending = "pending"
	TaskStatusClaimed = "claimed"
	TaskStatusDone    = "done"
	TaskStatusError   = "error"
)

// Task is one unit of queued work referencing a content row.
type Task struct {
	ID        string
	Type      string
	ContentID string
	Payload   map[string]any
	Status    string
	ClaimedBy string
	CreatedAt time.Time
}

// Enqueue adds a task to the queue and returns its id.
func (db *DB) Enqueue(ctx context.Context, taskType, contentID string, payload map[string]any) (string, error) {
	payloadJSON, err := marshalMetadata(payload)
	if err != nil {
		return "", err
	}

	var id pgtype.UUID

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO tasks (task_type, content_id, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, taskType, toUUID(contentID), payloadJSON, TaskStatusPending).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}

	return fromUUID(id), nil
}

// Dequeue claims the oldest pending task of the given types for a worker.
// FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming the same
// row. Returns nil when no work is available.
func (db *DB) Dequeue(ctx context.Context, workerID string, taskTypes ...string) (*Task, error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $1, claimed_by = $2, claimed_at = now()
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = $3 AND task_type = ANY($4)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, task_type, content_id, payload, status, claimed_by, created_at
	`, TaskStatusClaimed, workerID, TaskStatusPending, taskTypes)

	var (
		id          pgtype.UUID
		taskType    string
		contentID   pgtype.UUID
		payloadJSON []byte
		status      string
		claimedBy   pgtype.Text
		createdAt   time.Time
	)

	if err := row.Scan(&id, &taskType, &contentID, &payloadJSON, &status, &claimedBy, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // intentional: empty queue is not an error
		}

		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal task payload: %w", err)
	}

	return &Task{
		ID:        fromUUID(id),
		Type:      taskType,
		ContentID: fromUUID(contentID),
		Payload:   payload,
		Status:    status,
		ClaimedBy: fromText(claimedBy),
		CreatedAt: createdAt,
	}, nil
}

// CompleteTask marks a claimed task as done or errored.
func (db *DB) CompleteTask(ctx context.Context, taskID string, success bool) error {
	status := TaskStatusDone
	if !success {
		status = TaskStatusError
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE tasks SET status = $2, completed_at = now() WHERE id = $1
	`, toUUID(taskID), status)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", cerrors.ErrTaskNotFound, taskID)
	}

	return nil
}

// PendingTaskCount returns the queue depth for the backlog gauge.
func (db *DB) PendingTaskCount(ctx context.Context) (int64, error) {
	var count int64

	err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM tasks WHERE status = $1`, TaskStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending task count: %w", err)
	}

	return count, nil
}
