package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/readstack/readstack/internal/core/domain"
	cerrors "github.com/readstack/readstack/internal/core/errors"
	"github.com/readstack/readstack/internal/core/metadata"
)

const (
	pgUniqueViolationCode = "23505"
	contentsURLConstraint = "contents_url_content_type_key"

	contentColumns = `id, content_type, url, source_url, title, status, classification,
		error_message, retry_count, metadata, created_at, processed_at, checked_out_by, checked_out_at`
)

// ConflictError reports a unique-constraint violation on (url, content_type).
// It is a first-class commit outcome, not an exceptional condition: the
// canonical resolver turns it into a skipped duplicate row.
type ConflictError struct {
	URL  string
	Type domain.ContentType
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("content url conflict on (%s, %s): %v", e.URL, e.Type, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// asConflictError maps a unique violation on the (url, content_type) index
// to a ConflictError. Any other error passes through unchanged.
func asConflictError(err error, c *domain.Content) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == contentsURLConstraint {
		return &ConflictError{URL: c.URL, Type: c.Type, Err: err}
	}

	return err
}

// CreateContent inserts a new content row and fills in the generated id.
func (db *DB) CreateContent(ctx context.Context, c *domain.Content) error {
	metadataJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}

	row := db.Pool.QueryRow(ctx, `
		INSERT INTO contents (content_type, url, source_url, title, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, string(c.Type), SanitizeUTF8(c.URL), toText(c.SourceURL), toText(c.Title), string(c.Status), metadataJSON)

	var id pgtype.UUID

	if err := row.Scan(&id, &c.CreatedAt); err != nil {
		return asConflictError(fmt.Errorf("create content: %w", err), c)
	}

	c.ID = fromUUID(id)

	return nil
}

// GetContentByID loads a content row by id.
// Returns cerrors.ErrContentNotFound when the row is absent.
func (db *DB) GetContentByID(ctx context.Context, id string) (*domain.Content, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE id = $1`, toUUID(id))

	content, err := scanContent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", cerrors.ErrContentNotFound, id)
		}

		return nil, fmt.Errorf("get content by id: %w", err)
	}

	return content, nil
}

// GetContentByURL loads a content row by its (url, content_type) identity.
func (db *DB) GetContentByURL(ctx context.Context, url string, contentType domain.ContentType) (*domain.Content, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE url = $1 AND content_type = $2`,
		url, string(contentType))

	content, err := scanContent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // intentional: not found is not an error
		}

		return nil, fmt.Errorf("get content by url: %w", err)
	}

	return content, nil
}

// UpdateContent persists all mutable fields of a content row.
// A unique violation on (url, content_type) is returned as *ConflictError
// so the caller can resolve it as a canonical duplicate.
func (db *DB) UpdateContent(ctx context.Context, c *domain.Content) error {
	metadataJSON, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE contents
		SET content_type = $2, url = $3, source_url = $4, title = $5, status = $6,
			classification = $7, error_message = $8, retry_count = $9, metadata = $10,
			processed_at = $11, checked_out_by = $12, checked_out_at = $13
		WHERE id = $1
	`,
		toUUID(c.ID), string(c.Type), SanitizeUTF8(c.URL), toText(c.SourceURL), toText(c.Title),
		string(c.Status), toText(string(c.Classification)), toText(c.ErrorMessage), c.RetryCount,
		metadataJSON, toTimestamptzPtr(c.ProcessedAt), toText(c.CheckedOutBy), toTimestamptzPtr(c.CheckedOutAt))
	if err != nil {
		return asConflictError(fmt.Errorf("update content: %w", err), c)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", cerrors.ErrContentNotFound, c.ID)
	}

	return nil
}

// UpdateContentMetadata persists only the metadata column. Used by
// subsystems that append auxiliary keys to terminal rows without touching
// pipeline-owned fields.
func (db *DB) UpdateContentMetadata(ctx context.Context, id string, meta map[string]any) error {
	metadataJSON, err := marshalMetadata(meta)
	if err != nil {
		return err
	}

	tag, err := db.Pool.Exec(ctx,
		`UPDATE contents SET metadata = $2 WHERE id = $1`, toUUID(id), metadataJSON)
	if err != nil {
		return fmt.Errorf("update content metadata: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", cerrors.ErrContentNotFound, id)
	}

	return nil
}

// RefreshMergeContentMetadata re-reads the row's currently persisted
// metadata, which may have been modified by a concurrent writer since base
// was captured, and replays the local base->updated patch onto it. Keys in
// preserveLatest always keep the currently persisted value, even when the
// local writer touched them.
//
// The merged map is returned for the caller to persist; no lock is taken.
func (db *DB) RefreshMergeContentMetadata(ctx context.Context, id string, base, updated map[string]any, preserveLatest ...string) (map[string]any, error) {
	var metadataJSON []byte

	err := db.Pool.QueryRow(ctx, `SELECT metadata FROM contents WHERE id = $1`, toUUID(id)).Scan(&metadataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", cerrors.ErrContentNotFound, id)
		}

		return nil, fmt.Errorf("refresh content metadata: %w", err)
	}

	current, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}

	return metadata.Merge(current, base, updated, preserveLatest...), nil
}

// CheckoutContent claims a row for a worker via the advisory checkout
// fields. This is bookkeeping for observability and stale-claim reaping,
// not a lock.
func (db *DB) CheckoutContent(ctx context.Context, id, workerID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE contents SET checked_out_by = $2, checked_out_at = now() WHERE id = $1
	`, toUUID(id), workerID)
	if err != nil {
		return fmt.Errorf("checkout content: %w", err)
	}

	return nil
}

// ListCompletedArticlesMissingKey returns completed article rows whose
// metadata lacks the given key. Used by the discussion fetcher to find
// rows still awaiting a top comment.
func (db *DB) ListCompletedArticlesMissingKey(ctx context.Context, key string, limit int) ([]domain.Content, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+contentColumns+`
		FROM contents
		WHERE status = $1 AND content_type = $2 AND NOT metadata ? $3
		ORDER BY processed_at DESC
		LIMIT $4
	`, string(domain.StatusCompleted), string(domain.ContentTypeArticle), key, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed articles: %w", err)
	}
	defer rows.Close()

	var contents []domain.Content

	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completed article: %w", err)
		}

		contents = append(contents, *content)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed articles: %w", err)
	}

	return contents, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*domain.Content, error) {
	var (
		id             pgtype.UUID
		contentType    string
		url            string
		sourceURL      pgtype.Text
		title          pgtype.Text
		status         string
		classification pgtype.Text
		errorMessage   pgtype.Text
		retryCount     int
		metadataJSON   []byte
		createdAt      time.Time
		processedAt    pgtype.Timestamptz
		checkedOutBy   pgtype.Text
		checkedOutAt   pgtype.Timestamptz
	)

	if err := row.Scan(&id, &contentType, &url, &sourceURL, &title, &status, &classification,
		&errorMessage, &retryCount, &metadataJSON, &createdAt, &processedAt, &checkedOutBy, &checkedOutAt); err != nil {
		return nil, err
	}

	meta, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}

	return &domain.Content{
		ID:             fromUUID(id),
		Type:           domain.ContentType(contentType),
		URL:            url,
		SourceURL:      fromText(sourceURL),
		Title:          fromText(title),
		Status:         domain.Status(status),
		Classification: domain.Classification(fromText(classification)),
		ErrorMessage:   fromText(errorMessage),
		RetryCount:     retryCount,
		Metadata:       meta,
		CreatedAt:      createdAt,
		ProcessedAt:    fromTimestamptzPtr(processedAt),
		CheckedOutBy:   fromText(checkedOutBy),
		CheckedOutAt:   fromTimestamptzPtr(checkedOutAt),
	}, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	if m == nil {
		m = map[string]any{}
	}

	return m, nil
}
