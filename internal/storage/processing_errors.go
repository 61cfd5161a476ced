package db

import (
	"context"
	"fmt"
)

// LogProcessingError records a processing failure for a content row.
// Callers treat it as fire-and-forget; a logging failure must never fail
// the pipeline commit it accompanies.
func (db *DB) LogProcessingError(ctx context.Context, contentID string, procErr error, errContext map[string]any) error {
	contextJSON, err := marshalMetadata(errContext)
	if err != nil {
		return err
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO processing_errors (content_id, error_message, context)
		VALUES ($1, $2, $3)
	`, toUUID(contentID), SanitizeUTF8(procErr.Error()), contextJSON)
	if err != nil {
		return fmt.Errorf("log processing error: %w", err)
	}

	return nil
}
