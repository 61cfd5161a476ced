package content

import (
	"context"
	"fmt"

	"github.com/readstack/readstack/internal/core/domain"
	db "github.com/readstack/readstack/internal/storage"
)

// updateCanonicalURL resolves a page-declared canonical URL. When another
// row already owns (canonicalURL, type), this item becomes a skipped
// duplicate pointing at it. Otherwise the item adopts the canonical URL
// as its own; the commit's conflict handling covers the race where
// another worker claims it first.
func (w *Worker) updateCanonicalURL(ctx context.Context, c *domain.Content, canonicalURL string) error {
	existing, err := w.repo.GetContentByURL(ctx, canonicalURL, c.Type)
	if err != nil {
		return fmt.Errorf("lookup canonical row: %w", err)
	}

	if existing != nil && existing.ID != c.ID {
		c.Metadata[domain.MetaKeyCanonicalContentID] = existing.ID
		c.Status = domain.StatusSkipped

		w.logger.Info().
			Str("content_id", c.ID).
			Str("canonical_content_id", existing.ID).
			Str("canonical_url", canonicalURL).
			Msg("duplicate of existing canonical row, skipping")

		return nil
	}

	c.URL = canonicalURL

	return nil
}

// resolveCanonicalConflict handles a commit that lost the uniqueness race
// on (url, content_type). The pre-existing row is always canonical; the
// incoming row is always the one demoted to skipped, regardless of which
// started processing first.
func (w *Worker) resolveCanonicalConflict(ctx context.Context, c *domain.Content, conflict *db.ConflictError) error {
	existing, err := w.repo.GetContentByURL(ctx, conflict.URL, conflict.Type)
	if err != nil {
		return fmt.Errorf("lookup conflicting row: %w", err)
	}

	if existing == nil || existing.ID == c.ID {
		return fmt.Errorf("conflicting row for (%s, %s) not found: %w", conflict.URL, conflict.Type, conflict.Err)
	}

	c.Metadata[domain.MetaKeyCanonicalContentID] = existing.ID
	c.Status = domain.StatusSkipped

	// Revert any local URL rewrite to the row's persisted URL, otherwise
	// the retried commit hits the same constraint again.
	own, err := w.repo.GetContentByID(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("reload own row: %w", err)
	}

	c.URL = own.URL

	w.logger.Info().
		Str("content_id", c.ID).
		Str("canonical_content_id", existing.ID).
		Str("url", conflict.URL).
		Msg("commit conflict resolved, row skipped as canonical duplicate")

	return nil
}
