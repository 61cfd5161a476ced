// Package discussion enriches completed articles with the top comment
// from their Hacker News discussion. It runs outside the pipeline and
// owns the top_comment metadata key; the merge engine guarantees its
// writes always win over stale pipeline copies.
package discussion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/readstack/readstack/internal/core/domain"
	"github.com/readstack/readstack/internal/core/metadata"
	"github.com/readstack/readstack/internal/platform/observability"
	"github.com/readstack/readstack/internal/platform/worker"
)

const (
	defaultAPIURL   = "https://hn.algolia.com/api/v1"
	defaultInterval = 30 * time.Minute
	batchSize       = 20
	requestTimeout  = 15 * time.Second
	maxCommentChars = 2000
)

// Repository is the storage surface the discussion fetcher needs.
type Repository interface {
	ListCompletedArticlesMissingKey(ctx context.Context, key string, limit int) ([]domain.Content, error)
	RefreshMergeContentMetadata(ctx context.Context, id string, base, updated map[string]any, preserveLatest ...string) (map[string]any, error)
	UpdateContentMetadata(ctx context.Context, id string, meta map[string]any) error
}

// Config configures the fetcher.
type Config struct {
	APIURL   string
	Interval time.Duration
}

// Worker periodically scans for completed articles lacking a top comment.
type Worker struct {
	repo   Repository
	client *http.Client
	cfg    Config
	logger *zerolog.Logger
}

// NewWorker builds a discussion fetcher.
func NewWorker(repo Repository, cfg Config, logger *zerolog.Logger) *Worker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	return &Worker{
		repo:   repo,
		client: &http.Client{Timeout: requestTimeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "discussion",
		PollInterval: w.cfg.Interval,
		Process:      w.scan,
		Logger:       w.logger,
	})
}

// scan processes one batch of articles missing a top comment.
func (w *Worker) scan(ctx context.Context) error {
	defer worker.RecoverPanic(w.logger, "discussion scan")

	articles, err := w.repo.ListCompletedArticlesMissingKey(ctx, domain.MetaKeyTopComment, batchSize)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	for i := range articles {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := w.enrich(ctx, &articles[i]); err != nil {
			observability.DiscussionFetches.WithLabelValues("error").Inc()

			w.logger.Warn().Err(err).Str("content_id", articles[i].ID).Msg("discussion enrichment failed")
		}
	}

	return nil
}

// enrich looks up the article's discussion and merges the top comment
// into its metadata. Articles with no discussion are left alone and
// picked up again on the next scan.
func (w *Worker) enrich(ctx context.Context, c *domain.Content) error {
	comment, discussionURL, err := w.lookupDiscussion(ctx, c.URL)
	if err != nil {
		return err
	}

	if comment == "" {
		observability.DiscussionFetches.WithLabelValues("not_found").Inc()

		return nil
	}

	base := metadata.Clone(c.Metadata)

	updated := metadata.Clone(c.Metadata)
	if updated == nil {
		updated = make(map[string]any)
	}

	updated[domain.MetaKeyTopComment] = comment
	updated[domain.MetaKeyDiscussionURL] = discussionURL

	merged, err := w.repo.RefreshMergeContentMetadata(ctx, c.ID, base, updated)
	if err != nil {
		return fmt.Errorf("merge discussion metadata: %w", err)
	}

	if err := w.repo.UpdateContentMetadata(ctx, c.ID, merged); err != nil {
		return fmt.Errorf("persist discussion metadata: %w", err)
	}

	observability.DiscussionFetches.WithLabelValues("ok").Inc()

	w.logger.Info().
		Str("content_id", c.ID).
		Str("discussion_url", discussionURL).
		Msg("top comment attached")

	return nil
}

type searchResponse struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		NumComments int    `json:"num_comments"`
	} `json:"hits"`
}

type itemResponse struct {
	Children []struct {
		Text   string `json:"text"`
		Author string `json:"author"`
	} `json:"children"`
}

// lookupDiscussion finds the most-commented submission for the URL and
// returns its first top-level comment.
func (w *Worker) lookupDiscussion(ctx context.Context, articleURL string) (comment, discussionURL string, err error) {
	searchURL := fmt.Sprintf("%s/search?query=%s&restrictSearchableAttributes=url&hitsPerPage=5",
		w.cfg.APIURL, url.QueryEscape(articleURL))

	var search searchResponse
	if err := w.getJSON(ctx, searchURL, &search); err != nil {
		return "", "", fmt.Errorf("search discussion: %w", err)
	}

	bestID := ""
	bestComments := 0

	for _, hit := range search.Hits {
		if hit.NumComments > bestComments {
			bestID = hit.ObjectID
			bestComments = hit.NumComments
		}
	}

	if bestID == "" {
		return "", "", nil
	}

	var item itemResponse
	if err := w.getJSON(ctx, fmt.Sprintf("%s/items/%s", w.cfg.APIURL, bestID), &item); err != nil {
		return "", "", fmt.Errorf("fetch discussion item: %w", err)
	}

	discussionURL = "https://news.ycombinator.com/item?id=" + bestID

	for _, child := range item.Children {
		text := capComment(strings.TrimSpace(stripHTML(child.Text)))
		if text == "" {
			continue
		}

		return text, discussionURL, nil
	}

	return "", discussionURL, nil
}

func (w *Worker) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// strictPolicy drops the markup the comments API embeds in comment text.
var strictPolicy = bluemonday.StrictPolicy()

func stripHTML(s string) string {
	return strings.Join(strings.Fields(strictPolicy.Sanitize(s)), " ")
}

// capComment bounds a comment at maxCommentChars characters, cutting on
// rune boundaries so multibyte comments stay valid UTF-8.
func capComment(s string) string {
	if len(s) <= maxCommentChars {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxCommentChars {
		return s
	}

	return string(runes[:maxCommentChars])
}
