package extract

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	cerrors "github.com/readstack/readstack/internal/core/errors"
)

const maxFeedItems = 50

// strictPolicy strips all markup from feed descriptions, which frequently
// embed HTML.
var strictPolicy = bluemonday.StrictPolicy()

// FeedItem is one rendered entry from an aggregate feed.
type FeedItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description,omitempty"`
	Published   string `json:"published,omitempty"`
}

// AggregateStrategy handles RSS/Atom feed payloads. Feed items are
// rendered to a markdown digest; aggregates never go through the LLM.
type AggregateStrategy struct {
	parser *gofeed.Parser
}

func NewAggregateStrategy() *AggregateStrategy {
	return &AggregateStrategy{parser: gofeed.NewParser()}
}

func (s *AggregateStrategy) Name() string {
	return "aggregate"
}

// CanHandle matches feed content types and common feed URL suffixes.
func (s *AggregateStrategy) CanHandle(rawURL string, headers http.Header) bool {
	if headers != nil {
		ct := strings.ToLower(headers.Get("Content-Type"))
		if strings.Contains(ct, "application/rss") ||
			strings.Contains(ct, "application/atom") ||
			strings.Contains(ct, "application/xml") ||
			strings.Contains(ct, "text/xml") {
			return true
		}
	}

	path := strings.ToLower(strings.SplitN(rawURL, "?", 2)[0])

	return strings.HasSuffix(path, ".rss") ||
		strings.HasSuffix(path, ".atom") ||
		strings.HasSuffix(path, "/feed") ||
		strings.HasSuffix(path, "/rss")
}

// Process parses the feed and renders its items as a markdown digest.
func (s *AggregateStrategy) Process(rawURL string, content []byte) (*Result, error) {
	feed, err := s.parser.ParseString(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	if len(feed.Items) == 0 {
		return nil, fmt.Errorf("%w: feed %s has no items", cerrors.ErrEmptyDocument, rawURL)
	}

	items := feedItems(feed)
	markdown := RenderItemsMarkdown(feed.Title, items)

	return &Result{
		Title:     truncate(strings.TrimSpace(feed.Title), maxTitleLength),
		Body:      markdown,
		Markdown:  markdown,
		WordCount: len(strings.Fields(markdown)),
	}, nil
}

// Items re-parses the payload into structured entries for metadata
// persistence.
func (s *AggregateStrategy) Items(content []byte) ([]FeedItem, error) {
	feed, err := s.parser.ParseString(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feedItems(feed), nil
}

func feedItems(feed *gofeed.Feed) []FeedItem {
	count := len(feed.Items)
	if count > maxFeedItems {
		count = maxFeedItems
	}

	items := make([]FeedItem, 0, count)

	for _, item := range feed.Items[:count] {
		entry := FeedItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: normalizeText(html.UnescapeString(strictPolicy.Sanitize(item.Description))),
		}

		if item.PublishedParsed != nil {
			entry.Published = item.PublishedParsed.UTC().Format("2006-01-02")
		}

		items = append(items, entry)
	}

	return items
}

// RenderItemsMarkdown renders feed entries as a markdown list, one bullet
// per item with a linked title and optional date and description.
func RenderItemsMarkdown(feedTitle string, items []FeedItem) string {
	var b strings.Builder

	if title := strings.TrimSpace(feedTitle); title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}

	for _, item := range items {
		title := item.Title
		if title == "" {
			title = item.Link
		}

		if item.Link != "" {
			fmt.Fprintf(&b, "- [%s](%s)", title, item.Link)
		} else {
			fmt.Fprintf(&b, "- %s", title)
		}

		if item.Published != "" {
			fmt.Fprintf(&b, " (%s)", item.Published)
		}

		if item.Description != "" {
			fmt.Fprintf(&b, ": %s", truncate(item.Description, 200))
		}

		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}
