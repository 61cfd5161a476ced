package domain

// Conventional metadata keys. The metadata column itself is schema-free;
// these constants name the keys each subsystem reads or owns.
const (
	MetaKeyContent            = "content"
	MetaKeyContentHTML        = "content_html"
	MetaKeyAuthor             = "author"
	MetaKeyPublishedAt        = "published_at"
	MetaKeyWordCount          = "word_count"
	MetaKeyCanonicalContentID = "canonical_content_id"
	MetaKeySummary            = "summary"
	MetaKeySummarizationDate  = "summarization_date"
	MetaKeyExtractionFailed   = "extraction_failed"
	MetaKeyGatePageReason     = "gate_page_reason"
	MetaKeyRSSContent         = "rss_content"
	MetaKeyUsedRSSFallback    = "used_rss_fallback"
	MetaKeyAudioURL           = "audio_url"
	MetaKeyTranscript         = "transcript"
	MetaKeyItems              = "items"
	MetaKeyRenderedMarkdown   = "rendered_markdown"
	MetaKeyTopComment         = "top_comment"
	MetaKeyDiscussionURL      = "discussion_url"
)

// ArticleMeta is the typed view over article metadata. It narrows the open
// map at the worker boundary; the storage column stays generic.
type ArticleMeta struct {
	Content          string
	ContentHTML      string
	Author           string
	PublishedAt      string
	RSSContent       string
	UsedRSSFallback  bool
	GatePageReason   string
	ExtractionFailed bool
}

// ArticleMetaFrom narrows a raw metadata map into an ArticleMeta view.
func ArticleMetaFrom(m map[string]any) ArticleMeta {
	return ArticleMeta{
		Content:          metaString(m, MetaKeyContent),
		ContentHTML:      metaString(m, MetaKeyContentHTML),
		Author:           metaString(m, MetaKeyAuthor),
		PublishedAt:      metaString(m, MetaKeyPublishedAt),
		RSSContent:       metaString(m, MetaKeyRSSContent),
		UsedRSSFallback:  metaBool(m, MetaKeyUsedRSSFallback),
		GatePageReason:   metaString(m, MetaKeyGatePageReason),
		ExtractionFailed: metaBool(m, MetaKeyExtractionFailed),
	}
}

// PodcastMeta is the typed view over podcast metadata.
type PodcastMeta struct {
	AudioURL   string
	Transcript string
}

// PodcastMetaFrom narrows a raw metadata map into a PodcastMeta view.
func PodcastMetaFrom(m map[string]any) PodcastMeta {
	return PodcastMeta{
		AudioURL:   metaString(m, MetaKeyAudioURL),
		Transcript: metaString(m, MetaKeyTranscript),
	}
}

// NewsItem is one entry of an aggregate/news item list stored in metadata.
type NewsItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary,omitempty"`
	Points  int    `json:"points,omitempty"`
}

// NewsMetaFrom extracts the aggregate item list from a raw metadata map.
// Items are stored as a JSON array of objects; malformed entries are dropped.
func NewsMetaFrom(m map[string]any) []NewsItem {
	raw, ok := m[MetaKeyItems].([]any)
	if !ok {
		return nil
	}

	items := make([]NewsItem, 0, len(raw))

	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		item := NewsItem{
			Title:   metaString(obj, "title"),
			URL:     metaString(obj, "url"),
			Summary: metaString(obj, "summary"),
		}

		if points, ok := obj["points"].(float64); ok {
			item.Points = int(points)
		}

		if item.Title != "" || item.URL != "" {
			items = append(items, item)
		}
	}

	return items
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}

	s, _ := m[key].(string)

	return s
}

func metaBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}

	b, _ := m[key].(bool)

	return b
}
