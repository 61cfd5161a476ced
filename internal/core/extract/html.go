package extract

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"

	cerrors "github.com/readstack/readstack/internal/core/errors"
)

const (
	maxTitleLength    = 500
	minBodyLengthGate = 400
)

// bodySelectors is tried in order; the first matching element's text wins.
// The chain is deterministic on purpose so re-extraction of the same
// document always yields the same body.
var bodySelectors = []string{
	"article",
	"main",
	"[role=main]",
	".post-content",
	".entry-content",
	".content",
	"#content",
}

// gateMarkers are phrases that identify bot-challenge and paywall
// interstitials served instead of the real page.
var gateMarkers = []string{
	"enable javascript",
	"javascript is required",
	"checking your browser",
	"verify you are human",
	"verifying you are human",
	"access denied",
	"are you a robot",
	"subscribe to continue",
	"sign in to continue",
	"complete the security check",
	"attention required",
}

// HTMLStrategy extracts articles from HTML documents using ordered
// fallback selector chains.
type HTMLStrategy struct {
	sanitizer *bluemonday.Policy
}

// NewHTMLStrategy builds the strategy with a UGC sanitizer for the
// retained HTML body.
func NewHTMLStrategy() *HTMLStrategy {
	return &HTMLStrategy{sanitizer: bluemonday.UGCPolicy()}
}

func (s *HTMLStrategy) Name() string {
	return "html"
}

// CanHandle accepts HTML content types. With no headers it acts as the
// catch-all for regular web URLs, which is why the registry orders it last.
func (s *HTMLStrategy) CanHandle(_ string, headers http.Header) bool {
	if headers == nil {
		return true
	}

	ct := strings.ToLower(headers.Get("Content-Type"))
	if ct == "" {
		return true
	}

	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// Process parses the document and extracts title, author, published date
// and body text. Gate pages are reported in the result, not as errors,
// so the worker can decide whether an RSS fallback body applies.
func (s *HTMLStrategy) Process(rawURL string, content []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	result := &Result{
		Title:        extractTitle(doc),
		Author:       extractAuthor(doc),
		Body:         extractBody(doc),
		CanonicalURL: extractCanonicalURL(doc, rawURL),
	}

	if published := extractPublishedAt(doc); published != "" {
		if t, err := dateparse.ParseAny(published); err == nil {
			result.PublishedAt = t
		}
	}

	if bodyHTML := extractBodyHTML(doc); bodyHTML != "" {
		result.BodyHTML = s.sanitizer.Sanitize(bodyHTML)
	}

	result.WordCount = len(strings.Fields(result.Body))

	if reason := detectGatePage(doc, result.Body); reason != "" {
		result.GatePageDetected = true
		result.GateReason = reason

		return result, nil
	}

	if result.Body == "" {
		return nil, fmt.Errorf("%w: no text in %s", cerrors.ErrEmptyDocument, rawURL)
	}

	return result, nil
}

// extractTitle walks the fallback chain: <title>, first <h1>, og:title,
// twitter:title. First non-empty value wins, capped at 500 chars.
func extractTitle(doc *goquery.Document) string {
	candidates := []func() string{
		func() string { return doc.Find("title").First().Text() },
		func() string { return doc.Find("h1").First().Text() },
		func() string { return metaContent(doc, `meta[property="og:title"]`) },
		func() string { return metaContent(doc, `meta[name="twitter:title"]`) },
	}

	for _, candidate := range candidates {
		if title := strings.TrimSpace(candidate()); title != "" {
			return truncate(title, maxTitleLength)
		}
	}

	return ""
}

// extractBody walks the selector chain, then <body>, then the whole
// document.
func extractBody(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()

	for _, selector := range bodySelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}

		if text := normalizeText(sel.Text()); text != "" {
			return text
		}
	}

	if text := normalizeText(doc.Find("body").Text()); text != "" {
		return text
	}

	return normalizeText(doc.Text())
}

// extractBodyHTML returns the raw HTML of the first matching body
// container, for callers that want to keep markup alongside the text.
func extractBodyHTML(doc *goquery.Document) string {
	for _, selector := range bodySelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}

		if html, err := sel.Html(); err == nil && strings.TrimSpace(html) != "" {
			return html
		}
	}

	return ""
}

func extractAuthor(doc *goquery.Document) string {
	candidates := []string{
		`meta[name="author"]`,
		`meta[property="article:author"]`,
	}

	for _, selector := range candidates {
		if author := metaContent(doc, selector); author != "" {
			return author
		}
	}

	return strings.TrimSpace(doc.Find(`[rel="author"]`).First().Text())
}

func extractPublishedAt(doc *goquery.Document) string {
	candidates := []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	}

	for _, selector := range candidates {
		if published := metaContent(doc, selector); published != "" {
			return published
		}
	}

	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		return strings.TrimSpace(datetime)
	}

	return ""
}

// extractCanonicalURL prefers <link rel=canonical>, then og:url. Relative
// canonicals resolve against the fetched URL. Returns "" when the page
// declares nothing usable.
func extractCanonicalURL(doc *goquery.Document, rawURL string) string {
	canonical, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if canonical == "" {
		canonical = metaContent(doc, `meta[property="og:url"]`)
	}

	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return ""
	}

	parsed, err := url.Parse(canonical)
	if err != nil {
		return ""
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return canonical
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}

// detectGatePage returns the reason string when the document looks like a
// challenge wall or paywall interstitial, or "" for real content. Marker
// phrases only count on short pages; long documents that merely mention
// them are real articles.
func detectGatePage(doc *goquery.Document, body string) string {
	lowerBody := strings.ToLower(body)

	if len(body) < minBodyLengthGate {
		for _, marker := range gateMarkers {
			if strings.Contains(lowerBody, marker) {
				return fmt.Sprintf("gate page detected: %q", marker)
			}
		}

		if doc.Find("form[action*=login], form[action*=signin]").Length() > 0 {
			return "gate page detected: login form with no content"
		}
	}

	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")

	return strings.TrimSpace(content)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate caps a string at maxLen characters. Cutting happens on rune
// boundaries so multibyte input never yields invalid UTF-8.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen])
}
