package extract

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

var filler = strings.Repeat("Filler sentence with enough words to avoid gate detection. ", 20)

func TestHTMLTitleFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "title tag wins",
			html: `<html><head><title>From Title</title><meta property="og:title" content="From OG"></head>` +
				`<body><h1>From H1</h1><p>` + filler + `</p></body></html>`,
			want: "From Title",
		},
		{
			name: "h1 when title empty",
			html: `<html><head><title>  </title></head><body><h1>From H1</h1><p>` + filler + `</p></body></html>`,
			want: "From H1",
		},
		{
			name: "og title when no title or h1",
			html: `<html><head><meta property="og:title" content="From OG"></head><body><p>` + filler + `</p></body></html>`,
			want: "From OG",
		},
		{
			name: "twitter title as last resort",
			html: `<html><head><meta name="twitter:title" content="From Twitter"></head><body><p>` + filler + `</p></body></html>`,
			want: "From Twitter",
		},
		{
			name: "no candidates",
			html: `<html><body><p>` + filler + `</p></body></html>`,
			want: "",
		},
	}

	strategy := NewHTMLStrategy()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := strategy.Process("https://example.com/x", []byte(tt.html))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			if result.Title != tt.want {
				t.Errorf("Title = %q, want %q", result.Title, tt.want)
			}
		})
	}
}

func TestHTMLTitleTruncatedTo500(t *testing.T) {
	longTitle := strings.Repeat("t", 600)
	html := "<html><head><title>" + longTitle + "</title></head><body><p>" + filler + "</p></body></html>"

	result, err := NewHTMLStrategy().Process("https://example.com/x", []byte(html))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(result.Title) != 500 {
		t.Errorf("len(Title) = %d, want 500", len(result.Title))
	}
}

func TestHTMLTitleTruncationIsRuneSafe(t *testing.T) {
	// 200 runes but 600 bytes; the cap counts characters, so the title
	// must survive whole and stay valid UTF-8.
	shortMultibyte := strings.Repeat("世", 200)
	html := "<html><head><title>" + shortMultibyte + "</title></head><body><p>" + filler + "</p></body></html>"

	result, err := NewHTMLStrategy().Process("https://example.com/x", []byte(html))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !utf8.ValidString(result.Title) {
		t.Error("truncated title is not valid UTF-8")
	}

	if got := utf8.RuneCountInString(result.Title); got != 200 {
		t.Errorf("rune count = %d, want 200", got)
	}

	longMultibyte := strings.Repeat("世", 600)
	html = "<html><head><title>" + longMultibyte + "</title></head><body><p>" + filler + "</p></body></html>"

	result, err = NewHTMLStrategy().Process("https://example.com/x", []byte(html))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !utf8.ValidString(result.Title) {
		t.Error("truncated title is not valid UTF-8")
	}

	if got := utf8.RuneCountInString(result.Title); got != 500 {
		t.Errorf("rune count = %d, want 500", got)
	}
}

func TestHTMLBodySelectorChain(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "article beats content class",
			html: `<html><body><article>article text ` + filler + `</article><div class="content">div text</div></body></html>`,
			want: "article text",
		},
		{
			name: "main when no article",
			html: `<html><body><main>main text ` + filler + `</main><div id="content">div text</div></body></html>`,
			want: "main text",
		},
		{
			name: "post-content class",
			html: `<html><body><div class="post-content">post text ` + filler + `</div></body></html>`,
			want: "post text",
		},
		{
			name: "body fallback",
			html: `<html><body><p>plain body text ` + filler + `</p></body></html>`,
			want: "plain body text",
		},
	}

	strategy := NewHTMLStrategy()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := strategy.Process("https://example.com/x", []byte(tt.html))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			if !strings.HasPrefix(result.Body, tt.want) {
				t.Errorf("Body = %q..., want prefix %q", truncate(result.Body, 60), tt.want)
			}
		})
	}
}

func TestHTMLGateDetection(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		wantGate bool
	}{
		{
			name:     "short challenge page",
			html:     `<html><body>Checking your browser before accessing.</body></html>`,
			wantGate: true,
		},
		{
			name:     "paywall prompt",
			html:     `<html><body>Subscribe to continue reading.</body></html>`,
			wantGate: true,
		},
		{
			name:     "long article mentioning javascript is not a gate",
			html:     `<html><body><article>How to enable javascript in your app. ` + filler + `</article></body></html>`,
			wantGate: false,
		},
	}

	strategy := NewHTMLStrategy()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := strategy.Process("https://example.com/x", []byte(tt.html))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			if result.GatePageDetected != tt.wantGate {
				t.Errorf("GatePageDetected = %v, want %v (reason %q)", result.GatePageDetected, tt.wantGate, result.GateReason)
			}

			if tt.wantGate && result.GateReason == "" {
				t.Error("gate detection must carry a reason")
			}
		})
	}
}

func TestHTMLCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "link rel canonical",
			html: `<html><head><link rel="canonical" href="https://example.com/canonical"></head><body><p>` + filler + `</p></body></html>`,
			want: "https://example.com/canonical",
		},
		{
			name: "og url fallback",
			html: `<html><head><meta property="og:url" content="https://example.com/og"></head><body><p>` + filler + `</p></body></html>`,
			want: "https://example.com/og",
		},
		{
			name: "relative canonical resolves against page url",
			html: `<html><head><link rel="canonical" href="/canonical-path"></head><body><p>` + filler + `</p></body></html>`,
			want: "https://example.com/canonical-path",
		},
		{
			name: "no canonical",
			html: `<html><body><p>` + filler + `</p></body></html>`,
			want: "",
		},
	}

	strategy := NewHTMLStrategy()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := strategy.Process("https://example.com/page", []byte(tt.html))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			if result.CanonicalURL != tt.want {
				t.Errorf("CanonicalURL = %q, want %q", result.CanonicalURL, tt.want)
			}
		})
	}
}

func TestHTMLExtractsMetadataFields(t *testing.T) {
	html := `<html><head>
<title>Piece</title>
<meta name="author" content="Jane Writer">
<meta property="article:published_time" content="2024-06-01T10:00:00Z">
</head><body><article>` + filler + `</article></body></html>`

	result, err := NewHTMLStrategy().Process("https://example.com/x", []byte(html))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.Author != "Jane Writer" {
		t.Errorf("Author = %q, want Jane Writer", result.Author)
	}

	if result.PublishedAt.IsZero() {
		t.Error("PublishedAt not parsed")
	}

	if result.WordCount == 0 {
		t.Error("WordCount not computed")
	}
}

func TestRegistrySelection(t *testing.T) {
	registry := NewRegistry(NewPDFStrategy(), NewAggregateStrategy(), NewHTMLStrategy())

	pdfHeaders := http.Header{}
	pdfHeaders.Set("Content-Type", "application/pdf")

	feedHeaders := http.Header{}
	feedHeaders.Set("Content-Type", "application/rss+xml")

	htmlHeaders := http.Header{}
	htmlHeaders.Set("Content-Type", "text/html")

	tests := []struct {
		name    string
		url     string
		headers http.Header
		want    Strategy
	}{
		{"pdf by content type", "https://example.com/doc", pdfHeaders, &PDFStrategy{}},
		{"pdf by extension", "https://example.com/paper.pdf", nil, &PDFStrategy{}},
		{"feed by content type", "https://example.com/feed", feedHeaders, &AggregateStrategy{}},
		{"html catch-all", "https://example.com/post", htmlHeaders, &HTMLStrategy{}},
		{"nil headers default to html", "https://example.com/post", nil, &HTMLStrategy{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := registry.Select(tt.url, tt.headers)
			if got == nil {
				t.Fatal("Select() = nil")
			}

			// Compare by concrete type.
			gotType := typeName(got)
			wantType := typeName(tt.want)

			if gotType != wantType {
				t.Errorf("Select() = %s, want %s", gotType, wantType)
			}
		})
	}
}

func typeName(s Strategy) string {
	switch s.(type) {
	case *PDFStrategy:
		return "PDFStrategy"
	case *AggregateStrategy:
		return "AggregateStrategy"
	case *HTMLStrategy:
		return "HTMLStrategy"
	default:
		return "unknown"
	}
}
