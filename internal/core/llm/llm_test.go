package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantNil bool
	}{
		{
			name:    "full summary",
			content: `{"title":"T","overview":"O","bullet_points":["a","b","c"],"classification":"to_read"}`,
			wantNil: false,
		},
		{
			name:    "bullets only is valid",
			content: `{"bullet_points":["a"]}`,
			wantNil: false,
		},
		{
			name:    "overview only is valid",
			content: `{"overview":"just text"}`,
			wantNil: false,
		},
		{
			name:    "empty object",
			content: `{}`,
			wantNil: true,
		},
		{
			name:    "not json",
			content: "Sorry, I can't do that.",
			wantNil: true,
		},
		{
			name:    "empty string",
			content: "",
			wantNil: true,
		},
		{
			name:    "whitespace overview only",
			content: `{"overview":"   "}`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSummary(tt.content)
			if (got == nil) != tt.wantNil {
				t.Errorf("parseSummary() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}

func TestParseSummaryNormalizesClassification(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"to_read", ClassificationToRead},
		{"skip", ClassificationSkip},
		{"SKIP", ClassificationSkip},
		{"skipped", ClassificationSkip},
		{"", ClassificationToRead},
		{"interesting", ClassificationToRead},
	}

	for _, tt := range tests {
		content := `{"overview":"o","classification":"` + tt.raw + `"}`

		got := parseSummary(content)
		if got == nil {
			t.Fatalf("parseSummary(%q) = nil", content)
		}

		if got.Classification != tt.want {
			t.Errorf("Classification for %q = %q, want %q", tt.raw, got.Classification, tt.want)
		}
	}
}

func TestSummaryValid(t *testing.T) {
	var nilSummary *StructuredSummary
	if nilSummary.Valid() {
		t.Error("nil summary must not be valid")
	}

	if (&StructuredSummary{Title: "only a title"}).Valid() {
		t.Error("title alone is not a usable summary")
	}

	if !(&StructuredSummary{BulletPoints: []string{"x"}}).Valid() {
		t.Error("bullets make a summary valid")
	}
}

func TestIsContextLengthError(t *testing.T) {
	apiErr := &openai.APIError{Code: "context_length_exceeded", Message: "too long"}
	if !isContextLengthError(apiErr) {
		t.Error("typed context_length_exceeded not detected")
	}

	if !isContextLengthError(errors.New("this model's maximum context length is 128000 tokens")) {
		t.Error("message-based detection failed")
	}

	if isContextLengthError(errors.New("rate limit exceeded")) {
		t.Error("unrelated error misdetected")
	}
}

func TestTruncateInput(t *testing.T) {
	if got := truncateInput("abcdef", 3); got != "abc" {
		t.Errorf("truncateInput = %q, want abc", got)
	}

	if got := truncateInput("abc", 10); got != "abc" {
		t.Errorf("truncateInput = %q, want abc", got)
	}

	if got := truncateInput("abc", 0); got != "abc" {
		t.Errorf("truncateInput with zero cap = %q, want abc", got)
	}
}

func TestNewOpenAIOptionDefaults(t *testing.T) {
	c, ok := NewOpenAI(Options{APIKey: "key"}, nil).(*openaiClient)
	if !ok {
		t.Fatal("NewOpenAI did not return an openaiClient")
	}

	if c.requestTimeout != 90*time.Second {
		t.Errorf("requestTimeout = %v, want 90s", c.requestTimeout)
	}

	if c.maxInputChars != 48000 {
		t.Errorf("maxInputChars = %d, want 48000", c.maxInputChars)
	}

	c, _ = NewOpenAI(Options{APIKey: "key", RequestTimeout: 10 * time.Second}, nil).(*openaiClient)
	if c.requestTimeout != 10*time.Second {
		t.Errorf("requestTimeout = %v, want 10s", c.requestTimeout)
	}
}

func TestMockClient(t *testing.T) {
	summary, err := NewMock().SummarizeContent(context.Background(), "Title", "text")
	if err != nil {
		t.Fatalf("SummarizeContent() error = %v", err)
	}

	if !summary.Valid() {
		t.Error("mock summary must be valid")
	}

	if len(summary.BulletPoints) != 3 {
		t.Errorf("len(BulletPoints) = %d, want 3", len(summary.BulletPoints))
	}
}
