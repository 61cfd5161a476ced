package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	cerrors "github.com/readstack/readstack/internal/core/errors"
	"github.com/readstack/readstack/internal/platform/observability"
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
	rateLimiterBurst        = 5
	maxTruncationRetries    = 2
	truncationFactor        = 2
	defaultRequestTimeout   = 90 * time.Second

	summarizePrompt = `You are a reading assistant. Summarize the article below as JSON with keys:
"title" (string), "overview" (2-3 sentences), "bullet_points" (3-7 key takeaways),
"quotes" (up to 3 notable quotes, may be empty), "topics" (up to 5 topic tags),
"classification" ("to_read" if substantive, "skip" if promotional or low value).
Return only the JSON object.`
)

// Options configures the OpenAI-backed summarizer.
type Options struct {
	APIKey         string
	Model          string
	RateLimitRPS   float64
	MaxInputChars  int
	RequestTimeout time.Duration
}

type openaiClient struct {
	client         *openai.Client
	model          string
	maxInputChars  int
	requestTimeout time.Duration
	logger         *zerolog.Logger
	rateLimiter    *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// NewOpenAI builds a summarization client with a circuit breaker and a
// user-defined request rate.
func NewOpenAI(opts Options, logger *zerolog.Logger) Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	rps := opts.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}

	maxInputChars := opts.MaxInputChars
	if maxInputChars <= 0 {
		maxInputChars = 48000
	}

	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &openaiClient{
		client:         openai.NewClient(opts.APIKey),
		model:          model,
		maxInputChars:  maxInputChars,
		requestTimeout: requestTimeout,
		logger:         logger,
		rateLimiter:    rate.NewLimiter(rate.Limit(rps), rateLimiterBurst),
	}
}

// SummarizeContent runs the structured summarization prompt. On a
// context-length rejection the input is halved and retried a bounded
// number of times. A response that is not parseable JSON yields
// (nil, nil) so the caller records an empty summary instead of retrying
// a request that will fail the same way again.
func (c *openaiClient) SummarizeContent(ctx context.Context, title, text string) (*StructuredSummary, error) {
	text = truncateInput(text, c.maxInputChars)

	for attempt := 0; ; attempt++ {
		content, err := c.complete(ctx, buildUserMessage(title, text))
		if err != nil {
			if isContextLengthError(err) && attempt < maxTruncationRetries {
				text = truncateInput(text, len(text)/truncationFactor)
				observability.LLMTruncationRetries.Inc()

				c.logger.Warn().
					Int("attempt", attempt+1).
					Int("input_chars", len(text)).
					Msg("Context length exceeded, retrying with truncated input")

				continue
			}

			return nil, err
		}

		summary := parseSummary(content)
		if summary == nil {
			c.logger.Warn().Str("content", truncateInput(content, 500)).Msg("Unparseable summarization response")

			return nil, nil //nolint:nilnil // intentional: unusable answer is an empty summary, not an error
		}

		return summary, nil
	}
}

func (c *openaiClient) complete(ctx context.Context, userMessage string) (string, error) {
	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: summarizePrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})

	observability.LLMRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		if !isContextLengthError(err) {
			c.recordFailure()
		}

		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	c.recordSuccess()

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *openaiClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", cerrors.ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *openaiClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}

// parseSummary decodes and validates the model's JSON answer. Returns
// nil when the content cannot be turned into a usable summary.
func parseSummary(content string) *StructuredSummary {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var summary StructuredSummary
	if err := json.Unmarshal([]byte(content), &summary); err != nil {
		return nil
	}

	if !summary.Valid() {
		return nil
	}

	summary.Classification = normalizeClassification(summary.Classification)

	return &summary
}

func buildUserMessage(title, text string) string {
	if title == "" {
		return text
	}

	return fmt.Sprintf("Title: %s\n\n%s", title, text)
}

// isContextLengthError detects the provider's input-too-long rejection.
func isContextLengthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return true
		}
	}

	return strings.Contains(err.Error(), "context_length_exceeded") ||
		strings.Contains(err.Error(), "maximum context length")
}

func truncateInput(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}

	return s[:maxLen]
}
