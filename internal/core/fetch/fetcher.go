// Package fetch downloads remote content with rate limiting and SSRF
// protection. All pipeline network access to untrusted URLs goes through
// the Fetcher.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/doyensec/safeurl"
	"golang.org/x/time/rate"

	cerrors "github.com/readstack/readstack/internal/core/errors"
	"github.com/readstack/readstack/internal/platform/observability"
)

// ErrTooManyRedirects indicates too many HTTP redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

const (
	defaultFetchTimeoutSeconds = 30
	globalLimiterBurst         = 5
	maxRedirects               = 5
	domainLimiterRate          = 1
	domainLimiterBurst         = 2
	bytesPerMB                 = 1024 * 1024
)

// Fetcher downloads URLs with a global and a per-domain rate limiter.
// Outbound requests are routed through a safeurl client that rejects
// private, loopback and link-local destinations.
type Fetcher struct {
	client         *http.Client
	globalLimiter  *rate.Limiter
	domainLimiters map[string]*rate.Limiter
	mu             sync.RWMutex
	userAgent      string
	maxBodyBytes   int64
}

// Options configures a Fetcher.
type Options struct {
	RPS       float64
	Timeout   time.Duration
	MaxBodyMB int
	UserAgent string
}

// New builds a Fetcher with an SSRF-guarded HTTP client.
func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeoutSeconds * time.Second
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return ErrTooManyRedirects
		}

		return nil
	}

	return newWithClient(client, opts)
}

// NewWithClient builds a Fetcher around a caller-supplied HTTP client.
// Used by tests that talk to local servers the SSRF guard would reject.
func NewWithClient(client *http.Client, opts Options) *Fetcher {
	return newWithClient(client, opts)
}

func newWithClient(client *http.Client, opts Options) *Fetcher {
	rps := opts.RPS
	if rps <= 0 {
		rps = 1
	}

	maxBodyMB := opts.MaxBodyMB
	if maxBodyMB <= 0 {
		maxBodyMB = 5
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "ReadStack/1.0 (Content Pipeline)"
	}

	return &Fetcher{
		client:         client,
		globalLimiter:  rate.NewLimiter(rate.Limit(rps), globalLimiterBurst),
		domainLimiters: make(map[string]*rate.Limiter),
		userAgent:      userAgent,
		maxBodyBytes:   int64(maxBodyMB) * bytesPerMB,
	}
}

// FetchContent downloads a URL and returns the body and response headers.
// 4xx responses other than 429 are wrapped in a NonRetryableError since
// retrying them cannot succeed.
func (f *Fetcher) FetchContent(ctx context.Context, rawURL string) ([]byte, http.Header, error) {
	if err := f.globalLimiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("global rate limiter wait: %w", err)
	}

	domain := f.extractDomain(rawURL)

	domainLimiter := f.getDomainLimiter(domain)
	if err := domainLimiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("domain rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,application/rss+xml,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()

	resp, err := f.client.Do(req)

	observability.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		observability.FetchRequests.WithLabelValues("error").Inc()

		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.FetchRequests.WithLabelValues("http_error").Inc()

		if isNonRetryableStatus(resp.StatusCode) {
			return nil, resp.Header, &cerrors.NonRetryableError{
				StatusCode: resp.StatusCode,
				Reason:     fmt.Sprintf("fetch %s", rawURL),
			}
		}

		return nil, resp.Header, fmt.Errorf("%w: %d", cerrors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		observability.FetchRequests.WithLabelValues("error").Inc()

		return nil, resp.Header, fmt.Errorf("read response body: %w", err)
	}

	if int64(len(body)) > f.maxBodyBytes {
		observability.FetchRequests.WithLabelValues("too_large").Inc()

		return nil, resp.Header, fmt.Errorf("%w: body exceeds %d bytes", cerrors.ErrResponseTooLarge, f.maxBodyBytes)
	}

	observability.FetchRequests.WithLabelValues("ok").Inc()

	return body, resp.Header, nil
}

// isNonRetryableStatus reports whether a status code marks a permanent
// failure. 429 stays retryable since it clears once the remote backs off.
func isNonRetryableStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func (f *Fetcher) getDomainLimiter(domain string) *rate.Limiter {
	f.mu.RLock()
	limiter, exists := f.domainLimiters[domain]
	f.mu.RUnlock()

	if exists {
		return limiter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double check
	if limiter, exists := f.domainLimiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(domainLimiterRate, domainLimiterBurst)
	f.domainLimiters[domain] = limiter

	return limiter
}

func (f *Fetcher) extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Host)
}
