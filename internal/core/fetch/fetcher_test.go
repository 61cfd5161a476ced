package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	cerrors "github.com/readstack/readstack/internal/core/errors"
	"github.com/readstack/readstack/internal/platform/observability"
)

// Tests inject the httptest server's plain client because the
// SSRF-guarded default client refuses loopback addresses.

func TestFetchContentOK(t *testing.T) {
	var handler func(http.ResponseWriter, *http.Request)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r)
	}))
	defer srv.Close()

	handler = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("User-Agent header not set")
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hello</html>"))
	}

	f := NewWithClient(srv.Client(), Options{RPS: 100})

	okBefore := testutil.ToFloat64(observability.FetchRequests.WithLabelValues("ok"))

	body, headers, err := f.FetchContent(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchContent() error = %v", err)
	}

	if string(body) != "<html>hello</html>" {
		t.Errorf("body = %q", body)
	}

	if ct := headers.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q", ct)
	}

	if got := testutil.ToFloat64(observability.FetchRequests.WithLabelValues("ok")); got != okBefore+1 {
		t.Errorf("ok fetch counter = %v, want %v", got, okBefore+1)
	}
}

func TestFetchContentNotFoundIsNonRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client(), Options{RPS: 100})

	_, _, err := f.FetchContent(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}

	if !cerrors.IsNonRetryable(err) {
		t.Errorf("404 should be non-retryable, got %v", err)
	}
}

func TestFetchContentServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client(), Options{RPS: 100})

	_, _, err := f.FetchContent(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 500")
	}

	if cerrors.IsNonRetryable(err) {
		t.Error("500 must stay retryable")
	}

	if !errors.Is(err, cerrors.ErrHTTPStatusNotOK) {
		t.Errorf("expected ErrHTTPStatusNotOK, got %v", err)
	}
}

func TestFetchContentTooManyRequestsIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client(), Options{RPS: 100})

	_, _, err := f.FetchContent(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 429")
	}

	if cerrors.IsNonRetryable(err) {
		t.Error("429 clears on backoff and must stay retryable")
	}
}

func TestFetchContentBodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2*1024*1024)))
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client(), Options{RPS: 100, MaxBodyMB: 1})

	tooLargeBefore := testutil.ToFloat64(observability.FetchRequests.WithLabelValues("too_large"))

	_, _, err := f.FetchContent(context.Background(), srv.URL)
	if !errors.Is(err, cerrors.ErrResponseTooLarge) {
		t.Errorf("expected ErrResponseTooLarge, got %v", err)
	}

	if got := testutil.ToFloat64(observability.FetchRequests.WithLabelValues("too_large")); got != tooLargeBefore+1 {
		t.Errorf("too_large fetch counter = %v, want %v", got, tooLargeBefore+1)
	}
}

func TestFetchContentContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewWithClient(srv.Client(), Options{RPS: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := f.FetchContent(ctx, srv.URL); err == nil {
		t.Error("expected error with canceled context")
	}
}
