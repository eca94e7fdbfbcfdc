package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/metrics"
	"github.com/sykell/url-scraper/internal/scrape"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Test Page</title><style>body { color: red; }</style></head>
<body>
  <script>var secret = "do not index";</script>
  <h1>Heading</h1>
  <p>Hello world paragraph with enough words to count as readable content.</p>
  <p>Second paragraph keeps going.</p>
</body>
</html>`

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func newTestFetcher(t *testing.T, cfg Config) (*Fetcher, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewNop()
	return NewFetcher(cfg, nil, logger.NewNop(), m), m
}

func failureOf(t *testing.T, out scrape.Outcome) scrape.Failure {
	t.Helper()
	f, ok := out.(scrape.Failure)
	require.True(t, ok, "expected failure, got %#v", out)
	return f
}

func TestFetcher_Success(t *testing.T) {
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer server.Close()

	f, m := newTestFetcher(t, testConfig())
	out := f.Fetch(context.Background(), server.URL+"/article", false)

	s, ok := out.(scrape.Success)
	require.True(t, ok, "expected success, got %#v", out)
	assert.Equal(t, "Test Page", s.Title)
	assert.Contains(t, s.Content, "Hello world paragraph")
	assert.NotContains(t, s.Content, "do not index")
	assert.NotContains(t, s.Content, "color: red")
	assert.Equal(t, scrape.ComputeMetrics(s.Content), s.Metrics)
	assert.Greater(t, s.Metrics.WordCount, 0)

	assert.Equal(t, DefaultConfig().UserAgent, userAgent.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesTotal.WithLabelValues("success")))
}

func TestFetcher_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f, m := newTestFetcher(t, testConfig())
	failure := failureOf(t, f.Fetch(context.Background(), server.URL, false))

	assert.Equal(t, scrape.KindHTTPStatus, failure.Kind)
	assert.Contains(t, failure.Message, "404")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesTotal.WithLabelValues(string(scrape.KindHTTPStatus))))
}

func TestFetcher_InvalidURL(t *testing.T) {
	f, _ := newTestFetcher(t, testConfig())

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "http://", "mailto:someone@example.com"} {
		t.Run(raw, func(t *testing.T) {
			failure := failureOf(t, f.Fetch(context.Background(), raw, false))
			assert.Equal(t, scrape.KindInvalidURL, failure.Kind)
		})
	}
}

func TestFetcher_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Blank</title></head><body><script>render()</script>   </body></html>`)
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, testConfig())
	failure := failureOf(t, f.Fetch(context.Background(), server.URL, false))

	assert.Equal(t, scrape.KindEmptyContent, failure.Kind)
	assert.Equal(t, "No content extracted", failure.Message)
}

func TestFetcher_RespectsRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f, m := newTestFetcher(t, testConfig())
	ctx := context.Background()

	failure := failureOf(t, f.Fetch(ctx, server.URL+"/private/page", true))
	assert.Equal(t, scrape.KindRobotsDisallowed, failure.Kind)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RobotsBlocked))

	assert.True(t, f.Fetch(ctx, server.URL+"/public", true).OK())
	assert.True(t, f.Fetch(ctx, server.URL+"/private/page", false).OK())
}

func TestFetcher_RobotsErrorAllowsAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f, _ := newTestFetcher(t, testConfig())
	assert.True(t, f.Fetch(context.Background(), server.URL+"/private", true).OK())
}

func TestFetcher_StalledRobotsAllowsAll(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articleHTML)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	defer close(release)

	cfg := testConfig()
	cfg.Timeout = 200 * time.Millisecond
	f, _ := newTestFetcher(t, cfg)

	// Batches detach from the request, so only the fetch timeout bounds robots.txt.
	ctx := context.WithoutCancel(context.Background())
	done := make(chan scrape.Outcome, 1)
	go func() { done <- f.Fetch(ctx, server.URL+"/page", true) }()

	select {
	case out := <-done:
		assert.True(t, out.OK(), "expected success after robots timeout, got %#v", out)
	case <-time.After(3 * time.Second):
		t.Fatal("fetch blocked on a stalled robots.txt")
	}
}

func TestFetcher_RetriesNetworkErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		fmt.Fprint(w, articleHTML)
	}))
	defer server.Close()

	f, m := newTestFetcher(t, testConfig())
	out := f.Fetch(context.Background(), server.URL, false)

	assert.True(t, out.OK(), "expected success after retry, got %#v", out)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchRetries))
}

func TestFetcher_RetriesAreBounded(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 2
	f, _ := newTestFetcher(t, cfg)

	failure := failureOf(t, f.Fetch(context.Background(), server.URL, false))
	assert.Equal(t, scrape.KindNetwork, failure.Kind)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 0
	f, _ := newTestFetcher(t, cfg)

	failure := failureOf(t, f.Fetch(context.Background(), server.URL, false))
	assert.Equal(t, scrape.KindNetwork, failure.Kind)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b\nc", cleanText("  a   b  \n\n\t\n c \n"))
	assert.Equal(t, "", cleanText(" \n \t "))
}
