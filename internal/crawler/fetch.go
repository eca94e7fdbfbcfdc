package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/metrics"
	"github.com/sykell/url-scraper/internal/scrape"
)

// Fetcher retrieves a single URL and reduces it to text.
type Fetcher struct {
	client  *http.Client
	robots  *RobotsChecker
	limiter *rate.Limiter
	cfg     Config
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewFetcher creates a fetcher. A nil client gets one tuned for crawling.
func NewFetcher(cfg Config, client *http.Client, log logger.Logger, m *metrics.Metrics) *Fetcher {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if m == nil {
		m = metrics.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Fetcher{
		client:  client,
		robots:  NewRobotsChecker(client, cfg.UserAgent, cfg.RobotsCacheTTL, cfg.Timeout),
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}

// Fetch retrieves rawURL and returns exactly one outcome. It never panics.
// Network errors are retried up to MaxRetries times.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, respectRobots bool) (out scrape.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("Fetch panicked", logger.String("url", rawURL), logger.String("panic", fmt.Sprint(r)))
			out = scrape.Fail(scrape.KindParse, fmt.Sprintf("internal error: %v", r))
		}
		f.observe(out, time.Since(start))
	}()

	target, err := validateURL(rawURL)
	if err != nil {
		return scrape.Fail(scrape.KindInvalidURL, err.Error())
	}

	if respectRobots && !f.robots.Allowed(ctx, target) {
		f.metrics.RobotsBlocked.Inc()
		return scrape.Fail(scrape.KindRobotsDisallowed, "blocked by robots.txt")
	}

	var (
		body   []byte
		status int
	)
	for attempt := 0; ; attempt++ {
		if err = f.limiter.Wait(ctx); err != nil {
			return scrape.Fail(scrape.KindNetwork, err.Error())
		}

		body, status, err = f.get(ctx, target.String())
		if err == nil || attempt >= f.cfg.MaxRetries || ctx.Err() != nil {
			break
		}

		f.metrics.FetchRetries.Inc()
		f.log.Debug("Retrying fetch",
			logger.String("url", rawURL),
			logger.Int("attempt", attempt+1),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return scrape.Fail(scrape.KindNetwork, ctx.Err().Error())
		case <-time.After(f.cfg.RetryBackoff * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return scrape.Fail(scrape.KindNetwork, err.Error())
	}

	if status < 200 || status >= 300 {
		return scrape.Fail(scrape.KindHTTPStatus, fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)))
	}

	title, text, err := extract(body, target)
	if err != nil {
		return scrape.Fail(scrape.KindParse, err.Error())
	}
	if text == "" {
		return scrape.Fail(scrape.KindEmptyContent, "No content extracted")
	}

	return scrape.NewSuccess(title, text)
}

func (f *Fetcher) observe(out scrape.Outcome, elapsed time.Duration) {
	label := "success"
	if failure, ok := out.(scrape.Failure); ok {
		label = string(failure.Kind)
	}
	f.metrics.FetchesTotal.WithLabelValues(label).Inc()
	f.metrics.FetchDuration.Observe(elapsed.Seconds())
}

// get performs one GET with the per-request timeout. The body is truncated at
// MaxBodyBytes.
func (f *Fetcher) get(ctx context.Context, address string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func validateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("URL has no host")
	}
	return u, nil
}

// extract pulls the page title and readable text out of an HTML body.
// Readability picks the main article; the whole body is used when it finds
// nothing.
func extract(body []byte, pageURL *url.URL) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template").Remove()

	var text string
	if html, err := doc.Html(); err == nil {
		if article, err := readability.FromReader(strings.NewReader(html), pageURL); err == nil {
			text = cleanText(article.TextContent)
			if title == "" {
				title = strings.TrimSpace(article.Title)
			}
		}
	}
	if text == "" {
		text = cleanText(doc.Find("body").Text())
	}

	return title, text, nil
}

// cleanText trims every line and drops blank ones.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
