package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/db"
	"github.com/sykell/url-scraper/internal/logger"
	"github.com/sykell/url-scraper/internal/metrics"
	"github.com/sykell/url-scraper/internal/scrape"
)

// URLFetcher turns one URL into one outcome
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string, respectRobots bool) scrape.Outcome
}

// SessionRecorder is the part of the session store a batch writes to
type SessionRecorder interface {
	Create(ctx context.Context, name string, urls []string) (*db.Session, error)
	RecordResult(ctx context.Context, sessionID uint, index int, outcome scrape.Outcome) (bool, error)
	GetSession(ctx context.Context, id uint) (*db.Session, error)
}

// ItemResult is the outcome for the URL at Index in the submitted list
type ItemResult struct {
	Index   int
	URL     string
	Outcome scrape.Outcome
}

// BatchReport summarizes a finished batch. Results are in input order.
type BatchReport struct {
	SessionID  uint
	TotalURLs  int
	Successful int
	Results    []ItemResult
}

// Coordinator runs URL lists through a bounded pool of fetch workers
type Coordinator struct {
	fetcher URLFetcher
	store   SessionRecorder
	workers int
	log     logger.Logger
	metrics *metrics.Metrics
}

type job struct {
	index int
	url   string
}

// NewCoordinator creates a coordinator with cfg.Workers workers per batch
func NewCoordinator(fetcher URLFetcher, store SessionRecorder, cfg Config, log logger.Logger, m *metrics.Metrics) *Coordinator {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.NewNop()
	}
	return &Coordinator{
		fetcher: fetcher,
		store:   store,
		workers: cfg.Workers,
		log:     log,
		metrics: m,
	}
}

// Run creates a session named name for urls and scrapes it to completion.
// Individual URL failures are part of the report, not errors. An error is
// returned only when the session could not be created or an outcome could not
// be stored; in the latter case the report is still returned.
func (c *Coordinator) Run(ctx context.Context, name string, urls []string, respectRobots bool) (*BatchReport, error) {
	if len(urls) == 0 {
		return nil, apperr.Invalid("at least one URL is required")
	}

	session, err := c.store.Create(ctx, name, urls)
	if err != nil {
		return nil, err
	}

	return c.Execute(ctx, session.ID, urls, respectRobots)
}

// Execute scrapes urls into an existing session whose placeholder rows match
// urls by index.
func (c *Coordinator) Execute(ctx context.Context, sessionID uint, urls []string, respectRobots bool) (*BatchReport, error) {
	start := time.Now()
	log := c.log.With(logger.Uint("session_id", sessionID))
	log.Info("Batch started", logger.Int("urls", len(urls)))

	c.metrics.BatchesTotal.Inc()
	c.metrics.BatchSize.Observe(float64(len(urls)))

	// Outcomes must reach the store even if the caller goes away mid-batch.
	recordCtx := context.WithoutCancel(ctx)

	workers := c.workers
	if workers > len(urls) {
		workers = len(urls)
	}

	jobs := make(chan job)
	results := make(chan ItemResult, workers)

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				c.metrics.WorkersBusy.Inc()
				outcome := c.fetcher.Fetch(ctx, j.url, respectRobots)
				c.metrics.WorkersBusy.Dec()

				if _, err := c.store.RecordResult(recordCtx, sessionID, j.index, outcome); err != nil {
					c.metrics.RecordFailures.Inc()
					log.Error("Failed to record result",
						logger.Int("index", j.index),
						logger.String("url", j.url),
						logger.Error(err))
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
				}

				results <- ItemResult{Index: j.index, URL: j.url, Outcome: outcome}
			}
		}()
	}

	go func() {
		for i, u := range urls {
			jobs <- job{index: i, url: u}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	report := &BatchReport{
		SessionID: sessionID,
		TotalURLs: len(urls),
		Results:   make([]ItemResult, len(urls)),
	}
	for r := range results {
		report.Results[r.Index] = r
		if r.Outcome.OK() {
			report.Successful++
		}
	}

	c.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	log.Info("Batch finished",
		logger.Int("successful", report.Successful),
		logger.Int("failed", report.TotalURLs-report.Successful),
		logger.Duration("elapsed", time.Since(start)))

	if firstErr != nil {
		return report, firstErr
	}

	c.verify(recordCtx, sessionID, log)
	return report, nil
}

// verify logs sessions that did not reach completed after every outcome was
// stored. RepairInterrupted fixes them on the next start.
func (c *Coordinator) verify(ctx context.Context, sessionID uint, log logger.Logger) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Warn("Could not re-read session after batch", logger.Error(err))
		return
	}
	if session.Status != db.SessionCompleted || session.CompletedURLs != session.TotalURLs {
		c.metrics.Inconsistencies.Inc()
		log.Error("Session inconsistent after batch",
			logger.Error(apperr.ErrInconsistent),
			logger.String("status", string(session.Status)),
			logger.Int("completed_urls", session.CompletedURLs),
			logger.Int("total_urls", session.TotalURLs))
	}
}
