// Package crawler fetches URLs and runs batches of them into sessions.
//
// A Fetcher turns one URL into one scrape.Outcome. A Coordinator fans a URL
// list out to a bounded pool of workers and records every outcome in the
// session store as it arrives.
package crawler

import "time"

// Config holds crawler configuration
type Config struct {
	Workers        int           `yaml:"workers"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	UserAgent      string        `yaml:"user_agent"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RobotsCacheTTL time.Duration `yaml:"robots_cache_ttl"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `yaml:"rate_burst"`
}

// DefaultConfig returns default crawler configuration
func DefaultConfig() Config {
	return Config{
		Workers:        5,
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   500 * time.Millisecond,
		UserAgent:      "URL-Scraper/1.0",
		MaxBodyBytes:   5 << 20,
		RobotsCacheTTL: 24 * time.Hour,
		RateLimit:      10,
		RateBurst:      5,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.RobotsCacheTTL <= 0 {
		c.RobotsCacheTTL = d.RobotsCacheTTL
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	return c
}
