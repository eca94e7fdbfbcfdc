package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const maxRobotsBytes = 512 << 10

// RobotsChecker answers robots.txt questions with a per-host cache.
// Unreachable or non-2xx robots.txt files allow everything.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	hosts map[string]robotsEntry
}

type robotsEntry struct {
	group     *robotstxt.Group // nil allows all
	fetchedAt time.Time
}

// NewRobotsChecker creates a checker that caches each host's rules for ttl.
// A robots.txt that does not arrive within timeout allows everything.
func NewRobotsChecker(client *http.Client, userAgent string, ttl, timeout time.Duration) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		timeout:   timeout,
		now:       time.Now,
		hosts:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether target may be fetched by this checker's user agent
func (r *RobotsChecker) Allowed(ctx context.Context, target *url.URL) bool {
	key := target.Scheme + "://" + strings.ToLower(target.Host)

	entry, ok := r.cached(key)
	if !ok {
		entry = r.load(ctx, key)
		if ctx.Err() == nil {
			r.mu.Lock()
			r.hosts[key] = entry
			r.mu.Unlock()
		}
	}

	if entry.group == nil {
		return true
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return entry.group.Test(path)
}

func (r *RobotsChecker) cached(key string) (robotsEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.hosts[key]
	if !ok || r.now().Sub(entry.fetchedAt) > r.ttl {
		return robotsEntry{}, false
	}
	return entry, true
}

func (r *RobotsChecker) load(ctx context.Context, base string) robotsEntry {
	entry := robotsEntry{fetchedAt: r.now()}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/robots.txt", http.NoBody)
	if err != nil {
		return entry
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return entry
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return entry
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return entry
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return entry
	}
	entry.group = data.FindGroup(r.userAgent)
	return entry
}
