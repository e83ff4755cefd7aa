// Package ratelimit paces outbound requests with one token bucket per key.
// Downloads are keyed by host; search calls share a single key.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/cbcr-finder/internal/fetcher"
	"github.com/JakeFAU/cbcr-finder/internal/metrics"
	"github.com/JakeFAU/cbcr-finder/internal/search"
)

// SearchKey is the bucket shared by all search calls.
const SearchKey = "search"

// Limiter manages per-key rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, d)
	}
	return nil
}

// HostKey returns the lowercase host of rawURL, or "unknown".
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Fetcher paces downloads per host.
type Fetcher struct {
	next    fetcher.Fetcher
	limiter *Limiter
}

// NewFetcher wraps next.
func NewFetcher(next fetcher.Fetcher, limiter *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: limiter}
}

// Fetch waits for the host's token, then delegates.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (fetcher.Document, error) {
	if err := f.limiter.Wait(ctx, HostKey(rawURL)); err != nil {
		return fetcher.Document{}, &fetcher.Error{URL: rawURL, Cause: err}
	}
	return f.next.Fetch(ctx, rawURL, timeout)
}

// Searcher paces search calls.
type Searcher struct {
	next    search.Searcher
	limiter *Limiter
}

// NewSearcher wraps next.
func NewSearcher(next search.Searcher, limiter *Limiter) *Searcher {
	return &Searcher{next: next, limiter: limiter}
}

// Search waits for the search token, then delegates.
func (s *Searcher) Search(ctx context.Context, q search.Query) (search.Page, error) {
	if err := s.limiter.Wait(ctx, SearchKey); err != nil {
		return search.Page{}, err
	}
	return s.next.Search(ctx, q)
}
