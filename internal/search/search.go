// Package search turns a paginated web search API into a lazy sequence of
// candidate URLs.
package search

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/metrics"
)

const (
	// PageSize is the number of results per search call.
	PageSize = 10
	// MaxPages caps pagination at 100 results.
	MaxPages = 10
)

// Candidate is a single search hit.
type Candidate struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query is one search call. Start is the 1-based index of the first result.
type Query struct {
	Text         string
	Start        int
	DateRestrict string
}

// Page is the result of one search call.
type Page struct {
	Items []Candidate
}

// Searcher performs a single search call.
type Searcher interface {
	Search(ctx context.Context, q Query) (Page, error)
}

// Pager walks up to MaxPages pages of results for a query.
type Pager struct {
	searcher Searcher
	timeout  time.Duration
	logger   *zap.Logger
}

// NewPager builds a pager. timeout bounds each search call; zero disables it.
func NewPager(searcher Searcher, timeout time.Duration, logger *zap.Logger) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{searcher: searcher, timeout: timeout, logger: logger}
}

// Candidates yields hits for text in result order. The sequence ends after an
// empty page, after MaxPages pages, on ctx cancellation, or on the first
// search error, which is logged rather than returned. Pages are requested
// lazily, so stopping iteration early issues no further calls.
func (p *Pager) Candidates(ctx context.Context, text, dateRestrict string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for page := 0; page < MaxPages; page++ {
			if ctx.Err() != nil {
				return
			}
			start := 1 + page*PageSize
			res, err := p.fetch(ctx, Query{Text: text, Start: start, DateRestrict: dateRestrict})
			metrics.ObserveSearch(err)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("search request failed",
					zap.String("query", text),
					zap.Int("start", start),
					zap.Error(err),
				)
				return
			}
			if len(res.Items) == 0 {
				p.logger.Info("no more results for query", zap.String("query", text), zap.Int("start", start))
				return
			}
			for _, c := range res.Items {
				if !yield(c) {
					return
				}
			}
		}
	}
}

func (p *Pager) fetch(ctx context.Context, q Query) (Page, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.searcher.Search(ctx, q)
}
