package finder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/cbcr-finder/internal/fetcher"
	"github.com/JakeFAU/cbcr-finder/internal/ledger"
	"github.com/JakeFAU/cbcr-finder/internal/search"
	"github.com/JakeFAU/cbcr-finder/internal/storage"
)

// fakeSearcher serves pages per query text; page n answers start 1+10n.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][][]search.Candidate
	queries []search.Query
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{results: map[string][][]search.Candidate{}}
}

func (s *fakeSearcher) add(query string, urls ...string) {
	page := make([]search.Candidate, 0, len(urls))
	for _, u := range urls {
		page = append(page, search.Candidate{URL: u})
	}
	s.results[query] = append(s.results[query], page)
}

func (s *fakeSearcher) Search(ctx context.Context, q search.Query) (search.Page, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	pages := s.results[q.Text]
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return search.Page{}, err
	}
	idx := (q.Start - 1) / search.PageSize
	if idx >= len(pages) {
		return search.Page{}, nil
	}
	return search.Page{Items: pages[idx]}, nil
}

func (s *fakeSearcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// fakeFetcher returns a PDF-looking body for every URL unless told otherwise.
type fakeFetcher struct {
	mu      sync.Mutex
	errs    map[string]error
	urls    []string
	onFetch func(url string)
	block   bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, _ time.Duration) (fetcher.Document, error) {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	hook := f.onFetch
	err := f.errs[rawURL]
	block := f.block
	f.mu.Unlock()

	if hook != nil {
		hook(rawURL)
	}
	if block {
		<-ctx.Done()
		return fetcher.Document{}, &fetcher.Error{URL: rawURL, Cause: ctx.Err()}
	}
	if err != nil {
		return fetcher.Document{}, &fetcher.Error{URL: rawURL, StatusCode: 404, Cause: err}
	}
	return fetcher.Document{
		URL:        rawURL,
		StatusCode: 200,
		Filename:   fetcher.ResolveFilename(nil, rawURL),
		Body:       []byte(fmt.Sprintf("%%PDF-1.4 %s", rawURL)),
	}, nil
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// faultyStore wraps a store and fails selected operations.
type faultyStore struct {
	storage.Store
	getErr    error
	putErrFor func(path string) error
}

func (s *faultyStore) Get(ctx context.Context, path string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, path)
}

func (s *faultyStore) Put(ctx context.Context, path string, data []byte) error {
	if s.putErrFor != nil {
		if err := s.putErrFor(path); err != nil {
			return err
		}
	}
	return s.Store.Put(ctx, path, data)
}

type recordingMirror struct {
	mu   sync.Mutex
	rows []ledger.Row
	ids  []string
	err  error
}

func (m *recordingMirror) InsertRow(_ context.Context, runID string, row ledger.Row, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	m.ids = append(m.ids, runID)
	return m.err
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errDenied = errors.New("permission denied")
