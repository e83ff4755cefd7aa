package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cbcr-finder/internal/fetcher"
	"github.com/JakeFAU/cbcr-finder/internal/search"
)

func TestLimiter_Wait(t *testing.T) {
	// 10 RPS with burst 1: the second token arrives after ~100ms.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "test.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "test.com"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "a.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "b.com"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "key b blocked by key a")
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, "a.com"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_CanceledContext(t *testing.T) {
	l := New(Config{RPS: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "a.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "a.com"))
}

func TestHostKey(t *testing.T) {
	assert.Equal(t, "www.example.com", HostKey("https://WWW.Example.com/a.pdf"))
	assert.Equal(t, "unknown", HostKey("not a url"))
	assert.Equal(t, "unknown", HostKey("://bad"))
}

type stubFetcher struct {
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string, _ time.Duration) (fetcher.Document, error) {
	s.calls++
	return fetcher.Document{URL: rawURL, StatusCode: 200}, nil
}

func TestFetcher_DelegatesAndWrapsWaitErrors(t *testing.T) {
	next := &stubFetcher{}
	f := NewFetcher(next, New(Config{RPS: 0.01, Burst: 1}))

	doc, err := f.Fetch(context.Background(), "https://example.com/a.pdf", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.pdf", doc.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, "https://example.com/b.pdf", time.Second)
	var fetchErr *fetcher.Error
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "https://example.com/b.pdf", fetchErr.URL)
	assert.Equal(t, 1, next.calls)
}

type stubSearcher struct {
	queries []search.Query
}

func (s *stubSearcher) Search(_ context.Context, q search.Query) (search.Page, error) {
	s.queries = append(s.queries, q)
	return search.Page{Items: []search.Candidate{{URL: "https://example.com/a.pdf"}}}, nil
}

func TestSearcher_Delegates(t *testing.T) {
	next := &stubSearcher{}
	s := NewSearcher(next, New(Config{}))

	page, err := s.Search(context.Background(), search.Query{Text: "acme", Start: 1})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, []search.Query{{Text: "acme", Start: 1}}, next.queries)
}
