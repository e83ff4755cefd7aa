package search_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/search"
)

type fakeSearcher struct {
	pages  map[int][]search.Candidate
	errAt  int
	starts []int
}

func (f *fakeSearcher) Search(ctx context.Context, q search.Query) (search.Page, error) {
	f.starts = append(f.starts, q.Start)
	if f.errAt != 0 && q.Start == f.errAt {
		return search.Page{}, errors.New("quota exceeded")
	}
	if _, ok := ctx.Deadline(); !ok {
		return search.Page{}, errors.New("expected deadline")
	}
	return search.Page{Items: f.pages[q.Start]}, nil
}

func candidates(prefix string, n int) []search.Candidate {
	out := make([]search.Candidate, n)
	for i := range out {
		out[i] = search.Candidate{URL: fmt.Sprintf("https://%s.com/%d.pdf", prefix, i)}
	}
	return out
}

func TestPagerStopsOnEmptyPage(t *testing.T) {
	f := &fakeSearcher{pages: map[int][]search.Candidate{
		1:  candidates("a", 10),
		11: candidates("b", 3),
	}}
	p := search.NewPager(f, time.Second, zap.NewNop())

	got := slices.Collect(p.Candidates(context.Background(), "acme", "y5"))
	assert.Len(t, got, 13)
	assert.Equal(t, []int{1, 11, 21}, f.starts)
}

func TestPagerCapsAtTenPages(t *testing.T) {
	pages := map[int][]search.Candidate{}
	for start := 1; start <= 200; start += 10 {
		pages[start] = candidates("p", 10)
	}
	f := &fakeSearcher{pages: pages}
	p := search.NewPager(f, time.Second, nil)

	got := slices.Collect(p.Candidates(context.Background(), "acme", ""))
	assert.Len(t, got, 100)
	assert.Equal(t, []int{1, 11, 21, 31, 41, 51, 61, 71, 81, 91}, f.starts)
}

func TestPagerEndsQuietlyOnError(t *testing.T) {
	f := &fakeSearcher{pages: map[int][]search.Candidate{1: candidates("a", 10)}, errAt: 11}
	p := search.NewPager(f, time.Second, nil)

	got := slices.Collect(p.Candidates(context.Background(), "acme", ""))
	assert.Len(t, got, 10)
	assert.Equal(t, []int{1, 11}, f.starts)
}

func TestPagerIsLazy(t *testing.T) {
	f := &fakeSearcher{pages: map[int][]search.Candidate{1: candidates("a", 10), 11: candidates("b", 10)}}
	p := search.NewPager(f, time.Second, nil)

	for c := range p.Candidates(context.Background(), "acme", "") {
		require.Equal(t, "https://a.com/0.pdf", c.URL)
		break
	}
	assert.Equal(t, []int{1}, f.starts)
}

func TestPagerHonorsCancelledContext(t *testing.T) {
	f := &fakeSearcher{pages: map[int][]search.Candidate{1: candidates("a", 10)}}
	p := search.NewPager(f, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := slices.Collect(p.Candidates(ctx, "acme", ""))
	assert.Empty(t, got)
	assert.Empty(t, f.starts)
}
