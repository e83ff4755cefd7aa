package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cbcr-finder/internal/fetcher"
)

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="cbcr-2023.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4 body"))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "test-agent"})
	doc, err := f.Fetch(context.Background(), server.URL+"/download?id=1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Equal(t, "cbcr-2023.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "%PDF-1.4 body", string(doc.Body))

	// Fetching the same URL twice must not be rejected as already visited.
	_, err = f.Fetch(context.Background(), server.URL+"/download?id=1", time.Second)
	require.NoError(t, err)
}

func TestFetchFilenameFromURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer server.Close()

	doc, err := New(Config{}).Fetch(context.Background(), server.URL+"/reports/abc.pdf?x=1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "abc.pdf", doc.Filename)
}

func TestFetchHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(Config{}).Fetch(context.Background(), server.URL+"/missing.pdf", time.Second)
	require.Error(t, err)
	var fe *fetcher.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := New(Config{}).Fetch(context.Background(), server.URL+"/slow.pdf", 100*time.Millisecond)
	require.Error(t, err)
	var fe *fetcher.Error
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL + "/gone.pdf"
	server.Close()

	_, err := New(Config{}).Fetch(context.Background(), target, time.Second)
	var fe *fetcher.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, target, fe.URL)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := New(Config{}).Fetch(ctx, server.URL+"/slow.pdf", 10*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", MaxBodySize: 1024})
	ctx := context.WithValue(context.Background(), ctxKey{}, "call")
	collector := f.buildCollector(ctx)
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.True(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.AllowURLRevisit)
	assert.True(t, collector.ParseHTTPErrorResponse)
	assert.Equal(t, 1024, collector.MaxBodySize)
	assert.Equal(t, "call", collector.Context.Value(ctxKey{}))
}

type ctxKey struct{}

func TestFetchOverlappingTimeouts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer server.Close()

	f := New(Config{})
	var wg sync.WaitGroup
	var slowErr, fastErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, slowErr = f.Fetch(context.Background(), server.URL+"/patient.pdf", 5*time.Second)
	}()
	go func() {
		defer wg.Done()
		_, fastErr = f.Fetch(context.Background(), server.URL+"/hasty.pdf", 50*time.Millisecond)
	}()
	wg.Wait()

	require.NoError(t, slowErr, "a short timeout on one call must not cut another call short")
	require.Error(t, fastErr)
	var fe *fetcher.Error
	require.True(t, errors.As(fastErr, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestFetchAcceptsAny2xx(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("%PDF-1.4 part"))
	}))
	defer server.Close()

	doc, err := New(Config{}).Fetch(context.Background(), server.URL+"/part.pdf", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, doc.StatusCode)
	assert.Equal(t, "%PDF-1.4 part", string(doc.Body))
}

func TestFetchErrorStatusText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := New(Config{}).Fetch(context.Background(), server.URL+"/locked.pdf", time.Second)
	var fe *fetcher.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	assert.EqualError(t, fe.Cause, "Forbidden")
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var out outcome
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "https://example.com/files/report.pdf", time.Unix(0, 0), &out)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"application/pdf"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://cdn.example.com/x/abc"),
		},
	})
	assert.Equal(t, "report.pdf", out.doc.Filename)
	assert.Equal(t, "https://cdn.example.com/x/abc", out.doc.URL)
	assert.Equal(t, "application/pdf", out.doc.ContentType)

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("Forbidden"))
	assert.Equal(t, http.StatusForbidden, out.statusCode)
	assert.EqualError(t, out.err, "Forbidden")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
