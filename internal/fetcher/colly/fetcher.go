// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/cbcr-finder/internal/fetcher"
)

const defaultTimeout = 60 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// MaxBodySize caps the payload size in bytes; zero means unlimited.
	MaxBodySize int
}

// Fetcher implements fetcher.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// outcome collects what the collector callbacks observed.
type outcome struct {
	doc        fetcher.Document
	statusCode int
	err        error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newRetryTransport(newHTTPTransport()))
	// Clones share one http.Client; each Fetch bounds itself with a context.
	c.SetRequestTimeout(0)
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch downloads rawURL. Non-2xx responses and transport failures return a
// *fetcher.Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (fetcher.Document, error) {
	var out outcome
	start := time.Now()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	collector := f.buildCollector(callCtx)
	f.configureCollectorHooks(collector, rawURL, start, &out)

	if err := f.runCollector(callCtx, collector, rawURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fetcher.Document{}, &fetcher.Error{URL: rawURL, Cause: ctxErr}
		}
		cause := err
		if out.err != nil {
			cause = out.err
		}
		return fetcher.Document{}, &fetcher.Error{URL: rawURL, StatusCode: out.statusCode, Cause: cause}
	}
	if out.err != nil {
		return fetcher.Document{}, &fetcher.Error{URL: rawURL, StatusCode: out.statusCode, Cause: out.err}
	}
	if out.doc.StatusCode < 200 || out.doc.StatusCode > 299 {
		return fetcher.Document{}, &fetcher.Error{
			URL:        rawURL,
			StatusCode: out.doc.StatusCode,
			Cause:      errors.New(http.StatusText(out.doc.StatusCode)),
		}
	}
	return out.doc, nil
}

// buildCollector clones the base collector for one call bound to ctx.
func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	// The visited-URL store is shared between clones.
	collector.AllowURLRevisit = true
	collector.MaxBodySize = f.cfg.MaxBodySize
	// Every status reaches OnResponse; Fetch decides what counts as success.
	collector.ParseHTTPErrorResponse = true
	return collector
}

// configureCollectorHooks names the file after rawURL, not the post-redirect URL.
func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, rawURL string, start time.Time, out *outcome) {
	hooks.OnResponse(func(r *colly.Response) {
		finalURL := r.Request.URL.String()
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		out.doc = fetcher.Document{
			URL:         finalURL,
			StatusCode:  r.StatusCode,
			ContentType: headers.Get("Content-Type"),
			Filename:    fetcher.ResolveFilename(headers, rawURL),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		out.err = err
		if r != nil {
			out.statusCode = r.StatusCode
		}
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
