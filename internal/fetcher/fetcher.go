// Package fetcher defines the document download contract and the filename
// rules shared by fetcher implementations.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// UnknownFilename is used when neither the response nor the URL names a file.
const UnknownFilename = "unknown.pdf"

// Document is a downloaded payload.
type Document struct {
	URL         string
	StatusCode  int
	ContentType string
	Filename    string
	Body        []byte
	Duration    time.Duration
}

// Fetcher downloads a single URL. timeout bounds the whole request.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (Document, error)
}

// Error describes a failed download. StatusCode is zero for transport errors.
type Error struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// ResolveFilename picks the name a payload is stored under: the
// Content-Disposition filename when present, else the last URL path segment,
// else UnknownFilename. The result never contains a path separator.
func ResolveFilename(header http.Header, rawURL string) string {
	if name := dispositionFilename(header.Get("Content-Disposition")); name != "" {
		return name
	}
	return urlFilename(rawURL)
}

func dispositionFilename(disposition string) string {
	idx := strings.Index(strings.ToLower(disposition), "filename=")
	if idx < 0 {
		return ""
	}
	value := disposition[idx+len("filename="):]
	if cut, _, found := strings.Cut(value, ";"); found {
		value = cut
	}
	value = strings.Trim(strings.TrimSpace(value), `"' `)
	return baseName(value)
}

func urlFilename(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else {
		p, _, _ = strings.Cut(p, "#")
		p, _, _ = strings.Cut(p, "?")
	}
	if name := baseName(p); name != "" {
		return name
	}
	return UnknownFilename
}

// baseName returns the last element of a slash or backslash separated path,
// or "" when nothing usable remains.
func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if strings.HasSuffix(p, "/") {
		return ""
	}
	name := path.Base(p)
	switch name {
	case ".", "..", "/", "":
		return ""
	}
	return name
}
