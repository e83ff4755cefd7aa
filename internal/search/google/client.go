// Package google implements search.Searcher with the Custom Search JSON API.
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/JakeFAU/cbcr-finder/internal/search"
)

// Config holds the Custom Search credentials.
type Config struct {
	APIKey   string
	EngineID string
	// Endpoint overrides the API base URL; empty uses the public endpoint.
	Endpoint string
}

// Client queries one programmable search engine.
type Client struct {
	svc *customsearch.Service
	cx  string
}

// New creates a client. The API key travels as the key query parameter.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("search API key is required")
	}
	if strings.TrimSpace(cfg.EngineID) == "" {
		return nil, fmt.Errorf("search engine ID is required")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}
	return &Client{svc: svc, cx: cfg.EngineID}, nil
}

// Search performs one cse.list call.
func (c *Client) Search(ctx context.Context, q search.Query) (search.Page, error) {
	call := c.svc.Cse.List().
		Cx(c.cx).
		Q(q.Text).
		Start(int64(q.Start)).
		Num(search.PageSize)
	if q.DateRestrict != "" {
		call = call.DateRestrict(q.DateRestrict)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return search.Page{}, fmt.Errorf("custom search %q start=%d: %w", q.Text, q.Start, err)
	}

	page := search.Page{Items: make([]search.Candidate, 0, len(res.Items))}
	for _, item := range res.Items {
		if item == nil || item.Link == "" {
			continue
		}
		page.Items = append(page.Items, search.Candidate{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
		})
	}
	return page, nil
}
