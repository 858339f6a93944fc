// Package search wraps the Tavily API as the search adapter.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/metrics"
)

const (
	defaultBaseURL = "https://api.tavily.com"
	maxResults     = 5
	// excerptLimit bounds how much of a result's content is kept.
	excerptLimit = 300
)

// Client is the Tavily search adapter. A missing API key is a terminal
// ErrNotConfigured surfaced before any network call.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (for tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// New creates a Tavily client. The timeout bounds each search call.
func New(apiKey string, timeout time.Duration, mc *metrics.Collector, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    mc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search queries Tavily and returns normalized ranked snippets.
func (c *Client) Search(ctx context.Context, query string, depth string) (*chat.SearchResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: Tavily API key missing", chat.ErrNotConfigured)
	}
	if depth != "advanced" {
		depth = "basic"
	}

	body, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		SearchDepth:   depth,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", chat.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", chat.ErrUnreachable, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordTiming(metrics.OpSearch, time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusUnauthorized:
		// Bad credential: same terminal class as a missing one.
		return nil, fmt.Errorf("%w: Tavily rejected the API key", chat.ErrNotConfigured)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: Tavily rate limit exceeded", chat.ErrRateLimited)
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: Tavily returned %s: %s", chat.ErrUnreachable, resp.Status, raw)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", chat.ErrUnreachable, err)
	}

	result := &chat.SearchResult{
		Query:  query,
		Answer: payload.Answer,
	}
	for i, r := range payload.Results {
		if i >= maxResults {
			break
		}
		result.Snippets = append(result.Snippets, chat.Snippet{
			Title:   r.Title,
			URL:     r.URL,
			Excerpt: truncate(r.Content, excerptLimit),
		})
	}
	return result, nil
}

// Healthy reports whether the search service is configured and reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	_, err := c.Search(ctx, "test", "basic")
	return err == nil
}

// truncate bounds s to maxLen characters without splitting a rune.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
