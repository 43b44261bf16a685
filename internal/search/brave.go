package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/trust"
	"github.com/agentra/factcheck/internal/worker"
)

const maxBackoffMs = 4000

// BraveClient talks to the Brave Search API, merging web and news results.
// All dispatch goes through a shared SearchLimiter so total outstanding
// calls respect the upstream rate limit across jobs.
type BraveClient struct {
	cfg        model.SearchConfig
	httpClient *http.Client
	limiter    *worker.SearchLimiter
	enricher   *Enricher
	logger     *zap.Logger
}

// NewBraveClient creates a client. The limiter must be the process-wide one.
func NewBraveClient(cfg model.SearchConfig, limiter *worker.SearchLimiter, logger *zap.Logger) *BraveClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BraveClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
	}
}

// WithEnricher enables robots-gated page enrichment of thin snippets.
func (c *BraveClient) WithEnricher(e *Enricher) *BraveClient {
	c.enricher = e
	return c
}

type braveResponse struct {
	Web  braveBlock `json:"web"`
	News braveBlock `json:"news"`
}

type braveBlock struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
	Published   string `json:"published"`
	Date        string `json:"date"`
}

// Search runs one query. Errors are wrapped as ErrRetrievalTimeout or
// ErrRetrievalFailure so callers can classify without string matching.
func (c *BraveClient) Search(ctx context.Context, query string) ([]model.RawResult, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing search API key", model.ErrRetrievalFailure)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRetrievalTimeout, err)
	}

	count := c.cfg.PerQueryCount
	if count <= 0 {
		count = 4
	}
	if count > 20 {
		count = 20
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	params.Set("freshness", "month")
	params.Set("safesearch", "moderate")

	body, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", model.ErrRetrievalFailure, err)
	}

	var results []model.RawResult
	for _, block := range []braveBlock{parsed.Web, parsed.News} {
		for _, item := range block.Results {
			if item.URL == "" {
				continue
			}
			snippet := item.Description
			if snippet == "" {
				snippet = item.Snippet
			}
			published := item.Published
			if published == "" {
				published = item.Date
			}
			results = append(results, model.RawResult{
				URL:       item.URL,
				Title:     item.Title,
				Snippet:   snippet,
				Domain:    trust.Domain(item.URL),
				Published: published,
			})
		}
	}

	results = c.filterWhitelist(results)
	results = dedupeByURL(results)
	if len(results) > count {
		results = results[:count]
	}
	if c.enricher != nil {
		results = c.enricher.Enrich(ctx, results)
	}
	return results, nil
}

// request performs the HTTP call with exponential backoff plus jitter on
// 429 and 5xx responses.
func (c *BraveClient) request(ctx context.Context, params url.Values) ([]byte, error) {
	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.search.brave.com/res/v1/web/search"
	}

	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 4
	}
	backoffBase := c.cfg.BackoffBaseMs
	if backoffBase <= 0 {
		backoffBase = 250
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(backoffBase*(1<<(attempt-1))+rand.Intn(150)) * time.Millisecond
			if delay > maxBackoffMs*time.Millisecond {
				delay = maxBackoffMs * time.Millisecond
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", model.ErrRetrievalTimeout, ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrRetrievalFailure, err)
		}
		req.Header.Set("X-Subscription-Token", c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%w: %v", model.ErrRetrievalTimeout, err)
			}
			lastErr = err
			c.logger.Warn("search request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("%w: read body: %v", model.ErrRetrievalFailure, readErr)
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			c.logger.Warn("search throttled or unavailable, retrying",
				zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			continue
		default:
			return nil, fmt.Errorf("%w: status %d", model.ErrRetrievalFailure, resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("%w: retries exhausted: %v", model.ErrRetrievalFailure, lastErr)
}

func (c *BraveClient) filterWhitelist(results []model.RawResult) []model.RawResult {
	if len(c.cfg.Whitelist) == 0 {
		return results
	}
	var out []model.RawResult
	for _, r := range results {
		for _, d := range c.cfg.Whitelist {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" && (r.Domain == d || strings.HasSuffix(r.Domain, "."+d)) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func dedupeByURL(results []model.RawResult) []model.RawResult {
	seen := make(map[string]bool, len(results))
	var out []model.RawResult
	for _, r := range results {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
	}
	return out
}
