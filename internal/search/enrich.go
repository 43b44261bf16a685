package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/worker"
)

const (
	// Snippets shorter than this are candidates for page enrichment.
	thinSnippetChars = 80
	// enrichedSnippetChars bounds how much page text replaces a snippet.
	enrichedSnippetChars = 400
	// maxCrawlDelay skips pages whose robots.txt asks for long waits.
	maxCrawlDelay = 5 * time.Second
)

// robotsGate is the robots.txt policy check the enricher consults.
type robotsGate interface {
	CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error)
}

// pageReader fetches readable text for a result URL.
type pageReader interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// Enricher upgrades thin search snippets with text fetched from the result
// page itself. Fetches are gated on robots.txt and throttled per domain;
// any failure leaves the original snippet in place.
type Enricher struct {
	robots  robotsGate
	fetcher pageReader
	limiter *worker.SearchLimiter
	logger  *zap.Logger
}

// NewEnricher wires the gate, fetcher, and shared limiter.
func NewEnricher(robots robotsGate, fetcher pageReader, limiter *worker.SearchLimiter, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		robots:  robots,
		fetcher: fetcher,
		limiter: limiter,
		logger:  logger,
	}
}

// Enrich returns the results with thin snippets replaced where the page
// allowed fetching and produced usable text.
func (e *Enricher) Enrich(ctx context.Context, results []model.RawResult) []model.RawResult {
	for i, r := range results {
		if len(r.Snippet) >= thinSnippetChars {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		snippet, ok := e.fetchSnippet(ctx, r)
		if ok {
			results[i].Snippet = snippet
		}
	}
	return results
}

func (e *Enricher) fetchSnippet(ctx context.Context, r model.RawResult) (string, bool) {
	allowed, crawlDelay, err := e.robots.CanFetch(ctx, r.URL)
	if err != nil {
		e.logger.Debug("robots check failed, skipping enrichment",
			zap.String("url", r.URL), zap.Error(err))
		return "", false
	}
	if !allowed || crawlDelay > maxCrawlDelay {
		return "", false
	}
	if crawlDelay > 0 {
		select {
		case <-time.After(crawlDelay):
		case <-ctx.Done():
			return "", false
		}
	}

	if e.limiter != nil {
		if err := e.limiter.WaitDomain(ctx, r.Domain); err != nil {
			return "", false
		}
	}

	text, err := e.fetcher.FetchText(ctx, r.URL)
	if err != nil {
		e.logger.Debug("page fetch failed, keeping search snippet",
			zap.String("url", r.URL), zap.Error(err))
		return "", false
	}

	text = strings.TrimSpace(text)
	if len(text) <= len(r.Snippet) {
		return "", false
	}
	if len(text) > enrichedSnippetChars {
		cut := strings.LastIndex(text[:enrichedSnippetChars], " ")
		if cut < enrichedSnippetChars/2 {
			cut = enrichedSnippetChars
		}
		text = text[:cut]
	}
	return text, true
}
