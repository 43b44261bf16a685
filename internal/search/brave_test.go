package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/worker"
)

const sampleResponse = `{
	"web": {"results": [
		{"title": "Official record", "url": "https://nasa.gov/a", "description": "telemetry confirms the landing"},
		{"title": "Wire report", "url": "https://reuters.com/b", "description": "independent confirmation"},
		{"title": "Duplicate", "url": "https://nasa.gov/a", "description": "same page again"}
	]},
	"news": {"results": [
		{"title": "News item", "url": "https://bbc.com/c", "snippet": "coverage of the event", "date": "2021-02-18"}
	]}
}`

func testClient(t *testing.T, handler http.HandlerFunc, cfg model.SearchConfig) (*BraveClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.Endpoint = server.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	limiter := worker.NewSearchLimiter(100, 100)
	return NewBraveClient(cfg, limiter, nil), server
}

func TestSearch_MergesWebAndNews(t *testing.T) {
	var gotToken string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		w.Write([]byte(sampleResponse))
	}, model.SearchConfig{PerQueryCount: 10})

	results, err := client.Search(context.Background(), "rover landing")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotToken != "test-key" {
		t.Errorf("token header = %q, want test-key", gotToken)
	}
	// Duplicate URL collapsed; web and news merged.
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Domain != "nasa.gov" {
		t.Errorf("domain = %s, want nasa.gov", results[0].Domain)
	}
	if results[2].Published != "2021-02-18" {
		t.Errorf("published = %s, want the news date", results[2].Published)
	}
}

func TestSearch_WhitelistFilters(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleResponse))
	}, model.SearchConfig{PerQueryCount: 10, Whitelist: []string{"nasa.gov"}})

	results, err := client.Search(context.Background(), "rover landing")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Domain != "nasa.gov" {
		t.Errorf("results = %v, want only nasa.gov", results)
	}
}

func TestSearch_RetriesOnThrottle(t *testing.T) {
	attempts := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(sampleResponse))
	}, model.SearchConfig{PerQueryCount: 10, MaxRetries: 2, BackoffBaseMs: 1})

	results, err := client.Search(context.Background(), "rover landing")
	if err != nil {
		t.Fatalf("Search failed after retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(results) == 0 {
		t.Error("no results after successful retry")
	}
}

func TestSearch_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}, model.SearchConfig{PerQueryCount: 10, MaxRetries: 3, BackoffBaseMs: 1})

	_, err := client.Search(context.Background(), "rover landing")
	if !errors.Is(err, model.ErrRetrievalFailure) {
		t.Fatalf("err = %v, want ErrRetrievalFailure", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is terminal)", attempts)
	}
}

func TestSearch_MissingAPIKey(t *testing.T) {
	limiter := worker.NewSearchLimiter(1, 1)
	client := NewBraveClient(model.SearchConfig{}, limiter, nil)

	_, err := client.Search(context.Background(), "anything")
	if !errors.Is(err, model.ErrRetrievalFailure) {
		t.Fatalf("err = %v, want ErrRetrievalFailure", err)
	}
}

type stubRobots struct {
	allowed bool
	delay   time.Duration
	err     error
}

func (s stubRobots) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	return s.allowed, s.delay, s.err
}

type stubFetcher struct {
	text string
	err  error
}

func (s stubFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	return s.text, s.err
}

func TestEnrich_ReplacesThinSnippets(t *testing.T) {
	longText := strings.Repeat("detailed page content with many words ", 20)
	e := NewEnricher(stubRobots{allowed: true}, stubFetcher{text: longText}, nil, nil)

	results := []model.RawResult{
		{URL: "https://nasa.gov/a", Domain: "nasa.gov", Snippet: "thin"},
		{URL: "https://bbc.com/b", Domain: "bbc.com", Snippet: strings.Repeat("already a rich snippet ", 5)},
	}
	out := e.Enrich(context.Background(), results)

	if out[0].Snippet == "thin" {
		t.Error("thin snippet was not enriched")
	}
	if len(out[0].Snippet) > enrichedSnippetChars {
		t.Errorf("enriched snippet length = %d, want <= %d", len(out[0].Snippet), enrichedSnippetChars)
	}
	if !strings.HasPrefix(out[1].Snippet, "already a rich snippet") {
		t.Error("rich snippet should be left alone")
	}
}

func TestEnrich_RespectsRobots(t *testing.T) {
	e := NewEnricher(stubRobots{allowed: false}, stubFetcher{text: "should never be used"}, nil, nil)

	out := e.Enrich(context.Background(), []model.RawResult{
		{URL: "https://nasa.gov/a", Domain: "nasa.gov", Snippet: "thin"},
	})
	if out[0].Snippet != "thin" {
		t.Errorf("snippet = %q, disallowed page must keep the search snippet", out[0].Snippet)
	}
}

func TestEnrich_FetchFailureKeepsSnippet(t *testing.T) {
	e := NewEnricher(stubRobots{allowed: true}, stubFetcher{err: errors.New("boom")}, nil, nil)

	out := e.Enrich(context.Background(), []model.RawResult{
		{URL: "https://nasa.gov/a", Domain: "nasa.gov", Snippet: "thin"},
	})
	if out[0].Snippet != "thin" {
		t.Errorf("snippet = %q, fetch failure must keep the search snippet", out[0].Snippet)
	}
}

func TestEnrich_LongCrawlDelaySkipped(t *testing.T) {
	e := NewEnricher(stubRobots{allowed: true, delay: time.Minute}, stubFetcher{text: "page"}, nil, nil)

	out := e.Enrich(context.Background(), []model.RawResult{
		{URL: "https://nasa.gov/a", Domain: "nasa.gov", Snippet: "thin"},
	})
	if out[0].Snippet != "thin" {
		t.Errorf("snippet = %q, long crawl delay must skip the fetch", out[0].Snippet)
	}
}
