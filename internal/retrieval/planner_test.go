package retrieval

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentra/factcheck/internal/cache"
	"github.com/agentra/factcheck/internal/evidence"
	"github.com/agentra/factcheck/internal/llm"
	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/trust"
)

type fakeProvider struct {
	queries  []string
	queryErr error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ExtractClaims(ctx context.Context, text string) (*llm.ClaimPlan, error) {
	return &llm.ClaimPlan{Subclaims: []model.Subclaim{{ID: "C1", Text: text}}}, nil
}

func (f *fakeProvider) PlanQueries(ctx context.Context, claimText string, max int) ([]string, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queries, nil
}

func (f *fakeProvider) GenerateTurn(ctx context.Context, req llm.TurnRequest) (*llm.TurnResult, error) {
	return &llm.TurnResult{Text: "n/a"}, nil
}

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

type fakeSearcher struct {
	mu       sync.Mutex
	calls    int32
	inFlight int32
	maxSeen  int32
	results  map[string][]model.RawResult
	errs     map[string]error
	delay    time.Duration
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]model.RawResult, error) {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	if cur > f.maxSeen {
		f.maxSeen = cur
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.results[query], nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (c *memCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *memCache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(key string) error { return nil }
func (c *memCache) Clear() error            { return nil }

var _ cache.Cache = (*memCache)(nil)

func testPlanner(searcher *fakeSearcher, provider *fakeProvider, cfg model.RetrievalConfig) *Planner {
	table := trust.NewTable(model.TrustConfig{Floor: 0.35, Ceiling: 0.95,
		Reputation: map[string]float64{"nasa.gov": 0.95}})
	store := evidence.NewStore(&memCache{entries: make(map[string][]byte)}, table,
		model.DedupConfig{SimilarityThreshold: 0.8, PromoteMargin: 0.1}, 30*time.Minute, nil)
	return NewPlanner(provider, searcher, store, cfg, nil)
}

func claim(text string) model.Claim {
	return model.Claim{ID: "claim-1", Text: text}
}

func TestPlan_DegradesToClaimText(t *testing.T) {
	p := testPlanner(&fakeSearcher{}, &fakeProvider{queryErr: model.ErrReasoningUnavailable}, model.RetrievalConfig{})

	queries := p.Plan(context.Background(), claim("the moon is made of rock"))
	if len(queries) != 1 || queries[0] != "the moon is made of rock" {
		t.Errorf("expected fallback to claim text, got %v", queries)
	}
}

func TestPlan_CapsQueryCount(t *testing.T) {
	provider := &fakeProvider{queries: []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"}}
	p := testPlanner(&fakeSearcher{}, provider, model.RetrievalConfig{MaxQueries: 3})

	if queries := p.Plan(context.Background(), claim("x")); len(queries) != 3 {
		t.Errorf("expected 3 queries, got %d", len(queries))
	}
}

func TestRetrieve_PartialFailureTolerated(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]model.RawResult{
			"good": {{URL: "https://nasa.gov/a", Title: "Landing", Snippet: "rover landed safely"}},
		},
		errs: map[string]error{"bad": model.ErrRetrievalTimeout},
	}
	p := testPlanner(searcher, &fakeProvider{}, model.RetrievalConfig{})

	items := p.Retrieve(context.Background(), claim("x"), []string{"good", "bad"})
	if len(items) != 1 {
		t.Fatalf("expected 1 item from the surviving query, got %d", len(items))
	}
}

func TestRetrieve_AllQueriesFailYieldsEmptySet(t *testing.T) {
	searcher := &fakeSearcher{errs: map[string]error{
		"a": model.ErrRetrievalFailure,
		"b": model.ErrRetrievalTimeout,
	}}
	p := testPlanner(searcher, &fakeProvider{}, model.RetrievalConfig{})

	items := p.Retrieve(context.Background(), claim("x"), []string{"a", "b"})
	if len(items) != 0 {
		t.Errorf("expected empty evidence set, got %d items", len(items))
	}
}

func TestRetrieve_CacheHitSkipsDispatch(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]model.RawResult{
			"perseverance landing": {{URL: "https://nasa.gov/a", Snippet: "landed"}},
		},
	}
	p := testPlanner(searcher, &fakeProvider{}, model.RetrievalConfig{})

	c := claim("x")
	p.Retrieve(context.Background(), c, []string{"perseverance landing"})
	if got := atomic.LoadInt32(&searcher.calls); got != 1 {
		t.Fatalf("expected 1 search call, got %d", got)
	}

	// Same normalized query within TTL: served from cache, no new dispatch.
	p.Retrieve(context.Background(), c, []string{"THE Perseverance   landing"})
	if got := atomic.LoadInt32(&searcher.calls); got != 1 {
		t.Errorf("expected cached set to avoid dispatch, got %d calls", got)
	}
}

func TestRetrieve_EvidenceCap(t *testing.T) {
	snippets := []string{
		"rover touches down in jezero crater",
		"helicopter ingenuity completes first flight",
		"sample tubes sealed for future return mission",
		"orbiter photographs landing site from above",
		"mission control confirms telemetry lock",
		"parachute deployment recorded by onboard cameras",
	}
	results := make(map[string][]model.RawResult)
	var queries []string
	for i, snippet := range snippets {
		q := fmt.Sprintf("query-%d", i)
		queries = append(queries, q)
		results[q] = []model.RawResult{{
			URL:     fmt.Sprintf("https://site-%d.example.com/a", i),
			Snippet: snippet,
		}}
	}
	p := testPlanner(&fakeSearcher{results: results}, &fakeProvider{}, model.RetrievalConfig{MaxEvidence: 4})

	items := p.Retrieve(context.Background(), claim("x"), queries)
	if len(items) != 4 {
		t.Errorf("expected evidence capped at 4, got %d", len(items))
	}
}

func TestRetrieve_BoundedFanOut(t *testing.T) {
	results := make(map[string][]model.RawResult)
	var queries []string
	for i := 0; i < 8; i++ {
		q := fmt.Sprintf("query-%d", i)
		queries = append(queries, q)
		results[q] = nil
	}
	searcher := &fakeSearcher{results: results, delay: 20 * time.Millisecond}
	p := testPlanner(searcher, &fakeProvider{}, model.RetrievalConfig{PerClaimConcurrency: 2})

	p.Retrieve(context.Background(), claim("x"), queries)

	searcher.mu.Lock()
	maxSeen := searcher.maxSeen
	searcher.mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("fan-out exceeded cap: %d concurrent searches", maxSeen)
	}
}
