// Package retrieval turns claims into bounded search fan-out and merges the
// results through the evidence store.
package retrieval

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/evidence"
	"github.com/agentra/factcheck/internal/llm"
	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/search"
)

// Planner generates queries per claim and dispatches them with a per-claim
// concurrency cap. Query generation delegates to the reasoning capability;
// the planner's own responsibility is fan-out/fan-in.
type Planner struct {
	provider llm.Provider
	searcher search.Searcher
	store    *evidence.Store
	cfg      model.RetrievalConfig
	logger   *zap.Logger
}

// NewPlanner wires the planner.
func NewPlanner(provider llm.Provider, searcher search.Searcher, store *evidence.Store, cfg model.RetrievalConfig, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 5
	}
	if cfg.PerClaimConcurrency <= 0 {
		cfg.PerClaimConcurrency = 3
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 10
	}
	return &Planner{
		provider: provider,
		searcher: searcher,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Plan generates the bounded query set for a claim. Reasoning failure
// degrades to a single query derived from the claim text; retrieval still
// proceeds.
func (p *Planner) Plan(ctx context.Context, claim model.Claim) []string {
	queries, err := p.provider.PlanQueries(ctx, claim.Text, p.cfg.MaxQueries)
	if err != nil || len(queries) == 0 {
		if err != nil {
			p.logger.Warn("query planning degraded to claim text",
				zap.String("claim", claim.ID), zap.Error(err))
		}
		queries = []string{claim.Text}
	}
	if len(queries) > p.cfg.MaxQueries {
		queries = queries[:p.cfg.MaxQueries]
	}
	return queries
}

// Retrieve fans the queries out (bounded), merges results through the
// evidence store, and returns the trust-ranked deduplicated working set
// capped at MaxEvidence. Per-query failures contribute nothing; if every
// query fails the claim proceeds with an empty set.
func (p *Planner) Retrieve(ctx context.Context, claim model.Claim, queries []string) []model.EvidenceItem {
	sem := make(chan struct{}, p.cfg.PerClaimConcurrency)
	sets := make([][]model.EvidenceItem, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			sets[i] = p.retrieveOne(ctx, claim.ID, query)
		}(i, query)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var merged []model.EvidenceItem
	for _, set := range sets {
		for _, item := range set {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			merged = append(merged, item)
		}
	}

	ranked := p.store.Representatives(merged)
	if len(ranked) > p.cfg.MaxEvidence {
		ranked = ranked[:p.cfg.MaxEvidence]
	}
	return ranked
}

// retrieveOne resolves one query: cached set if fresh, otherwise a live
// search inserted into the store.
func (p *Planner) retrieveOne(ctx context.Context, claimID, query string) []model.EvidenceItem {
	if items, hit := p.store.Lookup(query); hit {
		return items
	}

	raws, err := p.searcher.Search(ctx, query)
	if err != nil {
		// RetrievalFailure/RetrievalTimeout are non-fatal to the claim.
		p.logger.Warn("search query failed",
			zap.String("claim", claimID), zap.String("query", query), zap.Error(err))
		return nil
	}

	return p.store.Insert(query, raws)
}
